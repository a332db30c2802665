// Package engine applies a route set as a forwarding function, so a plan can
// be checked for full reachability before anything is realized.
package engine

import (
	"errors"
	"fmt"
	"net"
	"sort"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/utils"
)

// MaxHops bounds a trace; the longest legitimate path is host, router, hub,
// router, host.
const MaxHops = 16

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrNoRoute     = errors.New("no route to destination")
	ErrLoop        = errors.New("forwarding loop")
)

type RouteKind string

const (
	KindConnected RouteKind = "connected"
	KindStatic    RouteKind = "static"
	KindDefault   RouteKind = "default"
)

type tableEntry struct {
	prefix  *net.IPNet
	nextHop net.IP // nil for connected networks
	kind    RouteKind
}

// Hop is one forwarding decision taken during a trace.
type Hop struct {
	Node    string
	Prefix  string
	NextHop string // empty when the destination is on a connected network
	Kind    RouteKind
}

type Forwarder struct {
	tables map[string][]tableEntry
	owners map[string]string // interface address -> node id
	hosts  []model.Node
	order  []string
}

// NewForwarder builds one forwarding table per addressed node from the
// node interfaces, the static routes and the host gateways.
func NewForwarder(topo *model.Topology, routes *model.RouteSet) (*Forwarder, error) {
	f := &Forwarder{
		tables: make(map[string][]tableEntry),
		owners: make(map[string]string),
	}
	for _, n := range topo.Nodes {
		if n.IsSwitch() {
			continue
		}
		f.order = append(f.order, n.ID)
		for _, iface := range n.Interfaces {
			if iface.Address == nil {
				continue
			}
			f.owners[iface.Address.IP.String()] = n.ID
			network := &net.IPNet{IP: iface.Address.IP.Mask(iface.Address.Mask), Mask: iface.Address.Mask}
			f.tables[n.ID] = append(f.tables[n.ID], tableEntry{prefix: network, kind: KindConnected})
		}
		if n.Role == model.RoleHost {
			f.hosts = append(f.hosts, n)
			if n.Gateway != nil {
				f.tables[n.ID] = append(f.tables[n.ID], tableEntry{
					prefix:  &net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)},
					nextHop: n.Gateway,
					kind:    KindDefault,
				})
			}
		}
	}

	for _, r := range routes.Entries {
		if _, ok := f.tables[r.Owner]; !ok {
			return nil, model.Inconsistent("route %s owned by unknown node", r)
		}
		f.tables[r.Owner] = append(f.tables[r.Owner], tableEntry{prefix: r.Destination, nextHop: r.NextHop, kind: KindStatic})
	}

	// longest prefix first; stable keeps connected before static on ties
	for id := range f.tables {
		table := f.tables[id]
		sort.SliceStable(table, func(i, j int) bool {
			return utils.PrefixLen(table[i].prefix) > utils.PrefixLen(table[j].prefix)
		})
	}
	return f, nil
}

// Lookup returns the best matching table entry of node for dst.
func (f *Forwarder) Lookup(node string, dst net.IP) (Hop, error) {
	table, ok := f.tables[node]
	if !ok {
		return Hop{}, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	for _, e := range table {
		if !e.prefix.Contains(dst) {
			continue
		}
		hop := Hop{Node: node, Prefix: e.prefix.String(), Kind: e.kind}
		if e.nextHop != nil {
			hop.NextHop = e.nextHop.String()
		}
		return hop, nil
	}
	return Hop{}, fmt.Errorf("%w: %s has no route to %s", ErrNoRoute, node, dst)
}

// Trace follows forwarding decisions from node until the node owning dst is
// reached. The returned hops end with the decision of the last router.
func (f *Forwarder) Trace(from string, dst net.IP) ([]Hop, error) {
	var hops []Hop
	cur := from
	for len(hops) < MaxHops {
		if f.owners[dst.String()] == cur {
			return hops, nil
		}
		hop, err := f.Lookup(cur, dst)
		if err != nil {
			return hops, err
		}
		hops = append(hops, hop)

		target := dst
		if hop.NextHop != "" {
			target = net.ParseIP(hop.NextHop)
		}
		next, ok := f.owners[target.String()]
		if !ok {
			return hops, fmt.Errorf("%w: %s forwards to %s which no node owns", ErrNoRoute, cur, target)
		}
		if next == cur {
			return hops, fmt.Errorf("%w: %s forwards to itself", ErrLoop, cur)
		}
		cur = next
	}
	return hops, fmt.Errorf("%w: %s to %s exceeds %d hops", ErrLoop, from, dst, MaxHops)
}

// VerifyReachability checks that every host reaches every other host and
// every router reaches every interface address in the network.
func (f *Forwarder) VerifyReachability() error {
	for _, src := range f.hosts {
		for _, dst := range f.hosts {
			if src.ID == dst.ID {
				continue
			}
			for _, iface := range dst.Interfaces {
				if _, err := f.Trace(src.ID, iface.Address.IP); err != nil {
					return fmt.Errorf("%s -> %s (%s): %w", src.ID, dst.ID, iface.Address.IP, err)
				}
			}
		}
	}

	addrs := make([]string, 0, len(f.owners))
	for addr := range f.owners {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, id := range f.order {
		for _, addr := range addrs {
			if _, err := f.Trace(id, net.ParseIP(addr)); err != nil {
				return fmt.Errorf("%s -> %s: %w", id, addr, err)
			}
		}
	}
	return nil
}
