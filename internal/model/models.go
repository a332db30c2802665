package model

import (
	"fmt"
	"net"
)

type Role string // "hub", "branchRouter", "host", "wanSwitch", "lanSwitch"

const (
	RoleHub          Role = "hub"
	RoleBranchRouter Role = "branchRouter"
	RoleHost         Role = "host"
	RoleWANSwitch    Role = "wanSwitch"
	RoleLANSwitch    Role = "lanSwitch"
)

// HubID is the node id of the central site router.
const HubID = "rm"

func BranchRouterID(i int) string { return fmt.Sprintf("r%d", i) }
func HostID(i int) string         { return fmt.Sprintf("h%d", i) }
func WANSwitchID(i int) string    { return fmt.Sprintf("sw%d", i) }
func LANSwitchID(i int) string    { return fmt.Sprintf("sl%d", i) }

// InterfaceName names the k-th interface of a node, e.g. "r0-eth1".
func InterfaceName(node string, k int) string {
	return fmt.Sprintf("%s-eth%d", node, k)
}

// WanBlock is the /29 carrying the point-to-point link between the hub and one branch.
type WanBlock struct {
	Network    *net.IPNet
	HubSide    net.IP // last usable host of the block used by the hub
	BranchSide net.IP // first usable host, the branch router's WAN interface
}

// LanBlock is the /24 local to one branch.
type LanBlock struct {
	Network       *net.IPNet
	HostAddress   net.IP
	RouterAddress net.IP
}

type Branch struct {
	Index int
	WAN   WanBlock
	LAN   LanBlock
}

type Plan struct {
	Hub      string
	WANBase  *net.IPNet
	LANBase  *net.IPNet
	Branches []Branch
}

// Blocks returns every network allocated by the plan, WAN blocks first.
func (p *Plan) Blocks() []*net.IPNet {
	blocks := make([]*net.IPNet, 0, 2*len(p.Branches))
	for _, b := range p.Branches {
		blocks = append(blocks, b.WAN.Network)
	}
	for _, b := range p.Branches {
		blocks = append(blocks, b.LAN.Network)
	}
	return blocks
}

type Interface struct {
	Name    string
	Address *net.IPNet // host address with the block mask; nil on switch ports
}

// CIDR renders the interface address as "a.b.c.d/len", or "" when unaddressed.
func (i Interface) CIDR() string {
	if i.Address == nil {
		return ""
	}
	return i.Address.String()
}

type Node struct {
	ID         string
	Role       Role
	Branch     int // -1 for the hub
	Interfaces []Interface
	Gateway    net.IP // default route of hosts
}

// IsRouter reports whether the node forwards between its interfaces.
func (n Node) IsRouter() bool {
	return n.Role == RoleHub || n.Role == RoleBranchRouter
}

// IsSwitch reports whether the node is a pure layer-2 bridge.
func (n Node) IsSwitch() bool {
	return n.Role == RoleWANSwitch || n.Role == RoleLANSwitch
}

func (n Node) Interface(name string) (Interface, bool) {
	for _, iface := range n.Interfaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return Interface{}, false
}

type Link struct {
	A          string
	B          string
	InterfaceA string
	InterfaceB string
}

type Topology struct {
	Nodes []Node
	Links []Link
}

func (t *Topology) Node(id string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Routers returns the hub and branch routers in declaration order.
func (t *Topology) Routers() []Node {
	var routers []Node
	for _, n := range t.Nodes {
		if n.IsRouter() {
			routers = append(routers, n)
		}
	}
	return routers
}

type RouteEntry struct {
	Destination *net.IPNet
	NextHop     net.IP
	Owner       string
}

func (r RouteEntry) String() string {
	return fmt.Sprintf("%s: %s via %s", r.Owner, r.Destination, r.NextHop)
}

type RouteSet struct {
	Entries []RouteEntry
}

// Owned returns the entries installed on the given node, in generation order.
func (s *RouteSet) Owned(owner string) []RouteEntry {
	var out []RouteEntry
	for _, r := range s.Entries {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out
}
