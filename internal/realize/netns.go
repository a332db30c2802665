//go:build linux

package realize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"

	"hubspoke-planner/internal/model"
)

// netCalls are the kernel operations the namespace environment needs. They
// are an interface so the realization order can be tested without root.
type netCalls interface {
	AddNamespace(name string) error
	DeleteNamespace(name string) error
	AddBridge(ns, name string) error
	AddVeth(nsA, nameA, nsB, nameB string) error
	SetMaster(ns, ifname, bridge string) error
	AddAddr(ns, ifname string, addr *net.IPNet) error
	SetUp(ns, ifname string) error
	AddRoute(ns string, dst *net.IPNet, gw net.IP) error
	EnableForwarding(ns string) error
}

// NetnsEnvironment realizes nodes as named network namespaces, switches as
// Linux bridges and links as veth pairs.
type NetnsEnvironment struct {
	calls   netCalls
	logger  *slog.Logger
	created []string
}

func NewNetnsEnvironment(logger *slog.Logger) (*NetnsEnvironment, error) {
	if unix.Geteuid() != 0 {
		return nil, errors.New("network namespace realization requires root")
	}
	return newNetnsEnvironment(&linuxCalls{}, logger), nil
}

func newNetnsEnvironment(calls netCalls, logger *slog.Logger) *NetnsEnvironment {
	if logger == nil {
		logger = slog.Default()
	}
	return &NetnsEnvironment{calls: calls, logger: logger}
}

func checkIfName(name string) error {
	if name == "" || len(name) >= unix.IFNAMSIZ {
		return fmt.Errorf("interface name %q must be 1-%d bytes", name, unix.IFNAMSIZ-1)
	}
	return nil
}

func (e *NetnsEnvironment) AddNode(ctx context.Context, node model.Node) error {
	if err := e.calls.AddNamespace(node.ID); err != nil {
		return fmt.Errorf("create namespace: %w", err)
	}
	e.created = append(e.created, node.ID)

	if err := e.calls.SetUp(node.ID, "lo"); err != nil {
		return fmt.Errorf("loopback up: %w", err)
	}
	if node.IsSwitch() {
		br := BridgeName(node.ID)
		if err := checkIfName(br); err != nil {
			return err
		}
		if err := e.calls.AddBridge(node.ID, br); err != nil {
			return fmt.Errorf("create bridge %s: %w", br, err)
		}
	}
	return nil
}

func (e *NetnsEnvironment) AddLink(ctx context.Context, a, b Endpoint) error {
	for _, ep := range []Endpoint{a, b} {
		if err := checkIfName(ep.Interface.Name); err != nil {
			return err
		}
	}
	if err := e.calls.AddVeth(a.Node.ID, a.Interface.Name, b.Node.ID, b.Interface.Name); err != nil {
		return fmt.Errorf("create veth pair: %w", err)
	}
	for _, ep := range []Endpoint{a, b} {
		ns, ifname := ep.Node.ID, ep.Interface.Name
		if ep.Node.IsSwitch() {
			if err := e.calls.SetMaster(ns, ifname, BridgeName(ns)); err != nil {
				return fmt.Errorf("attach %s to bridge: %w", ifname, err)
			}
		}
		if ep.Interface.Address != nil {
			if err := e.calls.AddAddr(ns, ifname, ep.Interface.Address); err != nil {
				return fmt.Errorf("assign %s to %s: %w", ep.Interface.CIDR(), ifname, err)
			}
		}
		if err := e.calls.SetUp(ns, ifname); err != nil {
			return fmt.Errorf("set %s up: %w", ifname, err)
		}
	}
	return nil
}

func (e *NetnsEnvironment) SetDefaultRoute(ctx context.Context, node string, gw net.IP) error {
	return e.calls.AddRoute(node, nil, gw)
}

func (e *NetnsEnvironment) EnableForwarding(ctx context.Context, node string) error {
	return e.calls.EnableForwarding(node)
}

func (e *NetnsEnvironment) AddRoute(ctx context.Context, route model.RouteEntry) error {
	return e.calls.AddRoute(route.Owner, route.Destination, route.NextHop)
}

// Teardown deletes the namespaces created by this environment, newest first.
// Deleting a namespace also removes its bridges and veth ends.
func (e *NetnsEnvironment) Teardown(ctx context.Context) error {
	var errs []error
	for i := len(e.created) - 1; i >= 0; i-- {
		if err := e.calls.DeleteNamespace(e.created[i]); err != nil {
			errs = append(errs, fmt.Errorf("delete namespace %s: %w", e.created[i], err))
			continue
		}
		e.logger.Debug("Namespace deleted", "node", e.created[i])
	}
	e.created = nil
	return errors.Join(errs...)
}

// Remove deletes the namespaces of every node of topo, whether or not this
// environment created them. Missing namespaces are skipped.
func (e *NetnsEnvironment) Remove(ctx context.Context, topo *model.Topology) error {
	var errs []error
	for i := len(topo.Nodes) - 1; i >= 0; i-- {
		id := topo.Nodes[i].ID
		err := e.calls.DeleteNamespace(id)
		if err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("delete namespace %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
