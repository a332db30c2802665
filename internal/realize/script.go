package realize

import (
	"context"
	"fmt"
	"io"
	"net"

	"hubspoke-planner/internal/model"
)

// ScriptEnvironment renders the realization as a POSIX shell script built on
// "ip netns". Nothing is executed; the script is the dry-run output.
type ScriptEnvironment struct {
	w       io.Writer
	created []string
	started bool
}

func NewScriptEnvironment(w io.Writer) *ScriptEnvironment {
	return &ScriptEnvironment{w: w}
}

func (s *ScriptEnvironment) printf(format string, args ...interface{}) error {
	if !s.started {
		s.started = true
		if _, err := io.WriteString(s.w, "#!/bin/sh\nset -e\n"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(s.w, format+"\n", args...)
	return err
}

// exec runs command inside the namespace of node.
func (s *ScriptEnvironment) exec(node, command string) error {
	return s.printf("ip netns exec %s %s", node, command)
}

func (s *ScriptEnvironment) AddNode(ctx context.Context, node model.Node) error {
	if err := s.printf("\n# %s (%s)", node.ID, node.Role); err != nil {
		return err
	}
	if err := s.printf("ip netns add %s", node.ID); err != nil {
		return err
	}
	s.created = append(s.created, node.ID)
	if err := s.exec(node.ID, "ip link set lo up"); err != nil {
		return err
	}
	if node.IsSwitch() {
		br := BridgeName(node.ID)
		if err := s.exec(node.ID, fmt.Sprintf("ip link add %s type bridge", br)); err != nil {
			return err
		}
		return s.exec(node.ID, fmt.Sprintf("ip link set %s up", br))
	}
	return nil
}

func (s *ScriptEnvironment) AddLink(ctx context.Context, a, b Endpoint) error {
	if err := s.printf("\n# link %s <-> %s", a.Node.ID, b.Node.ID); err != nil {
		return err
	}
	if err := s.printf("ip link add %s netns %s type veth peer name %s netns %s",
		a.Interface.Name, a.Node.ID, b.Interface.Name, b.Node.ID); err != nil {
		return err
	}
	for _, ep := range []Endpoint{a, b} {
		if ep.Node.IsSwitch() {
			if err := s.exec(ep.Node.ID, fmt.Sprintf("ip link set %s master %s", ep.Interface.Name, BridgeName(ep.Node.ID))); err != nil {
				return err
			}
		}
		if ep.Interface.Address != nil {
			if err := s.exec(ep.Node.ID, fmt.Sprintf("ip addr add %s dev %s", ep.Interface.CIDR(), ep.Interface.Name)); err != nil {
				return err
			}
		}
		if err := s.exec(ep.Node.ID, fmt.Sprintf("ip link set %s up", ep.Interface.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScriptEnvironment) SetDefaultRoute(ctx context.Context, node string, gw net.IP) error {
	return s.exec(node, DefaultRouteCommand(gw))
}

func (s *ScriptEnvironment) EnableForwarding(ctx context.Context, node string) error {
	return s.exec(node, ForwardingCommand())
}

func (s *ScriptEnvironment) AddRoute(ctx context.Context, route model.RouteEntry) error {
	return s.exec(route.Owner, RouteCommand(route))
}

// Teardown appends commands deleting every namespace declared so far.
func (s *ScriptEnvironment) Teardown(ctx context.Context) error {
	if len(s.created) == 0 {
		return nil
	}
	if err := s.printf("\n# teardown"); err != nil {
		return err
	}
	for i := len(s.created) - 1; i >= 0; i-- {
		if err := s.printf("ip netns del %s", s.created[i]); err != nil {
			return err
		}
	}
	s.created = nil
	return nil
}
