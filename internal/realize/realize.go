// Package realize drives an external environment (a network emulator, a
// shell script, Linux network namespaces) to instantiate a planned topology.
package realize

import (
	"context"
	"log/slog"
	"net"

	"hubspoke-planner/internal/model"
)

// Environment is the boundary toward whatever turns declarations into a
// running network. Every call may be slow and may fail.
type Environment interface {
	AddNode(ctx context.Context, node model.Node) error
	AddLink(ctx context.Context, a, b Endpoint) error
	SetDefaultRoute(ctx context.Context, node string, gw net.IP) error
	EnableForwarding(ctx context.Context, node string) error
	AddRoute(ctx context.Context, route model.RouteEntry) error
	// Teardown removes everything created so far.
	Teardown(ctx context.Context) error
}

// Endpoint is one side of a link: the node and the interface it attaches.
type Endpoint struct {
	Node      model.Node
	Interface model.Interface
}

type Realizer struct {
	env    Environment
	logger *slog.Logger
}

func NewRealizer(env Environment, logger *slog.Logger) *Realizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Realizer{env: env, logger: logger}
}

// Realize creates nodes (hub first), links, host default routes, enables
// forwarding on routers and finally installs the static routes. On the first
// failure everything created is torn down; there is no partial success.
func (r *Realizer) Realize(ctx context.Context, topo *model.Topology, routes *model.RouteSet) error {
	if err := r.realize(ctx, topo, routes); err != nil {
		r.logger.Error("Realization failed, tearing down", "error", err)
		if tdErr := r.env.Teardown(context.WithoutCancel(ctx)); tdErr != nil {
			r.logger.Error("Teardown failed", "error", tdErr)
		}
		return err
	}
	r.logger.Info("Topology realized", "nodes", len(topo.Nodes), "links", len(topo.Links), "routes", len(routes.Entries))
	return nil
}

func (r *Realizer) realize(ctx context.Context, topo *model.Topology, routes *model.RouteSet) error {
	hub, ok := hubOf(topo)
	if !ok {
		return &model.RealizationError{Op: "add node", Err: model.Inconsistent("topology has no hub")}
	}

	// branches attach to the hub, so it exists before anything else
	nodes := []model.Node{hub}
	for _, n := range topo.Nodes {
		if n.ID != hub.ID {
			nodes = append(nodes, n)
		}
	}
	for _, n := range nodes {
		if err := step(ctx, n.ID, "add node", func() error { return r.env.AddNode(ctx, n) }); err != nil {
			return err
		}
		r.logger.Debug("Node created", "node", n.ID, "role", n.Role)
	}

	for _, l := range topo.Links {
		a, b, err := endpoints(topo, l)
		if err != nil {
			return &model.RealizationError{Node: l.A, Op: "add link", Err: err}
		}
		if err := step(ctx, l.A, "add link", func() error { return r.env.AddLink(ctx, a, b) }); err != nil {
			return err
		}
		r.logger.Debug("Link created", "a", l.A, "b", l.B)
	}

	for _, n := range nodes {
		if n.Role != model.RoleHost || n.Gateway == nil {
			continue
		}
		if err := step(ctx, n.ID, "set default route", func() error { return r.env.SetDefaultRoute(ctx, n.ID, n.Gateway) }); err != nil {
			return err
		}
	}

	for _, n := range nodes {
		if !n.IsRouter() {
			continue
		}
		if err := step(ctx, n.ID, "enable forwarding", func() error { return r.env.EnableForwarding(ctx, n.ID) }); err != nil {
			return err
		}
	}

	for _, route := range routes.Entries {
		if _, ok := topo.Node(route.Owner); !ok {
			return &model.RealizationError{Node: route.Owner, Op: "add route", Err: model.Inconsistent("route %s owned by unknown node", route)}
		}
		if err := step(ctx, route.Owner, "add route", func() error { return r.env.AddRoute(ctx, route) }); err != nil {
			return err
		}
		r.logger.Debug("Route installed", "node", route.Owner, "destination", route.Destination.String(), "via", route.NextHop.String())
	}
	return nil
}

func step(ctx context.Context, node, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &model.RealizationError{Node: node, Op: op, Err: err}
	}
	if err := fn(); err != nil {
		return &model.RealizationError{Node: node, Op: op, Err: err}
	}
	return nil
}

func hubOf(topo *model.Topology) (model.Node, bool) {
	for _, n := range topo.Nodes {
		if n.Role == model.RoleHub {
			return n, true
		}
	}
	return model.Node{}, false
}

func endpoints(topo *model.Topology, l model.Link) (Endpoint, Endpoint, error) {
	a, okA := topo.Node(l.A)
	b, okB := topo.Node(l.B)
	if !okA || !okB {
		return Endpoint{}, Endpoint{}, model.Inconsistent("link %s-%s references an unknown node", l.A, l.B)
	}
	ifA, okA := a.Interface(l.InterfaceA)
	ifB, okB := b.Interface(l.InterfaceB)
	if !okA || !okB {
		return Endpoint{}, Endpoint{}, model.Inconsistent("link %s-%s references an unknown interface", l.A, l.B)
	}
	return Endpoint{Node: a, Interface: ifA}, Endpoint{Node: b, Interface: ifB}, nil
}
