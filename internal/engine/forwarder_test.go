package engine

import (
	"errors"
	"net"
	"testing"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/planner"
	"hubspoke-planner/internal/routing"
	"hubspoke-planner/internal/topology"
)

func build(t *testing.T, n int) (*model.Topology, *model.RouteSet) {
	t.Helper()
	p, err := planner.New(planner.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create planner: %v", err)
	}
	plan, err := p.Plan(n)
	if err != nil {
		t.Fatalf("failed to plan: %v", err)
	}
	topo, err := topology.Describe(plan)
	if err != nil {
		t.Fatalf("failed to describe: %v", err)
	}
	routes, err := routing.Generate(plan)
	if err != nil {
		t.Fatalf("failed to generate routes: %v", err)
	}
	return topo, routes
}

func TestVerifyReachabilityForAllBranchCounts(t *testing.T) {
	for n := 1; n <= planner.DefaultMaxBranches; n++ {
		topo, routes := build(t, n)
		f, err := NewForwarder(topo, routes)
		if err != nil {
			t.Fatalf("n=%d: NewForwarder: %v", n, err)
		}
		if err := f.VerifyReachability(); err != nil {
			t.Errorf("n=%d: expected full reachability, got %v", n, err)
		}
	}
}

func TestTraceHostToRemoteHostCrossesHub(t *testing.T) {
	topo, routes := build(t, 3)
	f, err := NewForwarder(topo, routes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hops, err := f.Trace("h0", net.ParseIP("10.0.3.1"))
	if err != nil {
		t.Fatalf("expected trace to succeed, got %v", err)
	}
	want := []struct {
		node, prefix, nextHop string
		kind                  RouteKind
	}{
		{"h0", "0.0.0.0/0", "10.0.1.254", KindDefault},
		{"r0", "10.0.3.0/24", "192.168.100.6", KindStatic},
		{"rm", "10.0.3.0/24", "192.168.100.17", KindStatic},
		{"r2", "10.0.3.0/24", "", KindConnected},
	}
	if len(hops) != len(want) {
		t.Fatalf("expected %d hops, got %d: %+v", len(want), len(hops), hops)
	}
	for i, w := range want {
		h := hops[i]
		if h.Node != w.node || h.Prefix != w.prefix || h.NextHop != w.nextHop || h.Kind != w.kind {
			t.Errorf("hop %d: got %+v, want %+v", i, h, w)
		}
	}
}

func TestTraceReachesRemoteWANBlock(t *testing.T) {
	topo, routes := build(t, 2)
	f, err := NewForwarder(topo, routes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// r0 reaches r1's WAN interface through its 192.168.100.8/29 route
	hops, err := f.Trace("r0", net.ParseIP("192.168.100.9"))
	if err != nil {
		t.Fatalf("expected trace to succeed, got %v", err)
	}
	if len(hops) != 2 || hops[0].Prefix != "192.168.100.8/29" || hops[1].Node != model.HubID {
		t.Fatalf("unexpected hops %+v", hops)
	}
}

func TestTraceFailsWithoutRoute(t *testing.T) {
	topo, routes := build(t, 2)
	// drop r0's route to the LAN of branch 1
	var kept []model.RouteEntry
	for _, r := range routes.Entries {
		if r.Owner == "r0" && r.Destination.String() == "10.0.2.0/24" {
			continue
		}
		kept = append(kept, r)
	}
	f, err := NewForwarder(topo, &model.RouteSet{Entries: kept})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.Trace("h0", net.ParseIP("10.0.2.1")); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if err := f.VerifyReachability(); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected reachability check to fail with ErrNoRoute, got %v", err)
	}
}

func TestTraceDetectsLoop(t *testing.T) {
	topo, routes := build(t, 2)
	for i, r := range routes.Entries {
		// send traffic for branch 1 back to branch 0
		if r.Owner == model.HubID && r.Destination.String() == "10.0.2.0/24" {
			routes.Entries[i].NextHop = net.ParseIP("192.168.100.1")
		}
	}
	f, err := NewForwarder(topo, routes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.Trace("h0", net.ParseIP("10.0.2.1")); !errors.Is(err, ErrLoop) {
		t.Fatalf("expected ErrLoop, got %v", err)
	}
}

func TestLookupUnknownNode(t *testing.T) {
	topo, routes := build(t, 1)
	f, err := NewForwarder(topo, routes)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.Lookup("sw0", net.ParseIP("10.0.1.1")); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode for a switch, got %v", err)
	}
}

func TestNewForwarderRejectsRoutesOfUnknownOwners(t *testing.T) {
	topo, routes := build(t, 2)
	routes.Entries = append(routes.Entries, model.RouteEntry{
		Destination: routes.Entries[0].Destination,
		NextHop:     routes.Entries[0].NextHop,
		Owner:       "r9",
	})
	var incErr *model.InconsistentPlanError
	if _, err := NewForwarder(topo, routes); !errors.As(err, &incErr) {
		t.Fatalf("expected InconsistentPlanError, got %v", err)
	}
}
