package routing

import (
	"errors"
	"net"
	"testing"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/planner"
)

func mustPlan(t *testing.T, n int) *model.Plan {
	t.Helper()
	p, err := planner.New(planner.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create planner: %v", err)
	}
	plan, err := p.Plan(n)
	if err != nil {
		t.Fatalf("failed to plan %d branches: %v", n, err)
	}
	return plan
}

func TestGenerateTwoBranches(t *testing.T) {
	routes, err := Generate(mustPlan(t, 2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := map[string][]string{
		"rm": {"10.0.1.0/24 via 192.168.100.1", "10.0.2.0/24 via 192.168.100.9"},
		"r0": {"10.0.2.0/24 via 192.168.100.6", "192.168.100.8/29 via 192.168.100.6"},
		"r1": {"10.0.1.0/24 via 192.168.100.14", "192.168.100.0/29 via 192.168.100.14"},
	}
	for owner, lines := range want {
		got := routes.Owned(owner)
		if len(got) != len(lines) {
			t.Fatalf("%s: expected %d routes, got %d", owner, len(lines), len(got))
		}
		for i, line := range lines {
			if s := got[i].Destination.String() + " via " + got[i].NextHop.String(); s != line {
				t.Errorf("%s route %d: got %q, want %q", owner, i, s, line)
			}
		}
	}
	if len(routes.Entries) != 6 {
		t.Fatalf("expected 6 routes in total, got %d", len(routes.Entries))
	}
}

func TestGenerateRouteCounts(t *testing.T) {
	for n := 1; n <= planner.DefaultMaxBranches; n++ {
		plan := mustPlan(t, n)
		routes, err := Generate(plan)
		if err != nil {
			t.Fatalf("Generate(%d): %v", n, err)
		}
		if got, want := len(routes.Entries), n+2*n*(n-1); got != want || got != CountFor(n) {
			t.Errorf("n=%d: expected %d routes, got %d", n, want, got)
		}
		if got := len(routes.Owned(model.HubID)); got != n {
			t.Errorf("n=%d: expected %d hub routes, got %d", n, n, got)
		}
		for i := 0; i < n; i++ {
			if got := len(routes.Owned(model.BranchRouterID(i))); got != 2*(n-1) {
				t.Errorf("n=%d: r%d has %d routes, want %d", n, i, got, 2*(n-1))
			}
		}
	}
}

func TestGenerateDestinationsAreAllocatedBlocks(t *testing.T) {
	plan := mustPlan(t, 6)
	routes, err := Generate(plan)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	blocks := make(map[string]bool)
	for _, b := range plan.Blocks() {
		blocks[b.String()] = true
	}
	for _, r := range routes.Entries {
		if !blocks[r.Destination.String()] {
			t.Errorf("route %s targets %s which the plan never allocated", r, r.Destination)
		}
	}
}

func TestGenerateDoesNotAliasPlan(t *testing.T) {
	plan := mustPlan(t, 2)
	routes, err := Generate(plan)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	routes.Entries[0].NextHop[3] = 99
	routes.Entries[0].Destination.IP[2] = 99
	if plan.Branches[0].WAN.BranchSide.String() != "192.168.100.1" {
		t.Fatalf("mutating a route changed the plan: %s", plan.Branches[0].WAN.BranchSide)
	}
	if plan.Branches[0].LAN.Network.String() != "10.0.1.0/24" {
		t.Fatalf("mutating a route changed the plan: %s", plan.Branches[0].LAN.Network)
	}
}

func TestGenerateRejectsInconsistentPlans(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *model.Plan)
	}{
		{"unrecognized index", func(p *model.Plan) { p.Branches[1].Index = 7 }},
		{"missing WAN block", func(p *model.Plan) { p.Branches[0].WAN.Network = nil }},
		{"wrong prefix", func(p *model.Plan) {
			_, n, _ := net.ParseCIDR("10.0.1.0/25")
			p.Branches[0].LAN.Network = n
		}},
		{"next hop outside block", func(p *model.Plan) { p.Branches[0].WAN.HubSide = net.ParseIP("192.168.100.14") }},
		{"reused address", func(p *model.Plan) { p.Branches[0].WAN.HubSide = p.Branches[0].WAN.BranchSide }},
		{"no branches", func(p *model.Plan) { p.Branches = nil }},
		{"no hub", func(p *model.Plan) { p.Hub = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := mustPlan(t, 2)
			tt.mutate(plan)
			_, err := Generate(plan)
			var incErr *model.InconsistentPlanError
			if !errors.As(err, &incErr) {
				t.Errorf("expected InconsistentPlanError, got %v", err)
			}
		})
	}

	var incErr *model.InconsistentPlanError
	if _, err := Generate(nil); !errors.As(err, &incErr) {
		t.Errorf("expected InconsistentPlanError for nil plan, got %v", err)
	}
}
