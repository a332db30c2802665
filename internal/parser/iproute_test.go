package parser

import (
	"net"
	"strings"
	"testing"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/planner"
	"hubspoke-planner/internal/routing"
)

const r0Dump = `default via 192.168.100.6 dev r0-eth0
10.0.1.0/24 dev r0-eth1 proto kernel scope link src 10.0.1.254
10.0.2.0/24 via 192.168.100.6 dev r0-eth0
192.168.100.0/29 dev r0-eth0 proto kernel scope link src 192.168.100.1
192.168.100.8/29 via 192.168.100.6 dev r0-eth0
unreachable 172.16.0.0/12

`

func generated(t *testing.T, n int, owner string) []model.RouteEntry {
	t.Helper()
	p, err := planner.New(planner.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create planner: %v", err)
	}
	plan, err := p.Plan(n)
	if err != nil {
		t.Fatalf("failed to plan: %v", err)
	}
	routes, err := routing.Generate(plan)
	if err != nil {
		t.Fatalf("failed to generate routes: %v", err)
	}
	return routes.Owned(owner)
}

func TestParseIPRouteKeepsStaticRoutes(t *testing.T) {
	entries, err := ParseIPRoute(strings.NewReader(r0Dump), "r0")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 static routes, got %d: %v", len(entries), entries)
	}

	want := []string{
		"r0: 10.0.2.0/24 via 192.168.100.6",
		"r0: 192.168.100.8/29 via 192.168.100.6",
	}
	for i, e := range entries {
		if e.String() != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], e.String())
		}
	}
}

func TestParseIPRouteHostRoute(t *testing.T) {
	entries, err := ParseIPRoute(strings.NewReader("10.9.9.9 via 10.0.1.1 dev eth0\n"), "rm")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 route, got %d", len(entries))
	}
	if ones, _ := entries[0].Destination.Mask.Size(); ones != 32 {
		t.Errorf("expected /32 host route, got /%d", ones)
	}
	if !entries[0].NextHop.Equal(net.ParseIP("10.0.1.1")) {
		t.Errorf("unexpected gateway %s", entries[0].NextHop)
	}
}

func TestParseIPRouteErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"missing gateway", "10.0.2.0/24 via\n"},
		{"invalid gateway", "10.0.2.0/24 via not-an-ip dev eth0\n"},
		{"invalid destination", "10.0.2.300/24 via 192.168.100.6\n"},
		{"host bits set", "10.0.2.1/24 via 192.168.100.6\n"},
		{"bare unicast", "unicast\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseIPRoute(strings.NewReader(tc.input), "r0"); err == nil {
				t.Fatalf("expected error for %q", tc.input)
			}
		})
	}
}

func TestDiffMatchingTables(t *testing.T) {
	expected := generated(t, 2, "r0")
	actual, err := ParseIPRoute(strings.NewReader(r0Dump), "r0")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	missing, extra := Diff(expected, actual)
	if len(missing) != 0 || len(extra) != 0 {
		t.Fatalf("expected identical tables, missing=%v extra=%v", missing, extra)
	}
}

func TestDiffReportsMissingAndExtra(t *testing.T) {
	expected := generated(t, 3, "r0")
	dump := "10.0.2.0/24 via 192.168.100.6 dev r0-eth0\n" +
		"10.0.3.0/24 via 192.168.100.6 dev r0-eth0\n" +
		"192.168.100.8/29 via 192.168.100.6 dev r0-eth0\n" +
		"10.0.9.0/24 via 192.168.100.6 dev r0-eth0\n"
	actual, err := ParseIPRoute(strings.NewReader(dump), "r0")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	missing, extra := Diff(expected, actual)
	if len(missing) != 1 || missing[0].Destination.String() != "192.168.100.16/29" {
		t.Errorf("expected 192.168.100.16/29 to be missing, got %v", missing)
	}
	if len(extra) != 1 || extra[0].Destination.String() != "10.0.9.0/24" {
		t.Errorf("expected 10.0.9.0/24 to be extra, got %v", extra)
	}
}

func TestDiffWrongGateway(t *testing.T) {
	expected := generated(t, 2, "r0")
	actual := []model.RouteEntry{
		{Destination: expected[0].Destination, NextHop: net.ParseIP("192.168.100.5").To4(), Owner: "r0"},
		expected[1],
	}

	missing, extra := Diff(expected, actual)
	if len(missing) != 1 || len(extra) != 1 {
		t.Fatalf("expected one missing and one extra route, got missing=%v extra=%v", missing, extra)
	}
	if !missing[0].NextHop.Equal(net.ParseIP("192.168.100.6")) {
		t.Errorf("unexpected missing gateway %s", missing[0].NextHop)
	}
}
