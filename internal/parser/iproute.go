package parser

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"hubspoke-planner/internal/model"
)

// routeTypes are the leading keywords of non-unicast lines in "ip route show".
var routeTypes = map[string]bool{
	"unreachable": true,
	"blackhole":   true,
	"prohibit":    true,
	"throw":       true,
	"local":       true,
	"broadcast":   true,
	"multicast":   true,
}

// ParseIPRoute reads "ip route show" output captured on node owner and
// returns its static routes, that is every "<prefix> via <gateway>" line.
// Default, connected and non-unicast routes are skipped.
func ParseIPRoute(r io.Reader, owner string) ([]model.RouteEntry, error) {
	scanner := bufio.NewScanner(r)
	var entries []model.RouteEntry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "default" || routeTypes[parts[0]] {
			continue
		}
		if parts[0] == "unicast" {
			parts = parts[1:]
			if len(parts) == 0 {
				return nil, fmt.Errorf("line %d: missing destination", lineNo)
			}
		}

		via := -1
		for i, p := range parts {
			if p == "via" {
				via = i
				break
			}
		}
		if via < 0 {
			// connected route, e.g. "10.0.1.0/24 dev r0-eth1 proto kernel scope link"
			continue
		}
		if via+1 >= len(parts) {
			return nil, fmt.Errorf("line %d: missing gateway after via", lineNo)
		}

		dst, err := parseDestination(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		gw := net.ParseIP(unquote(parts[via+1]))
		if gw == nil {
			return nil, fmt.Errorf("line %d: invalid gateway %q", lineNo, parts[via+1])
		}
		if v4 := gw.To4(); v4 != nil {
			gw = v4
		}
		entries = append(entries, model.RouteEntry{Destination: dst, NextHop: gw, Owner: owner})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading route dump: %w", err)
	}
	return entries, nil
}

// parseDestination accepts a prefix or a bare address, the latter being a
// host route.
func parseDestination(s string) (*net.IPNet, error) {
	if strings.Contains(s, "/") {
		ip, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid destination %q: %w", s, err)
		}
		if !ip.Equal(ipnet.IP) {
			return nil, fmt.Errorf("destination %q has host bits set", s)
		}
		return ipnet, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid destination %q", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

func unquote(s string) string {
	return strings.Trim(s, "\"")
}

func routeKey(r model.RouteEntry) string {
	return r.Owner + " " + r.Destination.String() + " " + r.NextHop.String()
}

// Diff compares a generated route table with one read back from a node.
// missing holds expected routes absent from actual, extra holds routes of
// actual that were never generated. Both are sorted by owner, destination
// and gateway.
func Diff(expected, actual []model.RouteEntry) (missing, extra []model.RouteEntry) {
	have := make(map[string]int, len(actual))
	for _, r := range actual {
		have[routeKey(r)]++
	}
	want := make(map[string]int, len(expected))
	for _, r := range expected {
		k := routeKey(r)
		want[k]++
		if have[k] > 0 {
			have[k]--
			continue
		}
		missing = append(missing, r)
	}
	for _, r := range actual {
		k := routeKey(r)
		if want[k] > 0 {
			want[k]--
			continue
		}
		extra = append(extra, r)
	}
	sortRoutes(missing)
	sortRoutes(extra)
	return missing, extra
}

func sortRoutes(routes []model.RouteEntry) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routeKey(routes[i]) < routeKey(routes[j])
	})
}
