// Package routing derives the static route mesh of a hub-and-spoke plan.
package routing

import (
	"net"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/utils"
)

// CountFor returns the number of routes generated for n branches: n on the
// hub and 2(n-1) on each branch router.
func CountFor(n int) int {
	return n + 2*n*(n-1)
}

// Generate computes the static routes of the hub and every branch router.
// Entries are ordered hub first, then branch routers by index; within a
// router, by destination branch with the LAN route before the WAN route.
func Generate(plan *model.Plan) (*model.RouteSet, error) {
	if err := CheckPlan(plan); err != nil {
		return nil, err
	}

	n := len(plan.Branches)
	set := &model.RouteSet{Entries: make([]model.RouteEntry, 0, CountFor(n))}

	// WAN blocks are directly connected to the hub
	for _, b := range plan.Branches {
		set.Entries = append(set.Entries, entry(plan.Hub, b.LAN.Network, b.WAN.BranchSide))
	}

	for _, src := range plan.Branches {
		owner := model.BranchRouterID(src.Index)
		for _, dst := range plan.Branches {
			if dst.Index == src.Index {
				continue
			}
			set.Entries = append(set.Entries,
				entry(owner, dst.LAN.Network, src.WAN.HubSide),
				entry(owner, dst.WAN.Network, src.WAN.HubSide),
			)
		}
	}
	return set, nil
}

func entry(owner string, dst *net.IPNet, nextHop net.IP) model.RouteEntry {
	mask := make(net.IPMask, len(dst.Mask))
	copy(mask, dst.Mask)
	return model.RouteEntry{
		Destination: &net.IPNet{IP: utils.Clone(dst.IP), Mask: mask},
		NextHop:     utils.Clone(nextHop),
		Owner:       owner,
	}
}

// CheckPlan rejects plans the planner could not have produced.
func CheckPlan(plan *model.Plan) error {
	if plan == nil {
		return model.Inconsistent("nil plan")
	}
	if plan.Hub == "" {
		return model.Inconsistent("plan has no hub")
	}
	if len(plan.Branches) == 0 {
		return model.Inconsistent("plan has no branches")
	}
	for pos, b := range plan.Branches {
		if b.Index != pos {
			return model.Inconsistent("unrecognized branch index %d at position %d", b.Index, pos)
		}
		if err := checkBlock(b.Index, "WAN", b.WAN.Network, 29, b.WAN.HubSide, b.WAN.BranchSide); err != nil {
			return err
		}
		if err := checkBlock(b.Index, "LAN", b.LAN.Network, 24, b.LAN.HostAddress, b.LAN.RouterAddress); err != nil {
			return err
		}
		if b.WAN.HubSide.Equal(b.WAN.BranchSide) || b.LAN.HostAddress.Equal(b.LAN.RouterAddress) {
			return model.Inconsistent("branch %d reuses an address inside one block", b.Index)
		}
	}
	return nil
}

func checkBlock(i int, kind string, network *net.IPNet, prefixLen int, addrs ...net.IP) error {
	if network == nil {
		return model.Inconsistent("branch %d has no %s block", i, kind)
	}
	if utils.PrefixLen(network) != prefixLen || !utils.IsNetworkAddress(network) {
		return model.Inconsistent("branch %d %s block %s is not a /%d network", i, kind, network, prefixLen)
	}
	for _, ip := range addrs {
		if ip == nil || !network.Contains(ip) {
			return model.Inconsistent("branch %d %s address %v outside %s", i, kind, ip, network)
		}
	}
	return nil
}
