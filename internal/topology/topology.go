// Package topology turns an address plan into the node and link graph that
// the realization environment instantiates.
package topology

import (
	"net"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/utils"
)

// HostDepth is the number of links between the hub and every host:
// hub -> WAN switch -> branch router -> LAN switch -> host.
const HostDepth = 4

// Describe builds the hub-and-spoke graph of plan. The hub comes first,
// followed by the nodes of each branch in index order.
func Describe(plan *model.Plan) (*model.Topology, error) {
	if plan == nil {
		return nil, model.Inconsistent("nil plan")
	}
	if err := checkIndices(plan); err != nil {
		return nil, err
	}

	hub := model.Node{ID: plan.Hub, Role: model.RoleHub, Branch: -1}
	topo := &model.Topology{}
	var branchNodes []model.Node

	for _, b := range plan.Branches {
		if b.WAN.Network == nil || b.LAN.Network == nil {
			return nil, model.Inconsistent("branch %d has unallocated blocks", b.Index)
		}
		i := b.Index
		hubIf := model.InterfaceName(plan.Hub, i)
		hub.Interfaces = append(hub.Interfaces, model.Interface{
			Name:    hubIf,
			Address: hostNet(b.WAN.HubSide, b.WAN.Network),
		})

		routerID := model.BranchRouterID(i)
		hostID := model.HostID(i)
		wanSwitch := model.WANSwitchID(i)
		lanSwitch := model.LANSwitchID(i)

		branchNodes = append(branchNodes,
			model.Node{
				ID: wanSwitch, Role: model.RoleWANSwitch, Branch: i,
				Interfaces: switchPorts(wanSwitch, 2),
			},
			model.Node{
				ID: routerID, Role: model.RoleBranchRouter, Branch: i,
				Interfaces: []model.Interface{
					{Name: model.InterfaceName(routerID, 0), Address: hostNet(b.WAN.BranchSide, b.WAN.Network)},
					{Name: model.InterfaceName(routerID, 1), Address: hostNet(b.LAN.RouterAddress, b.LAN.Network)},
				},
			},
			model.Node{
				ID: lanSwitch, Role: model.RoleLANSwitch, Branch: i,
				Interfaces: switchPorts(lanSwitch, 2),
			},
			model.Node{
				ID: hostID, Role: model.RoleHost, Branch: i,
				Interfaces: []model.Interface{
					{Name: model.InterfaceName(hostID, 0), Address: hostNet(b.LAN.HostAddress, b.LAN.Network)},
				},
				Gateway: utils.Clone(b.LAN.RouterAddress),
			},
		)

		topo.Links = append(topo.Links,
			model.Link{A: plan.Hub, B: wanSwitch, InterfaceA: hubIf, InterfaceB: model.InterfaceName(wanSwitch, 0)},
			model.Link{A: wanSwitch, B: routerID, InterfaceA: model.InterfaceName(wanSwitch, 1), InterfaceB: model.InterfaceName(routerID, 0)},
			model.Link{A: routerID, B: lanSwitch, InterfaceA: model.InterfaceName(routerID, 1), InterfaceB: model.InterfaceName(lanSwitch, 0)},
			model.Link{A: lanSwitch, B: hostID, InterfaceA: model.InterfaceName(lanSwitch, 1), InterfaceB: model.InterfaceName(hostID, 0)},
		)
	}

	topo.Nodes = append([]model.Node{hub}, branchNodes...)
	return topo, nil
}

func checkIndices(plan *model.Plan) error {
	for pos, b := range plan.Branches {
		if b.Index != pos {
			return model.Inconsistent("branch at position %d has index %d", pos, b.Index)
		}
	}
	return nil
}

func switchPorts(id string, n int) []model.Interface {
	ports := make([]model.Interface, n)
	for k := range ports {
		ports[k] = model.Interface{Name: model.InterfaceName(id, k)}
	}
	return ports
}

func hostNet(ip net.IP, block *net.IPNet) *net.IPNet {
	mask := make(net.IPMask, len(block.Mask))
	copy(mask, block.Mask)
	return &net.IPNet{IP: utils.Clone(ip), Mask: mask}
}
