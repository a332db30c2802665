package topology

import (
	"hubspoke-planner/internal/model"
)

// Validate checks the structural guarantees of a described topology: unique
// ids, interfaces and addresses, resolvable links, and a tree rooted at the
// hub with every host HostDepth links away.
func Validate(topo *model.Topology) error {
	if topo == nil || len(topo.Nodes) == 0 {
		return model.Inconsistent("empty topology")
	}
	root := topo.Nodes[0]
	if root.Role != model.RoleHub {
		return model.Inconsistent("first node %s is not the hub", root.ID)
	}

	nodes := make(map[string]model.Node, len(topo.Nodes))
	addrs := make(map[string]string)
	for _, n := range topo.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return model.Inconsistent("duplicate node %s", n.ID)
		}
		nodes[n.ID] = n

		names := make(map[string]bool, len(n.Interfaces))
		for _, iface := range n.Interfaces {
			if names[iface.Name] {
				return model.Inconsistent("node %s declares interface %s twice", n.ID, iface.Name)
			}
			names[iface.Name] = true
			if iface.Address == nil {
				continue
			}
			if n.IsSwitch() {
				return model.Inconsistent("switch %s has address %s", n.ID, iface.CIDR())
			}
			key := iface.Address.IP.String()
			if owner, dup := addrs[key]; dup {
				return model.Inconsistent("address %s used by %s and %s", key, owner, n.ID)
			}
			addrs[key] = n.ID
		}
	}

	// a connected graph with |V|-1 edges is a tree
	if len(topo.Links) != len(topo.Nodes)-1 {
		return model.Inconsistent("%d links for %d nodes is not a tree", len(topo.Links), len(topo.Nodes))
	}
	adj := make(map[string][]string, len(nodes))
	usedPorts := make(map[string]bool)
	for _, l := range topo.Links {
		a, okA := nodes[l.A]
		b, okB := nodes[l.B]
		if !okA || !okB {
			return model.Inconsistent("link %s-%s references an unknown node", l.A, l.B)
		}
		if _, ok := a.Interface(l.InterfaceA); !ok {
			return model.Inconsistent("link %s-%s: %s has no interface %s", l.A, l.B, l.A, l.InterfaceA)
		}
		if _, ok := b.Interface(l.InterfaceB); !ok {
			return model.Inconsistent("link %s-%s: %s has no interface %s", l.A, l.B, l.B, l.InterfaceB)
		}
		for _, port := range []string{l.A + "/" + l.InterfaceA, l.B + "/" + l.InterfaceB} {
			if usedPorts[port] {
				return model.Inconsistent("interface %s is linked twice", port)
			}
			usedPorts[port] = true
		}
		adj[l.A] = append(adj[l.A], l.B)
		adj[l.B] = append(adj[l.B], l.A)
	}

	depth := map[string]int{root.ID: 0}
	queue := []string{root.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[cur] + 1
			queue = append(queue, next)
		}
	}
	if len(depth) != len(nodes) {
		return model.Inconsistent("%d of %d nodes unreachable from the hub", len(nodes)-len(depth), len(nodes))
	}
	for _, n := range topo.Nodes {
		if n.Role == model.RoleHost && depth[n.ID] != HostDepth {
			return model.Inconsistent("host %s at depth %d, want %d", n.ID, depth[n.ID], HostDepth)
		}
	}
	return nil
}
