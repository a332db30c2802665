package realize

import (
	"fmt"
	"net"

	"hubspoke-planner/internal/model"
)

// RouteCommand renders a route entry as the command run on its owner.
func RouteCommand(r model.RouteEntry) string {
	return fmt.Sprintf("ip route add %s via %s", r.Destination, r.NextHop)
}

func DefaultRouteCommand(gw net.IP) string {
	return fmt.Sprintf("ip route add default via %s", gw)
}

func ForwardingCommand() string {
	return "sysctl -w net.ipv4.ip_forward=1"
}

// BridgeName is the bridge backing a switch node.
func BridgeName(node string) string {
	return node + "-br0"
}
