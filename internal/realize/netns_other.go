//go:build !linux

package realize

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"hubspoke-planner/internal/model"
)

var errUnsupported = errors.New("network namespace realization is only supported on linux")

type NetnsEnvironment struct{}

func NewNetnsEnvironment(logger *slog.Logger) (*NetnsEnvironment, error) {
	return nil, errUnsupported
}

func (e *NetnsEnvironment) AddNode(ctx context.Context, node model.Node) error { return errUnsupported }
func (e *NetnsEnvironment) AddLink(ctx context.Context, a, b Endpoint) error   { return errUnsupported }
func (e *NetnsEnvironment) SetDefaultRoute(ctx context.Context, node string, gw net.IP) error {
	return errUnsupported
}
func (e *NetnsEnvironment) EnableForwarding(ctx context.Context, node string) error {
	return errUnsupported
}
func (e *NetnsEnvironment) AddRoute(ctx context.Context, route model.RouteEntry) error {
	return errUnsupported
}
func (e *NetnsEnvironment) Teardown(ctx context.Context) error { return nil }
func (e *NetnsEnvironment) Remove(ctx context.Context, topo *model.Topology) error {
	return errUnsupported
}
