package realize

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestScriptEnvironmentRendersFullRealization(t *testing.T) {
	topo, routes := build(t, 2)
	var buf bytes.Buffer
	if err := NewRealizer(NewScriptEnvironment(&buf), nil).Realize(context.Background(), topo, routes); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	script := buf.String()

	if !strings.HasPrefix(script, "#!/bin/sh\nset -e\n") {
		t.Fatalf("expected shell header, got %q", script[:20])
	}
	for _, want := range []string{
		"ip netns add rm",
		"ip netns exec sw0 ip link add sw0-br0 type bridge",
		"ip link add rm-eth0 netns rm type veth peer name sw0-eth0 netns sw0",
		"ip netns exec rm ip addr add 192.168.100.6/29 dev rm-eth0",
		"ip netns exec sw0 ip link set sw0-eth0 master sw0-br0",
		"ip netns exec h1 ip route add default via 10.0.2.254",
		"ip netns exec r1 ip route add 10.0.1.0/24 via 192.168.100.14",
		"ip netns exec r1 ip route add 192.168.100.0/29 via 192.168.100.14",
		"ip netns exec rm ip route add 10.0.2.0/24 via 192.168.100.9",
	} {
		if !strings.Contains(script, want+"\n") {
			t.Errorf("expected script to contain %q", want)
		}
	}

	if got := strings.Count(script, " ip route add ") - strings.Count(script, "ip route add default"); got != len(routes.Entries) {
		t.Errorf("expected %d static route commands, got %d", len(routes.Entries), got)
	}
	if got := strings.Count(script, ForwardingCommand()); got != 3 {
		t.Errorf("expected one forwarding command per router, got %d", got)
	}
	if strings.Contains(script, "ip netns del") {
		t.Errorf("expected no teardown commands on success")
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestScriptEnvironmentPropagatesWriteErrors(t *testing.T) {
	topo, routes := build(t, 1)
	err := NewRealizer(NewScriptEnvironment(&failingWriter{after: 3}), nil).Realize(context.Background(), topo, routes)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestScriptEnvironmentTeardown(t *testing.T) {
	var buf bytes.Buffer
	env := NewScriptEnvironment(&buf)
	topo, _ := build(t, 1)
	for _, n := range topo.Nodes[:2] {
		if err := env.AddNode(context.Background(), n); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	if err := env.Teardown(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := buf.String()
	first := strings.Index(out, "ip netns del sw0")
	second := strings.Index(out, "ip netns del rm")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected namespaces deleted newest first, got:\n%s", out)
	}
}
