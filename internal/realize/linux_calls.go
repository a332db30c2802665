//go:build linux

package realize

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

const ipForwardPath = "/proc/sys/net/ipv4/ip_forward"

type linuxCalls struct{}

// AddNamespace creates a named namespace under /var/run/netns. netns.NewNamed
// switches the calling thread, so the original namespace is restored.
func (l *linuxCalls) AddNamespace(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer origNS.Close()

	ns, err := netns.NewNamed(name)
	if err != nil {
		return withRestore(fmt.Errorf("new netns %s: %w", name, err), netns.Set(origNS))
	}
	ns.Close()

	if err := netns.Set(origNS); err != nil {
		return fmt.Errorf("setns back: %w", err)
	}
	return nil
}

// withRestore adds the failure to switch the thread back to its original
// namespace to opErr. The thread must not be reused when restoreErr is set.
func withRestore(opErr, restoreErr error) error {
	if restoreErr == nil {
		return opErr
	}
	return errors.Join(opErr, fmt.Errorf("setns back: %w", restoreErr))
}

func (l *linuxCalls) DeleteNamespace(name string) error {
	return netns.DeleteNamed(name)
}

// withHandle runs fn with a netlink handle bound to the named namespace.
func withHandle(ns string, fn func(h *netlink.Handle) error) error {
	nsHandle, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", ns, err)
	}
	defer nsHandle.Close()

	h, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		return fmt.Errorf("netlink handle in %s: %w", ns, err)
	}
	defer h.Close()

	return fn(h)
}

func (l *linuxCalls) AddBridge(ns, name string) error {
	return withHandle(ns, func(h *netlink.Handle) error {
		br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
		if err := h.LinkAdd(br); err != nil {
			return fmt.Errorf("bridge add: %w", err)
		}
		link, err := h.LinkByName(name)
		if err != nil {
			return fmt.Errorf("lookup bridge: %w", err)
		}
		return h.LinkSetUp(link)
	})
}

func (l *linuxCalls) AddVeth(nsA, nameA, nsB, nameB string) error {
	peerNS, err := netns.GetFromName(nsB)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", nsB, err)
	}
	defer peerNS.Close()

	return withHandle(nsA, func(h *netlink.Handle) error {
		veth := &netlink.Veth{
			LinkAttrs:     netlink.LinkAttrs{Name: nameA},
			PeerName:      nameB,
			PeerNamespace: netlink.NsFd(int(peerNS)),
		}
		if err := h.LinkAdd(veth); err != nil {
			return fmt.Errorf("veth add %s<->%s: %w", nameA, nameB, err)
		}
		return nil
	})
}

func (l *linuxCalls) SetMaster(ns, ifname, bridge string) error {
	return withHandle(ns, func(h *netlink.Handle) error {
		br, err := h.LinkByName(bridge)
		if err != nil {
			return fmt.Errorf("lookup bridge %s: %w", bridge, err)
		}
		link, err := h.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", ifname, err)
		}
		return h.LinkSetMaster(link, br)
	})
}

func (l *linuxCalls) AddAddr(ns, ifname string, addr *net.IPNet) error {
	return withHandle(ns, func(h *netlink.Handle) error {
		link, err := h.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", ifname, err)
		}
		return h.AddrAdd(link, &netlink.Addr{IPNet: addr})
	})
}

func (l *linuxCalls) SetUp(ns, ifname string) error {
	return withHandle(ns, func(h *netlink.Handle) error {
		link, err := h.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", ifname, err)
		}
		return h.LinkSetUp(link)
	})
}

// AddRoute installs dst via gw; a nil dst is the default route.
func (l *linuxCalls) AddRoute(ns string, dst *net.IPNet, gw net.IP) error {
	return withHandle(ns, func(h *netlink.Handle) error {
		return h.RouteAdd(&netlink.Route{Dst: dst, Gw: gw})
	})
}

// EnableForwarding writes the ip_forward sysctl from a thread inside ns;
// /proc/sys/net resolves against the caller's network namespace.
func (l *linuxCalls) EnableForwarding(ns string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer origNS.Close()

	target, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", ns, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("setns: %w", err)
	}
	werr := os.WriteFile(ipForwardPath, []byte("1\n"), 0644)
	restoreErr := netns.Set(origNS)
	if werr != nil {
		return withRestore(fmt.Errorf("enable forwarding: %w", werr), restoreErr)
	}
	if restoreErr != nil {
		return fmt.Errorf("setns back: %w", restoreErr)
	}
	return nil
}
