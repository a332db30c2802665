package utils

import "net"

// Clone returns a copy of ip so callers cannot alias planner-owned addresses.
func Clone(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

// CIDRSize returns the number of addresses in a CIDR network.
func CIDRSize(cidr *net.IPNet) uint64 {
	ones, bits := cidr.Mask.Size()
	return 1 << (bits - ones)
}

// UsableHosts returns the number of assignable host addresses, excluding the
// network and broadcast addresses.
func UsableHosts(cidr *net.IPNet) uint64 {
	size := CIDRSize(cidr)
	if size <= 2 {
		return 0
	}
	return size - 2
}

// PrefixLen returns the prefix length of an IP network.
func PrefixLen(cidr *net.IPNet) int {
	ones, _ := cidr.Mask.Size()
	return ones
}

// Overlaps reports whether two networks share at least one address.
func Overlaps(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

// IsNetworkAddress reports whether the IP of cidr has all host bits cleared.
func IsNetworkAddress(cidr *net.IPNet) bool {
	return cidr.IP.Equal(cidr.IP.Mask(cidr.Mask))
}
