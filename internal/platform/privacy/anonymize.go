// Package privacy reduces client identifiers before they reach logs.
package privacy

import "net/netip"

const (
	ipv4Bits = 24
	ipv6Bits = 48
)

// AnonymizeIP masks ip to its /24 (IPv4) or /48 (IPv6) network so log lines
// can be correlated by network without naming a host. IPv4-mapped IPv6
// addresses are treated as IPv4.
//
// Returns "unknown" for empty input and "invalid" when ip does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := ipv6Bits
	if addr.Is4() {
		bits = ipv4Bits
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
