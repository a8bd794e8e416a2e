// Package netinfo discovers the address shown in the startup banner.
package netinfo

import (
	"net"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Fallback is returned when no external IPv4 address is found.
const Fallback = "localhost"

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface.
func LocalIPv4() string {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return Fallback
	}
	return pickIPv4(ifaces)
}

func pickIPv4(ifaces psnet.InterfaceStatList) string {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			ip := parseAddr(a.Addr)
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return Fallback
}

// parseAddr accepts both CIDR ("10.0.0.5/24") and bare addresses.
func parseAddr(s string) net.IP {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return net.ParseIP(s)
}
