package xnetip

import (
	"net"
	"net/netip"
)

// LimitedBroadcast is the IPv4 limited broadcast address.
var LimitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// IsNonUnicast reports whether the address is an IPv4 multicast or the limited
// broadcast address.
//
// Such destinations are never routed.
func IsNonUnicast(addr netip.Addr) bool {
	return addr.IsMulticast() || addr == LimitedBroadcast
}

// FromIP converts net.IP into netip.Addr, unmapping IPv4-in-IPv6 addresses.
//
// Returns an invalid address if ip is malformed.
func FromIP(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// FromBytes works like FromIP but for raw protocol address bytes, such as
// those found in ARP payloads.
func FromBytes(b []byte) netip.Addr {
	return FromIP(net.IP(b))
}
