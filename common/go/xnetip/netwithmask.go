package xnetip

import (
	"fmt"
	"net"
	"net/netip"
)

// NetWithMask represents an IPv4 address with a dotted-quad netmask, as it
// appears on the wire in RIPv2 entries and in static route tables.
type NetWithMask struct {
	Addr netip.Addr
	Mask net.IPMask
}

// NewNetWithMask creates a NetWithMask from an address and a mask address.
func NewNetWithMask(addr netip.Addr, mask netip.Addr) (NetWithMask, error) {
	if !addr.Is4() {
		return NetWithMask{}, fmt.Errorf("address %q is not an IPv4 address", addr)
	}
	if !mask.Is4() {
		return NetWithMask{}, fmt.Errorf("mask %q is not an IPv4 mask", mask)
	}

	return NetWithMask{Addr: addr, Mask: net.IPMask(mask.AsSlice())}, nil
}

// FromPrefix creates a NetWithMask from a netip.Prefix.
func FromPrefix(prefix netip.Prefix) NetWithMask {
	return NetWithMask{
		Addr: prefix.Addr(),
		Mask: Mask(prefix),
	}
}

// ToPrefix converts NetWithMask to a masked netip.Prefix.
//
// Returns an error if the mask is not a contiguous prefix mask.
func (n NetWithMask) ToPrefix() (netip.Prefix, error) {
	ones, bits := n.Mask.Size()
	if bits == 0 {
		return netip.Prefix{}, fmt.Errorf("mask %s is not a valid prefix (non-contiguous bits)", net.IP(n.Mask))
	}

	prefix, err := n.Addr.Prefix(ones)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("failed to create prefix: %w", err)
	}

	return prefix, nil
}

// MaskAddr returns the mask as an address, e.g. 255.255.255.0.
func (n NetWithMask) MaskAddr() netip.Addr {
	addr, _ := netip.AddrFromSlice(n.Mask)
	return addr.Unmap()
}

func (n NetWithMask) String() string {
	if prefix, err := n.ToPrefix(); err == nil {
		return prefix.String()
	}

	return fmt.Sprintf("%s/%s", n.Addr, net.IP(n.Mask))
}

// Mask returns the netmask of the given prefix.
func Mask(prefix netip.Prefix) net.IPMask {
	return net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen())
}
