// Package device defines the capability boundary between packet-processing
// components and the substrate that actually moves frames on the wire.
package device

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Interface describes a single network port of a device.
type Interface struct {
	// Name is the interface name, e.g. "eth0".
	Name string
	// Addr is the IPv4 address assigned to the interface.
	Addr netip.Addr
	// Prefix is the interface address with its subnet mask.
	Prefix netip.Prefix
	// HardwareAddr is the EUI-48 link address of the interface.
	HardwareAddr net.HardwareAddr
}

// Network returns the directly connected subnet of the interface.
func (m Interface) Network() netip.Prefix {
	return m.Prefix.Masked()
}

func (m Interface) String() string {
	return fmt.Sprintf("%s(%s, %s)", m.Name, m.Prefix, m.HardwareAddr)
}

// Device is a set of interfaces frames can be transmitted on.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Interfaces returns the interfaces of this device.
	Interfaces() []Interface
	// Transmit sends the frame out of the named interface.
	Transmit(iface string, frame *Frame) error
}

// Handler processes frames received on a named interface.
type Handler interface {
	HandleFrame(frame *Frame, iface string)
}

// Receiver is a device that delivers inbound frames.
type Receiver interface {
	// Run delivers received frames to the handler until the context is
	// canceled.
	//
	// Frames are delivered one at a time.
	Run(ctx context.Context, handler Handler) error
}
