package rib

import (
	"fmt"
	"net/netip"
	"time"
)

// RouteSourceID identifies where a route was learned from.
type RouteSourceID uint8

const (
	RouteSourceUnknown RouteSourceID = iota
	// RouteSourceStatic marks routes loaded from the static route table.
	RouteSourceStatic
	// RouteSourceConnected marks subnets of local interfaces.
	RouteSourceConnected
	// RouteSourceRIP marks routes learned from RIP advertisements.
	RouteSourceRIP
)

func (m RouteSourceID) String() string {
	switch m {
	case RouteSourceStatic:
		return "static"
	case RouteSourceConnected:
		return "connected"
	case RouteSourceRIP:
		return "rip"
	default:
		return "unknown"
	}
}

// Route is a single forwarding table entry.
type Route struct {
	// Prefix is the destination network.
	Prefix netip.Prefix
	// Gateway is the next hop address.
	//
	// Either invalid or 0.0.0.0 for directly connected networks, in which
	// case the next hop is the destination address of a packet itself.
	Gateway netip.Addr
	// Interface is the name of the egress interface.
	Interface string
	// Cost is the hop count to the destination.
	//
	// Directly connected and static routes use zero cost and never expire.
	Cost uint32
	// SourceID identifies the origin of this route.
	SourceID RouteSourceID
	// UpdatedAt notes the last time the route was inserted or refreshed.
	UpdatedAt time.Time
}

// IsDirect reports whether the route denotes a directly connected network.
func (m Route) IsDirect() bool {
	return !m.Gateway.IsValid() || m.Gateway.IsUnspecified()
}

// NextHop returns the address a packet destined to dst is handed to.
func (m Route) NextHop(dst netip.Addr) netip.Addr {
	if m.IsDirect() {
		return dst
	}
	return m.Gateway
}

// Expires reports whether the route is subject to aging.
func (m Route) Expires() bool {
	return m.Cost > 0
}

func (m Route) String() string {
	gateway := "0.0.0.0"
	if !m.IsDirect() {
		gateway = m.Gateway.String()
	}
	return fmt.Sprintf("%s via %s dev %s cost %d (%s)", m.Prefix, gateway, m.Interface, m.Cost, m.SourceID)
}
