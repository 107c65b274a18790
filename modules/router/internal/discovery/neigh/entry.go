package neigh

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// NeighbourEntry binds a next hop IPv4 address to its link address.
type NeighbourEntry struct {
	// NextHop is the IP address of the next hop.
	NextHop netip.Addr
	// HardwareAddr is the MAC address of the next hop.
	HardwareAddr [6]byte
	// Device is the interface the binding was observed on. Empty for
	// entries loaded from file.
	Device string
	// UpdatedAt is the timestamp when this entry was created.
	UpdatedAt time.Time
	// State is the state of the neighbor entry.
	State NeighbourState
}

// MAC returns the hardware address as net.HardwareAddr.
func (m NeighbourEntry) MAC() net.HardwareAddr {
	return net.HardwareAddr(m.HardwareAddr[:])
}

func (m NeighbourEntry) String() string {
	return fmt.Sprintf("%s lladdr %s %s", m.NextHop, m.MAC(), m.State)
}
