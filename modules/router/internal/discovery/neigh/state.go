package neigh

import (
	"github.com/vishvananda/netlink"
)

// NeighbourState is a type wrapper for Neighbor Cache Entry State.
//
// Values follow the kernel NUD_* constants, so entries read as they would in
// "ip neigh" output.
type NeighbourState int

const (
	// StatePermanent marks entries loaded from the static ARP cache file.
	StatePermanent NeighbourState = netlink.NUD_PERMANENT
	// StateReachable marks entries learned from ARP replies.
	StateReachable NeighbourState = netlink.NUD_REACHABLE
)

// String returns string representation of this state.
func (m NeighbourState) String() string {
	switch m {
	case netlink.NUD_NONE:
		return "NONE"
	case netlink.NUD_INCOMPLETE:
		return "INCOMPLETE"
	case netlink.NUD_REACHABLE:
		return "REACHABLE"
	case netlink.NUD_STALE:
		return "STALE"
	case netlink.NUD_FAILED:
		return "FAILED"
	case netlink.NUD_PERMANENT:
		return "PERMANENT"
	default:
		return "UNKNOWN"
	}
}
