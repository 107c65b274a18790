package neigh

import (
	"net"
	"net/netip"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/modules/router/internal/discovery"
)

// Cache maps next hop IPv4 addresses to link addresses.
//
// A binding, once stored, is never overwritten nor evicted.
type Cache struct {
	cache *discovery.Cache[netip.Addr, NeighbourEntry]
	log   *zap.SugaredLogger
}

// NewCache creates a neighbour cache preloaded with permanent entries.
func NewCache(entries []NeighbourEntry, log *zap.SugaredLogger) *Cache {
	m := make(map[netip.Addr]NeighbourEntry, len(entries))
	for _, entry := range entries {
		// The first binding for an address wins.
		if _, ok := m[entry.NextHop]; !ok {
			m[entry.NextHop] = entry
		}
	}

	return &Cache{
		cache: discovery.NewCache(m),
		log:   log,
	}
}

// Lookup returns the binding for the address.
func (m *Cache) Lookup(addr netip.Addr) (NeighbourEntry, bool) {
	view := m.cache.View()
	return view.Lookup(addr)
}

// Learn stores a reachable binding unless the address is already bound.
//
// Returns true if the binding was stored.
func (m *Cache) Learn(addr netip.Addr, hw net.HardwareAddr, device string, now time.Time) bool {
	if len(hw) != 6 {
		return false
	}

	entry := NeighbourEntry{
		NextHop:   addr,
		Device:    device,
		UpdatedAt: now,
		State:     StateReachable,
	}
	copy(entry.HardwareAddr[:], hw)

	if !m.cache.InsertIfAbsent(addr, entry) {
		return false
	}

	m.log.Debugw("learned neighbour",
		zap.Stringer("addr", addr),
		zap.Stringer("hwaddr", hw),
		zap.String("device", device),
	)
	return true
}

// Dump returns all bindings ordered by address.
func (m *Cache) Dump() []NeighbourEntry {
	view := m.cache.View()
	entries, n := view.Entries()

	out := make([]NeighbourEntry, 0, n)
	for entry := range entries {
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b NeighbourEntry) int {
		return a.NextHop.Compare(b.NextHop)
	})
	return out
}

// Len returns the number of bindings.
func (m *Cache) Len() int {
	view := m.cache.View()
	_, n := view.Entries()
	return n
}
