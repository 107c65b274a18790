package rib

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RIB is the forwarding table of the router.
//
// Every exported method is a single critical section, so composite
// operations such as merging a whole advertisement or an aging sweep are
// never observed half-done.
type RIB struct {
	mu     sync.RWMutex
	routes MapTrie[netip.Prefix, netip.Addr, Route]
	log    *zap.SugaredLogger
}

// NewRIB creates an empty forwarding table.
func NewRIB(log *zap.SugaredLogger) *RIB {
	return &RIB{
		routes: NewMapTrie[netip.Prefix, netip.Addr, Route](64),
		log:    log,
	}
}

// Insert adds the route replacing any existing route for the same prefix.
func (m *RIB) Insert(route Route) error {
	if !route.Prefix.Addr().Is4() {
		return fmt.Errorf("prefix %q is not an IPv4 prefix", route.Prefix)
	}
	route.Prefix = route.Prefix.Masked()

	m.mu.Lock()
	m.routes.InsertOrUpdate(
		route.Prefix,
		func() Route { return route },
		func(Route) Route { return route },
	)
	m.mu.Unlock()

	m.log.Debugw("inserted route",
		zap.Stringer("prefix", route.Prefix),
		zap.Stringer("gateway", route.Gateway),
		zap.String("interface", route.Interface),
		zap.Uint32("cost", route.Cost),
		zap.Stringer("source", route.SourceID),
	)

	return nil
}

// LongestMatch returns the most specific route covering the address.
func (m *RIB) LongestMatch(addr netip.Addr) (Route, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, route, ok := m.routes.Lookup(addr.Unmap())
	return route, ok
}

// Lookup returns the route stored for exactly this prefix.
func (m *RIB) Lookup(prefix netip.Prefix) (Route, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.routes.Get(prefix)
}

// Learn merges advertised candidate routes into the table.
//
// For every candidate: a missing prefix is inserted, an existing route with a
// strictly greater cost is replaced, otherwise the existing route is only
// refreshed. Candidates are applied in order; the routes that were inserted
// or improved are returned.
func (m *RIB) Learn(now time.Time, candidates ...Route) []Route {
	changed := []Route{}

	m.mu.Lock()
	for _, candidate := range candidates {
		if !candidate.Prefix.Addr().Is4() {
			continue
		}
		candidate.Prefix = candidate.Prefix.Masked()
		candidate.UpdatedAt = now

		m.routes.InsertOrUpdate(
			candidate.Prefix,
			func() Route {
				changed = append(changed, candidate)
				return candidate
			},
			func(existing Route) Route {
				if existing.Cost > candidate.Cost {
					changed = append(changed, candidate)
					return candidate
				}

				existing.UpdatedAt = now
				return existing
			},
		)
	}
	m.mu.Unlock()

	for _, route := range changed {
		m.log.Infow("learned route",
			zap.Stringer("prefix", route.Prefix),
			zap.Stringer("gateway", route.Gateway),
			zap.String("interface", route.Interface),
			zap.Uint32("cost", route.Cost),
		)
	}

	return changed
}

// Expire removes every route subject to aging that was not refreshed for
// more than ttl, returning the removed routes.
func (m *RIB) Expire(now time.Time, ttl time.Duration) []Route {
	expired := []Route{}

	m.mu.Lock()
	m.routes.Range(func(prefix netip.Prefix, route Route) bool {
		if route.Expires() && now.Sub(route.UpdatedAt) > ttl {
			expired = append(expired, route)
		}
		return true
	})
	for _, route := range expired {
		m.routes.Delete(route.Prefix)
	}
	m.mu.Unlock()

	for _, route := range expired {
		m.log.Infow("expired route",
			zap.Stringer("prefix", route.Prefix),
			zap.Stringer("gateway", route.Gateway),
			zap.Time("updated_at", route.UpdatedAt),
		)
	}

	return expired
}

// DumpRoutes returns a copy of all routes, most specific prefixes first and
// ordered by address within a prefix length.
func (m *RIB) DumpRoutes() []Route {
	m.mu.RLock()
	routes := make([]Route, 0, m.routes.Len())
	m.routes.Range(func(_ netip.Prefix, route Route) bool {
		routes = append(routes, route)
		return true
	})
	m.mu.RUnlock()

	slices.SortFunc(routes, func(a, b Route) int {
		if c := cmp.Compare(b.Prefix.Bits(), a.Prefix.Bits()); c != 0 {
			return c
		}
		return a.Prefix.Addr().Compare(b.Prefix.Addr())
	})
	return routes
}

// Len returns the number of routes in the table.
func (m *RIB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.routes.Len()
}
