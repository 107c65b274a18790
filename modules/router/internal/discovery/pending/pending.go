// Package pending holds frames waiting for next hop link address resolution.
package pending

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
)

// Resolver performs the I/O on behalf of the queue.
//
// Methods are never called with the queue lock held.
type Resolver interface {
	// SendRequest issues an address resolution request for the target out of
	// the given interface.
	SendRequest(target netip.Addr, iface string)
	// Deliver transmits a released frame on the given interface.
	Deliver(frame *device.Frame, iface string)
	// Unreachable reports a frame whose next hop was never resolved.
	//
	// The inbound interface is empty for frames originated locally.
	Unreachable(frame *device.Frame, inIface string)
}

// Option is a function that configures the queue.
type Option func(*options)

// WithPollInterval configures how often the retrier wakes up.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.PollInterval = interval
	}
}

// WithRetryInterval configures the minimum age of the last attempt before
// the next one is made.
func WithRetryInterval(interval time.Duration) Option {
	return func(o *options) {
		o.RetryInterval = interval
	}
}

// WithMaxAttempts configures the number of resolution attempts made before
// the waiting frames are given up on.
func WithMaxAttempts(attempts int) Option {
	return func(o *options) {
		o.MaxAttempts = attempts
	}
}

// WithClock configures the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

// WithLog configures the queue with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	Now           func() time.Time
	Log           *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		PollInterval:  500 * time.Millisecond,
		RetryInterval: time.Second,
		MaxAttempts:   3,
		Now:           time.Now,
		Log:           zap.NewNop().Sugar(),
	}
}

type waiter struct {
	frame   *device.Frame
	inIface string
}

type entry struct {
	// iface is the egress interface of the first resolution attempt.
	iface       string
	attempts    int
	lastAttempt time.Time
	waiters     []waiter
}

// Queue is the pending resolution queue.
//
// There is at most one entry per target address. Every read-modify-write of
// the entries happens under a single lock, while all I/O is performed by the
// Resolver after the lock is released.
type Queue struct {
	mu      sync.Mutex
	entries map[netip.Addr]*entry

	resolver      Resolver
	pollInterval  time.Duration
	retryInterval time.Duration
	maxAttempts   int
	now           func() time.Time
	log           *zap.SugaredLogger
}

// NewQueue creates a new pending resolution queue.
func NewQueue(resolver Resolver, options ...Option) *Queue {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Queue{
		entries:       map[netip.Addr]*entry{},
		resolver:      resolver,
		pollInterval:  opts.PollInterval,
		retryInterval: opts.RetryInterval,
		maxAttempts:   opts.MaxAttempts,
		now:           opts.Now,
		log:           opts.Log,
	}
}

// Enqueue appends the frame to the entry of the target, creating the entry
// if there is none.
//
// The first resolution request is sent out of outIface when the entry is
// created. Returns true in that case.
func (m *Queue) Enqueue(frame *device.Frame, target netip.Addr, inIface string, outIface string) bool {
	now := m.now()

	m.mu.Lock()
	e, ok := m.entries[target]
	if !ok {
		e = &entry{
			iface:       outIface,
			attempts:    1,
			lastAttempt: now,
		}
		m.entries[target] = e
	}
	e.waiters = append(e.waiters, waiter{frame: frame, inIface: inIface})
	queued := len(e.waiters)
	m.mu.Unlock()

	m.log.Debugw("queued frame pending resolution",
		zap.Stringer("target", target),
		zap.String("iface", outIface),
		zap.Int("queued", queued),
	)

	if !ok {
		m.resolver.SendRequest(target, outIface)
	}
	return !ok
}

// Pending reports whether there are frames waiting for the target.
func (m *Queue) Pending(target netip.Addr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[target]
	return ok
}

// Len returns the number of targets being resolved.
func (m *Queue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Resolve releases every frame waiting for the target.
//
// Each frame gets the resolved destination link address and is delivered on
// the interface the reply arrived on. Returns false if nothing was waiting.
func (m *Queue) Resolve(target netip.Addr, hw net.HardwareAddr, iface string) bool {
	m.mu.Lock()
	e, ok := m.entries[target]
	if ok {
		delete(m.entries, target)
	}
	m.mu.Unlock()

	if !ok {
		m.log.Debugw("no frames pending resolution", zap.Stringer("target", target))
		return false
	}

	m.log.Debugw("resolved pending target",
		zap.Stringer("target", target),
		zap.Stringer("hwaddr", hw),
		zap.String("iface", iface),
		zap.Int("frames", len(e.waiters)),
	)

	for _, w := range e.waiters {
		w.frame.Ethernet.DstMAC = slices.Clone(hw)
		m.resolver.Deliver(w.frame, iface)
	}
	return true
}

// Run runs the retrier until the specified context is canceled.
func (m *Queue) Run(ctx context.Context) error {
	m.log.Debugf("starting resolution retrier")
	defer m.log.Debugf("stopped resolution retrier")

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(m.now())
		}
	}
}

type retry struct {
	target netip.Addr
	iface  string
}

type purge struct {
	target  netip.Addr
	waiters []waiter
}

// sweep retries or purges every entry whose last attempt is old enough.
func (m *Queue) sweep(now time.Time) {
	retries := []retry{}
	purges := []purge{}

	m.mu.Lock()
	for target, e := range m.entries {
		if now.Sub(e.lastAttempt) < m.retryInterval {
			continue
		}

		if e.attempts < m.maxAttempts {
			e.attempts++
			e.lastAttempt = now
			retries = append(retries, retry{target: target, iface: e.iface})
			continue
		}

		delete(m.entries, target)
		purges = append(purges, purge{target: target, waiters: e.waiters})
	}
	m.mu.Unlock()

	for _, r := range retries {
		m.log.Debugw("retrying resolution", zap.Stringer("target", r.target), zap.String("iface", r.iface))
		m.resolver.SendRequest(r.target, r.iface)
	}

	for _, p := range purges {
		m.log.Infow("failed to resolve next hop",
			zap.Stringer("target", p.target),
			zap.Int("frames", len(p.waiters)),
		)
		for _, w := range p.waiters {
			m.resolver.Unreachable(w.frame, w.inIface)
		}
	}
}
