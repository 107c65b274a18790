package router

import (
	"context"
	"net/netip"
	"time"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xnetip"
	"github.com/yanet-platform/softrouter/modules/router/internal/discovery/neigh"
	"github.com/yanet-platform/softrouter/modules/router/internal/discovery/pending"
	"github.com/yanet-platform/softrouter/modules/router/internal/rib"
	"github.com/yanet-platform/softrouter/modules/router/internal/rip"
)

// Option is a function that configures the router.
type Option func(*options)

// WithLog configures the router with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithClock configures the time source shared by the router components.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

type options struct {
	Log *zap.SugaredLogger
	Now func() time.Time
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
		Now: time.Now,
	}
}

// Router is an IPv4 router over a device.
//
// It forwards transit traffic, answers for its own addresses, resolves next
// hops with ARP and, optionally, maintains the forwarding table with RIP.
type Router struct {
	dev        device.Device
	ifaces     map[string]device.Interface
	local      map[netip.Addr]struct{}
	rib        *rib.RIB
	neighbours *neigh.Cache
	pending    *pending.Queue
	// rip is nil when dynamic routing is disabled.
	rip *rip.Engine
	now func() time.Time
	log *zap.SugaredLogger
}

// NewRouter creates a new router.
//
// The set of interfaces is captured once from the device.
func NewRouter(
	cfg *Config,
	dev device.Device,
	table *rib.RIB,
	neighbours *neigh.Cache,
	options ...Option,
) *Router {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	m := &Router{
		dev:        dev,
		ifaces:     map[string]device.Interface{},
		local:      map[netip.Addr]struct{}{},
		rib:        table,
		neighbours: neighbours,
		now:        opts.Now,
		log:        opts.Log,
	}
	for _, iface := range dev.Interfaces() {
		m.ifaces[iface.Name] = iface
		m.local[iface.Addr] = struct{}{}
	}

	m.pending = pending.NewQueue(
		&resolver{router: m},
		pending.WithPollInterval(cfg.Resolve.PollInterval),
		pending.WithRetryInterval(cfg.Resolve.RetryInterval),
		pending.WithMaxAttempts(cfg.Resolve.MaxAttempts),
		pending.WithClock(opts.Now),
		pending.WithLog(opts.Log),
	)

	if cfg.RIPEnabled() {
		m.rip = rip.NewEngine(
			table,
			dev,
			rip.WithTickInterval(cfg.RIP.TickInterval),
			rip.WithRouteTTL(cfg.RIP.RouteTTL),
			rip.WithUpdateInterval(cfg.RIP.UpdateInterval),
			rip.WithClock(opts.Now),
			rip.WithLog(opts.Log),
		)
	}

	return m
}

// Bootstrap starts dynamic routing, if enabled.
func (m *Router) Bootstrap() error {
	if m.rip == nil {
		return nil
	}
	return m.rip.Bootstrap()
}

// Run runs the background tasks of the router until the specified context is
// canceled.
func (m *Router) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.pending.Run(ctx)
	})
	if m.rip != nil {
		wg.Go(func() error {
			return m.rip.Run(ctx)
		})
	}

	return wg.Wait()
}

// HandleFrame processes a frame received on the named interface.
func (m *Router) HandleFrame(frame *device.Frame, iface string) {
	in, ok := m.ifaces[iface]
	if !ok {
		m.log.Debugw("dropped frame from unknown interface", zap.String("iface", iface))
		return
	}

	switch {
	case frame.IPv4 != nil:
		m.handleIPv4(frame, in)
	case frame.ARP != nil:
		m.handleARP(frame, in)
	}
}

func (m *Router) handleIPv4(frame *device.Frame, in device.Interface) {
	ip := frame.IPv4

	_, checksum := ip.VerifyChecksum()
	if ip.Version != 4 || frame.Truncated() || !checksum.Valid {
		m.log.Debugw("dropped corrupted packet",
			zap.String("iface", in.Name),
			zap.Stringer("src", ip.SrcIP),
			zap.Stringer("dst", ip.DstIP),
		)
		return
	}

	if ip.TTL <= 1 {
		ip.TTL = 0
		m.sendError(frame, in, layers.ICMPv4TypeTimeExceeded, layers.ICMPv4CodeTTLExceeded)
		return
	}
	// The header checksum is recomputed on serialization.
	ip.TTL--

	dst := xnetip.FromIP(ip.DstIP)

	if m.isRIP(frame, dst) {
		m.rip.HandlePacket(frame, in.Name)
		return
	}

	if m.isLocal(dst) {
		m.deliverLocal(frame, in)
		return
	}

	if xnetip.IsNonUnicast(dst) {
		m.log.Debugw("dropped non-unicast packet", zap.String("iface", in.Name), zap.Stringer("dst", dst))
		return
	}

	m.forward(frame, in.Name)
}

func (m *Router) isRIP(frame *device.Frame, dst netip.Addr) bool {
	if m.rip == nil || frame.IPv4.Protocol != layers.IPProtocolUDP {
		return false
	}
	if dst != rip.MulticastAddr && !m.isLocal(dst) {
		return false
	}

	udp, ok := frame.UDP()
	return ok && udp.DstPort == rip.Port
}

func (m *Router) isLocal(addr netip.Addr) bool {
	_, ok := m.local[addr]
	return ok
}

func (m *Router) deliverLocal(frame *device.Frame, in device.Interface) {
	switch frame.IPv4.Protocol {
	case layers.IPProtocolTCP, layers.IPProtocolUDP:
		m.sendError(frame, in, layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodePort)
	case layers.IPProtocolICMPv4:
		icmp, ok := frame.ICMPv4()
		if ok && icmp.TypeCode.Type() == layers.ICMPv4TypeEchoRequest {
			m.sendEchoReply(frame, icmp)
		}
	}
}

// forward routes the frame out of the matching interface.
//
// The inbound interface is empty for frames originated by the router.
func (m *Router) forward(frame *device.Frame, inIface string) {
	dst := xnetip.FromIP(frame.IPv4.DstIP)

	route, ok := m.rib.LongestMatch(dst)
	if !ok {
		if inIface == "" {
			m.log.Debugw("no route for locally originated packet", zap.Stringer("dst", dst))
			return
		}
		m.sendError(frame, m.ifaces[inIface], layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodeNet)
		return
	}

	if route.Interface == inIface {
		m.log.Debugw("dropped packet routed back to its inbound interface",
			zap.String("iface", inIface),
			zap.Stringer("dst", dst),
			zap.Stringer("prefix", route.Prefix),
		)
		return
	}

	out, ok := m.ifaces[route.Interface]
	if !ok {
		m.log.Warnw("route points to unknown interface",
			zap.Stringer("prefix", route.Prefix),
			zap.String("iface", route.Interface),
		)
		return
	}

	nextHop := route.NextHop(dst)
	frame.Ethernet.SrcMAC = out.HardwareAddr

	if entry, ok := m.neighbours.Lookup(nextHop); ok {
		frame.Ethernet.DstMAC = entry.MAC()
		m.transmit(frame, out.Name)
		return
	}

	m.pending.Enqueue(frame, nextHop, inIface, out.Name)
}

func (m *Router) transmit(frame *device.Frame, iface string) {
	if err := m.dev.Transmit(iface, frame); err != nil {
		m.log.Warnw("failed to transmit frame", zap.String("iface", iface), zap.Error(err))
	}
}

// Routes returns a snapshot of the forwarding table.
func (m *Router) Routes() []rib.Route {
	return m.rib.DumpRoutes()
}

// Neighbours returns a snapshot of the neighbour cache.
func (m *Router) Neighbours() []neigh.NeighbourEntry {
	return m.neighbours.Dump()
}

// DynamicRouting reports whether RIP maintains the forwarding table.
func (m *Router) DynamicRouting() bool {
	return m.rip != nil && m.rip.Active()
}

// resolver performs the I/O of the pending resolution queue.
type resolver struct {
	router *Router
}

func (m *resolver) SendRequest(target netip.Addr, iface string) {
	out, ok := m.router.ifaces[iface]
	if !ok {
		return
	}
	m.router.sendARPRequest(target, out)
}

func (m *resolver) Deliver(frame *device.Frame, iface string) {
	if out, ok := m.router.ifaces[iface]; ok {
		frame.Ethernet.SrcMAC = out.HardwareAddr
	}
	m.router.transmit(frame, iface)
}

func (m *resolver) Unreachable(frame *device.Frame, inIface string) {
	in, ok := m.router.ifaces[inIface]
	if !ok {
		m.router.log.Debugw("dropped unresolved locally originated packet", zap.Stringer("dst", frame.IPv4.DstIP))
		return
	}
	m.router.sendError(frame, in, layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodeHost)
}
