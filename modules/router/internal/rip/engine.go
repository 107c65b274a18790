// Package rip implements the RIPv2 distance-vector routing engine.
package rip

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xnetip"
	"github.com/yanet-platform/softrouter/modules/router/internal/rib"
)

// TTL is the time to live of every RIP datagram sent.
const TTL = 64

// Option is a function that configures the engine.
type Option func(*options)

// WithTickInterval configures how often learned routes are checked for
// expiration.
func WithTickInterval(interval time.Duration) Option {
	return func(o *options) {
		o.TickInterval = interval
	}
}

// WithRouteTTL configures how long a learned route lives without refresh.
func WithRouteTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.RouteTTL = ttl
	}
}

// WithUpdateInterval configures the periodic full table broadcast interval.
func WithUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		o.UpdateInterval = interval
	}
}

// WithClock configures the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

// WithLog configures the engine with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	TickInterval   time.Duration
	RouteTTL       time.Duration
	UpdateInterval time.Duration
	Now            func() time.Time
	Log            *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		TickInterval:   time.Second,
		RouteTTL:       30 * time.Second,
		UpdateInterval: 10 * time.Second,
		Now:            time.Now,
		Log:            zap.NewNop().Sugar(),
	}
}

// Engine maintains the forwarding table from RIP advertisements.
type Engine struct {
	rib    *rib.RIB
	dev    device.Device
	active atomic.Bool

	tickInterval   time.Duration
	routeTTL       time.Duration
	updateInterval time.Duration
	now            func() time.Time
	log            *zap.SugaredLogger
}

// NewEngine creates a new RIP engine over the given table and device.
//
// The engine is inactive until Bootstrap is called.
func NewEngine(table *rib.RIB, dev device.Device, options ...Option) *Engine {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Engine{
		rib:            table,
		dev:            dev,
		tickInterval:   opts.TickInterval,
		routeTTL:       opts.RouteTTL,
		updateInterval: opts.UpdateInterval,
		now:            opts.Now,
		log:            opts.Log,
	}
}

// Active reports whether dynamic routing is running.
func (m *Engine) Active() bool {
	return m.active.Load()
}

// Bootstrap installs connected routes for every interface, asks neighbours
// for their tables and activates the engine.
func (m *Engine) Bootstrap() error {
	now := m.now()

	for _, iface := range m.dev.Interfaces() {
		route := rib.Route{
			Prefix:    iface.Network(),
			Interface: iface.Name,
			SourceID:  rib.RouteSourceConnected,
			UpdatedAt: now,
		}
		if err := m.rib.Insert(route); err != nil {
			return fmt.Errorf("failed to insert connected route for %s: %w", iface.Name, err)
		}
	}

	m.active.Store(true)

	request := &RIP{
		Command: CommandRequest,
		Version: Version,
		Entries: []Entry{WholeTableEntry()},
	}
	for _, iface := range m.dev.Interfaces() {
		m.send(request, iface, MulticastAddr, layers.EthernetBroadcast)
	}

	m.log.Infow("dynamic routing is active", zap.Int("routes", m.rib.Len()))
	return nil
}

// HandlePacket processes a RIP datagram received on the interface.
func (m *Engine) HandlePacket(frame *device.Frame, iface string) {
	if !m.Active() {
		return
	}

	udp, ok := frame.UDP()
	if !ok {
		return
	}

	msg, err := DecodeRIP(udp.Payload)
	if err != nil {
		m.log.Debugw("dropped malformed RIP message", zap.String("iface", iface), zap.Error(err))
		return
	}
	if msg.Version != Version {
		m.log.Debugw("dropped RIP message", zap.Uint8("version", msg.Version), zap.String("iface", iface))
		return
	}

	in, ok := m.lookupInterface(iface)
	if !ok {
		return
	}
	src := xnetip.FromIP(frame.IPv4.SrcIP)
	if src == in.Addr {
		return
	}

	switch msg.Command {
	case CommandRequest:
		m.HandleRequest(frame, in)
	case CommandResponse:
		m.HandleResponse(msg, src, in)
	default:
		m.log.Debugw("dropped RIP message", zap.Stringer("command", msg.Command), zap.String("iface", iface))
	}
}

// HandleRequest unicasts the entire table back to the requester.
func (m *Engine) HandleRequest(frame *device.Frame, iface device.Interface) {
	dst := xnetip.FromIP(frame.IPv4.SrcIP)

	m.log.Debugw("answering RIP request", zap.Stringer("requester", dst), zap.String("iface", iface.Name))
	m.sendTable(iface, dst, frame.Ethernet.SrcMAC)
}

// HandleResponse merges the advertised routes into the table.
//
// Any inserted or improved route triggers a full table broadcast.
func (m *Engine) HandleResponse(msg *RIP, advertiser netip.Addr, iface device.Interface) {
	candidates := make([]rib.Route, 0, len(msg.Entries))

	for _, entry := range msg.Entries {
		if entry.Family != AddressFamilyIPv4 {
			continue
		}
		if entry.Metric >= Infinity {
			continue
		}
		cost := entry.Metric + 1
		if cost >= Infinity {
			continue
		}

		prefix, err := entry.Prefix()
		if err != nil {
			m.log.Debugw("skipped RIP entry", zap.Stringer("advertiser", advertiser), zap.Error(err))
			continue
		}

		candidates = append(candidates, rib.Route{
			Prefix:    prefix,
			Gateway:   advertiser,
			Interface: iface.Name,
			Cost:      cost,
			SourceID:  rib.RouteSourceRIP,
		})
	}

	changed := m.rib.Learn(m.now(), candidates...)
	if len(changed) > 0 {
		m.Broadcast()
	}
}

// Broadcast sends the entire table out of every interface.
func (m *Engine) Broadcast() {
	for _, iface := range m.dev.Interfaces() {
		m.sendTable(iface, MulticastAddr, layers.EthernetBroadcast)
	}
}

// Run runs the route maintenance until the specified context is canceled.
func (m *Engine) Run(ctx context.Context) error {
	m.log.Debugf("starting RIP maintenance")
	defer m.log.Debugf("stopped RIP maintenance")

	tick := time.NewTicker(m.tickInterval)
	defer tick.Stop()
	update := time.NewTicker(m.updateInterval)
	defer update.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			m.expire()
		case <-update.C:
			m.Broadcast()
		}
	}
}

func (m *Engine) expire() []rib.Route {
	return m.rib.Expire(m.now(), m.routeTTL)
}

// Messages splits the table into response messages.
func (m *Engine) Messages() []*RIP {
	entries := []Entry{}
	for _, route := range m.rib.DumpRoutes() {
		entries = append(entries, NewEntry(route.Prefix, route.Gateway, route.Cost))
	}

	msgs := []*RIP{}
	for chunk := range slices.Chunk(entries, MaxEntries) {
		msgs = append(msgs, &RIP{
			Command: CommandResponse,
			Version: Version,
			Entries: chunk,
		})
	}
	return msgs
}

func (m *Engine) sendTable(iface device.Interface, dst netip.Addr, dstMAC net.HardwareAddr) {
	for _, msg := range m.Messages() {
		m.send(msg, iface, dst, dstMAC)
	}
}

func (m *Engine) send(msg *RIP, iface device.Interface, dst netip.Addr, dstMAC net.HardwareAddr) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      TTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    iface.Addr.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	udp := &layers.UDP{
		SrcPort: Port,
		DstPort: Port,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		m.log.Warnw("failed to build RIP datagram", zap.Error(err))
		return
	}

	frame := device.NewIPv4Frame(ip, udp, msg)
	frame.Ethernet.SrcMAC = iface.HardwareAddr
	frame.Ethernet.DstMAC = dstMAC

	if err := m.dev.Transmit(iface.Name, frame); err != nil {
		m.log.Warnw("failed to send RIP message",
			zap.String("iface", iface.Name),
			zap.Stringer("command", msg.Command),
			zap.Error(err),
		)
	}
}

func (m *Engine) lookupInterface(name string) (device.Interface, bool) {
	for _, iface := range m.dev.Interfaces() {
		if iface.Name == name {
			return iface, true
		}
	}
	return device.Interface{}, false
}
