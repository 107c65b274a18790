// Package afpacket implements a device over Linux AF_PACKET raw sockets.
package afpacket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xnetip"
)

// Option is a function that configures the device.
type Option func(*options)

// WithLog configures the device with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

type port struct {
	iface device.Interface
	index int
	fd    int
}

type received struct {
	frame *device.Frame
	iface string
}

// Device is a set of links, each bound to its own raw socket.
type Device struct {
	ports   []*port
	byName  map[string]*port
	snaplen int
	log     *zap.SugaredLogger
}

// NewDevice discovers the links matching the configuration and opens a raw
// socket on each of them.
//
// Links without an IPv4 address or an Ethernet hardware address are skipped.
func NewDevice(cfg *Config, options ...Option) (*Device, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	patterns, err := cfg.patterns()
	if err != nil {
		return nil, err
	}

	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	m := &Device{
		byName:  map[string]*port{},
		snaplen: int(cfg.Snaplen.Bytes()),
		log:     opts.Log,
	}

	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 || !matchAny(patterns, attrs.Name) {
			continue
		}
		if len(attrs.HardwareAddr) != 6 {
			m.log.Debugw("skipped link without ethernet address", zap.String("link", attrs.Name))
			continue
		}

		iface, err := linkInterface(link)
		if err != nil {
			m.log.Debugw("skipped link", zap.String("link", attrs.Name), zap.Error(err))
			continue
		}

		fd, err := openSocket(attrs.Index, cfg)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to open socket on %s: %w", attrs.Name, err)
		}

		p := &port{iface: iface, index: attrs.Index, fd: fd}
		m.ports = append(m.ports, p)
		m.byName[iface.Name] = p

		m.log.Infow("attached interface", zap.Stringer("iface", iface))
	}

	if len(m.ports) == 0 {
		return nil, fmt.Errorf("no links match %q", cfg.Interfaces)
	}

	return m, nil
}

func linkInterface(link netlink.Link) (device.Interface, error) {
	attrs := link.Attrs()

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return device.Interface{}, fmt.Errorf("failed to list addresses: %w", err)
	}
	if len(addrs) == 0 {
		return device.Interface{}, fmt.Errorf("no IPv4 address")
	}

	addr := xnetip.FromIP(addrs[0].IP)
	ones, _ := addrs[0].Mask.Size()

	return device.Interface{
		Name:         attrs.Name,
		Addr:         addr,
		Prefix:       netip.PrefixFrom(addr, ones),
		HardwareAddr: slices.Clone(attrs.HardwareAddr),
	}, nil
}

func openSocket(index int, cfg *Config) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return -1, fmt.Errorf("failed to create socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to bind socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, int(cfg.RecvBufferSize.Bytes())); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set receive buffer size: %w", err)
	}

	tv := unix.NsecToTimeval(cfg.ReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return fd, nil
}

// Interfaces returns the attached interfaces in discovery order.
func (m *Device) Interfaces() []device.Interface {
	ifaces := make([]device.Interface, 0, len(m.ports))
	for _, p := range m.ports {
		ifaces = append(ifaces, p.iface)
	}
	return ifaces
}

// Transmit serializes the frame and writes it to the socket of the named
// interface.
func (m *Device) Transmit(iface string, frame *device.Frame) error {
	p, ok := m.byName[iface]
	if !ok {
		return fmt.Errorf("unknown interface %q", iface)
	}

	data, err := frame.Serialize()
	if err != nil {
		return err
	}

	if _, err := unix.Write(p.fd, data); err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", iface, err)
	}
	return nil
}

// Run reads frames from every interface and delivers them to the handler
// one at a time until the specified context is canceled.
func (m *Device) Run(ctx context.Context, handler device.Handler) error {
	m.log.Debugf("starting device readers")
	defer m.log.Debugf("stopped device readers")

	frames := make(chan received, 1024)

	wg, ctx := errgroup.WithContext(ctx)
	for _, p := range m.ports {
		wg.Go(func() error {
			return m.read(ctx, p, frames)
		})
	}
	wg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r := <-frames:
				handler.HandleFrame(r.frame, r.iface)
			}
		}
	})

	return wg.Wait()
}

func (m *Device) read(ctx context.Context, p *port, frames chan<- received) error {
	log := m.log.With(zap.String("iface", p.iface.Name))

	readBackoff := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         5 * time.Second,
	}
	readBackoff.Reset()

	buf := make([]byte, m.snaplen)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, from, err := unix.Recvfrom(p.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}

			log.Warnw("failed to read frame", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readBackoff.NextBackOff()):
			}
			continue
		}
		readBackoff.Reset()

		// Frames we sent ourselves are looped back to the socket.
		if ll, ok := from.(*unix.SockaddrLinklayer); ok && ll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}

		frame, err := device.DecodeFrame(slices.Clone(buf[:n]))
		if err != nil {
			log.Debugw("dropped frame", zap.Error(err))
			continue
		}

		select {
		case frames <- received{frame: frame, iface: p.iface.Name}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes every socket.
func (m *Device) Close() error {
	errs := []error{}
	for _, p := range m.ports {
		if err := unix.Close(p.fd); err != nil {
			errs = append(errs, fmt.Errorf("failed to close socket on %s: %w", p.iface.Name, err))
		}
	}
	return errors.Join(errs...)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
