package router

import (
	"net"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xnetip"
)

func (m *Router) handleARP(frame *device.Frame, in device.Interface) {
	arp := frame.ARP
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return
	}

	switch arp.Operation {
	case layers.ARPRequest:
		target := xnetip.FromBytes(arp.DstProtAddress)
		if target != in.Addr {
			return
		}
		m.sendARPReply(arp, in)
	case layers.ARPReply:
		sender := xnetip.FromBytes(arp.SourceProtAddress)
		hw := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))

		if m.pending.Pending(sender) {
			m.neighbours.Learn(sender, hw, in.Name, m.now())
		}
		m.pending.Resolve(sender, hw, in.Name)
	}
}

func (m *Router) sendARPReply(request *layers.ARP, in device.Interface) {
	requesterMAC := net.HardwareAddr(append([]byte(nil), request.SourceHwAddress...))

	frame := &device.Frame{
		Ethernet: &layers.Ethernet{
			SrcMAC:       in.HardwareAddr,
			DstMAC:       requesterMAC,
			EthernetType: layers.EthernetTypeARP,
		},
		ARP: &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPReply,
			SourceHwAddress:   in.HardwareAddr,
			SourceProtAddress: in.Addr.AsSlice(),
			DstHwAddress:      requesterMAC,
			DstProtAddress:    append([]byte(nil), request.SourceProtAddress...),
		},
	}

	m.log.Debugw("answering ARP request",
		zap.Stringer("requester", xnetip.FromBytes(request.SourceProtAddress)),
		zap.String("iface", in.Name),
	)
	m.transmit(frame, in.Name)
}

func (m *Router) sendARPRequest(target netip.Addr, out device.Interface) {
	frame := &device.Frame{
		Ethernet: &layers.Ethernet{
			SrcMAC:       out.HardwareAddr,
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeARP,
		},
		ARP: &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   out.HardwareAddr,
			SourceProtAddress: out.Addr.AsSlice(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    target.AsSlice(),
		},
	}

	m.log.Debugw("sending ARP request", zap.Stringer("target", target), zap.String("iface", out.Name))
	m.transmit(frame, out.Name)
}
