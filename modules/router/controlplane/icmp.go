package router

import (
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xnetip"
	"github.com/yanet-platform/softrouter/common/go/xpacket"
)

const (
	// icmpTTL is the time to live of every ICMP message originated.
	icmpTTL = 64
	// quotedPayloadLen is how many bytes past the original IP header are
	// quoted in ICMP error messages.
	quotedPayloadLen = 8
)

// sendError reports a delivery failure of the frame back to its sender.
//
// The message is sourced from the inbound interface address and carries the
// current header of the offending packet followed by the first bytes of its
// payload.
func (m *Router) sendError(frame *device.Frame, in device.Interface, t uint8, code uint8) {
	quote, err := quoteDatagram(frame)
	if err != nil {
		m.log.Debugw("failed to quote datagram", zap.Error(err))
		return
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      icmpTTL,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    in.Addr.AsSlice(),
		DstIP:    xnetip.FromIP(frame.IPv4.SrcIP).AsSlice(),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(t, code),
	}

	m.log.Debugw("sending ICMP error",
		zap.Stringer("type", icmp.TypeCode),
		zap.Stringer("dst", ip.DstIP),
		zap.String("iface", in.Name),
	)

	m.forward(device.NewIPv4Frame(ip, icmp, gopacket.Payload(quote)), "")
}

// sendEchoReply answers an echo request addressed to one of the router's
// own addresses.
func (m *Router) sendEchoReply(frame *device.Frame, request *layers.ICMPv4) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      icmpTTL,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    xnetip.FromIP(frame.IPv4.DstIP).AsSlice(),
		DstIP:    xnetip.FromIP(frame.IPv4.SrcIP).AsSlice(),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       request.Id,
		Seq:      request.Seq,
	}
	payload := gopacket.Payload(append([]byte(nil), request.Payload...))

	m.forward(device.NewIPv4Frame(ip, icmp, payload), "")
}

// quoteDatagram returns the IP header of the frame as it is now, followed by
// at most 8 bytes of the IP payload.
func quoteDatagram(frame *device.Frame) ([]byte, error) {
	lyrs := append([]gopacket.SerializableLayer{frame.IPv4}, frame.Upper...)
	data, err := xpacket.Serialize(lyrs...)
	if err != nil {
		return nil, err
	}

	hdrLen := int(data[0]&0x0f) * 4
	return data[:min(len(data), hdrLen+quotedPayloadLen)], nil
}
