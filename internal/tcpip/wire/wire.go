// Package wire implements the parse/serialize collaborator spec.md assumes
// is provided externally: Ethernet, ARP, and IPv4 framing. It is built on
// github.com/google/gopacket and gopacket/layers, the packet decoding/
// encoding library used pack-wide for exactly this concern (m-lab-etl's
// tcpip package, postmanlabs-observability-cli's pcap parser, and
// bitsinside-httptap's homegrown TCP stack all build Ethernet/ARP/IPv4/TCP
// frames the same way: populate a layers.* struct and run it through
// gopacket.NewPacket or gopacket.SerializeLayers). See DESIGN.md for why
// this package no longer hand-rolls framing on encoding/binary.
package wire

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType = layers.EthernetType

// EtherTypes this stack understands.
const (
	EtherTypeIPv4 = layers.EthernetTypeIPv4
	EtherTypeARP  = layers.EthernetTypeARP
)

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ErrFrameTooShort is returned by Parse* functions when gopacket yields
// neither the expected layer nor a decode error. Truncated input usually
// surfaces as gopacket's own decode error, wrapped, instead.
var ErrFrameTooShort = errors.New("wire: frame too short")

// EthernetFrame is a parsed Ethernet header plus its payload.
type EthernetFrame struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType EtherType
	Payload   []byte
}

// ParseEthernet decodes an Ethernet header via gopacket. The returned
// Payload aliases frame; callers that retain it past the current callback
// must copy.
func ParseEthernet(frame []byte) (EthernetFrame, error) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	layer := packet.Layer(layers.LayerTypeEthernet)
	if layer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return EthernetFrame{}, fmt.Errorf("wire: %w", errLayer.Error())
		}
		return EthernetFrame{}, ErrFrameTooShort
	}
	eth := layer.(*layers.Ethernet)
	return EthernetFrame{
		Dst:       eth.DstMAC,
		Src:       eth.SrcMAC,
		EtherType: eth.EthernetType,
		Payload:   eth.Payload,
	}, nil
}

// SerializeEthernet builds a complete Ethernet frame around payload. Frames
// shorter than the 60-byte Ethernet minimum are zero-padded by gopacket, and
// ParseEthernet returns that padding as part of Payload.
func SerializeEthernet(dst, src net.HardwareAddr, et EtherType, payload []byte) []byte {
	buf := gopacket.NewSerializeBuffer()
	eth := &layers.Ethernet{DstMAC: dst, SrcMAC: src, EthernetType: et}
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(payload)); err != nil {
		return nil
	}
	return buf.Bytes()
}

// ARP operation codes (RFC 826).
const (
	ARPOpRequest uint16 = layers.ARPRequest
	ARPOpReply   uint16 = layers.ARPReply
)

// ARPMessage is a parsed Ethernet/IPv4 ARP request or reply.
type ARPMessage struct {
	Op        uint16
	SenderMAC net.HardwareAddr
	SenderIP  net.IP
	TargetMAC net.HardwareAddr
	TargetIP  net.IP
}

// ParseARP decodes an ARP message, rejecting anything but Ethernet/IPv4.
func ParseARP(payload []byte) (ARPMessage, error) {
	packet := gopacket.NewPacket(payload, layers.LayerTypeARP, gopacket.NoCopy)
	layer := packet.Layer(layers.LayerTypeARP)
	if layer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return ARPMessage{}, fmt.Errorf("wire: %w", errLayer.Error())
		}
		return ARPMessage{}, ErrFrameTooShort
	}
	arp := layer.(*layers.ARP)
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return ARPMessage{}, errors.New("wire: unsupported arp hardware/protocol type")
	}
	return ARPMessage{
		Op:        arp.Operation,
		SenderMAC: net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...)),
		SenderIP:  net.IP(append([]byte(nil), arp.SourceProtAddress...)),
		TargetMAC: net.HardwareAddr(append([]byte(nil), arp.DstHwAddress...)),
		TargetIP:  net.IP(append([]byte(nil), arp.DstProtAddress...)),
	}, nil
}

// SerializeARP builds an Ethernet/IPv4 ARP message.
func SerializeARP(msg ARPMessage) []byte {
	buf := gopacket.NewSerializeBuffer()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         msg.Op,
		SourceHwAddress:   msg.SenderMAC,
		SourceProtAddress: msg.SenderIP.To4(),
		DstHwAddress:      msg.TargetMAC,
		DstProtAddress:    msg.TargetIP.To4(),
	}
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, arp); err != nil {
		return nil
	}
	return buf.Bytes()
}

// IPv4Datagram is a parsed IPv4 header plus payload.
type IPv4Datagram struct {
	TOS      uint8
	ID       uint16
	Flags    uint16 // 3 flag bits (high) + 13 fragment-offset bits, carried through unexamined
	TTL      uint8
	Protocol uint8
	Src      net.IP
	Dst      net.IP
	Payload  []byte
}

// ParseIPv4 decodes an IPv4 datagram. Ingress checksum is never verified
// (spec.md §1 Non-goals); gopacket surfaces it on the decoded layer but this
// package never consults it.
func ParseIPv4(data []byte) (IPv4Datagram, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
	layer := packet.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return IPv4Datagram{}, fmt.Errorf("wire: %w", errLayer.Error())
		}
		return IPv4Datagram{}, ErrFrameTooShort
	}
	ip := layer.(*layers.IPv4)
	if ip.Version != 4 {
		return IPv4Datagram{}, fmt.Errorf("wire: ip version %d is not 4", ip.Version)
	}
	return IPv4Datagram{
		TOS:      ip.TOS,
		ID:       ip.Id,
		Flags:    uint16(ip.Flags)<<13 | ip.FragOffset,
		TTL:      ip.TTL,
		Protocol: uint8(ip.Protocol),
		Src:      append(net.IP(nil), ip.SrcIP...),
		Dst:      append(net.IP(nil), ip.DstIP...),
		Payload:  ip.Payload,
	}, nil
}

// SerializeIPv4 builds a complete IPv4 datagram, recomputing the header
// checksum (egress always recomputes it, per spec.md §1).
func SerializeIPv4(d IPv4Datagram) []byte {
	buf := gopacket.NewSerializeBuffer()
	ip := &layers.IPv4{
		Version:    4,
		TOS:        d.TOS,
		Id:         d.ID,
		Flags:      layers.IPv4Flag(d.Flags >> 13),
		FragOffset: d.Flags & 0x1fff,
		TTL:        d.TTL,
		Protocol:   layers.IPProtocol(d.Protocol),
		SrcIP:      d.Src.To4(),
		DstIP:      d.Dst.To4(),
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(d.Payload)); err != nil {
		return nil
	}
	return buf.Bytes()
}
