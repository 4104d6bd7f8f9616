package tcpip

import (
	"log/slog"
	"net"

	"github.com/tinyrange/netcore/internal/tcpip/wire"
)

// ARP cache and retry timing (spec.md §6).
const (
	arpCacheTTLMillis     = 30_000
	arpRetryIntervalMillis = 5_000
)

type ipKey [4]byte

func toIPKey(ip net.IP) ipKey {
	var k ipKey
	copy(k[:], ip.To4())
	return k
}

func (k ipKey) ip() net.IP {
	return net.IPv4(k[0], k[1], k[2], k[3])
}

type arpCacheEntry struct {
	mac       net.HardwareAddr
	ageMillis uint64
}

type pendingEntry struct {
	datagram   wire.IPv4Datagram
	msSinceARP uint64
}

// NetworkInterface performs IPv4-over-Ethernet delivery with ARP resolution
// and caching. It owns exactly one Ethernet/IPv4 address pair and a FIFO of
// outbound frames; inbound frames are handed to it one at a time via
// RecvFrame.
type NetworkInterface struct {
	log *slog.Logger

	ethernetAddr net.HardwareAddr
	ipAddr       net.IP

	outFrames [][]byte

	arpCache map[ipKey]arpCacheEntry
	pending  map[ipKey]pendingEntry

	captureSink func(frame []byte)

	framesSent     uint64
	framesReceived uint64
}

// NewNetworkInterface creates an interface bound to the given Ethernet and
// IPv4 addresses.
func NewNetworkInterface(log *slog.Logger, ethernetAddr net.HardwareAddr, ipAddr net.IP) *NetworkInterface {
	if log == nil {
		log = slog.Default()
	}
	return &NetworkInterface{
		log:          log,
		ethernetAddr: ethernetAddr,
		ipAddr:       ipAddr.To4(),
		arpCache:     make(map[ipKey]arpCacheEntry),
		pending:      make(map[ipKey]pendingEntry),
	}
}

// SetCaptureSink installs a callback invoked with a copy of every Ethernet
// frame the interface queues for sending (at the time it is queued) and of
// every inbound frame whose Ethernet header parses; unparseable inbound
// frames are not captured. Purely observational; passing nil disables
// capture.
func (nic *NetworkInterface) SetCaptureSink(sink func(frame []byte)) {
	nic.captureSink = sink
}

// EthernetAddr returns the interface's MAC address.
func (nic *NetworkInterface) EthernetAddr() net.HardwareAddr {
	return nic.ethernetAddr
}

// IPAddr returns the interface's IPv4 address.
func (nic *NetworkInterface) IPAddr() net.IP {
	return nic.ipAddr
}

// SendDatagram transmits d to nextHop, resolving its Ethernet address via
// the ARP cache. If resolution is already in flight, the new datagram is
// dropped (at most one queued datagram per destination — see DESIGN.md for
// why "drop the newer" was chosen over queuing).
func (nic *NetworkInterface) SendDatagram(d wire.IPv4Datagram, nextHop net.IP) {
	key := toIPKey(nextHop)

	if entry, ok := nic.arpCache[key]; ok {
		nic.sendIPv4Frame(entry.mac, d)
		return
	}

	if _, inFlight := nic.pending[key]; inFlight {
		nic.log.Debug("netif: dropping datagram, arp resolution already pending", "nextHop", nextHop.String())
		return
	}

	nic.pending[key] = pendingEntry{datagram: d}
	nic.broadcastARPRequest(nextHop)
}

func (nic *NetworkInterface) sendIPv4Frame(dstMAC net.HardwareAddr, d wire.IPv4Datagram) {
	payload := wire.SerializeIPv4(d)
	frame := wire.SerializeEthernet(dstMAC, nic.ethernetAddr, wire.EtherTypeIPv4, payload)
	nic.enqueueFrame(frame)
}

func (nic *NetworkInterface) broadcastARPRequest(target net.IP) {
	payload := wire.SerializeARP(wire.ARPMessage{
		Op:        wire.ARPOpRequest,
		SenderMAC: nic.ethernetAddr,
		SenderIP:  nic.ipAddr,
		TargetMAC: net.HardwareAddr{0, 0, 0, 0, 0, 0},
		TargetIP:  target,
	})
	frame := wire.SerializeEthernet(wire.BroadcastMAC, nic.ethernetAddr, wire.EtherTypeARP, payload)
	nic.enqueueFrame(frame)
}

func (nic *NetworkInterface) enqueueFrame(frame []byte) {
	nic.outFrames = append(nic.outFrames, frame)
	nic.framesSent++
	if nic.captureSink != nil {
		nic.captureSink(append([]byte(nil), frame...))
	}
}

// RecvFrame processes one inbound Ethernet frame. If it carries an IPv4
// datagram addressed to this interface, the datagram is returned with ok
// true. ARP traffic is handled internally (cache learning, reply, and
// draining any datagram that was pending on it) and never returned.
func (nic *NetworkInterface) RecvFrame(frame []byte) (wire.IPv4Datagram, bool) {
	eth, err := wire.ParseEthernet(frame)
	if err != nil {
		return wire.IPv4Datagram{}, false
	}

	nic.framesReceived++
	if nic.captureSink != nil {
		nic.captureSink(append([]byte(nil), frame...))
	}

	switch eth.EtherType {
	case wire.EtherTypeIPv4:
		if !macEqual(eth.Dst, nic.ethernetAddr) {
			return wire.IPv4Datagram{}, false
		}
		d, err := wire.ParseIPv4(eth.Payload)
		if err != nil {
			return wire.IPv4Datagram{}, false
		}
		return d, true
	case wire.EtherTypeARP:
		nic.handleARP(eth.Payload)
		return wire.IPv4Datagram{}, false
	default:
		return wire.IPv4Datagram{}, false
	}
}

func (nic *NetworkInterface) handleARP(payload []byte) {
	msg, err := wire.ParseARP(payload)
	if err != nil {
		return
	}

	key := toIPKey(msg.SenderIP)
	nic.arpCache[key] = arpCacheEntry{mac: msg.SenderMAC}

	if pend, ok := nic.pending[key]; ok {
		delete(nic.pending, key)
		nic.sendIPv4Frame(msg.SenderMAC, pend.datagram)
	}

	if msg.Op == wire.ARPOpRequest && ipEqual(msg.TargetIP, nic.ipAddr) {
		reply := wire.SerializeARP(wire.ARPMessage{
			Op:        wire.ARPOpReply,
			SenderMAC: nic.ethernetAddr,
			SenderIP:  nic.ipAddr,
			TargetMAC: msg.SenderMAC,
			TargetIP:  msg.SenderIP,
		})
		frame := wire.SerializeEthernet(msg.SenderMAC, nic.ethernetAddr, wire.EtherTypeARP, reply)
		nic.enqueueFrame(frame)
	}
}

// Tick ages the ARP cache (evicting entries at arpCacheTTLMillis) and
// re-broadcasts ARP requests for pending destinations every
// arpRetryIntervalMillis.
func (nic *NetworkInterface) Tick(dtMillis uint64) {
	for k, entry := range nic.arpCache {
		entry.ageMillis += dtMillis
		if entry.ageMillis >= arpCacheTTLMillis {
			delete(nic.arpCache, k)
			continue
		}
		nic.arpCache[k] = entry
	}

	for k, pend := range nic.pending {
		pend.msSinceARP += dtMillis
		if pend.msSinceARP >= arpRetryIntervalMillis {
			nic.broadcastARPRequest(k.ip())
			pend.msSinceARP -= arpRetryIntervalMillis
		}
		nic.pending[k] = pend
	}
}

// MaybeSend pops and returns one queued outbound frame, if any.
func (nic *NetworkInterface) MaybeSend() ([]byte, bool) {
	if len(nic.outFrames) == 0 {
		return nil, false
	}
	frame := nic.outFrames[0]
	nic.outFrames = nic.outFrames[1:]
	return frame, true
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ipEqual(a, b net.IP) bool {
	return a.Equal(b)
}

// NetworkInterfaceStats is a point-in-time snapshot for introspection.
type NetworkInterfaceStats struct {
	ARPCacheSize   int    `json:"arpCacheSize"`
	PendingCount   int    `json:"pendingCount"`
	FramesSent     uint64 `json:"framesSent"`
	FramesReceived uint64 `json:"framesReceived"`
}

// Stats reports interface counters for debugging.
func (nic *NetworkInterface) Stats() NetworkInterfaceStats {
	return NetworkInterfaceStats{
		ARPCacheSize:   len(nic.arpCache),
		PendingCount:   len(nic.pending),
		FramesSent:     nic.framesSent,
		FramesReceived: nic.framesReceived,
	}
}
