package tcpip_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	netcoretcpip "github.com/tinyrange/netcore/internal/tcpip"
	"github.com/tinyrange/netcore/internal/tcpip/wire"

	"gvisor.dev/gvisor/pkg/buffer"
	gtcpip "gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
	"gvisor.dev/gvisor/pkg/waiter"
)

// This file drives a complete, independently-implemented gVisor guest stack
// against netcore's NetworkInterface across a simulated Ethernet link. It
// exercises the boundary spec.md actually puts in scope for the wire codec:
// ARP resolution and IPv4 datagram exchange. Encoding a TCP segment onto the
// wire is an embedder concern spec.md never assigns to this module (its
// codec collaborator list in §6 stops at IPv4Datagram), so this test proves
// interoperability at the layer that is in scope rather than running a full
// TCP handshake through TCPSender/TCPReceiver.

const gvisorNICID gtcpip.NICID = 1

var (
	hostIPv4  = net.IPv4(10, 77, 0, 1)
	guestIPv4 = net.IPv4(10, 77, 0, 2)
)

func mustAddrFrom4(ip net.IP) gtcpip.Address {
	ip4 := ip.To4()
	var b [4]byte
	copy(b[:], ip4)
	return gtcpip.AddrFrom4(b)
}

func newGvisorGuest(tb testing.TB, guestMAC net.HardwareAddr) (*stack.Stack, *channel.Endpoint) {
	tb.Helper()

	ch := channel.New(256, 1500+header.EthernetMinimumSize, gtcpip.LinkAddress(string(guestMAC)))
	ep := ethernet.New(ch)
	gs := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})
	if err := gs.CreateNIC(gvisorNICID, ep); err != nil {
		tb.Fatalf("gvisor CreateNIC: %v", err)
	}
	if err := gs.AddProtocolAddress(gvisorNICID, gtcpip.ProtocolAddress{
		Protocol: ipv4.ProtocolNumber,
		AddressWithPrefix: gtcpip.AddressWithPrefix{
			Address:   mustAddrFrom4(guestIPv4),
			PrefixLen: 24,
		},
	}, stack.AddressProperties{}); err != nil {
		tb.Fatalf("gvisor AddProtocolAddress: %v", err)
	}
	gs.SetRouteTable([]gtcpip.Route{
		{Destination: header.IPv4EmptySubnet, Gateway: mustAddrFrom4(hostIPv4), NIC: gvisorNICID},
	})

	tb.Cleanup(func() { ch.Close() })
	return gs, ch
}

// TestGVisorARPAndUDPExchange has a real gVisor stack ARP-resolve netcore's
// NetworkInterface's MAC and send it a UDP datagram over simulated Ethernet
// frames; the resolution and delivery mirror spec.md §8 scenario 6, run
// against an independent stack instead of a hand-fed test fixture.
func TestGVisorARPAndUDPExchange(t *testing.T) {
	guestMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	hostMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	host := netcoretcpip.NewNetworkInterface(log, hostMAC, hostIPv4)

	gs, ch := newGvisorGuest(t, guestMAC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan wire.IPv4Datagram, 4)

	// host is single-threaded; the two pump goroutines below take turns on it.
	var hostMu sync.Mutex

	// guest (gVisor) -> host
	go func() {
		for {
			pkt := ch.ReadContext(ctx)
			if pkt == nil {
				return
			}
			frame := append([]byte(nil), pkt.ToView().AsSlice()...)
			pkt.DecRef()
			hostMu.Lock()
			d, ok := host.RecvFrame(frame)
			hostMu.Unlock()
			if ok {
				received <- d
			}
		}
	}()

	// host -> guest, plus periodic Tick to drive ARP retry/aging.
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hostMu.Lock()
				host.Tick(2)
				var frames [][]byte
				for {
					frame, ok := host.MaybeSend()
					if !ok {
						break
					}
					frames = append(frames, frame)
				}
				hostMu.Unlock()
				for _, frame := range frames {
					pb := stack.NewPacketBuffer(stack.PacketBufferOptions{
						Payload: buffer.MakeWithData(append([]byte(nil), frame...)),
					})
					ch.InjectInbound(0, pb)
				}
			}
		}
	}()

	var wq waiter.Queue
	ep, terr := gs.NewEndpoint(udp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	if terr != nil {
		t.Fatalf("gvisor new udp endpoint: %v", terr)
	}
	defer ep.Close()
	if terr := ep.Bind(gtcpip.FullAddress{NIC: gvisorNICID, Addr: mustAddrFrom4(guestIPv4), Port: 55555}); terr != nil {
		t.Fatalf("gvisor udp bind: %v", terr)
	}

	payload := []byte("hello from the gvisor guest")
	n, terr := ep.Write(bytes.NewReader(payload), gtcpip.WriteOptions{
		To: &gtcpip.FullAddress{NIC: gvisorNICID, Addr: mustAddrFrom4(hostIPv4), Port: 9999},
	})
	if terr != nil {
		t.Fatalf("gvisor udp write: %v", terr)
	}
	if int(n) != len(payload) {
		t.Fatalf("gvisor udp short write: %d != %d", n, len(payload))
	}

	select {
	case d := <-received:
		if !d.Src.Equal(guestIPv4) || !d.Dst.Equal(hostIPv4) {
			t.Fatalf("unexpected datagram addressing: src=%v dst=%v", d.Src, d.Dst)
		}
		if !bytes.Contains(d.Payload, payload) {
			t.Fatalf("datagram payload %q does not contain %q", d.Payload, payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for netcore's NetworkInterface to receive the datagram")
	}
}
