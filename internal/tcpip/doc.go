// Package tcpip implements the transport and link-layer core of a user-space
// TCP/IP stack: wrap32 sequence-number arithmetic, a bounded ByteStream, a
// capacity-disciplined Reassembler, a TCPReceiver/TCPSender pair with RTO
// back-off, and a NetworkInterface/Router pair that does ARP resolution and
// longest-prefix-match forwarding.
//
// Every component is driven by its caller: there are no background
// goroutines and no blocking calls. Time only advances when a caller invokes
// Tick(dt); outbound traffic only leaves a component when a caller drains it
// via MaybeSend. This mirrors an embedder that owns a single event loop and
// multiplexes many connections and interfaces on it.
//
// Wire framing (Ethernet/ARP/IPv4 parse and serialize) is not implemented
// here; it is delegated to the wire subpackage, built on
// github.com/google/gopacket and gopacket/layers. Packet capture is built on
// gopacket/pcapgo. gvisor.dev/gvisor is wired in separately, as an
// independent guest stack driven in integration tests against this package.
package tcpip
