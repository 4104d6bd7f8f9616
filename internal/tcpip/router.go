package tcpip

import (
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/tinyrange/netcore/internal/tcpip/wire"
)

// Route is one forwarding-table entry. NextHop is nil for a directly
// attached network, in which case the datagram's own destination is used
// as the next hop.
type Route struct {
	Prefix         uint32
	PrefixLength   uint8
	NextHop        net.IP
	InterfaceIndex int
}

func (route Route) matches(dst net.IP) bool {
	if route.PrefixLength == 0 {
		return true
	}
	diff := route.Prefix ^ ipToUint32(dst)
	return diff>>(32-route.PrefixLength) == 0
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

// Router forwards IPv4 datagrams across a set of attached interfaces using
// longest-prefix-match route selection. Routes are unordered; every route()
// call scans all of them.
type Router struct {
	log *slog.Logger

	interfaces []*NetworkInterface
	inbound    [][]wire.IPv4Datagram

	routes    []Route
	routeHits []uint64
}

// NewRouter creates an empty router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// AddInterface attaches nic and returns its interface index, used in
// Route.InterfaceIndex and Enqueue.
func (r *Router) AddInterface(nic *NetworkInterface) int {
	r.interfaces = append(r.interfaces, nic)
	r.inbound = append(r.inbound, nil)
	return len(r.interfaces) - 1
}

// Interface returns the attached interface at index i.
func (r *Router) Interface(i int) *NetworkInterface {
	return r.interfaces[i]
}

// AddRoute installs a forwarding-table entry.
func (r *Router) AddRoute(route Route) {
	r.routes = append(r.routes, route)
	r.routeHits = append(r.routeHits, 0)
}

// Enqueue buffers a datagram received on interfaceIndex for the next Route
// call. Order of enqueue per interface is preserved.
func (r *Router) Enqueue(interfaceIndex int, d wire.IPv4Datagram) {
	r.inbound[interfaceIndex] = append(r.inbound[interfaceIndex], d)
}

// Route drains every interface's buffered datagrams, in per-interface
// ingress order, forwarding each via the longest-prefix-match route or
// dropping it if none matches or its TTL has expired.
func (r *Router) Route() {
	for i := range r.interfaces {
		queue := r.inbound[i]
		r.inbound[i] = nil
		for _, d := range queue {
			r.routeOne(d)
		}
	}
}

func (r *Router) routeOne(d wire.IPv4Datagram) {
	best := -1
	var bestLen uint8
	for i, route := range r.routes {
		if !route.matches(d.Dst) {
			continue
		}
		if best == -1 || route.PrefixLength > bestLen {
			best = i
			bestLen = route.PrefixLength
		}
	}

	if best == -1 {
		r.log.Debug("router: no route, dropping datagram", "dst", d.Dst.String())
		return
	}
	if d.TTL <= 1 {
		r.log.Debug("router: ttl exhausted, dropping datagram", "dst", d.Dst.String())
		return
	}

	route := r.routes[best]
	r.routeHits[best]++

	d.TTL--
	nextHop := d.Dst
	if route.NextHop != nil {
		nextHop = route.NextHop
	}
	r.interfaces[route.InterfaceIndex].SendDatagram(d, nextHop)
}

// RouteStats pairs a route with the number of datagrams it has forwarded.
type RouteStats struct {
	Route Route
	Hits  uint64
}

// Stats reports per-route hit counts for introspection; never consulted by
// route selection itself.
func (r *Router) Stats() []RouteStats {
	out := make([]RouteStats, len(r.routes))
	for i, route := range r.routes {
		out[i] = RouteStats{Route: route, Hits: r.routeHits[i]}
	}
	return out
}
