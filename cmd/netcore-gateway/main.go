// Command netcore-gateway wires a set of tcpip.NetworkInterface values and a
// tcpip.Router together per a YAML config file, replaying Ethernet frames
// from stdin and writing forwarded/replied frames to stdout. It exists to
// exercise the core engine as a real embedder would: owning the event loop,
// feeding frames in, draining frames out, and calling Tick on a schedule.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/tinyrange/netcore/internal/tcpip"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "netcore-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a gateway YAML config")
	tickMillis := flag.Uint64("tick", 100, "milliseconds between Tick calls")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *configPath == "" {
		return errors.New("-config is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	gw, err := newGateway(log, cfg)
	if err != nil {
		return err
	}
	defer gw.close()

	return gw.run(os.Stdin, os.Stdout, time.Duration(*tickMillis)*time.Millisecond)
}

// gateway owns every NetworkInterface and the Router forwarding between
// them. The first interface listed in the config is the "uplink": frames
// read from stdin arrive there. Outbound frames from every interface, the
// uplink included, are written to stdout tagged with their interface index
// (0 for the uplink); the other interfaces receive traffic only through
// Route() forwarding, never from stdin, mirroring a NAT-less gateway box.
type gateway struct {
	log        *slog.Logger
	names      []string
	interfaces []*tcpip.NetworkInterface
	router     *tcpip.Router

	captureFile *os.File
}

func newGateway(log *slog.Logger, cfg *Config) (*gateway, error) {
	gw := &gateway{log: log, router: tcpip.NewRouter(log)}

	var cw *tcpip.CaptureWriter
	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return nil, fmt.Errorf("open capture file: %w", err)
		}
		pw := pcapgo.NewWriter(f)
		if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
			f.Close()
			return nil, fmt.Errorf("write capture header: %w", err)
		}
		cw = tcpip.NewCaptureWriter(pw)
		gw.captureFile = f
	}

	byName := make(map[string]int, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		mac, err := net.ParseMAC(ic.MAC)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		ip := net.ParseIP(ic.IP)
		nic := tcpip.NewNetworkInterface(log.With("interface", ic.Name), mac, ip)
		if cw != nil {
			nic.SetCaptureSink(cw.Sink)
		}
		idx := gw.router.AddInterface(nic)
		gw.interfaces = append(gw.interfaces, nic)
		gw.names = append(gw.names, ic.Name)
		byName[ic.Name] = idx
	}

	for _, rc := range cfg.Routes {
		prefixIP := net.ParseIP(rc.Prefix).To4()
		var nextHop net.IP
		if rc.NextHop != "" {
			nextHop = net.ParseIP(rc.NextHop)
		}
		gw.router.AddRoute(tcpip.Route{
			Prefix:         binary.BigEndian.Uint32(prefixIP),
			PrefixLength:   rc.PrefixLength,
			NextHop:        nextHop,
			InterfaceIndex: byName[rc.Interface],
		})
	}

	return gw, nil
}

func (gw *gateway) close() {
	if gw.captureFile != nil {
		gw.captureFile.Close()
	}
}

// run reads length-prefixed Ethernet frames from in (addressed to the
// uplink, interface 0), drives them through the router, and writes every
// frame any interface queues for transmission to out, each tagged with its
// source interface index.
//
// A separate goroutine only does the blocking read of in and hands decoded
// frames over frameCh; every call into the tcpip package happens from this
// single select loop, keeping the core itself single-threaded and
// cooperative per the event model it's built around — Tick only ever
// advances on this goroutine's schedule, never concurrently with RecvFrame.
func (gw *gateway) run(in io.Reader, out io.Writer, tick time.Duration) error {
	if len(gw.interfaces) == 0 {
		return errors.New("gateway: no interfaces configured")
	}
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	type readResult struct {
		frame []byte
		err   error
	}
	frameCh := make(chan readResult)
	go func() {
		r := bufio.NewReader(in)
		for {
			frame, err := readFrame(r)
			frameCh <- readResult{frame, err}
			if err != nil {
				return
			}
		}
	}()

	w := bufio.NewWriter(out)
	defer w.Flush()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case res := <-frameCh:
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("gateway: read frame: %w", res.err)
			}
			if d, ok := gw.interfaces[0].RecvFrame(res.frame); ok {
				gw.router.Enqueue(0, d)
			}
			gw.router.Route()
			if err := gw.drain(w); err != nil {
				return err
			}
		case <-ticker.C:
			for _, nic := range gw.interfaces {
				nic.Tick(uint64(tick.Milliseconds()))
			}
			gw.router.Route()
			if err := gw.drain(w); err != nil {
				return err
			}
		}
	}
}

func (gw *gateway) drain(w *bufio.Writer) error {
	for i, nic := range gw.interfaces {
		for {
			frame, ok := nic.MaybeSend()
			if !ok {
				break
			}
			if err := writeFrame(w, uint8(i), frame); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// readFrame decodes a 4-byte big-endian length prefix followed by that many
// bytes of Ethernet frame.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// writeFrame encodes one interface-index byte, a 4-byte big-endian length
// prefix, and the frame itself.
func writeFrame(w *bufio.Writer, ifaceIdx uint8, frame []byte) error {
	if err := w.WriteByte(ifaceIdx); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
