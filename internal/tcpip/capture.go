package tcpip

import (
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// CaptureWriter adapts a pcapgo.Writer into a NetworkInterface capture sink:
// every frame handed to Sink is appended as one pcap record. Guarded by a
// mutex since the sink may be shared by interfaces driven from different
// goroutines in an embedder, even though each individual NetworkInterface
// itself stays single-threaded.
type CaptureWriter struct {
	mu sync.Mutex
	w  *pcapgo.Writer
}

// NewCaptureWriter wraps w, which must already have had WriteFileHeader
// called on it.
func NewCaptureWriter(w *pcapgo.Writer) *CaptureWriter {
	return &CaptureWriter{w: w}
}

// Sink is installed via NetworkInterface.SetCaptureSink.
func (c *CaptureWriter) Sink(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
}
