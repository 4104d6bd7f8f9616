package tcpip

// ByteStream is a bounded FIFO of bytes shared by exactly one writer and one
// reader. Both views are capability wrappers around the same core; neither
// can be constructed independently of NewByteStream.
type ByteStream struct {
	core *byteStreamCore
}

type byteStreamCore struct {
	capacity int

	chunks   [][]byte // pending data, in order; chunks[0] may have a head offset consumed
	headOff  int       // bytes already popped from chunks[0]
	buffered int        // bytes_buffered

	pushed int // bytes_pushed
	popped int // bytes_popped

	closed bool
	hasErr bool
}

// NewByteStream creates a ByteStream with the given capacity and returns its
// Writer and Reader views.
func NewByteStream(capacity int) (Writer, Reader) {
	core := &byteStreamCore{capacity: capacity}
	bs := ByteStream{core: core}
	return Writer{bs}, Reader{bs}
}

// Writer is the producer-side capability on a ByteStream.
type Writer struct {
	bs ByteStream
}

// Reader is the consumer-side capability on a ByteStream.
type Reader struct {
	bs ByteStream
}

// AvailableCapacity returns the number of bytes that can still be pushed
// before the stream is full.
func (w Writer) AvailableCapacity() int {
	c := w.bs.core
	return c.capacity - c.buffered
}

// BytesPushed returns the cumulative number of bytes ever pushed.
func (w Writer) BytesPushed() int {
	return w.bs.core.pushed
}

// IsClosed reports whether Close has been called.
func (w Writer) IsClosed() bool {
	return w.bs.core.closed
}

// Push appends data to the stream, truncating to available capacity. A
// closed stream silently discards the push; this never blocks and never
// returns an error.
func (w Writer) Push(data []byte) {
	c := w.bs.core
	if c.closed || len(data) == 0 {
		return
	}
	avail := c.capacity - c.buffered
	if avail <= 0 {
		return
	}
	if len(data) > avail {
		data = data[:avail]
	}
	chunk := append([]byte(nil), data...)
	c.chunks = append(c.chunks, chunk)
	c.buffered += len(chunk)
	c.pushed += len(chunk)
}

// Close marks the stream closed. Sticky: further pushes are no-ops.
func (w Writer) Close() {
	w.bs.core.closed = true
}

// SetError marks the stream as errored. Sticky; observable via Reader.HasError.
func (w Writer) SetError() {
	w.bs.core.hasErr = true
}

// Capacity returns the stream's fixed capacity.
func (w Writer) Capacity() int {
	return w.bs.core.capacity
}

// BytesBuffered returns the number of bytes currently queued (writer view).
func (w Writer) BytesBuffered() int {
	return w.bs.core.buffered
}

// Peek returns a contiguous view of the head of the buffered data. The
// returned slice may be shorter than BytesBuffered and must not be retained
// past the next Pop/Push.
func (r Reader) Peek() []byte {
	c := r.bs.core
	if len(c.chunks) == 0 {
		return nil
	}
	return c.chunks[0][c.headOff:]
}

// Pop discards up to n bytes from the front of the stream.
func (r Reader) Pop(n int) {
	c := r.bs.core
	if n > c.buffered {
		n = c.buffered
	}
	remaining := n
	for remaining > 0 && len(c.chunks) > 0 {
		head := c.chunks[0][c.headOff:]
		if remaining < len(head) {
			c.headOff += remaining
			c.buffered -= remaining
			c.popped += remaining
			remaining = 0
			break
		}
		c.buffered -= len(head)
		c.popped += len(head)
		remaining -= len(head)
		c.chunks = c.chunks[1:]
		c.headOff = 0
	}
}

// ReadAndPop returns up to n bytes from the front of the stream, popping
// them, possibly copying across multiple chunks. Returns fewer than n bytes
// if the stream has less buffered.
func (r Reader) ReadAndPop(n int) []byte {
	c := r.bs.core
	if n > c.buffered {
		n = c.buffered
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, 0, n)
	remaining := n
	for remaining > 0 && len(c.chunks) > 0 {
		head := c.chunks[0][c.headOff:]
		if remaining < len(head) {
			out = append(out, head[:remaining]...)
			c.headOff += remaining
			c.buffered -= remaining
			c.popped += remaining
			remaining = 0
			break
		}
		out = append(out, head...)
		c.buffered -= len(head)
		c.popped += len(head)
		remaining -= len(head)
		c.chunks = c.chunks[1:]
		c.headOff = 0
	}
	return out
}

// BytesBuffered returns the number of bytes currently available to read.
func (r Reader) BytesBuffered() int {
	return r.bs.core.buffered
}

// BytesPopped returns the cumulative number of bytes ever popped.
func (r Reader) BytesPopped() int {
	return r.bs.core.popped
}

// IsFinished reports whether the stream is closed and fully drained.
func (r Reader) IsFinished() bool {
	c := r.bs.core
	return c.closed && c.buffered == 0
}

// HasError reports whether SetError has been called.
func (r Reader) HasError() bool {
	return r.bs.core.hasErr
}
