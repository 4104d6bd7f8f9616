package tcpip

// reassemblerChunk is a pending, not-yet-deliverable fragment of the stream.
type reassemblerChunk struct {
	start uint64
	data  []byte
}

func (c reassemblerChunk) end() uint64 {
	return c.start + uint64(len(c.data))
}

// Reassembler turns out-of-order, overlapping byte fragments into an
// in-order stream pushed through a ByteStream's Writer half. Pending chunks
// are kept pairwise disjoint and sorted by start index.
type Reassembler struct {
	nextSeqNum   uint64
	bytesPending int
	hasLastIndex bool
	lastIndex    uint64
	chunks       []reassemblerChunk
}

// NewReassembler creates an empty Reassembler starting at stream index 0.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// NextSeqNum returns the first stream index not yet delivered.
func (r *Reassembler) NextSeqNum() uint64 {
	return r.nextSeqNum
}

// BytesPending returns the total length of all pending (buffered but
// undelivered) chunks.
func (r *Reassembler) BytesPending() int {
	return r.bytesPending
}

// Insert delivers or buffers data arriving at firstIndex. isLast marks the
// final byte of the stream (the FIN-bearing insert).
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool, writer Writer) {
	end := firstIndex + uint64(len(data))
	if end < r.nextSeqNum {
		r.maybeClose(writer)
		return
	}

	if isLast {
		r.hasLastIndex = true
		r.lastIndex = end
	}

	if firstIndex <= r.nextSeqNum {
		r.insertFastPath(firstIndex, data, end, writer)
	} else {
		r.insertSlowPath(firstIndex, data, writer)
	}

	r.maybeClose(writer)
}

func (r *Reassembler) insertFastPath(firstIndex uint64, data []byte, end uint64, writer Writer) {
	trim := r.nextSeqNum - firstIndex
	if trim > uint64(len(data)) {
		trim = uint64(len(data))
	}
	data = data[trim:]

	maxLen := end - r.nextSeqNum
	if space := uint64(writer.AvailableCapacity()); space < maxLen {
		maxLen = space
	}
	if uint64(len(data)) > maxLen {
		data = data[:maxLen]
	}
	writer.Push(data)
	r.nextSeqNum += uint64(len(data))

	for len(r.chunks) > 0 && r.chunks[0].start <= r.nextSeqNum {
		c := r.chunks[0]
		r.chunks = r.chunks[1:]
		r.bytesPending -= len(c.data)

		if c.end() <= r.nextSeqNum {
			continue
		}
		tail := c.data[r.nextSeqNum-c.start:]
		if space := writer.AvailableCapacity(); len(tail) > space {
			tail = tail[:space]
		}
		writer.Push(tail)
		r.nextSeqNum += uint64(len(tail))
	}
}

func (r *Reassembler) insertSlowPath(firstIndex uint64, data []byte, writer Writer) {
	if firstIndex+uint64(len(data)) > r.nextSeqNum+uint64(writer.AvailableCapacity()) {
		return // reaches past the last index the writer could accept; discard whole insert
	}
	space := writer.AvailableCapacity() - r.bytesPending
	if space < 0 {
		space = 0
	}
	if len(data) > space {
		return // discard whole insert; never partially buffer (see DESIGN.md)
	}
	if len(data) == space {
		data = data[:len(data)-1] // reserve room for a future prefix-overlap trim
	}
	if len(data) == 0 {
		return
	}

	newStart := firstIndex
	newData := data

	leftIdx := -1
	for leftIdx+1 < len(r.chunks) && r.chunks[leftIdx+1].start <= newStart {
		leftIdx++
	}
	if leftIdx >= 0 {
		left := r.chunks[leftIdx]
		if left.end() > newStart {
			trimAmt := left.end() - newStart
			if trimAmt > uint64(len(newData)) {
				trimAmt = uint64(len(newData))
			}
			newData = newData[trimAmt:]
			newStart += trimAmt
		}
	}
	newEnd := newStart + uint64(len(newData))

	i := leftIdx + 1
	for i < len(r.chunks) {
		c := r.chunks[i]
		if c.start >= newEnd {
			break
		}
		if c.end() <= newEnd {
			r.bytesPending -= len(c.data)
			r.chunks = append(r.chunks[:i], r.chunks[i+1:]...)
			continue
		}
		cut := newEnd - c.start
		if cut > uint64(len(newData)) {
			cut = uint64(len(newData))
		}
		newData = newData[:uint64(len(newData))-cut]
		newEnd = c.start
		break
	}

	if len(newData) == 0 {
		return
	}

	chunk := reassemblerChunk{start: newStart, data: append([]byte(nil), newData...)}
	insertAt := leftIdx + 1
	r.chunks = append(r.chunks, reassemblerChunk{})
	copy(r.chunks[insertAt+1:], r.chunks[insertAt:])
	r.chunks[insertAt] = chunk
	r.bytesPending += len(chunk.data)
}

func (r *Reassembler) maybeClose(writer Writer) {
	if r.hasLastIndex && uint64(writer.BytesPushed()) == r.lastIndex {
		writer.Close()
	}
}
