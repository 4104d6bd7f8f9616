package tcpip

// Wrap32 is a 32-bit sequence number: a raw wire seqno, interpreted relative
// to a zero point (ISN) and wrapped modulo 2^32. It never itself carries the
// zero point; the zero point is always supplied by the caller, matching the
// wire format where a TCP segment's seqno field is bare and the connection's
// ISN lives elsewhere in the handshake.
type Wrap32 struct {
	raw uint32
}

// WrapUint32 builds a Wrap32 directly from a raw 32-bit wire value.
func WrapUint32(raw uint32) Wrap32 {
	return Wrap32{raw: raw}
}

// Wrap produces the Wrap32 for absolute index n relative to zeroPoint.
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return Wrap32{raw: zeroPoint.raw + uint32(n)}
}

// Raw returns the bare 32-bit wire value.
func (w Wrap32) Raw() uint32 {
	return w.raw
}

// Equal reports whether two Wrap32 values carry the same raw seqno.
func (w Wrap32) Equal(o Wrap32) bool {
	return w.raw == o.raw
}

// AddOffset returns w advanced (or retreated, for negative n) by n, wrapping
// modulo 2^32.
func (w Wrap32) AddOffset(n int64) Wrap32 {
	return Wrap32{raw: w.raw + uint32(n)}
}

// Unwrap returns the absolute 64-bit index nearest checkpoint that wraps to
// w under zeroPoint. Ties are broken toward the smaller value.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	offset := uint64(w.raw - zeroPoint.raw) // mod 2^32 by construction

	const wrapSpan = uint64(1) << 32
	high := checkpoint &^ (wrapSpan - 1)
	mid := high | offset

	// Consider the three candidates that wrap to w in ascending numeric
	// order, and only replace best on a strict improvement. Visiting the
	// smallest candidate first means a tie in distance keeps it rather than
	// a larger candidate found later.
	var best uint64
	var bestDist uint64
	haveBest := false

	if mid >= wrapSpan {
		lower := mid - wrapSpan
		best, bestDist, haveBest = lower, absDiff(lower, checkpoint), true
	}

	if d := absDiff(mid, checkpoint); !haveBest || d < bestDist {
		best, bestDist, haveBest = mid, d, true
	}

	if upper := mid + wrapSpan; absDiff(upper, checkpoint) < bestDist {
		best = upper
	}

	return best
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
