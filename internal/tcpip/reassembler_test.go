package tcpip

import (
	"math/rand"
	"testing"
)

// TestReassemblerOverlap mirrors spec.md §8 scenario 2.
func TestReassemblerOverlap(t *testing.T) {
	w, r := NewByteStream(8)
	re := NewReassembler()

	re.Insert(3, []byte("cde"), false, w)
	re.Insert(0, []byte("ab"), false, w)
	re.Insert(2, []byte("cdef"), false, w)

	got := r.ReadAndPop(r.BytesBuffered())
	if string(got) != "abcdef" {
		t.Fatalf("reassembled = %q, want %q", got, "abcdef")
	}
	if re.NextSeqNum() != 6 {
		t.Fatalf("next_seq_num = %d, want 6", re.NextSeqNum())
	}
	if re.BytesPending() != 0 {
		t.Fatalf("bytes_pending = %d, want 0", re.BytesPending())
	}
}

// TestReassemblerCapacityDrop mirrors spec.md §8 scenario 3: an out-of-order
// insert that cannot fit (even though its eventual in-order length would) is
// dropped outright by the slow path rather than partially buffered.
func TestReassemblerCapacityDrop(t *testing.T) {
	w, r := NewByteStream(4)
	re := NewReassembler()

	re.Insert(2, []byte("cd"), false, w) // buffered, out of order
	re.Insert(5, []byte("f"), false, w)  // dropped: 5+1 > 0+4

	if r.BytesBuffered() != 0 {
		t.Fatalf("nothing should be readable before index 0 arrives, got %d bytes", r.BytesBuffered())
	}

	re.Insert(0, []byte("ab"), false, w)
	got := r.ReadAndPop(r.BytesBuffered())
	if string(got) != "abcd" {
		t.Fatalf("reassembled = %q, want %q", got, "abcd")
	}
}

func TestReassemblerClosesOnLastByte(t *testing.T) {
	w, r := NewByteStream(10)
	re := NewReassembler()

	re.Insert(0, []byte("hello"), true, w)
	if !r.IsFinished() {
		t.Fatalf("expected is_finished once the FIN-bearing byte range is delivered")
	}
	if string(r.ReadAndPop(10)) != "hello" {
		t.Fatalf("unexpected reassembled payload")
	}
}

func TestReassemblerClosesOnlyAfterGapFills(t *testing.T) {
	w, r := NewByteStream(10)
	re := NewReassembler()

	re.Insert(5, []byte("world"), true, w)
	if r.IsFinished() {
		t.Fatalf("stream must not finish while a gap precedes the FIN byte")
	}
	re.Insert(0, []byte("hello"), false, w)
	if !r.IsFinished() {
		t.Fatalf("expected is_finished once the gap is filled")
	}
	if string(r.ReadAndPop(10)) != "helloworld" {
		t.Fatalf("unexpected reassembled payload")
	}
}

// TestReassemblerRoundTripRandomPermutation exercises the round-trip law
// from spec.md §8: inserting an arbitrary permutation of non-overlapping
// slices of a source string yields the source string at the reader.
func TestReassemblerRoundTripRandomPermutation(t *testing.T) {
	const source = "the quick brown fox jumps over the lazy dog"
	rng := rand.New(rand.NewSource(1))

	type slice struct {
		start int
		data  string
	}
	var slices []slice
	for i := 0; i < len(source); {
		n := 1 + rng.Intn(5)
		if i+n > len(source) {
			n = len(source) - i
		}
		slices = append(slices, slice{i, source[i : i+n]})
		i += n
	}
	rng.Shuffle(len(slices), func(i, j int) { slices[i], slices[j] = slices[j], slices[i] })

	w, r := NewByteStream(len(source))
	re := NewReassembler()
	for _, s := range slices {
		re.Insert(uint64(s.start), []byte(s.data), false, w)
	}
	// Mark the true end of the stream explicitly, regardless of where it
	// landed in the shuffled insertion order.
	re.Insert(uint64(len(source)), nil, true, w)

	got := r.ReadAndPop(r.BytesBuffered())
	if string(got) != source {
		t.Fatalf("round trip = %q, want %q", got, source)
	}
}
