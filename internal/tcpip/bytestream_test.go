package tcpip

import "testing"

// TestByteStreamBasic mirrors the literal scenario from spec.md §8: capacity
// 4, three pushes, a partial pop, close, and the is_finished transition.
func TestByteStreamBasic(t *testing.T) {
	w, r := NewByteStream(4)

	w.Push([]byte("ab"))
	w.Push([]byte("cd"))
	w.Push([]byte("e")) // dropped: only 4 bytes of capacity

	if got := w.BytesBuffered(); got != 4 {
		t.Fatalf("bytes_buffered = %d, want 4", got)
	}
	if got := w.BytesPushed(); got != 4 {
		t.Fatalf("bytes_pushed = %d, want 4", got)
	}
	if got := string(r.Peek()); got != "ab" {
		t.Fatalf("peek = %q, want %q", got, "ab")
	}

	r.Pop(3)
	if got := string(r.Peek()); got != "d" {
		t.Fatalf("peek after pop(3) = %q, want %q", got, "d")
	}

	w.Close()
	if r.IsFinished() {
		t.Fatalf("expected is_finished=false before the last byte is popped")
	}
	r.Pop(1)
	if !r.IsFinished() {
		t.Fatalf("expected is_finished=true once the stream is drained")
	}
}

func TestByteStreamPushAfterClose(t *testing.T) {
	w, r := NewByteStream(10)
	w.Push([]byte("ab"))
	w.Close()
	w.Push([]byte("cd"))
	if got := r.BytesBuffered(); got != 2 {
		t.Fatalf("push after close should be a no-op, bytes_buffered = %d, want 2", got)
	}
}

func TestByteStreamReadAndPop(t *testing.T) {
	w, r := NewByteStream(10)
	w.Push([]byte("hello"))
	got := r.ReadAndPop(3)
	if string(got) != "hel" {
		t.Fatalf("ReadAndPop(3) = %q, want %q", got, "hel")
	}
	if r.BytesBuffered() != 2 {
		t.Fatalf("bytes_buffered after ReadAndPop = %d, want 2", r.BytesBuffered())
	}
	rest := r.ReadAndPop(100)
	if string(rest) != "lo" {
		t.Fatalf("ReadAndPop(100) = %q, want %q", rest, "lo")
	}
}

func TestByteStreamSetError(t *testing.T) {
	w, r := NewByteStream(10)
	if r.HasError() {
		t.Fatalf("fresh stream should not have an error")
	}
	w.SetError()
	if !r.HasError() {
		t.Fatalf("expected has_error after SetError")
	}
}

func TestByteStreamReadAndPopAcrossChunks(t *testing.T) {
	w, r := NewByteStream(10)
	w.Push([]byte("ab"))
	w.Push([]byte("cd"))
	w.Push([]byte("ef"))
	got := r.ReadAndPop(5)
	if string(got) != "abcde" {
		t.Fatalf("ReadAndPop across chunk boundaries = %q, want %q", got, "abcde")
	}
}
