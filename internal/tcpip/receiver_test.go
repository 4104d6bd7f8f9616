package tcpip

import "testing"

func TestTCPReceiverSYNThenData(t *testing.T) {
	w, _ := NewByteStream(100)
	tr := NewTCPReceiver()

	msg := tr.Send(w)
	if msg.HasAckno {
		t.Fatalf("expected no ackno before a SYN arrives")
	}

	isn := WrapUint32(5)
	re := NewReassembler()
	tr.Receive(SenderMessage{Seqno: isn, SYN: true}, re, w)

	msg = tr.Send(w)
	if !msg.HasAckno || msg.Ackno.Raw() != 6 {
		t.Fatalf("ackno after SYN = %+v, want raw 6", msg)
	}

	tr.Receive(SenderMessage{Seqno: WrapUint32(6), Payload: []byte("hi")}, re, w)
	msg = tr.Send(w)
	if msg.Ackno.Raw() != 8 {
		t.Fatalf("ackno after 2 data bytes = %d, want 8", msg.Ackno.Raw())
	}
}

func TestTCPReceiverIgnoresDataBeforeSYN(t *testing.T) {
	w, _ := NewByteStream(100)
	tr := NewTCPReceiver()
	re := NewReassembler()

	tr.Receive(SenderMessage{Seqno: WrapUint32(5), Payload: []byte("x")}, re, w)
	msg := tr.Send(w)
	if msg.HasAckno {
		t.Fatalf("data arriving before SYN must be ignored")
	}
}

func TestTCPReceiverFINClosesStream(t *testing.T) {
	w, r := NewByteStream(100)
	tr := NewTCPReceiver()
	re := NewReassembler()

	isn := WrapUint32(0)
	tr.Receive(SenderMessage{Seqno: isn, SYN: true}, re, w)
	tr.Receive(SenderMessage{Seqno: WrapUint32(1), Payload: []byte("hi"), FIN: true}, re, w)

	if got := r.ReadAndPop(r.BytesBuffered()); string(got) != "hi" {
		t.Fatalf("payload = %q, want %q", got, "hi")
	}
	if !r.IsFinished() {
		t.Fatalf("expected the stream to finish once its last byte is popped")
	}
	msg := tr.Send(w)
	if msg.Ackno.Raw() != 4 { // ISN + SYN(1) + "hi"(2) + FIN(1)
		t.Fatalf("ackno after SYN+2+FIN = %d, want 4", msg.Ackno.Raw())
	}
}

// TestTCPReceiverDropsNonSYNSegmentAtISN reproduces a segment that reuses
// the ISN's sequence number without the SYN flag set; it must be dropped
// rather than unwrapped relative to the ISN, which would underflow to a
// huge stream index.
func TestTCPReceiverDropsNonSYNSegmentAtISN(t *testing.T) {
	w, _ := NewByteStream(100)
	tr := NewTCPReceiver()
	re := NewReassembler()

	isn := WrapUint32(5)
	tr.Receive(SenderMessage{Seqno: isn, SYN: true}, re, w)
	before := tr.Send(w)

	tr.Receive(SenderMessage{Seqno: isn, Payload: []byte("bogus")}, re, w)
	after := tr.Send(w)

	if after.Ackno.Raw() != before.Ackno.Raw() {
		t.Fatalf("ackno changed after a stale non-SYN segment at the ISN: %d -> %d", before.Ackno.Raw(), after.Ackno.Raw())
	}
	if w.BytesBuffered() != 0 {
		t.Fatalf("expected the bogus payload to be dropped, buffered = %d", w.BytesBuffered())
	}
}

func TestTCPReceiverWindowCapsAtMaxReceiveWindow(t *testing.T) {
	w, _ := NewByteStream(MaxReceiveWindow * 2)
	tr := NewTCPReceiver()
	re := NewReassembler()
	tr.Receive(SenderMessage{Seqno: WrapUint32(0), SYN: true}, re, w)

	msg := tr.Send(w)
	if msg.WindowSize != MaxReceiveWindow {
		t.Fatalf("window = %d, want capped at %d", msg.WindowSize, MaxReceiveWindow)
	}
}
