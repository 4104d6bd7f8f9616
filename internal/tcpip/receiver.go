package tcpip

// TCPReceiver turns inbound segments into an ackno/window pair, feeding
// payload bytes through a Reassembler into the connection's inbound
// ByteStream.
type TCPReceiver struct {
	hasISN bool
	isn    Wrap32
	ackno  Wrap32

	hasFIN  bool
	finSeqno Wrap32
}

// NewTCPReceiver creates a receiver that has not yet seen a SYN.
func NewTCPReceiver() *TCPReceiver {
	return &TCPReceiver{}
}

// Receive processes an inbound segment, delivering its payload through
// reassembler into writer.
func (tr *TCPReceiver) Receive(msg SenderMessage, reassembler *Reassembler, writer Writer) {
	if tr.hasISN && msg.Seqno.Equal(tr.isn) {
		return // stale retransmission of the segment carrying the ISN
	}

	switch {
	case msg.SYN:
		tr.hasISN = true
		tr.isn = msg.Seqno
		reassembler.Insert(0, msg.Payload, msg.FIN, writer)
	case tr.hasISN:
		streamIndex := msg.Seqno.Unwrap(tr.isn, uint64(writer.BytesPushed())) - 1
		reassembler.Insert(streamIndex, msg.Payload, msg.FIN, writer)
	default:
		return // no SYN yet
	}

	tr.ackno = Wrap(uint64(writer.BytesPushed())+1, tr.isn)

	if msg.FIN {
		tr.hasFIN = true
		tr.finSeqno = msg.Seqno.AddOffset(int64(msg.SequenceLength()) - 1)
	}
	if tr.hasFIN && tr.ackno.Equal(tr.finSeqno) {
		tr.ackno = tr.ackno.AddOffset(1)
		writer.Close()
	}
}

// Send builds the outbound ackno/window feedback.
func (tr *TCPReceiver) Send(writer Writer) ReceiverMessage {
	window := writer.AvailableCapacity()
	if window > MaxReceiveWindow {
		window = MaxReceiveWindow
	}
	return ReceiverMessage{
		Ackno:      tr.ackno,
		HasAckno:   tr.hasISN,
		WindowSize: uint16(window),
	}
}
