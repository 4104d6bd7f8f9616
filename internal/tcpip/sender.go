package tcpip

// outstandingSegment is a segment the sender has assigned a seqno to,
// together with its absolute [start, end) range, used to decide which
// segments an incoming ack retires.
type outstandingSegment struct {
	msg      SenderMessage
	absStart uint64
	absEnd   uint64
}

// TCPSender drives segmentation, retransmission, and RTO back-off for the
// outbound half of a TCP connection. It never sends anything itself;
// MaybeSend drains what it has decided should go out next.
type TCPSender struct {
	isn           Wrap32
	absoluteSeqno uint64

	preUnwrappedAckno   uint64
	remainingWindowSize uint64
	windowIsZero        bool
	canUseMagic         bool
	availableToSendFIN  bool
	finQueued           bool

	retransmitFlag             bool
	consecutiveRetransmissions int

	segments    []outstandingSegment
	nextSegment int

	timer *Timer
}

// NewTCPSender creates a sender for a connection with the given ISN and
// initial RTO (milliseconds). The sender starts with an assumed window of 1
// byte, just enough to transmit the initial SYN before any ack arrives.
func NewTCPSender(isn Wrap32, initialRTOMillis uint64) *TCPSender {
	return &TCPSender{
		isn:                 isn,
		remainingWindowSize: 1,
		availableToSendFIN:  true,
		timer:               NewTimer(initialRTOMillis),
	}
}

// Push segments as much of reader's buffered bytes as the current window
// allows, including the initial SYN and a trailing FIN once reader is
// finished.
func (ts *TCPSender) Push(reader Reader) {
	for {
		budget, usingMagic, ok := ts.sendBudget()
		if !ok {
			return
		}

		msg := SenderMessage{Seqno: Wrap(ts.absoluteSeqno, ts.isn)}
		remaining := budget
		if ts.absoluteSeqno == 0 {
			msg.SYN = true
			remaining--
		}

		if remaining > 0 {
			toRead := remaining
			if toRead > MaxPayloadSize {
				toRead = MaxPayloadSize
			}
			if bb := uint64(reader.BytesBuffered()); toRead > bb {
				toRead = bb
			}
			if toRead > 0 {
				msg.Payload = reader.ReadAndPop(int(toRead))
				remaining -= uint64(len(msg.Payload))
			}
		}

		if remaining > 0 && reader.IsFinished() && !ts.finQueued {
			msg.FIN = true
		}

		if msg.SequenceLength() == 0 {
			return
		}

		if msg.FIN && !ts.availableToSendFIN {
			msg.FIN = false
			if msg.SequenceLength() == 0 {
				return
			}
			ts.emit(msg, usingMagic)
			return // receiver's window can't absorb FIN yet; stop after this segment
		}

		ts.emit(msg, usingMagic)
		if msg.FIN {
			ts.finQueued = true
		}
		if usingMagic {
			return // at most one zero-window probe per opportunity
		}
	}
}

func (ts *TCPSender) sendBudget() (budget uint64, usingMagic bool, ok bool) {
	if ts.windowIsZero {
		if !ts.canUseMagic {
			return 0, false, false
		}
		return 1, true, true
	}
	if ts.remainingWindowSize == 0 {
		return 0, false, false
	}
	return ts.remainingWindowSize, false, true
}

func (ts *TCPSender) emit(msg SenderMessage, usingMagic bool) {
	seqLen := uint64(msg.SequenceLength())
	seg := outstandingSegment{msg: msg, absStart: ts.absoluteSeqno, absEnd: ts.absoluteSeqno + seqLen}
	ts.segments = append(ts.segments, seg)
	ts.absoluteSeqno += seqLen

	if usingMagic {
		ts.canUseMagic = false
	} else {
		ts.remainingWindowSize -= seqLen
	}
}

// MaybeSend returns the next segment to transmit, if any: a pending
// retransmission takes priority, then the oldest not-yet-sent queued
// segment. Each emission starts or continues the retransmission timer.
func (ts *TCPSender) MaybeSend() (SenderMessage, bool) {
	if ts.retransmitFlag {
		ts.retransmitFlag = false
		if len(ts.segments) > 0 {
			ts.timer.Run()
			return ts.segments[0].msg, true
		}
	}
	if ts.nextSegment < len(ts.segments) {
		msg := ts.segments[ts.nextSegment].msg
		ts.nextSegment++
		ts.timer.Run()
		return msg, true
	}
	return SenderMessage{}, false
}

// Receive processes feedback from the TCPReceiver: acks in-flight segments,
// updates the advertised window, and resets RTO/back-off state on progress.
func (ts *TCPSender) Receive(msg ReceiverMessage) {
	if !msg.HasAckno {
		return
	}

	ackno := msg.Ackno.Unwrap(ts.isn, ts.absoluteSeqno)
	if ackno > ts.absoluteSeqno {
		return // stale/invalid: acks beyond what we've sent
	}

	window := uint64(msg.WindowSize)
	if window == 0 {
		ts.availableToSendFIN = ackno >= ts.absoluteSeqno
		ts.canUseMagic = true
	} else {
		ts.availableToSendFIN = ackno+window > ts.absoluteSeqno
	}

	if total := int64(ackno) + int64(window) - int64(ts.absoluteSeqno); total > 0 {
		ts.remainingWindowSize = uint64(total)
	} else {
		ts.remainingWindowSize = 0
	}
	ts.windowIsZero = ts.remainingWindowSize == 0

	if ackno > ts.preUnwrappedAckno {
		ts.timer.SetRTOByFactor(0)
		ts.consecutiveRetransmissions = 0
		ts.preUnwrappedAckno = ackno

		for len(ts.segments) > 0 && ts.segments[0].absEnd <= ackno {
			ts.segments = ts.segments[1:]
			if ts.nextSegment > 0 {
				ts.nextSegment--
			}
		}

		if len(ts.segments) > 0 {
			ts.timer.Restart()
		} else {
			ts.timer.Stop()
		}
	}
}

// Tick advances elapsed time by dtMillis, applying RTO back-off on expiry.
func (ts *TCPSender) Tick(dtMillis uint64) {
	if len(ts.segments) == 0 {
		ts.timer.Stop()
		return
	}
	ts.timer.Elapse(dtMillis)
	if !ts.timer.Expired() {
		return
	}

	ts.retransmitFlag = true
	if ts.windowIsZero {
		ts.timer.SetRTOByFactor(0) // no back-off while probing a zero window
	} else {
		ts.consecutiveRetransmissions++
		ts.timer.SetRTOByFactor(2)
	}
	ts.timer.Restart()
}

// SequenceNumbersInFlight returns the sum of sequence lengths of all
// segments currently in the deque awaiting a full ack.
func (ts *TCPSender) SequenceNumbersInFlight() int {
	total := 0
	for _, seg := range ts.segments {
		total += seg.msg.SequenceLength()
	}
	return total
}

// ConsecutiveRetransmissions returns the current back-off counter.
func (ts *TCPSender) ConsecutiveRetransmissions() int {
	return ts.consecutiveRetransmissions
}

// SenderSnapshot is a JSON-serializable view of sender state for
// introspection and tests; never consulted by the protocol logic itself.
type SenderSnapshot struct {
	AbsoluteSeqno       uint64 `json:"absoluteSeqno"`
	AckedThrough        uint64 `json:"ackedThrough"`
	RemainingWindow     uint64 `json:"remainingWindow"`
	WindowIsZero        bool   `json:"windowIsZero"`
	InFlight            int    `json:"inFlight"`
	RetransmitPending   bool   `json:"retransmitPending"`
	ConsecutiveRetx     int    `json:"consecutiveRetransmissions"`
	RTOMillis           uint64 `json:"rtoMillis"`
	TimerRunning        bool   `json:"timerRunning"`
}

// Snapshot captures the sender's current state for debugging.
func (ts *TCPSender) Snapshot() SenderSnapshot {
	return SenderSnapshot{
		AbsoluteSeqno:     ts.absoluteSeqno,
		AckedThrough:      ts.preUnwrappedAckno,
		RemainingWindow:   ts.remainingWindowSize,
		WindowIsZero:      ts.windowIsZero,
		InFlight:          ts.SequenceNumbersInFlight(),
		RetransmitPending: ts.retransmitFlag,
		ConsecutiveRetx:   ts.consecutiveRetransmissions,
		RTOMillis:         ts.timer.RTOMillis(),
		TimerRunning:      ts.timer.Running(),
	}
}
