package tcpip

// Timer tracks the TCPSender's retransmission timeout. Unlike an RFC 6298
// SRTT/RTTVAR estimator, this Timer's RTO is driven purely by
// SetRTOByFactor: doubling on back-off and resetting to the initial value
// on a fresh ack. See DESIGN.md for why SRTT smoothing was not used here.
type Timer struct {
	initialRTOMillis uint64
	currentRTOMillis uint64
	elapsedMillis    uint64
	running          bool
}

// NewTimer creates a stopped Timer with the given initial RTO, in
// milliseconds.
func NewTimer(initialRTOMillis uint64) *Timer {
	return &Timer{
		initialRTOMillis: initialRTOMillis,
		currentRTOMillis: initialRTOMillis,
	}
}

// Run starts the timer if it is not already running.
func (t *Timer) Run() {
	if !t.running {
		t.running = true
		t.elapsedMillis = 0
	}
}

// Stop halts the timer and clears its elapsed time.
func (t *Timer) Stop() {
	t.running = false
	t.elapsedMillis = 0
}

// Restart stops and immediately runs the timer, resetting elapsed time.
func (t *Timer) Restart() {
	t.running = true
	t.elapsedMillis = 0
}

// Elapse advances the timer's elapsed time by dt milliseconds, if running.
func (t *Timer) Elapse(dtMillis uint64) {
	if t.running {
		t.elapsedMillis += dtMillis
	}
}

// Expired reports whether the timer is running and has reached its RTO.
func (t *Timer) Expired() bool {
	return t.running && t.elapsedMillis >= t.currentRTOMillis
}

// Running reports whether the timer is currently running.
func (t *Timer) Running() bool {
	return t.running
}

// RTOMillis returns the current RTO in milliseconds.
func (t *Timer) RTOMillis() uint64 {
	return t.currentRTOMillis
}

// SetRTOByFactor resets the RTO to its initial value when factor is 0,
// otherwise multiplies the current RTO by factor.
func (t *Timer) SetRTOByFactor(factor uint64) {
	if factor == 0 {
		t.currentRTOMillis = t.initialRTOMillis
		return
	}
	t.currentRTOMillis *= factor
}
