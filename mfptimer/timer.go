// Package mfptimer is a minimal port of the Atari ST Multi-Function
// Peripheral's programmable timers: a plain down-counter that signals
// expiry on reaching zero and reloads from its programmed period.
package mfptimer

// Timer is one MFP counter/timer channel.
type Timer struct {
	period  int
	counter int
	running bool
}

// NewTimer returns a running timer with the given period. A period of
// zero or less is treated as 1, matching the PSG's own zero-period
// convention.
func NewTimer(period int) *Timer {
	t := &Timer{}
	t.Start(period)
	return t
}

// Start (re)loads the timer with period and begins counting.
func (t *Timer) Start(period int) {
	if period <= 0 {
		period = 1
	}
	t.period = period
	t.counter = period
	t.running = true
}

// Stop halts the timer without resetting its counter.
func (t *Timer) Stop() {
	t.running = false
}

// Clock advances the timer by one tick and reports whether it expired
// on this tick, reloading from period immediately after.
func (t *Timer) Clock() bool {
	if !t.running {
		return false
	}
	t.counter--
	if t.counter > 0 {
		return false
	}
	t.counter = t.period
	return true
}

// Period returns the timer's currently programmed period.
func (t *Timer) Period() int {
	return t.period
}

// Mfp bundles the three timer channels a 3-voice driver needs one
// down-counter per voice for: gist.Driver uses TimerA/TimerB/TimerC to
// pace voice 0/1/2's envelope stepping independently of its fixed
// 200Hz tick rate, the same way the real MFP gave each Atari ST sound
// voice its own hardware channel.
type Mfp struct {
	TimerA Timer
	TimerB Timer
	TimerC Timer
}

// NewMfp returns an Mfp with all three timers stopped.
func NewMfp() *Mfp {
	return &Mfp{}
}

// Reset stops and zeroes all three timers.
func (m *Mfp) Reset() {
	m.TimerA = Timer{}
	m.TimerB = Timer{}
	m.TimerC = Timer{}
}

// Voice returns the timer bundled for voice index v (0, 1, or 2).
func (m *Mfp) Voice(v int) *Timer {
	switch v {
	case 0:
		return &m.TimerA
	case 1:
		return &m.TimerB
	default:
		return &m.TimerC
	}
}
