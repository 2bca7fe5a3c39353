package psg

// envelope tracks the hardware envelope generator: a 16-bit period
// counter driving a 5-bit step index (0-31), decoded against the four
// shape attributes continue/attack/alternate/hold.
type envelope struct {
	period  int
	counter int
	step    int
	holding bool

	continueFlag bool
	attack       bool
	alternate    bool
	hold         bool
}

// retrigger resets the step counter and decodes a new shape, mirroring
// a non-sentinel write to R13. Called with the same shape twice still
// produces two retriggers.
func (e *envelope) retrigger(shape byte) {
	e.continueFlag = shape&0x08 != 0
	e.attack = shape&0x04 != 0
	e.alternate = shape&0x02 != 0
	e.hold = shape&0x01 != 0
	e.step = 0
	e.counter = 0
	e.holding = false
}

// setPeriod updates the period without retriggering the step counter.
func (e *envelope) setPeriod(period int) {
	if period <= 0 {
		period = 1
	}
	e.period = period
}

// clock advances the period counter by one tick, advancing the step
// index every two underflows.
func (e *envelope) clock() {
	e.counter++
	if e.counter < e.period*2 {
		return
	}
	e.counter = 0
	e.advanceStep()
}

func (e *envelope) advanceStep() {
	if e.holding {
		return
	}
	e.step++
	if e.step <= 31 {
		return
	}
	e.step = 31
	switch {
	case !e.continueFlag:
		e.holding = true
	case e.hold:
		e.holding = true
	case e.alternate:
		e.step = 0
		e.attack = !e.attack
	default:
		e.step = 0
	}
}

// level returns the current 0-15 amplitude level.
func (e *envelope) level() int {
	if !e.continueFlag && e.holding {
		return 0
	}
	v := e.step >> 1
	if e.attack {
		return v
	}
	return 15 - v
}
