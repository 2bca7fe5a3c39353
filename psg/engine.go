package psg

// Engine is a single bit-exact YM2149 PSG. Clock advances the chip by
// one master-clock/8 tick and returns the mixed, normalised sample.
type Engine struct {
	regs Registers

	toneCounter  [3]int
	toneFlip     [3]bool
	noiseCounter int
	noiseToggle  int
	lfsr         uint32

	env envelope

	muted [3]bool

	lastSample float32

	colorFilterOn bool
	filterZ1      float32
	filterZ2      float32

	dcBuf [32]float32
	dcPos int
	dcSum float32
}

// NewEngine returns a PSG engine with registers and counters reset to
// their power-on state.
func NewEngine() *Engine {
	e := &Engine{}
	e.Reset()
	return e
}

// Reset clears every register and internal counter, including the
// LFSR (reseeded non-zero, since an all-zero LFSR would lock up).
func (e *Engine) Reset() {
	e.regs = Registers{}
	e.toneCounter = [3]int{1, 1, 1}
	e.toneFlip = [3]bool{}
	e.noiseCounter = 1
	e.noiseToggle = 0
	e.lfsr = 1
	e.env = envelope{period: 1}
	e.env.retrigger(0)
	e.lastSample = 0
	e.filterZ1 = 0
	e.filterZ2 = 0
	e.dcBuf = [32]float32{}
	e.dcPos = 0
	e.dcSum = 0
}

// WriteRegister stores value into register addr, applying the
// documented bit mask. Writing the R13 sentinel (0xFF) leaves the
// envelope shape and step counter untouched; any other value
// retriggers the envelope from step 0.
func (e *Engine) WriteRegister(addr int, value byte) {
	addr &= 0x0F
	if addr == REnvShape && value == NoRetrigger {
		return
	}
	masked := value & registerMask(addr)
	e.regs[addr] = masked
	if addr == REnvShape {
		e.env.retrigger(masked)
	}
	if addr == REnvPeriodLo || addr == REnvPeriodHi {
		e.env.setPeriod(e.regs.EnvPeriod())
	}
}

// ReadRegister returns the last stored value of register addr.
func (e *Engine) ReadRegister(addr int) byte {
	return e.regs[addr&0x0F]
}

// SetChannelMute mutes or unmutes channel c (0=A,1=B,2=C) without
// altering register state.
func (e *Engine) SetChannelMute(c int, mute bool) {
	if c < 0 || c > 2 {
		return
	}
	e.muted[c] = mute
}

// IsChannelMuted reports whether channel c is currently muted.
func (e *Engine) IsChannelMuted(c int) bool {
	if c < 0 || c > 2 {
		return false
	}
	return e.muted[c]
}

// SetColorFilter enables or disables the post-mix two-tap low-pass
// filter.
func (e *Engine) SetColorFilter(on bool) {
	e.colorFilterOn = on
}

func (e *Engine) clockTone(c int) {
	period := e.regs.TonePeriod(c)
	if period <= 0 {
		period = 1
	}
	e.toneCounter[c]--
	if e.toneCounter[c] <= 0 {
		e.toneCounter[c] = period
		e.toneFlip[c] = !e.toneFlip[c]
	}
}

func (e *Engine) clockNoise() {
	period := e.regs.NoisePeriod()
	if period <= 0 {
		period = 1
	}
	e.noiseCounter--
	if e.noiseCounter > 0 {
		return
	}
	e.noiseCounter = period
	e.noiseToggle++
	if e.noiseToggle < 2 {
		return
	}
	e.noiseToggle = 0
	bit := (e.lfsr ^ (e.lfsr >> 2)) & 1
	e.lfsr = (e.lfsr >> 1) | (bit << 16)
}

func (e *Engine) noiseOutput() bool {
	return e.lfsr&1 != 0
}

// channelGates returns the per-channel, pre-volume boolean gate
// (true = tone AND noise both pass the mixer this tick).
func (e *Engine) channelGates() [3]bool {
	var out [3]bool
	noise := e.noiseOutput()
	for c := 0; c < 3; c++ {
		toneOn := e.toneFlip[c] || e.regs.ToneDisabled(c)
		noiseOn := noise || e.regs.NoiseDisabled(c)
		out[c] = toneOn && noiseOn
	}
	return out
}

// GetChannelOutputs returns each channel's contribution after the
// mixer gate, mute flag, and volume table, but before the three
// channels are summed.
func (e *Engine) GetChannelOutputs() [3]float32 {
	var out [3]float32
	gates := e.channelGates()
	envLevel := e.env.level()
	for c := 0; c < 3; c++ {
		if e.muted[c] || !gates[c] {
			continue
		}
		level, useEnv := e.regs.AmplitudeLevel(c)
		if useEnv {
			level = envLevel
		}
		out[c] = volumeTable[level]
	}
	return out
}

// Clock advances tone, noise, and envelope generators by one tick and
// returns the mixed, DC-removed, optionally colour-filtered sample.
func (e *Engine) Clock() float32 {
	for c := 0; c < 3; c++ {
		e.clockTone(c)
	}
	e.clockNoise()
	e.env.clock()

	if e.muted[0] && e.muted[1] && e.muted[2] {
		e.removeDC(0)
		e.lastSample = 0
		return 0
	}

	outputs := e.GetChannelOutputs()

	mix := (outputs[0] + outputs[1] + outputs[2]) / 3.0

	mix = e.removeDC(mix)
	if e.colorFilterOn {
		mix = e.applyColorFilter(mix)
	}
	if mix > 1 {
		mix = 1
	} else if mix < -1 {
		mix = -1
	}
	e.lastSample = mix
	return mix
}

// GetSample returns the sample computed by the most recent Clock.
func (e *Engine) GetSample() float32 {
	return e.lastSample
}

func (e *Engine) removeDC(sample float32) float32 {
	e.dcSum -= e.dcBuf[e.dcPos]
	e.dcBuf[e.dcPos] = sample
	e.dcSum += sample
	e.dcPos = (e.dcPos + 1) % len(e.dcBuf)
	mean := e.dcSum / float32(len(e.dcBuf))
	return sample - mean
}

func (e *Engine) applyColorFilter(sample float32) float32 {
	out := e.filterZ2*0.25 + e.filterZ1*0.5 + sample*0.25
	e.filterZ2 = e.filterZ1
	e.filterZ1 = sample
	return out
}
