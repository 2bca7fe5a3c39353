// Package effects implements the YM6 special-effects overlay: SID
// Voice, Sinus-SID, DigiDrum, and Sync-Buzzer. Each effect drives a
// psg.Engine's registers directly and must be ticked once per sample,
// strictly before the owning engine's own Clock call, so its register
// writes land before the PSG's tone/noise/envelope step for that tick.
package effects

import (
	"github.com/retrochip/ym2149/errs"
	"github.com/retrochip/ym2149/mfptimer"
	"github.com/retrochip/ym2149/psg"
)

// sidVoice drives a channel's amplitude register between two fixed
// levels at a programmed frequency, with tone and noise silenced.
type sidVoice struct {
	active    bool
	timer     mfptimer.Timer
	freqHz    int
	low, high int
	highNext bool
}

// sinusSidVoice drives a channel's amplitude register through a
// 16-entry sine-shaped table.
type sinusSidVoice struct {
	active bool
	timer  mfptimer.Timer
	freqHz int
	pos    int
}

// sinusTable is the canonical 16-step sine-shaped amplitude contour
// used by Sinus-SID, spanning the full 0-15 PSG level range.
var sinusTable = [16]int{8, 11, 13, 15, 15, 15, 13, 11, 8, 5, 3, 1, 1, 1, 3, 5}

// drumPrec is the fractional precision of a digiDrumVoice's position
// accumulator: the sample's playback rate is rarely a clean divisor
// of the output rate, so advancing by a fixed integer number of
// output ticks per PCM byte (the way sid/sinSid/buzzer do) would drift
// the pitch. Stepping a Q(32-drumPrec).drumPrec fixed-point index
// instead resamples the drum to the output rate exactly.
const drumPrec = 15

// digiDrumVoice plays a PCM sample through a channel's amplitude
// register by stepping a fractional index into the sample at
// step = (freqHz << drumPrec) / sampleRate per output tick.
type digiDrumVoice struct {
	active bool
	freqHz int
	step   uint32
	pos    uint32
	sample []byte
}

// syncBuzzer periodically rewrites R13 with a fixed envelope shape,
// retriggering the envelope generator on each tick.
type syncBuzzer struct {
	active bool
	timer  mfptimer.Timer
	freqHz int
	shape  byte
}

// Manager owns the per-channel effect state for one psg.Engine.
type Manager struct {
	engine     *psg.Engine
	sampleRate int

	sid    [3]sidVoice
	sinSid [3]sinusSidVoice
	digi   [3]digiDrumVoice
	buzzer syncBuzzer
}

// NewManager returns a Manager driving engine, with timers scaled
// against sampleRate (the output sample rate the engine's Clock is
// called at).
func NewManager(engine *psg.Engine, sampleRate int) *Manager {
	return &Manager{engine: engine, sampleRate: sampleRate}
}

func ticksFor(sampleRate, freqHz int) (int, error) {
	if freqHz <= 0 {
		return 0, errs.New(errs.InvalidParameter, "effect frequency must be positive, got %d", freqHz)
	}
	ticks := sampleRate / freqHz
	if ticks <= 0 {
		ticks = 1
	}
	return ticks, nil
}

// SidStart begins (or idempotently continues) SID Voice amplitude
// modulation on channel between low and high levels at freqHz.
func (m *Manager) SidStart(channel int, freqHz, low, high int) error {
	if channel < 0 || channel > 2 {
		return errs.New(errs.InvalidParameter, "channel %d out of range", channel)
	}
	v := &m.sid[channel]
	if v.active && v.freqHz == freqHz && v.low == low && v.high == high {
		return nil
	}
	ticks, err := ticksFor(m.sampleRate, freqHz)
	if err != nil {
		return err
	}
	v.active = true
	v.freqHz = freqHz
	v.low = low
	v.high = high
	v.highNext = false
	v.timer.Start(ticks)
	m.engine.WriteRegister(psg.RMixer, m.engine.ReadRegister(psg.RMixer)|toneNoiseMask(channel))
	return nil
}

// SidStop disables SID Voice on channel.
func (m *Manager) SidStop(channel int) {
	if channel < 0 || channel > 2 {
		return
	}
	m.sid[channel].active = false
	m.sid[channel].timer.Stop()
}

// SidSinStart begins (or idempotently continues) Sinus-SID modulation
// on channel at freqHz.
func (m *Manager) SidSinStart(channel int, freqHz int) error {
	if channel < 0 || channel > 2 {
		return errs.New(errs.InvalidParameter, "channel %d out of range", channel)
	}
	v := &m.sinSid[channel]
	if v.active && v.freqHz == freqHz {
		return nil
	}
	ticks, err := ticksFor(m.sampleRate, freqHz)
	if err != nil {
		return err
	}
	v.active = true
	v.freqHz = freqHz
	v.pos = 0
	v.timer.Start(ticks)
	m.engine.WriteRegister(psg.RMixer, m.engine.ReadRegister(psg.RMixer)|toneNoiseMask(channel))
	return nil
}

// SidSinStop disables Sinus-SID on channel.
func (m *Manager) SidSinStop(channel int) {
	if channel < 0 || channel > 2 {
		return
	}
	m.sinSid[channel].active = false
	m.sinSid[channel].timer.Stop()
}

// DigiDrumStart begins playing sample through channel at freqHz. A
// nil or empty sample aborts silently (no error, no effect), matching
// a well-formed player encountering an out-of-range drum index.
func (m *Manager) DigiDrumStart(channel int, freqHz int, sample []byte) error {
	if channel < 0 || channel > 2 {
		return errs.New(errs.InvalidParameter, "channel %d out of range", channel)
	}
	if len(sample) == 0 {
		return nil
	}
	if freqHz <= 0 {
		return errs.New(errs.InvalidParameter, "effect frequency must be positive, got %d", freqHz)
	}
	v := &m.digi[channel]
	if v.active && v.freqHz == freqHz && len(v.sample) == len(sample) && &v.sample[0] == &sample[0] {
		return nil
	}
	v.active = true
	v.freqHz = freqHz
	v.step = uint32((freqHz << drumPrec) / m.sampleRate)
	if v.step == 0 {
		v.step = 1
	}
	v.sample = sample
	v.pos = 0
	m.engine.WriteRegister(psg.RMixer, m.engine.ReadRegister(psg.RMixer)|toneNoiseMask(channel))
	return nil
}

// DigiDrumStop disables DigiDrum playback on channel.
func (m *Manager) DigiDrumStop(channel int) {
	if channel < 0 || channel > 2 {
		return
	}
	m.digi[channel].active = false
}

// SyncBuzzerStart begins (or idempotently continues) periodic R13
// retriggering at freqHz with the given envelope shape.
func (m *Manager) SyncBuzzerStart(freqHz int, shape byte) error {
	if m.buzzer.active && m.buzzer.freqHz == freqHz && m.buzzer.shape == shape {
		return nil
	}
	ticks, err := ticksFor(m.sampleRate, freqHz)
	if err != nil {
		return err
	}
	m.buzzer.active = true
	m.buzzer.freqHz = freqHz
	m.buzzer.shape = shape
	m.buzzer.timer.Start(ticks)
	return nil
}

// SyncBuzzerStop disables the Sync-Buzzer.
func (m *Manager) SyncBuzzerStop() {
	m.buzzer.active = false
	m.buzzer.timer.Stop()
}

// SyncBuzzerEnabled reports whether the Sync-Buzzer is currently
// active.
func (m *Manager) SyncBuzzerEnabled() bool {
	return m.buzzer.active
}

func toneNoiseMask(channel int) byte {
	return (1 << uint(channel)) | (1 << uint(channel+3))
}

// Tick advances every active effect by one sample tick, writing to
// the owning engine's registers as needed. Call this immediately
// before the engine's own Clock for the same tick.
func (m *Manager) Tick() {
	for c := 0; c < 3; c++ {
		m.tickSid(c)
		m.tickSinSid(c)
		m.tickDigi(c)
	}
	m.tickBuzzer()
}

func (m *Manager) tickSid(c int) {
	v := &m.sid[c]
	if !v.active {
		return
	}
	if v.timer.Clock() {
		level := v.low
		if v.highNext {
			level = v.high
		}
		v.highNext = !v.highNext
		m.engine.WriteRegister(psg.RAmplitudeA+c, byte(level&0x0F))
	}
}

func (m *Manager) tickSinSid(c int) {
	v := &m.sinSid[c]
	if !v.active {
		return
	}
	if v.timer.Clock() {
		level := sinusTable[v.pos%len(sinusTable)]
		v.pos++
		m.engine.WriteRegister(psg.RAmplitudeA+c, byte(level&0x0F))
	}
}

func (m *Manager) tickDigi(c int) {
	v := &m.digi[c]
	if !v.active {
		return
	}
	idx := v.pos >> drumPrec
	if idx >= uint32(len(v.sample)) {
		v.active = false
		m.engine.WriteRegister(psg.RAmplitudeA+c, 0)
		return
	}
	level := v.sample[idx] & 0x0F
	m.engine.WriteRegister(psg.RAmplitudeA+c, level)
	v.pos += v.step
}

func (m *Manager) tickBuzzer() {
	if !m.buzzer.active {
		return
	}
	if m.buzzer.timer.Clock() {
		m.engine.WriteRegister(psg.REnvShape, m.buzzer.shape)
	}
}
