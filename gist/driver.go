package gist

import (
	"github.com/retrochip/ym2149/mfptimer"
	"github.com/retrochip/ym2149/psg"
)

const numVoices = 3

// mixerMask clears voice v's tone/noise disable bits before the
// driver sets the ones this sound actually wants, the same per-voice
// AND-mask the original driver keeps.
var mixerMask = [numVoices]byte{
	^byte(psg.MixerToneA | psg.MixerNoiseA),
	^byte(psg.MixerToneB | psg.MixerNoiseB),
	^byte(psg.MixerToneC | psg.MixerNoiseC),
}

type envPhase int

const (
	phaseOff envPhase = iota
	phaseAttack
	phaseDecay
	phaseSustain
	phaseRelease
)

type voice struct {
	inUse    int // ticks remaining (duration countdown), 0 = free
	priority int
	period   int
	noise    int // negative = noise disabled for this voice

	level int
	phase envPhase
	sound Sound
}

// Driver is a 3-voice GIST sound-effect allocator driving a shared
// psg.Engine. Call Tick at a fixed 200Hz regardless of the engine's
// own output sample rate.
type Driver struct {
	engine *psg.Engine
	voices [numVoices]voice
	mixer  byte
	timers mfptimer.Mfp
	debug  bool
}

// NewDriver returns a Driver with all voices idle and the mixer fully
// disabled (tone and noise off on every channel), wired to engine.
func NewDriver(engine *psg.Engine) *Driver {
	d := &Driver{engine: engine, mixer: 0x3F}
	engine.WriteRegister(psg.RMixer, d.mixer)
	return d
}

// SetDebug is a no-op hook kept for parity with the driver's own
// debug toggle; this port has no trace output to gate.
func (d *Driver) SetDebug(enabled bool) { d.debug = enabled }

// IsPlaying reports whether any voice is currently allocated.
func (d *Driver) IsPlaying() bool {
	for i := range d.voices {
		if d.voices[i].inUse != 0 {
			return true
		}
	}
	return false
}

// StopAll immediately silences every voice without letting a release
// envelope finish.
func (d *Driver) StopAll() {
	for i := range d.voices {
		d.voices[i] = voice{}
		d.engine.WriteRegister(psg.RAmplitudeA+i, 0)
	}
	d.mixer = 0x3F
	d.engine.WriteRegister(psg.RMixer, d.mixer)
}

// SndOff moves voice into its release phase instead of cutting it:
// it keeps sounding until ReleaseRate drains its level to zero, and
// its priority drops to zero so a new sound can steal the voice.
func (d *Driver) SndOff(voiceIdx int) {
	if voiceIdx < 0 || voiceIdx >= numVoices {
		return
	}
	if d.voices[voiceIdx].inUse == 0 {
		return
	}
	d.release(voiceIdx)
}

// pickVoice implements the allocator: prefer requestedVoice if its
// priority allows it, else the first free voice, else the lowest
// priority voice currently playing (stolen only if priority covers
// it). requestedVoice < 0 means "no preference".
func (d *Driver) pickVoice(requestedVoice, priority int) (int, bool) {
	if requestedVoice >= 0 {
		if requestedVoice >= numVoices {
			return 0, false
		}
		if d.voices[requestedVoice].priority <= priority {
			return requestedVoice, true
		}
	}

	for i := 0; i < numVoices; i++ {
		if d.voices[i].inUse == 0 {
			return i, true
		}
	}

	best := 0
	if d.voices[1].priority < d.voices[best].priority {
		best = 1
	}
	if d.voices[2].priority <= d.voices[best].priority {
		best = 2
	}
	if d.voices[best].priority > priority {
		return 0, false
	}
	return best, true
}

// SndOn allocates a voice for sound and starts it. requestedVoice and
// pitch may be -1 to mean "no preference"/"use the sound's own
// period". Returns the voice index used, or -1 if every voice was
// busy with a higher-priority sound.
func (d *Driver) SndOn(sound Sound, requestedVoice, pitch, priority int) int {
	idx, ok := d.pickVoice(requestedVoice, priority)
	if !ok {
		return -1
	}

	v := &d.voices[idx]
	*v = voice{sound: sound, priority: priority}

	period := sound.Period
	if pitch >= 0 {
		period = periodForPitch(pitch)
	}
	v.period = period

	var toneMask, noiseMask byte
	if period > 0 {
		d.engine.WriteRegister(idx*2, byte(period&0xFF))
		d.engine.WriteRegister(idx*2+1, byte((period>>8)&0x0F))
	} else {
		toneMask = 1 << uint(idx)
	}

	if sound.NoisePeriod >= 0 {
		d.engine.WriteRegister(psg.RNoisePeriod, byte(sound.NoisePeriod&0x1F))
		v.noise = sound.NoisePeriod
	} else {
		noiseMask = 8 << uint(idx)
		v.noise = -1
	}

	d.mixer = (d.mixer & mixerMask[idx]) | toneMask | noiseMask
	d.engine.WriteRegister(psg.RMixer, d.mixer)

	if sound.AttackRate > 0 {
		v.phase = phaseAttack
		v.level = 0
		d.timers.Voice(idx).Start(sound.AttackRate)
	} else {
		v.phase = phaseSustain
		v.level = sound.Volume
		d.engine.WriteRegister(psg.RAmplitudeA+idx, byte(v.level&0x0F))
	}

	v.inUse = sound.Duration
	if v.inUse == 0 {
		v.inUse = -1 // negative: play until SndOff, never auto-released by duration
	}
	return idx
}

// Tick advances every voice's envelope and duration countdown by one
// 200Hz step. Call this at a fixed 200Hz; a caller replaying at an
// arbitrary output sample rate divides that rate by 200 to get the
// number of output samples per Tick, the same integer-division
// convention ym6.Replayer uses for its own frame rate.
func (d *Driver) Tick() {
	for i := numVoices - 1; i >= 0; i-- {
		d.tickVoice(i)
	}
}

func (d *Driver) tickVoice(i int) {
	v := &d.voices[i]
	if v.inUse == 0 {
		return
	}

	switch v.phase {
	case phaseAttack:
		if d.timers.Voice(i).Clock() {
			v.level++
			if v.level >= 15 {
				v.level = 15
				if v.sound.DecayRate > 0 && v.sound.SustainLevel < 15 {
					v.phase = phaseDecay
					d.timers.Voice(i).Start(v.sound.DecayRate)
				} else {
					v.phase = phaseSustain
				}
			}
			d.engine.WriteRegister(psg.RAmplitudeA+i, byte(v.level))
		}
	case phaseDecay:
		if d.timers.Voice(i).Clock() {
			if v.level > v.sound.SustainLevel {
				v.level--
			}
			if v.level <= v.sound.SustainLevel {
				v.level = v.sound.SustainLevel
				v.phase = phaseSustain
			}
			d.engine.WriteRegister(psg.RAmplitudeA+i, byte(v.level))
		}
	case phaseRelease:
		if d.timers.Voice(i).Clock() {
			if v.level > 0 {
				v.level--
			}
			d.engine.WriteRegister(psg.RAmplitudeA+i, byte(v.level))
			if v.level == 0 {
				*v = voice{}
				return
			}
		}
	}

	if v.inUse > 0 {
		v.inUse--
		if v.inUse == 0 {
			d.release(i)
		}
	}
}

// release moves voice i into its release phase (or silences it
// immediately if it has none), independent of SndOff's "already idle"
// guard: this path runs exactly when a timed sound's duration expires.
func (d *Driver) release(i int) {
	v := &d.voices[i]
	v.priority = 0
	if v.sound.ReleaseRate > 0 {
		v.phase = phaseRelease
		d.timers.Voice(i).Start(v.sound.ReleaseRate)
		v.inUse = -1 // keep alive through the release envelope
	} else {
		*v = voice{}
		d.engine.WriteRegister(psg.RAmplitudeA+i, 0)
	}
}
