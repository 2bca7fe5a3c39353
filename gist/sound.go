// Package gist implements the SNDH/GIST sound-effect bank driver: a
// priority-based 3-voice allocator that plays short ADSR-enveloped
// effects (menu blips, explosions, game-event stingers) over whatever
// a PSG register stream is already playing, ticked at its own fixed
// 200Hz rate independent of the YM6/Arkos replayers.
//
// This is a from-scratch Go model grounded on the GIST driver's public
// contract (snd_on/snd_off/stop_all/tick, priority-based voice
// stealing, per-voice volume envelope, MIDI-note pitch override) and
// not a line-for-line port: the original is a cycle-accurate 68000
// port using Q16.16 fixed-point envelope/LFO accumulators, which this
// package does not reproduce (see DESIGN.md) — frequency LFO and
// noise-channel envelopes are likewise out of scope here, leaving the
// volume ADSR and pitch override, which cover the common case of a
// short percussive sound effect.
package gist

// ymFreqs is the MIDI-note (24-108, 3 octaves below middle C through 4
// above) to YM2149 tone-period lookup, carried over unchanged from the
// driver's own table since it's derived straight from the YM2149's
// master clock and note frequencies, not from anything environment
// specific.
var ymFreqs = [85]int{
	3822, 3608, 3405, 3214, 3034, 2863, 2703, 2551, 2408, 2273, 2145, 2025, 1911, 1804, 1703, 1607,
	1517, 1432, 1351, 1276, 1204, 1136, 1073, 1012, 956, 902, 851, 804, 758, 716, 676, 638, 602,
	568, 536, 506, 478, 451, 426, 402, 379, 358, 338, 319, 301, 284, 268, 253, 239, 225, 213, 201,
	190, 179, 169, 159, 150, 142, 134, 127, 119, 113, 106, 100, 95, 89, 84, 80, 75, 71, 67, 63, 60,
	56, 53, 50, 47, 45, 42, 40, 38, 36, 34, 32, 30,
}

// periodForPitch maps a MIDI note (octave-wrapped into 24-108 the way
// snd_on's pitch override does) to a tone period.
func periodForPitch(pitch int) int {
	for pitch > 108 {
		pitch -= 12
	}
	for pitch < 24 {
		pitch += 12
	}
	return ymFreqs[pitch-24]
}

// Sound is one effect-bank entry: the program Driver.SndOn loads onto
// an allocated voice.
type Sound struct {
	// Period is the default tone period (register units, not Hz: the
	// same units a YM frame's R0/R1 carry). Zero disables tone and
	// routes the voice through noise only.
	Period int
	// NoisePeriod is the 5-bit noise period. Negative disables noise.
	NoisePeriod int
	Volume      int // 0-15 starting/sustain level if no envelope
	Duration    int // ticks at 200Hz before auto-release; 0 plays until SndOff
	Priority    int

	AttackRate   int // ticks per one-level rise while attacking
	DecayRate    int // ticks per one-level fall while decaying to SustainLevel
	SustainLevel int // 0-15
	ReleaseRate  int // ticks per one-level fall while releasing
}
