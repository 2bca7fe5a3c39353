// Package psg implements the integer-accurate YM2149 register file and
// tone/noise/envelope/mixer pipeline. One Engine produces one
// normalised float32 sample per call to Clock, which represents a
// master-clock tick divided by 8.
package psg

// RegisterCount is the number of addressable PSG registers.
const RegisterCount = 16

// Register addresses, named the way the datasheet and every emulator
// in the pack names them.
const (
	RTonePeriodALo = 0
	RTonePeriodAHi = 1
	RTonePeriodBLo = 2
	RTonePeriodBHi = 3
	RTonePeriodCLo = 4
	RTonePeriodCHi = 5
	RNoisePeriod   = 6
	RMixer         = 7
	RAmplitudeA    = 8
	RAmplitudeB    = 9
	RAmplitudeC    = 10
	REnvPeriodLo   = 11
	REnvPeriodHi   = 12
	REnvShape      = 13
	RIOPortA       = 14
	RIOPortB       = 15
)

// NoRetrigger is the R13 sentinel value meaning "do not rewrite" —
// YM frames use it to suppress an envelope retrigger that the source
// frame never intended.
const NoRetrigger = 0xFF

// Mixer bits: bit n disables tone A/B/C (n=0..2) or noise A/B/C
// (n=3..5) when set.
const (
	MixerToneA  = 1 << 0
	MixerToneB  = 1 << 1
	MixerToneC  = 1 << 2
	MixerNoiseA = 1 << 3
	MixerNoiseB = 1 << 4
	MixerNoiseC = 1 << 5
)

// AmplitudeEnvelopeBit is set in R8/R9/R10 to select the envelope
// generator's level instead of the register's own low nibble.
const AmplitudeEnvelopeBit = 0x10

// registerMask returns the documented storage width for addr, masked
// to 0-15 the way any out-of-range address is rescued.
func registerMask(addr int) byte {
	switch addr & 0x0F {
	case RTonePeriodAHi, RTonePeriodBHi, RTonePeriodCHi:
		return 0x0F
	case RNoisePeriod:
		return 0x1F
	case RAmplitudeA, RAmplitudeB, RAmplitudeC:
		return 0x1F
	case REnvShape:
		return 0x0F
	default:
		return 0xFF
	}
}

// Registers is the raw 16-byte PSG register file.
type Registers [RegisterCount]byte

// TonePeriod returns the 12-bit tone period for channel c (0=A,1=B,2=C).
func (r *Registers) TonePeriod(c int) int {
	lo := int(r[c*2])
	hi := int(r[c*2+1] & 0x0F)
	return (hi << 8) | lo
}

// NoisePeriod returns the 5-bit noise period.
func (r *Registers) NoisePeriod() int {
	return int(r[RNoisePeriod] & 0x1F)
}

// EnvPeriod returns the 16-bit envelope period.
func (r *Registers) EnvPeriod() int {
	return int(r[REnvPeriodLo]) | (int(r[REnvPeriodHi]) << 8)
}

// AmplitudeLevel returns the 4-bit level and whether envelope mode is
// selected for channel c.
func (r *Registers) AmplitudeLevel(c int) (level int, useEnvelope bool) {
	v := r[RAmplitudeA+c]
	return int(v & 0x0F), v&AmplitudeEnvelopeBit != 0
}

// ToneDisabled reports whether the mixer disables tone for channel c.
func (r *Registers) ToneDisabled(c int) bool {
	return r[RMixer]&(1<<uint(c)) != 0
}

// NoiseDisabled reports whether the mixer disables noise for channel c.
func (r *Registers) NoiseDisabled(c int) bool {
	return r[RMixer]&(1<<uint(c+3)) != 0
}
