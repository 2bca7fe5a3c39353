package psg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRegisterMasksToDocumentedWidth(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(RTonePeriodAHi, 0xFF)
	assert.Equal(t, byte(0x0F), e.ReadRegister(RTonePeriodAHi))

	e.WriteRegister(RNoisePeriod, 0xFF)
	assert.Equal(t, byte(0x1F), e.ReadRegister(RNoisePeriod))

	e.WriteRegister(RAmplitudeA, 0xFF)
	assert.Equal(t, byte(0x1F), e.ReadRegister(RAmplitudeA))

	e.WriteRegister(REnvShape, 0x1A)
	assert.Equal(t, byte(0x0A), e.ReadRegister(REnvShape))
}

func TestMutedChannelContributesNothing(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(RMixer, 0) // tone+noise enabled on all channels
	e.WriteRegister(RTonePeriodALo, 0x1C)
	e.WriteRegister(RTonePeriodAHi, 0x01)
	e.WriteRegister(RAmplitudeA, 0x0F)
	e.SetChannelMute(0, true)

	for i := 0; i < 200; i++ {
		s := e.Clock()
		assert.InDelta(t, 0.0, float64(s), 1e-6)
	}
}

func TestSilentAfterResetProducesZero(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 50; i++ {
		assert.Equal(t, float32(0), e.Clock())
	}
}

func TestEnvelopeSentinelDoesNotRetrigger(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(REnvPeriodLo, 4)
	e.WriteRegister(REnvPeriodHi, 0)
	e.WriteRegister(REnvShape, 0x09)
	for i := 0; i < 20; i++ {
		e.env.clock()
	}
	stepBefore := e.env.step
	require.NotEqual(t, 0, stepBefore)

	e.WriteRegister(REnvShape, NoRetrigger)
	assert.Equal(t, byte(0x09), e.ReadRegister(REnvShape))
	assert.Equal(t, stepBefore, e.env.step)
}

func TestEnvelopeRetriggerIsIdempotent(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(REnvPeriodLo, 4)
	e.WriteRegister(REnvShape, 0x09)
	for i := 0; i < 20; i++ {
		e.env.clock()
	}
	require.NotEqual(t, 0, e.env.step)

	e.WriteRegister(REnvShape, 0x09)
	assert.Equal(t, 0, e.env.step)
	assert.False(t, e.env.holding)

	for i := 0; i < 20; i++ {
		e.env.clock()
	}
	e.WriteRegister(REnvShape, 0x09)
	assert.Equal(t, 0, e.env.step)
}

func TestEnvelopeDecayThenHoldsAtZero(t *testing.T) {
	e := &Engine{}
	e.Reset()
	e.regs[REnvPeriodLo] = 1
	e.env.setPeriod(1)
	e.env.retrigger(0x09) // continue=1, attack=0, alternate=0, hold=1

	for i := 0; i < 200; i++ {
		e.env.clock()
	}
	assert.Equal(t, 0, e.env.level())

	for i := 0; i < 100; i++ {
		e.env.clock()
	}
	assert.Equal(t, 0, e.env.level())
}

func TestToneAndNoisePeriodZeroTreatedAsOne(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(RTonePeriodALo, 0)
	e.WriteRegister(RTonePeriodAHi, 0)
	e.WriteRegister(RNoisePeriod, 0)

	flips := 0
	prev := e.toneFlip[0]
	for i := 0; i < 10; i++ {
		e.clockTone(0)
		if e.toneFlip[0] != prev {
			flips++
			prev = e.toneFlip[0]
		}
	}
	assert.Greater(t, flips, 0)
}

func TestToneChannelAProducesExpectedPeriod(t *testing.T) {
	e := NewEngine()
	e.WriteRegister(RMixer, MixerNoiseA|MixerNoiseB|MixerNoiseC)
	e.WriteRegister(RTonePeriodALo, 0x1C)
	e.WriteRegister(RTonePeriodAHi, 0x01)
	e.WriteRegister(RAmplitudeA, 0x0F)

	period := e.regs.TonePeriod(0)
	assert.Equal(t, 284, period)

	flips := 0
	prev := e.toneFlip[0]
	for i := 0; i < period*4; i++ {
		e.Clock()
		if e.toneFlip[0] != prev {
			flips++
			prev = e.toneFlip[0]
		}
	}
	assert.Equal(t, 4, flips)
}

func TestColorFilterSmoothsOutput(t *testing.T) {
	e := NewEngine()
	e.SetColorFilter(true)
	e.WriteRegister(RMixer, MixerNoiseA|MixerNoiseB|MixerNoiseC)
	e.WriteRegister(RTonePeriodALo, 10)
	e.WriteRegister(RAmplitudeA, 0x0F)
	for i := 0; i < 100; i++ {
		_ = e.Clock()
	}
}
