package effects

import (
	"testing"

	"github.com/retrochip/ym2149/errs"
	"github.com/retrochip/ym2149/psg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidStartRejectsNonPositiveFrequency(t *testing.T) {
	e := psg.NewEngine()
	m := NewManager(e, 44100)
	err := m.SidStart(0, 0, 0, 15)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidParameter))

	err = m.SidStart(0, -10, 0, 15)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidParameter))
}

func TestSidStartIsIdempotent(t *testing.T) {
	e := psg.NewEngine()
	m := NewManager(e, 44100)
	require.NoError(t, m.SidStart(0, 440, 0, 15))
	m.Tick()
	// Re-starting with identical parameters must not reset phase.
	require.NoError(t, m.SidStart(0, 440, 0, 15))
	assert.True(t, m.sid[0].active)
}

func TestDigiDrumEmptySampleAbortsSilently(t *testing.T) {
	e := psg.NewEngine()
	m := NewManager(e, 44100)
	err := m.DigiDrumStart(0, 4000, nil)
	require.NoError(t, err)
	assert.False(t, m.digi[0].active)
}

func TestDigiDrumPlaysSampleThroughAmplitude(t *testing.T) {
	e := psg.NewEngine()
	m := NewManager(e, 4)
	require.NoError(t, m.DigiDrumStart(0, 1, []byte{5, 10, 0}))
	for i := 0; i < 4; i++ {
		m.Tick()
	}
	assert.Equal(t, byte(5), e.ReadRegister(psg.RAmplitudeA))
	for i := 0; i < 4; i++ {
		m.Tick()
	}
	assert.Equal(t, byte(10), e.ReadRegister(psg.RAmplitudeA))
}

func TestSyncBuzzerRetriggersEnvelopeShape(t *testing.T) {
	e := psg.NewEngine()
	m := NewManager(e, 4)
	require.NoError(t, m.SyncBuzzerStart(1, 0x0E))
	assert.True(t, m.SyncBuzzerEnabled())
	for i := 0; i < 4; i++ {
		m.Tick()
	}
	assert.Equal(t, byte(0x0E), e.ReadRegister(psg.REnvShape))

	m.SyncBuzzerStop()
	assert.False(t, m.SyncBuzzerEnabled())
}
