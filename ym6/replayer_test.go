package ym6

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toneFrame(periodLo, periodHi, amplitude byte) Frame {
	var f Frame
	f[0] = periodLo
	f[1] = periodHi
	f[7] = 0x3E // noise disabled on all channels, tone A enabled
	f[8] = amplitude
	f[13] = 0xFF
	return f
}

func TestReplayerPlaysSingleToneChannel(t *testing.T) {
	frames := &FrameTable{
		Format:    FormatYM3,
		Frames:    []Frame{toneFrame(0x1C, 0x01, 0x0F)},
		LoopFrame: 0,
		FrameRate: 50,
	}
	r, err := NewReplayer(frames, nil, 44100)
	require.NoError(t, err)
	r.SetLooping(true)
	r.Play()

	buf := make([]float32, 2000)
	r.GenerateSamples(buf)

	nonZero := 0
	for _, s := range buf {
		if s != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0)
}

func TestReplayerStopsAtEndWithoutLoop(t *testing.T) {
	frames := &FrameTable{
		Format:    FormatYM3,
		Frames:    []Frame{toneFrame(0x10, 0, 0x0F)},
		LoopFrame: 0,
		FrameRate: 50,
	}
	r, err := NewReplayer(frames, nil, 100) // 2 samples per frame
	require.NoError(t, err)
	r.Play()

	buf := make([]float32, 10)
	r.GenerateSamples(buf)
	assert.True(t, r.IsOver())
}

func TestEnvelopeSentinelFrameLeavesShapeUntouched(t *testing.T) {
	var f1, f2 Frame
	f1[13] = 0x09
	f2[13] = 0xFF // sentinel: do not rewrite
	frames := &FrameTable{
		Format:    FormatYM3,
		Frames:    []Frame{f1, f2},
		LoopFrame: 0,
		FrameRate: 50,
	}
	r, err := NewReplayer(frames, nil, 100)
	require.NoError(t, err)
	r.Play()

	buf := make([]float32, 4)
	r.GenerateSamples(buf)
	assert.Equal(t, byte(0x09), r.Engine().ReadRegister(13))
}

func TestRepeatedSidFrameDoesNotGlitchAmplitude(t *testing.T) {
	// A SID Voice slot encoded identically on every frame must read as
	// one continuous effect, not a stop/restart click each frame: the
	// amplitude register should keep alternating through the whole
	// run rather than being forced back to a fixed starting value
	// every time loadFrame reloads the same command.
	var f Frame
	f[1] = 0x10 // code=1 -> voice 0 SID
	f[6] = 0x20 // prediv idx1
	f[14] = 2   // short period so several toggles happen per frame
	f[8] = 0x0A
	f[13] = 0xFF
	frames := make([]Frame, 40)
	for i := range frames {
		frames[i] = f
	}
	table := &FrameTable{
		Format:    FormatYM5,
		Frames:    frames,
		LoopFrame: 0,
		FrameRate: 50,
	}
	r, err := NewReplayer(table, nil, 44100)
	require.NoError(t, err)
	r.SetLooping(true)
	r.Play()

	// At this rate the SID timer toggles once per output sample, so R8
	// is read after every sample: reading it every 64 samples would
	// always land on the same phase.
	sawLow, sawHigh := false, false
	buf := make([]float32, 1)
	for step := 0; step < 80*64; step++ {
		r.GenerateSamples(buf)
		if r.Engine().ReadRegister(8) == 0 {
			sawLow = true
		} else {
			sawHigh = true
		}
	}
	assert.True(t, sawLow && sawHigh, "SID amplitude should keep alternating across repeated identical frames")
}

func TestYM4FramesNeverStartEffects(t *testing.T) {
	// The same bit pattern that encodes a SID slot on a YM5/YM6 frame
	// is plain register data on a YM4 frame: the amplitude register
	// must hold its written value instead of toggling.
	var f Frame
	f[1] = 0x10
	f[6] = 0x20
	f[8] = 0x0A
	f[13] = 0xFF
	f[14] = 2 // zero-padded on disk for YM4, forced here to prove it is ignored
	frames := make([]Frame, 10)
	for i := range frames {
		frames[i] = f
	}
	table := &FrameTable{
		Format:    FormatYM4,
		Frames:    frames,
		FrameRate: 50,
	}
	r, err := NewReplayer(table, nil, 44100)
	require.NoError(t, err)
	r.SetLooping(true)
	r.Play()

	buf := make([]float32, 64)
	for step := 0; step < 80; step++ {
		r.GenerateSamples(buf)
		assert.Equal(t, byte(0x0A), r.Engine().ReadRegister(8))
	}
}

// sawSample builds a short PCM ramp crossing the 0x80 midpoint in
// both directions.
func sawSample(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i * 255) / (n - 1))
	}
	return data
}

func TestTrackerReplayBypassesPsgEngine(t *testing.T) {
	// Line 0 starts a looping sample and every later line holds it.
	// The output comes straight from the tracker voice: it must swing
	// both ways around zero while the PSG registers stay untouched.
	lines := make([][]TrackerVoiceLine, 20)
	for i := range lines {
		sample := -1 // hold
		if i == 0 {
			sample = 0
		}
		lines[i] = []TrackerVoiceLine{
			{Sample: sample, Volume: 63, Loop: true, FreqHz: 8000},
		}
	}
	table := &FrameTable{
		Format: FormatYMT1,
		Tracker: &TrackerTable{
			VoiceCount: 1,
			FrameRate:  50,
			Samples:    []TrackerSample{{Data: sawSample(64), RepLen: 64}},
			Lines:      lines,
		},
	}
	r, err := NewReplayer(table, nil, 44100)
	require.NoError(t, err)
	r.SetLooping(true)
	r.Play()

	buf := make([]float32, 4000)
	r.GenerateSamples(buf)

	sawPositive, sawNegative := false, false
	for _, s := range buf {
		if s > 0 {
			sawPositive = true
		}
		if s < 0 {
			sawNegative = true
		}
	}
	assert.True(t, sawPositive && sawNegative, "tracker voice should traverse both signs")
	// The PSG register file must never be touched by tracker playback.
	assert.Equal(t, byte(0), r.Engine().ReadRegister(8))
}

func TestTrackerVoiceOffIsSilent(t *testing.T) {
	lines := [][]TrackerVoiceLine{
		{{Sample: 0, Volume: 63, FreqHz: 0}}, // zero frequency = off
	}
	table := &FrameTable{
		Format: FormatYMT2,
		Tracker: &TrackerTable{
			VoiceCount: 1,
			FrameRate:  50,
			Samples:    []TrackerSample{{Data: sawSample(16), RepLen: 16}},
			Lines:      lines,
		},
	}
	r, err := NewReplayer(table, nil, 44100)
	require.NoError(t, err)
	r.SetLooping(true)
	r.Play()

	buf := make([]float32, 100)
	r.GenerateSamples(buf)
	for _, s := range buf {
		assert.Equal(t, float32(0), s)
	}
}

func TestTrackerNonLoopingSampleStopsAtEnd(t *testing.T) {
	lines := make([][]TrackerVoiceLine, 4)
	for i := range lines {
		sample := -1
		if i == 0 {
			sample = 0
		}
		lines[i] = []TrackerVoiceLine{
			{Sample: sample, Volume: 63, Loop: false, FreqHz: 44100},
		}
	}
	table := &FrameTable{
		Format: FormatYMT1,
		Tracker: &TrackerTable{
			VoiceCount: 1,
			FrameRate:  50,
			Samples:    []TrackerSample{{Data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, RepLen: 4}},
			Lines:      lines,
		},
	}
	r, err := NewReplayer(table, nil, 44100)
	require.NoError(t, err)
	r.Play()

	// At step 1.0 the four-byte sample is exhausted after 4 samples;
	// everything after must be silence.
	buf := make([]float32, 32)
	r.GenerateSamples(buf)
	for _, s := range buf[8:] {
		assert.Equal(t, float32(0), s)
	}
}

func TestDecodeEffectsYM6SyncBuzzerSlot(t *testing.T) {
	var f Frame
	f[1] = 0xD0 // voice 0 selected (0x10), Sync-Buzzer effect type (0xC0)
	f[6] = 0x20 // prediv index 1
	f[14] = 10
	cmds := DecodeEffects(FormatYM6, f, 0)
	require.Len(t, cmds, 1)
	assert.Equal(t, EffectSyncBuzzerStart, cmds[0].Kind)
}

func TestDecodeEffectsYM5SidSlot(t *testing.T) {
	var f Frame
	f[1] = 0x10 // code=1 -> voice 0
	f[6] = 0x20 // prediv idx1 = 4
	f[14] = 10
	f[8] = 0x0A
	cmds := DecodeEffects(FormatYM5, f, 0)
	require.Len(t, cmds, 1)
	assert.Equal(t, EffectSidStart, cmds[0].Kind)
	assert.Equal(t, 0, cmds[0].Channel)
	assert.Equal(t, 10, cmds[0].Level)
}
