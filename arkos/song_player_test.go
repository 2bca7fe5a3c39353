package arkos

import (
	"testing"

	"github.com/retrochip/ym2149/psg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simpleSong is a one-position, one-pattern, single-PSG song playing
// note 48 on channel 0 at line 0.
func simpleSong() *Song {
	inst := Instrument{Kind: InstrumentPsg, Cells: []InstrumentCell{
		{ToneOn: true, Volume: 15, Link: LinkSoftOnly},
	}, LoopStart: 0, LoopEnd: 1}

	return &Song{
		Instruments: []Instrument{inst},
		Subsongs: []Subsong{
			{
				Positions: []Position{{Pattern: 0, Height: 2, Transpositions: []int{0, 0, 0}}},
				Patterns:  []Pattern{{TrackIndexes: []int{0, 1, 2}}},
				Tracks: map[int]Track{
					0: {Cells: map[int]Cell{
						0: {Note: 48, Instrument: 0, Volume: -1, Arpeggio: -1, PitchTable: -1},
					}},
					1: {Cells: map[int]Cell{}},
					2: {Cells: map[int]Cell{}},
				},
				SpeedTracks:  map[int]SpecialTrack{},
				EventTracks:  map[int]SpecialTrack{},
				Psgs:         []PsgConfig{{Channels: 3}},
				InitialSpeed: 3,
				EndPosition:  0,
			},
		},
	}
}

func TestSongPlayerRejectsOutOfRangeSubsong(t *testing.T) {
	_, err := NewSongPlayer(simpleSong(), 5, 44100)
	require.Error(t, err)
}

func TestSongPlayerRejectsEmptyPsgList(t *testing.T) {
	song := simpleSong()
	song.Subsongs[0].Psgs = nil
	_, err := NewSongPlayer(song, 0, 44100)
	require.Error(t, err)
}

func TestSongPlayerGeneratesNonSilentAudio(t *testing.T) {
	sp, err := NewSongPlayer(simpleSong(), 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 4000)
	sp.GenerateSamples(buf)

	nonZero := 0
	for _, s := range buf {
		if s != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0)
}

func TestSongPlayerSilentWhileStopped(t *testing.T) {
	sp, err := NewSongPlayer(simpleSong(), 0, 44100)
	require.NoError(t, err)

	buf := make([]float32, 64)
	sp.GenerateSamples(buf)
	for _, s := range buf {
		assert.Equal(t, float32(0), s)
	}
	assert.Equal(t, Stopped, sp.State())
}

func TestSongPlayerStateTransitions(t *testing.T) {
	sp, err := NewSongPlayer(simpleSong(), 0, 44100)
	require.NoError(t, err)

	assert.Equal(t, Stopped, sp.State())
	sp.Play()
	assert.True(t, sp.IsPlaying())
	sp.Pause()
	assert.Equal(t, Paused, sp.State())
	sp.Play()
	assert.Equal(t, Playing, sp.State())
	sp.Stop()
	assert.Equal(t, Stopped, sp.State())
}

func TestSongPlayerWrapsToLoopStartPastEndPosition(t *testing.T) {
	song := simpleSong()
	sub := &song.Subsongs[0]
	sub.Positions = []Position{
		{Pattern: 0, Height: 1, Transpositions: []int{0, 0, 0}},
		{Pattern: 0, Height: 1, Transpositions: []int{0, 0, 0}},
		{Pattern: 0, Height: 1, Transpositions: []int{0, 0, 0}},
	}
	sub.LoopStartPosition = 1
	sub.EndPosition = 2
	sub.InitialSpeed = 1

	sp, err := NewSongPlayer(song, 0, 50) // 1 sample per tick
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 1)
	// Ticks 1..3 play positions 0,1,2; tick 4 must be back at the
	// loop start, not past the end and not at position 0.
	for i := 0; i < 3; i++ {
		sp.GenerateSamples(buf)
	}
	assert.Equal(t, 1, sp.position)
}

func TestSongPlayerSpeedTrackOverridesSpeed(t *testing.T) {
	song := simpleSong()
	sub := &song.Subsongs[0]
	sub.Patterns[0].SpeedTrack = 0
	sub.SpeedTracks[0] = SpecialTrack{Cells: map[int]int{0: 5}}

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)
	assert.Equal(t, 5, sp.speed, "construction must fold the speed track")

	sp.Play()
	buf := make([]float32, 1)
	sp.GenerateSamples(buf)
	assert.Equal(t, 5, sp.speed)
}

func TestSongPlayerEventTrackFiresDigiSample(t *testing.T) {
	song := simpleSong()
	song.Instruments = append(song.Instruments, Instrument{
		Kind:         InstrumentDigi,
		Sample:       []byte{0x80, 0xFF, 0x00, 0x80},
		DigidrumNote: 48,
		Amplify:      1.0,
	})
	sub := &song.Subsongs[0]
	sub.DigiChannel = 2
	sub.Patterns[0].EventTrack = 0
	sub.EventTracks[0] = SpecialTrack{Cells: map[int]int{0: 1}}

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 4)
	sp.GenerateSamples(buf)
	assert.True(t, sp.voices[2].active, "event track must start the digidrum voice")
}

func TestSongPlayerNoCellLeavesChannelUntouched(t *testing.T) {
	sp, err := NewSongPlayer(simpleSong(), 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 8)
	sp.GenerateSamples(buf)

	// Channels 1 and 2 never see a cell: no base note, no sample.
	assert.Equal(t, NoNote, sp.channels[1].baseNote)
	assert.Equal(t, NoNote, sp.channels[2].baseNote)
	assert.False(t, sp.voices[1].active)
}

func TestSongPlayerDrivesSharedEnvelopeForHardLinkedInstrument(t *testing.T) {
	song := simpleSong()
	song.Instruments[0].Cells[0].Link = LinkHardOnly
	song.Instruments[0].Cells[0].EnvelopeShape = 0x0E

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 16)
	sp.GenerateSamples(buf)

	engine := sp.Engine(0)
	assert.Equal(t, byte(psg.AmplitudeEnvelopeBit), engine.ReadRegister(psg.RAmplitudeA))
	assert.Equal(t, byte(0x0E), engine.ReadRegister(psg.REnvShape))
}

func TestSongPlayerEnvelopeShapeWrittenOnlyOnChange(t *testing.T) {
	song := simpleSong()
	song.Instruments[0].Cells[0].Link = LinkHardOnly
	song.Instruments[0].Cells[0].EnvelopeShape = 0x0E

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 16)
	sp.GenerateSamples(buf)
	engine := sp.Engine(0)

	// Let the envelope advance, then run more ticks: the shape is
	// unchanged, so R13 must not be rewritten (no step reset). A marker
	// value written straight to the engine survives only if the player
	// leaves R13 alone.
	engine.WriteRegister(psg.REnvShape, 0x08)
	for i := 0; i < 2000; i++ {
		sp.GenerateSamples(buf[:1])
	}
	assert.Equal(t, byte(0x08), engine.ReadRegister(psg.REnvShape))
	assert.Equal(t, byte(0x0E), byte(sp.envState[0].lastShape))
}

func TestSongPlayerMultiPsgLayout(t *testing.T) {
	song := simpleSong()
	sub := &song.Subsongs[0]
	sub.Psgs = []PsgConfig{{Channels: 3}, {Channels: 3}}
	sub.Positions[0].Transpositions = []int{0, 0, 0, 0, 0, 0}
	sub.Patterns[0].TrackIndexes = []int{0, 1, 2, 1, 1, 3}
	sub.Tracks[3] = Track{Cells: map[int]Cell{
		0: {Note: 60, Instrument: 0, Volume: -1, Arpeggio: -1, PitchTable: -1},
	}}

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)
	assert.Equal(t, 2, sp.PsgCount())
	assert.Equal(t, 6, sp.ChannelCount())

	sp.Play()
	buf := make([]float32, 8)
	sp.GenerateSamples(buf)

	// Channel 5 (PSG 1, channel C) carries note 60.
	second := sp.Engine(1)
	period := int(second.ReadRegister(psg.RTonePeriodCLo)) | int(second.ReadRegister(psg.RTonePeriodCHi))<<8
	assert.Equal(t, sp.channels[5].periodForNote(60), period)
}

func TestSongPlayerMuteDelegatesToOwningPsg(t *testing.T) {
	song := simpleSong()
	sub := &song.Subsongs[0]
	sub.Psgs = []PsgConfig{{Channels: 3}, {Channels: 3}}
	sub.Positions[0].Transpositions = make([]int, 6)
	sub.Patterns[0].TrackIndexes = []int{0, 1, 2, 1, 1, 1}

	sp, err := NewSongPlayer(song, 0, 44100)
	require.NoError(t, err)

	sp.SetChannelMute(4, true)
	assert.True(t, sp.IsChannelMuted(4))
	assert.True(t, sp.Engine(1).IsChannelMuted(1))
	assert.False(t, sp.IsChannelMuted(1))
}

func TestSongPlayerStopRestoresInitialState(t *testing.T) {
	sp, err := NewSongPlayer(simpleSong(), 0, 44100)
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 4000)
	sp.GenerateSamples(buf)
	sp.Stop()

	assert.Equal(t, 0, sp.position)
	assert.Equal(t, 0, sp.line)
	assert.Equal(t, 0, sp.tick)
	assert.Equal(t, NoNote, sp.channels[0].baseNote)
	assert.Equal(t, float32(0), sp.Engine(0).GetSample())
}
