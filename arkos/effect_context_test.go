package arkos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contextSong is a two-position song (both positions play pattern 0)
// whose channel 0 selects arpeggio 1 and pitch table 1 at line 0, with
// no cell on line 1.
func contextSong() *Song {
	song := simpleSong()
	song.Arpeggios = []Arpeggio{
		{},
		{Steps: []int{0, 12}, LoopStart: 0, Speed: 1},
	}
	song.PitchTables = []PitchTable{
		{},
		{Steps: []int{0, 4}, LoopStart: 0, Speed: 1},
	}
	sub := &song.Subsongs[0]
	cell := sub.Tracks[0].Cells[0]
	cell.Arpeggio = 1
	cell.PitchTable = 1
	sub.Tracks[0].Cells[0] = cell
	sub.Positions = append(sub.Positions, Position{Pattern: 0, Height: 2, Transpositions: []int{0, 0, 0}})
	sub.EndPosition = 1
	return song
}

func TestBuildEffectContextFoldsBindingsAcrossLinesAndPositions(t *testing.T) {
	song := contextSong()
	sub := &song.Subsongs[0]
	ec := buildEffectContext(song, sub)

	ctx, ok := ec.lineContext(0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 1, ctx.Arpeggio)
	assert.Equal(t, 1, ctx.PitchTable)

	// Line 1 has no cell: the line-0 bindings are still in force.
	ctx, ok = ec.lineContext(0, 0, 1)
	require.True(t, ok)
	assert.Equal(t, 1, ctx.Arpeggio)
	assert.Equal(t, 1, ctx.PitchTable)
	assert.Equal(t, -1, ctx.Volume, "volume only carries on lines whose cell sets it")

	// Position 1 replays pattern 0, so its line 0 carries the same
	// selection.
	ctx, ok = ec.lineContext(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 1, ctx.Arpeggio)

	// Channel 1 never selects anything.
	ctx, ok = ec.lineContext(0, 1, 0)
	require.True(t, ok)
	assert.Equal(t, -1, ctx.Arpeggio)
	assert.Equal(t, -1, ctx.PitchTable)
}

func TestBuildEffectContextCarriesInlineArpeggio(t *testing.T) {
	song := simpleSong()
	sub := &song.Subsongs[0]
	inline := []int{0, 3, 7}
	cell := sub.Tracks[0].Cells[0]
	cell.ArpeggioInline = inline
	sub.Tracks[0].Cells[0] = cell

	ec := buildEffectContext(song, sub)
	ctx, ok := ec.lineContext(0, 0, 1)
	require.True(t, ok)
	assert.True(t, sameInline(inline, ctx.ArpeggioInline))
}

func TestApplyLineContextResetsReaderOnlyOnIdentityChange(t *testing.T) {
	song := contextSong()
	cp := defaultChannel(song)

	cp.ApplyLineContext(LineContext{Arpeggio: 1, PitchTable: 1, Volume: -1})
	assert.Equal(t, 1, cp.arpeggio)
	assert.Equal(t, 0, cp.arpIdx)

	// Advance the reader, then re-assert the same binding: the step
	// position must be preserved.
	cp.stepArpeggio()
	require.Equal(t, 1, cp.arpIdx)
	cp.ApplyLineContext(LineContext{Arpeggio: 1, PitchTable: 1, Volume: -1})
	assert.Equal(t, 1, cp.arpIdx)

	// A different selection resets it.
	cp.ApplyLineContext(LineContext{Arpeggio: 0, PitchTable: 1, Volume: -1})
	assert.Equal(t, 0, cp.arpeggio)
	assert.Equal(t, 0, cp.arpIdx)
}

func TestApplyLineContextInlineIdentity(t *testing.T) {
	cp := defaultChannel(nil)
	inline := []int{0, 4, 7}

	cp.ApplyLineContext(LineContext{Arpeggio: -1, ArpeggioInline: inline, PitchTable: -1, Volume: -1})
	assert.Equal(t, -2, cp.arpeggio)

	cp.stepArpeggio()
	require.Equal(t, 1, cp.arpIdx)

	// Same backing sequence: no reset.
	cp.ApplyLineContext(LineContext{Arpeggio: -1, ArpeggioInline: inline, PitchTable: -1, Volume: -1})
	assert.Equal(t, 1, cp.arpIdx)

	// A different sequence resets.
	cp.ApplyLineContext(LineContext{Arpeggio: -1, ArpeggioInline: []int{0, 5}, PitchTable: -1, Volume: -1})
	assert.Equal(t, 0, cp.arpIdx)
}

func TestSongPlayerAppliesLineContextEachLine(t *testing.T) {
	song := contextSong()
	song.Subsongs[0].InitialSpeed = 1
	sp, err := NewSongPlayer(song, 0, 50) // 1 sample per tick, 1 tick per line
	require.NoError(t, err)
	sp.Play()

	buf := make([]float32, 1)
	sp.GenerateSamples(buf) // position 0 line 0: cell selects arpeggio 1
	assert.Equal(t, 1, sp.channels[0].arpeggio)

	sp.GenerateSamples(buf) // line 1 has no cell; context re-asserts
	assert.Equal(t, 1, sp.channels[0].arpeggio)
	assert.Equal(t, 1, sp.channels[0].pitchTable)
}
