package arkos

// effectContext is the SongPlayer's precomputed per-line effect
// binding table: for every (position, channel, line) it records which
// arpeggio and pitch table are in force on that line, folded from the
// start of the running order so a wrap back to the loop position
// re-installs exactly the bindings natural playback would have
// established there. Volume is carried only for lines whose own cell
// sets it; folding it too would clobber running volume slides on
// every line boundary.
type effectContext struct {
	// lines[position][channel][line]
	lines [][]map[int]LineContext
}

// channelFold is one channel's running binding state while building
// the table.
type channelFold struct {
	arpeggio int
	inline   []int
	pitch    int
}

// buildEffectContext walks sub's positions in order and folds each
// channel's cell effects line by line into a LineContext per line.
func buildEffectContext(song *Song, sub *Subsong) *effectContext {
	channelCount := sub.ChannelCount()
	ec := &effectContext{lines: make([][]map[int]LineContext, len(sub.Positions))}

	folds := make([]channelFold, channelCount)
	for ch := range folds {
		folds[ch] = channelFold{arpeggio: -1, pitch: -1}
	}

	for p, pos := range sub.Positions {
		ec.lines[p] = make([]map[int]LineContext, channelCount)
		height := pos.Height
		if height < 1 {
			height = 1
		}
		var pattern *Pattern
		if pos.Pattern >= 0 && pos.Pattern < len(sub.Patterns) {
			pattern = &sub.Patterns[pos.Pattern]
		}
		for ch := 0; ch < channelCount; ch++ {
			ec.lines[p][ch] = make(map[int]LineContext, height)
			var track *Track
			if pattern != nil && ch < len(pattern.TrackIndexes) {
				if t, ok := sub.Tracks[pattern.TrackIndexes[ch]]; ok {
					track = &t
				}
			}
			fold := &folds[ch]
			for line := 0; line < height; line++ {
				volume := -1
				if track != nil {
					if cell, ok := track.Cells[line]; ok {
						if len(cell.ArpeggioInline) > 0 {
							fold.inline = cell.ArpeggioInline
							fold.arpeggio = -2
						} else if cell.Arpeggio >= 0 {
							fold.arpeggio = cell.Arpeggio
							fold.inline = nil
						}
						if cell.PitchTable >= 0 {
							fold.pitch = cell.PitchTable
						}
						// A Reset cell's volume argument is an inverted
						// nibble, not a volume base; triggerCell owns it.
						if cell.Volume >= 0 && !cell.Reset {
							volume = cell.Volume
						}
					}
				}
				ec.lines[p][ch][line] = LineContext{
					Arpeggio:       fold.arpeggio,
					ArpeggioInline: fold.inline,
					PitchTable:     fold.pitch,
					Volume:         volume,
				}
			}
		}
	}
	return ec
}

// lineContext returns the binding for (position, channel, line), or
// false when the location is out of the table's range.
func (ec *effectContext) lineContext(position, channel, line int) (LineContext, bool) {
	if position < 0 || position >= len(ec.lines) {
		return LineContext{}, false
	}
	if channel < 0 || channel >= len(ec.lines[position]) {
		return LineContext{}, false
	}
	ctx, ok := ec.lines[position][channel][line]
	return ctx, ok
}
