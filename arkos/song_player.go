package arkos

import (
	"github.com/retrochip/ym2149/errs"
	"github.com/retrochip/ym2149/psg"
)

// defaultReplayHz is the tracker's row-clock rate when the subsong
// leaves ReplayHz zero: one tick per 1/50s frame, the way the
// original Atari ST sequencer is driven.
const defaultReplayHz = 50

// State is the SongPlayer's playback state machine.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// hardwareEnvelopeState remembers the last R13 shape written to one
// PSG so the shared envelope is only retriggered when the shape
// changes or an instrument cell explicitly asks for a retrig.
type hardwareEnvelopeState struct {
	lastShape byte
}

func newEnvelopeState() hardwareEnvelopeState {
	return hardwareEnvelopeState{lastShape: psg.NoRetrigger}
}

// sampleVoice plays one channel's Digi sample: a fractional read
// index stepped through unsigned-8 PCM, with optional looping.
type sampleVoice struct {
	active       bool
	data         []byte
	pos          float64
	loopStart    int
	loopEnd      int // exclusive
	looping      bool
	step         float64
	gain         float64
	highPriority bool
}

// applyCommand latches a channel's SampleOutput for this tick. A Play
// with unchanged parameters keeps the voice running; PlayFromStart
// reseeks to the loop start; Stop kills the voice.
func (v *sampleVoice) applyCommand(out SampleOutput, outputRateHz int) {
	switch out.Cmd {
	case SampleNone:
	case SampleStop:
		v.active = false
	case SamplePlay:
		if out.PitchHz <= 0 || out.ReferenceHz <= 0 || out.SamplePlayerHz <= 0 || len(out.Sample) == 0 {
			v.active = false
			return
		}
		step := (out.SamplePlayerHz / float64(outputRateHz)) * (out.PitchHz / out.ReferenceHz)
		if step <= 0 {
			v.active = false
			return
		}
		if v.active && v.highPriority && !out.HighPriority {
			// An event-track drum keeps the voice until it finishes.
			return
		}

		loopEnd := out.LoopEnd + 1
		if out.LoopEnd <= 0 || loopEnd > len(out.Sample) {
			loopEnd = len(out.Sample)
		}
		loopStart := clamp(out.LoopStart, 0, loopEnd-1)

		wasActive := v.active
		v.data = out.Sample
		v.loopStart = loopStart
		v.loopEnd = loopEnd
		v.looping = out.Looping
		v.step = step
		v.gain = out.Amplify
		v.highPriority = out.HighPriority
		v.active = true
		if out.PlayFromStart || !wasActive {
			v.pos = float64(loopStart)
		}
	}
}

// next returns the voice's next output sample, advancing the read
// position and deactivating on sample exhaustion.
func (v *sampleVoice) next() float32 {
	if !v.active {
		return 0
	}
	idx := int(v.pos)
	if idx >= v.loopEnd || idx >= len(v.data) {
		if !v.looping {
			v.active = false
			return 0
		}
		v.pos = float64(v.loopStart)
		idx = v.loopStart
	}
	sample := (float32(v.data[idx]) - 128) / 128 * float32(v.gain)
	v.pos += v.step
	return sample
}

// SongPlayer sequences one Subsong's positions/patterns/lines/ticks,
// driving one ChannelPlayer per channel and writing their combined
// state into one psg.Engine per PSG chip every tick.
type SongPlayer struct {
	song    *Song
	subsong int

	engines  []*psg.Engine
	channels []*ChannelPlayer
	voices   []sampleVoice
	envState []hardwareEnvelopeState
	context  *effectContext
	psgOuts  []PsgOutput // per-tick scratch, allocated once

	state    State
	position int
	line     int
	tick     int
	speed    int

	outputRate     int
	samplesPerTick int
	sampleCtr      int
}

// NewSongPlayer returns a SongPlayer for song's subsongIdx subsong,
// sampled at outputRateHz.
func NewSongPlayer(song *Song, subsongIdx int, outputRateHz int) (*SongPlayer, error) {
	if song == nil || subsongIdx < 0 || subsongIdx >= len(song.Subsongs) {
		avail := 0
		if song != nil {
			avail = len(song.Subsongs)
		}
		return nil, errs.New(errs.InvalidParameter, "subsong index %d out of range (%d available)", subsongIdx, avail)
	}
	if outputRateHz <= 0 {
		return nil, errs.New(errs.InvalidParameter, "output rate must be positive, got %d", outputRateHz)
	}
	sub := song.Subsongs[subsongIdx]
	if len(sub.Psgs) == 0 {
		return nil, errs.New(errs.PsgConfiguration, "no PSGs defined in subsong %d", subsongIdx)
	}
	if len(sub.Positions) == 0 || len(sub.Patterns) == 0 {
		return nil, errs.New(errs.PsgConfiguration, "subsong %d has no positions or patterns", subsongIdx)
	}

	replayHz := sub.ReplayHz
	if replayHz <= 0 {
		replayHz = defaultReplayHz
	}

	sp := &SongPlayer{
		song:           song,
		subsong:        subsongIdx,
		outputRate:     outputRateHz,
		samplesPerTick: outputRateHz / replayHz,
	}
	if sp.samplesPerTick <= 0 {
		sp.samplesPerTick = 1
	}

	channelCount := sub.ChannelCount()
	sp.engines = make([]*psg.Engine, len(sub.Psgs))
	sp.envState = make([]hardwareEnvelopeState, len(sub.Psgs))
	for i := range sp.engines {
		sp.engines[i] = psg.NewEngine()
		sp.envState[i] = newEnvelopeState()
	}
	sp.channels = make([]*ChannelPlayer, channelCount)
	for i := range sp.channels {
		sp.channels[i] = NewChannelPlayer(song, sub.Psgs[i/3])
	}
	sp.voices = make([]sampleVoice, channelCount)
	sp.psgOuts = make([]PsgOutput, channelCount)
	sp.context = buildEffectContext(song, &sub)

	sp.speed = sp.determineSpeedForLocation(0, 0)
	return sp, nil
}

func (sp *SongPlayer) subsongData() *Subsong {
	return &sp.song.Subsongs[sp.subsong]
}

// Engine exposes PSG chip idx's engine for inspection.
func (sp *SongPlayer) Engine(idx int) *psg.Engine {
	if idx < 0 || idx >= len(sp.engines) {
		return nil
	}
	return sp.engines[idx]
}

// PsgCount returns the number of PSG chips this subsong drives.
func (sp *SongPlayer) PsgCount() int { return len(sp.engines) }

// ChannelCount returns the total channel count across all PSGs.
func (sp *SongPlayer) ChannelCount() int { return len(sp.channels) }

// IsPlaying reports whether the player is in the Playing state.
func (sp *SongPlayer) IsPlaying() bool { return sp.state == Playing }

// State reports the current playback state.
func (sp *SongPlayer) State() State { return sp.state }

// SetChannelMute mutes or unmutes one global channel index,
// delegating to the owning PSG engine.
func (sp *SongPlayer) SetChannelMute(channel int, mute bool) {
	if channel < 0 || channel >= len(sp.channels) {
		return
	}
	sp.engines[channel/3].SetChannelMute(channel%3, mute)
}

// IsChannelMuted reports whether one global channel index is muted.
func (sp *SongPlayer) IsChannelMuted(channel int) bool {
	if channel < 0 || channel >= len(sp.channels) {
		return false
	}
	return sp.engines[channel/3].IsChannelMuted(channel % 3)
}

// Play transitions Stopped/Paused into Playing.
func (sp *SongPlayer) Play() { sp.state = Playing }

// Pause transitions Playing into Paused; samples generated while
// paused are silence.
func (sp *SongPlayer) Pause() {
	if sp.state == Playing {
		sp.state = Paused
	}
}

// Stop resets the sequencer, every channel, every sample voice, and
// every PSG to the initial configuration.
func (sp *SongPlayer) Stop() {
	sp.state = Stopped
	sp.position = 0
	sp.line = 0
	sp.tick = 0
	sp.sampleCtr = 0
	sp.speed = sp.determineSpeedForLocation(0, 0)
	for i := range sp.engines {
		sp.engines[i].Reset()
		sp.envState[i] = newEnvelopeState()
	}
	for _, c := range sp.channels {
		c.StopSound()
	}
	for i := range sp.voices {
		sp.voices[i] = sampleVoice{}
	}
}

// IsOver always reports false: an Arkos subsong wraps to its loop
// start position when it runs past the end position, it never runs
// out on its own.
func (sp *SongPlayer) IsOver() bool { return false }

// GenerateSamples fills out with mixed PSG+Digi samples, advancing
// the tick/line/position sequencer every samplesPerTick samples.
func (sp *SongPlayer) GenerateSamples(out []float32) {
	for i := range out {
		if sp.state != Playing {
			out[i] = 0
			continue
		}
		if sp.sampleCtr == 0 {
			sp.runTick()
		}
		var mixed float32
		for _, e := range sp.engines {
			mixed += e.Clock()
		}
		mixed /= float32(len(sp.engines))
		for v := range sp.voices {
			mixed += sp.voices[v].next()
		}
		out[i] = mixed
		sp.sampleCtr++
		if sp.sampleCtr >= sp.samplesPerTick {
			sp.sampleCtr = 0
		}
	}
}

// GenerateSample produces one output sample.
func (sp *SongPlayer) GenerateSample() float32 {
	var buf [1]float32
	sp.GenerateSamples(buf[:])
	return buf[0]
}

// loopBounds resolves the subsong's loop window: the position the
// sequencer wraps to, and the first position past the playable end.
// The window is clamped into the position list and never empty.
func (sp *SongPlayer) loopBounds() (loopStart, pastEnd int) {
	sub := sp.subsongData()
	count := len(sub.Positions)
	if count == 0 {
		return 0, 0
	}
	loopStart = clamp(sub.LoopStartPosition, 0, count-1)
	pastEnd = sub.EndPosition + 1
	if pastEnd > count {
		pastEnd = count
	}
	if pastEnd <= loopStart {
		pastEnd = loopStart + 1
	}
	return loopStart, pastEnd
}

// runTick advances the sequencer one replay tick: speed track, cell
// dispatch into every channel, sample-command routing, event track,
// register assembly per PSG, then tick/line/position advance.
func (sp *SongPlayer) runTick() {
	sub := sp.subsongData()
	isFirstTick := sp.tick == 0

	if isFirstTick {
		if v, ok := sp.readSpecialTrack(sub, true); ok && v > 0 {
			sp.speed = clamp(v, 1, 255)
		}
	}

	stillWithinLine := sp.tick < sp.speed
	loopStart, pastEnd := sp.loopBounds()

	if isFirstTick && sp.position >= len(sub.Positions) {
		sp.position = loopStart
		sp.line = 0
	}

	for ch := range sp.channels {
		var cell *Cell
		transposition := 0
		if isFirstTick {
			cell, transposition = sp.resolveCell(sub, ch)
			if ctx, ok := sp.context.lineContext(sp.position, ch, sp.line); ok {
				sp.channels[ch].ApplyLineContext(ctx)
			}
		}
		psgOut, sampleOut := sp.channels[ch].PlayFrame(cell, transposition, isFirstTick, stillWithinLine)
		sp.psgOuts[ch] = psgOut
		sp.voices[ch].applyCommand(sampleOut, sp.outputRate)
	}

	if isFirstTick {
		if v, ok := sp.readSpecialTrack(sub, false); ok && v > 0 {
			sp.triggerEventSample(sub, v)
		}
	}

	for p := range sp.engines {
		sp.writePsg(p, sp.psgOuts)
	}

	sp.advance(loopStart, pastEnd)
}

// resolveCell locates channel ch's cell at the current position/line,
// plus the per-channel transposition. Positions or patterns pointing
// out of range yield no cell rather than an error.
func (sp *SongPlayer) resolveCell(sub *Subsong, ch int) (*Cell, int) {
	if sp.position >= len(sub.Positions) {
		return nil, 0
	}
	pos := sub.Positions[sp.position]
	transposition := 0
	if ch < len(pos.Transpositions) {
		transposition = pos.Transpositions[ch]
	}
	if pos.Pattern < 0 || pos.Pattern >= len(sub.Patterns) {
		return nil, transposition
	}
	pattern := sub.Patterns[pos.Pattern]
	if ch >= len(pattern.TrackIndexes) {
		return nil, transposition
	}
	track, ok := sub.Tracks[pattern.TrackIndexes[ch]]
	if !ok {
		return nil, transposition
	}
	if cell, ok := track.Cells[sp.line]; ok {
		return &cell, transposition
	}
	return nil, transposition
}

// readSpecialTrack reads the current line of the pattern's speed
// track (speed=true) or event track (speed=false).
func (sp *SongPlayer) readSpecialTrack(sub *Subsong, speed bool) (int, bool) {
	return sp.readSpecialTrackAt(sub, sp.position, sp.line, speed)
}

func (sp *SongPlayer) readSpecialTrackAt(sub *Subsong, position, line int, speed bool) (int, bool) {
	if position >= len(sub.Positions) {
		return 0, false
	}
	pos := sub.Positions[position]
	if pos.Pattern < 0 || pos.Pattern >= len(sub.Patterns) {
		return 0, false
	}
	pattern := sub.Patterns[pos.Pattern]
	var tracks map[int]SpecialTrack
	var idx int
	if speed {
		tracks, idx = sub.SpeedTracks, pattern.SpeedTrack
	} else {
		tracks, idx = sub.EventTracks, pattern.EventTrack
	}
	track, ok := tracks[idx]
	if !ok {
		return 0, false
	}
	if speed {
		// Speed folds: the most recent value at or before line holds.
		return track.LatestValue(line)
	}
	// Events fire exactly on their own line, never again below it.
	v, ok := track.Cells[line]
	return v, ok
}

// determineSpeedForLocation folds the speed track from the start of
// the song up to (position, line), so resuming anywhere yields the
// same running speed the song would have established naturally.
func (sp *SongPlayer) determineSpeedForLocation(position, line int) int {
	sub := sp.subsongData()
	speed := sub.InitialSpeed
	if speed < 1 {
		speed = 1
	}
	if len(sub.Positions) == 0 {
		return speed
	}
	target := clamp(position, 0, len(sub.Positions)-1)
	for p := 0; p <= target; p++ {
		height := sub.Positions[p].Height
		if height < 1 {
			height = 1
		}
		scanLine := height - 1
		if p == target {
			scanLine = clamp(line, 0, height-1)
		}
		if v, ok := sp.readSpecialTrackAt(sub, p, scanLine, true); ok && v > 0 {
			speed = clamp(v, 1, 255)
		}
	}
	return speed
}

// triggerEventSample fires instrument instIdx's digidrum on the
// subsong's dedicated sample channel.
func (sp *SongPlayer) triggerEventSample(sub *Subsong, instIdx int) {
	ch := sub.DigiChannel
	if ch < 0 || ch >= len(sp.voices) {
		return
	}
	if instIdx < 0 || instIdx >= len(sp.song.Instruments) {
		return
	}
	inst := sp.song.Instruments[instIdx]
	if inst.Kind != InstrumentDigi || len(inst.Sample) == 0 {
		return
	}
	cfg := sub.Psgs[ch/3]
	ref := cfg.ReferenceHz
	if ref <= 0 {
		ref = defaultReferenceHz
	}
	playerHz := float64(cfg.SamplePlayerHz)
	if playerHz <= 0 {
		playerHz = defaultSamplePlayerHz
	}
	pitch := calculateFrequencyForNote(ref, inst.DigidrumNote)
	if pitch <= 0 {
		return
	}
	amp := inst.Amplify
	if amp <= 0 {
		amp = 1.0
	}
	sp.voices[ch].applyCommand(SampleOutput{
		Cmd:            SamplePlay,
		Sample:         inst.Sample,
		PitchHz:        pitch,
		ReferenceHz:    ref,
		SamplePlayerHz: playerHz,
		Looping:        inst.Looping,
		LoopStart:      inst.LoopStartSamp,
		LoopEnd:        inst.LoopEndSamp,
		Amplify:        amp,
		PlayFromStart:  true,
		HighPriority:   true,
	}, sp.outputRate)
}

// writePsg assembles PSG p's registers from its three channels'
// outputs: tone periods and amplitudes per channel, hardware envelope
// period/shape when any channel runs in envelope mode, then one mixer
// byte and the most recent non-zero noise period.
func (sp *SongPlayer) writePsg(p int, outs []PsgOutput) {
	engine := sp.engines[p]
	base := p * 3

	mixer := byte(0x3F)
	noise := 0

	for chInPsg := 0; chInPsg < 3; chInPsg++ {
		ch := base + chInPsg
		if ch >= len(outs) {
			break
		}
		out := outs[ch]

		engine.WriteRegister(chInPsg*2, byte(out.SoftwarePeriod&0xFF))
		engine.WriteRegister(chInPsg*2+1, byte((out.SoftwarePeriod>>8)&0x0F))

		if out.Volume == HardwareAmplitude {
			engine.WriteRegister(psg.RAmplitudeA+chInPsg, psg.AmplitudeEnvelopeBit)
			engine.WriteRegister(psg.REnvPeriodLo, byte(out.HardwarePeriod&0xFF))
			engine.WriteRegister(psg.REnvPeriodHi, byte((out.HardwarePeriod>>8)&0xFF))
			shape := out.EnvelopeShape & 0x0F
			if out.Retrigger || sp.envState[p].lastShape != shape {
				engine.WriteRegister(psg.REnvShape, shape)
				sp.envState[p].lastShape = shape
			}
		} else {
			engine.WriteRegister(psg.RAmplitudeA+chInPsg, byte(out.Volume&0x0F))
		}

		if out.NoiseOn && out.NoisePeriod > 0 {
			mixer &^= byte(1 << uint(chInPsg+3))
			noise = out.NoisePeriod
		}
		if out.ToneOn {
			mixer &^= byte(1 << uint(chInPsg))
		}
	}

	if noise > 0 {
		engine.WriteRegister(psg.RNoisePeriod, byte(noise&0x1F))
	}
	engine.WriteRegister(psg.RMixer, mixer)
}

// advance steps the tick counter, wrapping through lines and
// positions, and re-seeking to the loop start past the end position.
func (sp *SongPlayer) advance(loopStart, pastEnd int) {
	sub := sp.subsongData()
	sp.tick++
	if sp.tick < sp.speed {
		return
	}
	sp.tick = 0
	sp.line++

	height := 64
	if sp.position < len(sub.Positions) && sub.Positions[sp.position].Height > 0 {
		height = sub.Positions[sp.position].Height
	}
	if sp.line >= height {
		sp.line = 0
		sp.position++
		if pastEnd > 0 && sp.position >= pastEnd {
			sp.position = loopStart
		}
	}
}
