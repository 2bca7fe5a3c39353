package arkos

import "math"

// Fallback rates used when a PsgConfig leaves the corresponding field
// zero: the Atari ST PSG clock and the classic ST digidrum replay rate.
const (
	defaultClockHz        = 2000000
	defaultReferenceHz    = 440.0
	defaultSamplePlayerHz = 11025
)

// pitchFixedScale is the fixed-point denominator of authored pitch
// slide and glide speeds: a raw effect value of 0x100 moves the
// period by one unit per tick.
const pitchFixedScale = 256.0

// glideState is the pitch-glide state machine: once armed by a glide
// cell, the track pitch slides toward the goal period at the authored
// speed until the running period arrives at (or crosses) the goal.
type glideState struct {
	active        bool
	increasing    bool // true when the goal period is above the initial one
	initialPeriod int
	goalPeriod    int
	finalPitch    float64 // track pitch that lands exactly on the goal
	speed         float64
}

// SampleCommand is what a Digi instrument's advance emits for this tick.
type SampleCommand int

const (
	SampleNone SampleCommand = iota
	SamplePlay
	SampleStop
)

// PsgOutput is PlayFrame's register-facing result for a PSG
// instrument: everything a SongPlayer needs to write into one
// channel's tone/mixer/amplitude (and the shared hardware envelope).
type PsgOutput struct {
	ToneOn, NoiseOn bool
	NoisePeriod     int
	Volume          int // 0-15, or HardwareAmplitude when the envelope drives amplitude
	SoftwarePeriod  int
	HardwarePeriod  int
	EnvelopeShape   byte
	UsesEnvelope    bool
	Retrigger       bool // force the shared envelope to re-latch even if unchanged
}

// SampleOutput is PlayFrame's result for a Digi instrument.
type SampleOutput struct {
	Cmd            SampleCommand
	Sample         []byte
	PitchHz        float64
	ReferenceHz    float64
	SamplePlayerHz float64
	Looping        bool
	LoopStart      int
	LoopEnd        int // inclusive
	Amplify        float64
	PlayFromStart  bool
	HighPriority   bool // an event-track drum; holds its voice until it finishes
}

// ChannelPlayer interprets one Subsong channel's cells tick by tick,
// producing the tone/noise/volume/period state a SongPlayer writes to
// the PSG, or a sample command when the active instrument is Digi.
//
// Public contract: ApplyLineContext installs a precomputed per-line
// effect binding, PlayFrame advances exactly one tick, StopSound
// resets the channel to silence.
type ChannelPlayer struct {
	song           *Song
	clockHz        float64
	referenceHz    float64
	samplePlayerHz float64

	baseNote   int // post-transposition note last triggered, or NoNote
	instrument int
	instLine   int // position within the active instrument's Cells
	instTick   int
	instSpeed  int // forced instrument speed override for this note, 0 = use instrument's own

	trackVolume     int // 0-15 running track volume
	volumeSlideDir  VolumeSlideDirection
	volumeSlideRate int

	trackPitch     float64 // running period offset driven by slides and glide
	pitchSlideDir  PitchSlideDirection
	pitchSlideRate float64

	arpeggio       int // -1 = none, -2 = inline
	arpeggioInline []int
	arpIdx         int
	arpTick        int
	arpSpeed       int

	pitchTable int
	ptIdx      int
	ptTick     int
	ptSpeed    int

	glide glideState

	softwarePeriod int
	hardwarePeriod int

	newNoteThisLine bool

	sampleCmd     SampleCommand
	sampleStopped bool
}

// NewChannelPlayer returns a ChannelPlayer bound to song, deriving
// its note scale and clocks from cfg.
func NewChannelPlayer(song *Song, cfg PsgConfig) *ChannelPlayer {
	clock := float64(cfg.ClockHz)
	if clock <= 0 {
		clock = defaultClockHz
	}
	ref := cfg.ReferenceHz
	if ref <= 0 {
		ref = defaultReferenceHz
	}
	playerHz := float64(cfg.SamplePlayerHz)
	if playerHz <= 0 {
		playerHz = defaultSamplePlayerHz
	}
	return &ChannelPlayer{
		song: song, clockHz: clock, referenceHz: ref, samplePlayerHz: playerHz,
		baseNote: NoNote, instrument: -1, arpeggio: -1, pitchTable: -1,
		trackVolume: 15,
	}
}

// calculateFrequencyForNote converts a MIDI-style note number (45 =
// referenceHz itself, 12 notes per octave) into Hz, matching the
// tracker's logarithmic octave/semitone layout.
func calculateFrequencyForNote(referenceHz float64, note int) float64 {
	if note == NoNote || note < 0 {
		return 0
	}
	const startOctave = -3
	const notesInOctave = 12
	octave := note/notesInOctave + startOctave
	noteInOctave := note%notesInOctave + 1
	return referenceHz * math.Pow(2, float64(octave)+(float64(noteInOctave)-10)/12)
}

// periodForNote converts a note number to a PSG tone period at this
// channel's PSG clock.
func (c *ChannelPlayer) periodForNote(note int) int {
	hz := calculateFrequencyForNote(c.referenceHz, note)
	if hz <= 0 {
		return 0
	}
	return int(math.Round(c.clockHz / (16 * hz)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapNote(n int) int {
	for n < 0 {
		n += 128
	}
	return n % 128
}

// StopSound resets the channel to full silence: no note, no active
// instrument/arpeggio/pitch table, no pending sample command.
func (c *ChannelPlayer) StopSound() {
	song, clock, ref, playerHz := c.song, c.clockHz, c.referenceHz, c.samplePlayerHz
	*c = ChannelPlayer{
		song: song, clockHz: clock, referenceHz: ref, samplePlayerHz: playerHz,
		baseNote: NoNote, instrument: -1, arpeggio: -1, pitchTable: -1,
		trackVolume: 15,
	}
}

// LineContext is one line's precomputed effect binding: which
// arpeggio (table or inline) and pitch table are in force, and an
// optional volume base. A SongPlayer resolves these ahead of time so
// every first tick can re-assert them without re-reading cells.
type LineContext struct {
	Arpeggio       int   // -1 = none, else Song.Arpeggios index
	ArpeggioInline []int // non-nil overrides the table selection
	PitchTable     int   // -1 = none
	Volume         int   // -1 = unchanged
}

// sameInline reports whether two inline arpeggio bindings are the
// same authored sequence (identity by backing array, the way a cell's
// slice is shared into the context table).
func sameInline(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// ApplyLineContext installs a precomputed arpeggio/pitch-table/volume
// binding without re-reading a cell, resetting each reader's step
// counter only when the selection actually changed from what was
// already active.
func (c *ChannelPlayer) ApplyLineContext(ctx LineContext) {
	if ctx.ArpeggioInline != nil {
		if c.arpeggio != -2 || !sameInline(c.arpeggioInline, ctx.ArpeggioInline) {
			c.arpeggio = -2
			c.arpeggioInline = ctx.ArpeggioInline
			c.arpIdx = 0
			c.arpTick = 0
		}
	} else if ctx.Arpeggio >= -1 && ctx.Arpeggio != c.arpeggio {
		c.arpeggio = ctx.Arpeggio
		c.arpeggioInline = nil
		c.arpIdx = 0
		c.arpTick = 0
	}
	if ctx.PitchTable >= -1 && ctx.PitchTable != c.pitchTable {
		c.pitchTable = ctx.PitchTable
		c.ptIdx = 0
		c.ptTick = 0
	}
	if ctx.Volume >= 0 {
		c.trackVolume = clamp(ctx.Volume, 0, 15)
	}
}

func (c *ChannelPlayer) activeInstrument() *Instrument {
	if c.song == nil || c.instrument < 0 || c.instrument >= len(c.song.Instruments) {
		return nil
	}
	return &c.song.Instruments[c.instrument]
}

// triggerCell consumes a line's cell on its first tick: note/glide
// setup, instrument restart, then every authored effect in order.
func (c *ChannelPlayer) triggerCell(cell Cell, transposition int) {
	c.newNoteThisLine = false

	if cell.Reset {
		c.volumeSlideDir = VolumeSlideNone
		c.pitchSlideDir = PitchSlideNone
		c.trackPitch = 0
		c.glide = glideState{}
		c.trackVolume = clamp(15-(cell.Volume&0x0F), 0, 15)
	}

	if cell.Note != NoNote {
		note := wrapNote(cell.Note + transposition)
		switch {
		case cell.Glide:
			// Glide: the note is a goal, not a retrigger. The base note
			// and instrument keep playing while the track pitch slides.
			c.pitchSlideDir = PitchSlideNone
			c.setupGlide(note, cell.GlideSpeed)
		default:
			// EffectLegato is parsed but deliberately inert; a legato
			// note triggers like any other until its semantics are
			// confirmed.
			c.volumeSlideDir = VolumeSlideNone
			c.pitchSlideDir = PitchSlideNone
			c.trackPitch = 0
			c.glide = glideState{}
			if cell.Instrument >= 0 {
				c.instrument = cell.Instrument
				c.instLine = 0
				c.instTick = 0
				c.instSpeed = 0
			}
			c.baseNote = note
			c.newNoteThisLine = true
			if inst := c.activeInstrument(); inst != nil && inst.Kind == InstrumentDigi {
				c.sampleCmd = SamplePlay
				c.sampleStopped = false
			}
		}
	} else if cell.Instrument >= 0 {
		c.instrument = cell.Instrument
		c.instLine = 0
		c.instTick = 0
		c.instSpeed = 0
	}

	if cell.Volume >= 0 && !cell.Reset {
		c.trackVolume = clamp(cell.Volume, 0, 15)
	}
	if cell.Arpeggio >= 0 {
		c.arpeggio = cell.Arpeggio
		c.arpIdx = 0
		c.arpTick = 0
		c.arpeggioInline = nil
	}
	if len(cell.ArpeggioInline) > 0 {
		c.arpeggio = -2
		c.arpeggioInline = cell.ArpeggioInline
		c.arpIdx = 0
		c.arpTick = 0
	}
	if cell.PitchTable >= 0 {
		c.pitchTable = cell.PitchTable
		c.ptIdx = 0
		c.ptTick = 0
	}
	if cell.VolumeSlideDir != VolumeSlideNone {
		c.volumeSlideDir = cell.VolumeSlideDir
		c.volumeSlideRate = cell.VolumeSlideRate
	}
	if cell.PitchSlideDir != PitchSlideNone {
		c.pitchSlideDir = cell.PitchSlideDir
		c.pitchSlideRate = float64(cell.PitchSlideRate) / pitchFixedScale
		if cell.PitchSlideFast {
			c.pitchSlideRate *= 16
		}
		c.glide = glideState{}
	}
	if cell.ForceInstrumentSpeed > 0 {
		c.instSpeed = cell.ForceInstrumentSpeed
	}
	if cell.ForceArpeggioSpeed > 0 {
		c.arpSpeed = cell.ForceArpeggioSpeed
	}
	if cell.ForcePitchTableSpeed > 0 {
		c.ptSpeed = cell.ForcePitchTableSpeed
	}
}

// setupGlide arms the glide state machine toward targetNote. The
// base note itself is untouched: the running period is always
// period(baseNote) + trackPitch, and finishing the glide snaps
// trackPitch to the offset that lands exactly on the goal period.
func (c *ChannelPlayer) setupGlide(targetNote, speed int) {
	goal := c.periodForNote(targetNote)
	initial := c.periodForNote(c.baseNote)
	if c.baseNote == NoNote || goal <= 0 || initial <= 0 {
		return
	}

	if speed <= 0 {
		c.trackPitch = float64(goal - initial)
		c.glide = glideState{}
		return
	}

	c.glide = glideState{
		active:        true,
		increasing:    goal > initial,
		initialPeriod: initial,
		goalPeriod:    goal,
		finalPitch:    float64(goal - initial),
		speed:         float64(speed) / pitchFixedScale,
	}
}

// stepGlide advances the track pitch toward the glide goal, finishing
// (and snapping to the precomputed final pitch) when the running
// period reaches or crosses it.
func (c *ChannelPlayer) stepGlide() {
	g := &c.glide
	if g.increasing {
		c.trackPitch += g.speed
	} else {
		c.trackPitch -= g.speed
	}

	current := g.initialPeriod + int(c.trackPitch)
	switch {
	case current == g.goalPeriod:
		c.finishGlide()
	case g.goalPeriod > current && !g.increasing:
		c.finishGlide()
	case g.goalPeriod < current && g.increasing:
		c.finishGlide()
	}
}

func (c *ChannelPlayer) finishGlide() {
	c.trackPitch = c.glide.finalPitch
	c.pitchSlideDir = PitchSlideNone
	c.glide = glideState{}
}

func (c *ChannelPlayer) stepVolumeSlide() {
	switch c.volumeSlideDir {
	case VolumeSlideIn:
		c.trackVolume = clamp(c.trackVolume+c.volumeSlideRate, 0, 15)
		if c.trackVolume >= 15 {
			c.volumeSlideDir = VolumeSlideNone
		}
	case VolumeSlideOut:
		c.trackVolume = clamp(c.trackVolume-c.volumeSlideRate, 0, 15)
		if c.trackVolume <= 0 {
			c.volumeSlideDir = VolumeSlideNone
		}
	}
}

// stepPitchSlide accumulates the running pitch slide. PitchUp lowers
// the period (higher pitch), PitchDown raises it.
func (c *ChannelPlayer) stepPitchSlide() {
	switch c.pitchSlideDir {
	case PitchSlideUp:
		c.trackPitch -= c.pitchSlideRate
	case PitchSlideDown:
		c.trackPitch += c.pitchSlideRate
	}
}

// PlayFrame advances exactly one replay tick. On the first tick of a
// line, cell (if non-nil) is consumed; on later ticks only the
// trailing arpeggio/pitch/volume/instrument-envelope effects advance.
func (c *ChannelPlayer) PlayFrame(cell *Cell, transposition int, isFirstTick, stillWithinLine bool) (PsgOutput, SampleOutput) {
	if isFirstTick && cell != nil {
		c.triggerCell(*cell, transposition)
	} else {
		c.newNoteThisLine = false
	}

	arpOffset := c.stepArpeggio()
	trackNote := c.baseNote
	if trackNote != NoNote {
		trackNote = wrapNote(trackNote + arpOffset)
	}

	if stillWithinLine {
		if c.glide.active {
			c.stepGlide()
		} else if !c.newNoteThisLine {
			c.stepPitchSlide()
		}
		c.stepVolumeSlide()
	}

	ptValue := c.stepPitchTable()

	inst := c.activeInstrument()
	if inst != nil && inst.Kind == InstrumentDigi {
		return PsgOutput{}, c.advanceSample(inst, trackNote)
	}
	return c.advancePsg(inst, trackNote, ptValue), SampleOutput{Cmd: SampleNone}
}

func (c *ChannelPlayer) stepArpeggio() int {
	if c.arpeggio == -2 {
		if len(c.arpeggioInline) == 0 {
			return 0
		}
		speed := effectiveSpeed(c.arpSpeed)
		off := c.arpeggioInline[c.arpIdx%len(c.arpeggioInline)]
		c.arpTick++
		if c.arpTick >= speed {
			c.arpTick = 0
			c.arpIdx = (c.arpIdx + 1) % len(c.arpeggioInline)
		}
		return off
	}
	if !c.arpeggioValid() {
		return 0
	}
	arp := c.song.Arpeggios[c.arpeggio]
	if len(arp.Steps) == 0 {
		return 0
	}
	speed := effectiveSpeed(c.arpSpeed)
	if speed == 1 {
		speed = effectiveSpeed(arp.Speed)
	}
	off := arp.Steps[c.arpIdx]
	c.arpTick++
	if c.arpTick >= speed {
		c.arpTick = 0
		c.arpIdx++
		if c.arpIdx >= len(arp.Steps) {
			c.arpIdx = clamp(arp.LoopStart, 0, len(arp.Steps)-1)
		}
	}
	return off
}

func (c *ChannelPlayer) stepPitchTable() int {
	if !c.pitchTableValid() {
		return 0
	}
	pt := c.song.PitchTables[c.pitchTable]
	if len(pt.Steps) == 0 {
		return 0
	}
	speed := effectiveSpeed(c.ptSpeed)
	if speed == 1 {
		speed = effectiveSpeed(pt.Speed)
	}
	v := pt.Steps[c.ptIdx]
	c.ptTick++
	if c.ptTick >= speed {
		c.ptTick = 0
		c.ptIdx++
		if c.ptIdx >= len(pt.Steps) {
			c.ptIdx = clamp(pt.LoopStart, 0, len(pt.Steps)-1)
		}
	}
	return v
}

func (c *ChannelPlayer) arpeggioValid() bool {
	return c.song != nil && c.arpeggio >= 0 && c.arpeggio < len(c.song.Arpeggios)
}

func (c *ChannelPlayer) pitchTableValid() bool {
	return c.song != nil && c.pitchTable >= 0 && c.pitchTable < len(c.song.PitchTables)
}

// softwarePeriodFor computes the cell's software period: the track
// note plus the cell's primary arpeggio offsets, with the running
// track pitch added and the pitch-table value and cell pitch
// subtracted, clamped to the 12-bit register width. A non-zero forced
// primary period bypasses the note entirely.
func (c *ChannelPlayer) softwarePeriodFor(cell InstrumentCell, trackNote, ptValue int) int {
	if cell.PrimaryPeriod != 0 {
		return clamp(cell.PrimaryPeriod, 0, 0xFFF)
	}
	note := wrapNote(trackNote + cell.PrimaryArpeggio)
	period := c.periodForNote(note)
	period += int(c.trackPitch)
	period -= ptValue
	period -= cell.PrimaryPitch
	return clamp(period, 0, 0xFFF)
}

// hardwarePeriodFor is softwarePeriodFor's 16-bit envelope-period
// counterpart, using the cell's secondary offsets.
func (c *ChannelPlayer) hardwarePeriodFor(cell InstrumentCell, trackNote, ptValue int) int {
	if cell.SecondaryPeriod != 0 {
		return clamp(cell.SecondaryPeriod, 0, 0xFFFF)
	}
	note := wrapNote(trackNote + cell.SecondaryArpeggio)
	period := c.periodForNote(note)
	period += int(c.trackPitch)
	period -= ptValue
	period -= cell.SecondaryPitch
	return clamp(period, 0, 0xFFFF)
}

// applyLinkMode resolves the cell's link mode into this tick's
// software and hardware periods, updating the channel's running
// period state.
func (c *ChannelPlayer) applyLinkMode(cell InstrumentCell, trackNote, ptValue int) (useEnvelope bool) {
	switch cell.Link {
	case LinkNone:
		// Keep previous periods to avoid register glitches.
		return false
	case LinkSoftOnly:
		c.softwarePeriod = c.softwarePeriodFor(cell, trackNote, ptValue)
		return false
	case LinkHardOnly:
		c.hardwarePeriod = c.hardwarePeriodFor(cell, trackNote, ptValue)
		return true
	case LinkSoftAndHard:
		c.softwarePeriod = c.softwarePeriodFor(cell, trackNote, ptValue)
		c.hardwarePeriod = c.hardwarePeriodFor(cell, trackNote, ptValue)
		return true
	case LinkSoftToHard:
		sw := c.softwarePeriodFor(cell, trackNote, ptValue)
		hw := sw >> uint(cell.Ratio)
		if cell.Ratio > 0 && (sw>>uint(cell.Ratio-1))&1 != 0 {
			hw++
		}
		c.softwarePeriod = sw
		c.hardwarePeriod = clamp(hw-cell.SecondaryPitch, 0, 0xFFFF)
		return true
	case LinkHardToSoft:
		hw := c.hardwarePeriodFor(cell, trackNote, ptValue)
		sw := hw << uint(cell.Ratio)
		c.hardwarePeriod = hw
		c.softwarePeriod = clamp(sw-cell.PrimaryPitch, 0, 0xFFF)
		return true
	default:
		return false
	}
}

func (c *ChannelPlayer) advancePsg(inst *Instrument, trackNote, ptValue int) PsgOutput {
	if inst == nil || len(inst.Cells) == 0 || trackNote == NoNote {
		return PsgOutput{}
	}
	looping := inst.LoopEnd > inst.LoopStart
	end := len(inst.Cells)
	if looping && inst.LoopEnd < end {
		end = inst.LoopEnd
	}
	if c.instLine >= end {
		if looping {
			c.instLine = clamp(inst.LoopStart, 0, end-1)
		} else {
			c.instLine = end - 1
		}
	}
	cell := inst.Cells[c.instLine]

	retrig := c.newNoteThisLine && c.instTick == 0 && cell.Retrig

	useEnv := c.applyLinkMode(cell, trackNote, ptValue)

	volume := cell.Volume
	if useEnv {
		volume = HardwareAmplitude
	} else {
		volume = clamp(volume-(15-c.trackVolume), 0, 15)
	}

	speed := effectiveSpeed(c.instSpeed)
	if speed == 1 {
		speed = effectiveSpeed(inst.Speed)
	}
	c.instTick++
	if c.instTick >= speed {
		c.instTick = 0
		c.instLine++
		if c.instLine >= end {
			if looping {
				c.instLine = clamp(inst.LoopStart, 0, end-1)
			} else {
				c.instLine = end - 1
				c.instrument = -1
			}
		}
	}

	return PsgOutput{
		ToneOn:         cell.ToneOn,
		NoiseOn:        cell.NoiseOn,
		NoisePeriod:    cell.NoisePeriod,
		Volume:         volume,
		SoftwarePeriod: c.softwarePeriod,
		HardwarePeriod: c.hardwarePeriod,
		EnvelopeShape:  cell.EnvelopeShape,
		UsesEnvelope:   useEnv,
		Retrigger:      retrig,
	}
}

// advanceSample computes this tick's sample command for a Digi
// instrument: pitch from the note→Hz function, loop bounds,
// amplification, the PSG sample-player rate, and a play-from-start
// flag raised exactly on the tick a new note retriggered the
// instrument.
func (c *ChannelPlayer) advanceSample(inst *Instrument, trackNote int) SampleOutput {
	playFromStart := c.sampleCmd == SamplePlay
	c.sampleCmd = SampleNone

	pitch := calculateFrequencyForNote(c.referenceHz, trackNote)
	if trackNote == NoNote || pitch <= 0 || len(inst.Sample) == 0 {
		if !c.sampleStopped {
			c.sampleStopped = true
			return SampleOutput{Cmd: SampleStop}
		}
		return SampleOutput{Cmd: SampleNone}
	}

	c.sampleStopped = false
	amp := inst.Amplify
	if amp <= 0 {
		amp = 1.0
	}
	return SampleOutput{
		Cmd:            SamplePlay,
		Sample:         inst.Sample,
		PitchHz:        pitch,
		ReferenceHz:    c.referenceHz,
		SamplePlayerHz: c.samplePlayerHz,
		Looping:        inst.Looping,
		LoopStart:      inst.LoopStartSamp,
		LoopEnd:        inst.LoopEndSamp,
		Amplify:        amp,
		PlayFromStart:  playFromStart,
	}
}
