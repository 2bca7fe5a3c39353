package ym6

import (
	"github.com/retrochip/ym2149/effects"
	"github.com/retrochip/ym2149/errs"
	"github.com/retrochip/ym2149/psg"
)

// State is the Replayer's playback state machine.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// Replayer drives a psg.Engine and effects.Manager one YM frame at a
// time, at an integer number of output samples per frame.
type Replayer struct {
	engine  *psg.Engine
	effects *effects.Manager

	frames    *FrameTable
	drums     DigiDrumBank
	looping   bool
	state     State
	position  int
	sampleCtr int

	samplesPerFrame int
	over            bool
	sampleRate      int

	trackerVoices []trackerVoice
}

// madMaxDrumClock is the 2 MHz-derived rate a YM2 frame's R12 timer
// value divides (through a further fixed /4) to obtain a digidrum
// replay frequency. Matches the Mad-Max era files in circulation; no
// independent hardware measurement confirms it.
const madMaxDrumClock = 2000000

// trackerPrec is the fixed-point precision of a tracker voice's
// sample read position, the same resampling technique
// effects.digiDrumVoice uses for DigiDrum PCM, since a tracker
// voice's authored frequency is likewise unrelated to the output
// sample rate.
const trackerPrec = 16

// trackerVoice is one YMT1/YMT2 voice's PCM reader: a fixed-point
// read position stepped through the current sample at the line's
// frequency, scaled by the line's 0-63 volume.
type trackerVoice struct {
	running bool
	sample  []byte
	repLen  int // fixed-point rewind length for looping samples
	pos     uint64
	step    uint64
	volume  int
	loop    bool
}

// NewReplayer returns a stopped Replayer for frames, sampled at
// outputRateHz. samples_per_frame is computed by integer division of
// outputRateHz by the frame table's own rate, deliberately without
// any fractional accumulator.
func NewReplayer(frames *FrameTable, drums DigiDrumBank, outputRateHz int) (*Replayer, error) {
	if frames == nil {
		return nil, errs.New(errs.InvalidFormat, "frame table has no frames")
	}
	isTracker := frames.Format == FormatYMT1 || frames.Format == FormatYMT2
	if isTracker {
		if frames.Tracker == nil || len(frames.Tracker.Lines) == 0 {
			return nil, errs.New(errs.InvalidFormat, "tracker frame table has no lines")
		}
	} else if len(frames.Frames) == 0 {
		return nil, errs.New(errs.InvalidFormat, "frame table has no frames")
	}
	if outputRateHz <= 0 {
		return nil, errs.New(errs.InvalidParameter, "output rate must be positive, got %d", outputRateHz)
	}
	rate := frames.FrameRate
	if isTracker {
		rate = frames.Tracker.FrameRate
	}
	if rate <= 0 {
		rate = 50
	}
	engine := psg.NewEngine()
	r := &Replayer{
		engine:          engine,
		effects:         effects.NewManager(engine, outputRateHz),
		frames:          frames,
		drums:           drums,
		samplesPerFrame: outputRateHz / rate,
		sampleRate:      outputRateHz,
	}
	if isTracker {
		r.trackerVoices = make([]trackerVoice, frames.Tracker.VoiceCount)
	}
	if r.samplesPerFrame <= 0 {
		r.samplesPerFrame = 1
	}
	return r, nil
}

// Engine exposes the underlying PSG engine for mute/inspection calls.
func (r *Replayer) Engine() *psg.Engine { return r.engine }

// SetLooping(true) makes reaching the end of the frame table seek back
// to the loop frame even when the file carries no loop point. A table
// whose HasLoop is set loops whatever this flag says.
func (r *Replayer) SetLooping(loop bool) { r.looping = loop }

// Play transitions Stopped/Paused into Playing.
func (r *Replayer) Play() {
	if r.state != Playing {
		r.state = Playing
	}
}

// Pause transitions Playing into Paused; samples generated while
// paused are silence.
func (r *Replayer) Pause() {
	if r.state == Playing {
		r.state = Paused
	}
}

// Stop resets playback position to the start and enters Stopped.
func (r *Replayer) Stop() {
	r.state = Stopped
	r.position = 0
	r.sampleCtr = 0
	r.over = false
	for v := 0; v < 3; v++ {
		r.effects.SidStop(v)
		r.effects.SidSinStop(v)
		r.effects.DigiDrumStop(v)
	}
	r.effects.SyncBuzzerStop()
	for i := range r.trackerVoices {
		r.trackerVoices[i] = trackerVoice{}
	}
	r.engine.Reset()
}

// State reports the current playback state.
func (r *Replayer) State() State { return r.state }

// IsOver reports whether non-looping playback reached the end of the
// frame table.
func (r *Replayer) IsOver() bool { return r.over }

// CurrentFrame reports the frame the replayer will load (or is
// playing) next.
func (r *Replayer) CurrentFrame() int { return r.position }

// SamplesPerFrame reports the integer number of output samples per
// replay frame.
func (r *Replayer) SamplesPerFrame() int { return r.samplesPerFrame }

// LoopFrame reports the loaded table's loop point.
func (r *Replayer) LoopFrame() int { return r.frames.LoopFrame }

// FrameCount reports the number of frames in the loaded table.
func (r *Replayer) FrameCount() int { return r.frameCount() }

// Duration reports the song length in seconds at the authored replay
// rate.
func (r *Replayer) Duration() float64 {
	rate := r.frames.FrameRate
	if r.isTracker() {
		rate = r.frames.Tracker.FrameRate
	}
	if rate <= 0 {
		rate = 50
	}
	return float64(r.frameCount()) / float64(rate)
}

// Info returns the loaded table's metadata strings.
func (r *Replayer) Info() (name, author, comment string) {
	return r.frames.Name, r.frames.Author, r.frames.Comment
}

// GenerateSample produces one output sample.
func (r *Replayer) GenerateSample() float32 {
	var buf [1]float32
	r.GenerateSamples(buf[:])
	return buf[0]
}

// frameCount returns the number of replay steps in the loaded table,
// whichever of Frames/Tracker.Lines the format actually populates.
func (r *Replayer) frameCount() int {
	if r.frames.Tracker != nil {
		return len(r.frames.Tracker.Lines)
	}
	return len(r.frames.Frames)
}

func (r *Replayer) isTracker() bool {
	return r.frames.Format == FormatYMT1 || r.frames.Format == FormatYMT2
}

// GenerateSamples fills out with n samples. Tracker formats (YMT1,
// YMT2) generate samples straight from the per-voice oscillator state
// and never touch the PSG engine or effects manager; every other
// format loads a new register frame every samplesPerFrame samples and
// clocks the engine/effects normally.
func (r *Replayer) GenerateSamples(out []float32) {
	for i := range out {
		if r.state != Playing || r.over {
			out[i] = 0
			continue
		}
		if r.sampleCtr == 0 {
			r.loadFrame()
		}
		if r.isTracker() {
			out[i] = r.generateTrackerSample()
		} else {
			r.effects.Tick()
			out[i] = r.engine.Clock()
		}
		r.sampleCtr++
		if r.sampleCtr >= r.samplesPerFrame {
			r.sampleCtr = 0
			r.position++
			if r.position >= r.frameCount() {
				if r.looping || r.frames.HasLoop {
					r.position = r.frames.LoopFrame
				} else {
					r.over = true
					r.state = Stopped
				}
			}
		}
	}
}

func (r *Replayer) loadFrame() {
	if r.position < 0 || r.position >= r.frameCount() {
		r.over = true
		return
	}
	if r.isTracker() {
		r.loadTrackerLine()
		return
	}
	frame := r.frames.Frames[r.position]

	for i := 0; i <= 10; i++ {
		r.engine.WriteRegister(i, frame[i])
	}

	switch r.frames.Format {
	case FormatYM2:
		r.effects.SidStop(0)
		r.effects.SidStop(1)
		r.effects.SyncBuzzerStop()
		if frame[13] != psg.NoRetrigger {
			r.engine.WriteRegister(psg.REnvPeriodLo, frame[11])
			r.engine.WriteRegister(psg.REnvPeriodHi, 0)
			r.engine.WriteRegister(psg.REnvShape, 0x0A)
		}
		if frame[10]&0x80 != 0 && frame[12] != 0 {
			drum := int(frame[10] & 0x7F)
			if drum < len(MadMaxBank) {
				freq := (madMaxDrumClock / 4) / int(frame[12])
				_ = r.effects.DigiDrumStart(2, freq, MadMaxBank[drum].Data)
			}
		} else {
			r.effects.DigiDrumStop(2)
		}
	case FormatYM5, FormatYM6:
		r.engine.WriteRegister(psg.REnvPeriodLo, frame[11])
		r.engine.WriteRegister(psg.REnvPeriodHi, frame[12])
		if frame[13] != psg.NoRetrigger {
			r.engine.WriteRegister(psg.REnvShape, frame[13])
		}
		r.applyEffects(DecodeEffects(r.frames.Format, frame, len(r.drums)))
	default:
		// YM3/YM3b/YM4: registers 0-13 verbatim, no effect slots.
		r.engine.WriteRegister(psg.REnvPeriodLo, frame[11])
		r.engine.WriteRegister(psg.REnvPeriodHi, frame[12])
		if frame[13] != psg.NoRetrigger {
			r.engine.WriteRegister(psg.REnvShape, frame[13])
		}
		r.effects.SidStop(0)
		r.effects.SidStop(1)
		r.effects.SidStop(2)
		r.effects.SyncBuzzerStop()
	}
}

// applyEffects installs this frame's decoded commands and stops any
// effect on a voice (or the shared Sync-Buzzer) that this frame no
// longer requests. Voices whose command matches what's already
// playing are left alone: SidStart/SidSinStart/DigiDrumStart/
// SyncBuzzerStart are idempotent when parameters are unchanged, so a
// frame repeating the same effect never re-clicks it.
func (r *Replayer) applyEffects(cmds []EffectCommand) {
	var sidSeen, sinSeen, digiSeen [3]bool
	var buzzerSeen bool
	for _, c := range cmds {
		switch c.Kind {
		case EffectSidStart:
			_ = r.effects.SidStart(c.Channel, c.FreqHz, 0, c.Level)
			sidSeen[c.Channel] = true
		case EffectSinusSidStart:
			_ = r.effects.SidSinStart(c.Channel, c.FreqHz)
			sinSeen[c.Channel] = true
		case EffectDigiDrumStart:
			if c.DrumIndex < len(r.drums) {
				_ = r.effects.DigiDrumStart(c.Channel, c.FreqHz, r.drums[c.DrumIndex].Data)
				digiSeen[c.Channel] = true
			}
		case EffectSyncBuzzerStart:
			_ = r.effects.SyncBuzzerStart(c.FreqHz, c.Shape)
			buzzerSeen = true
		}
	}
	for v := 0; v < 3; v++ {
		if !sidSeen[v] {
			r.effects.SidStop(v)
		}
		if !sinSeen[v] {
			r.effects.SidSinStop(v)
		}
		if !digiSeen[v] {
			r.effects.DigiDrumStop(v)
		}
	}
	if !buzzerSeen {
		r.effects.SyncBuzzerStop()
	}
}

// loadTrackerLine latches the current frame's per-voice line into
// each PCM reader. A zero frequency silences the voice; a sample
// index restarts its reader from position zero; a "keep" line (no
// sample index) only updates frequency, volume and loop state, so a
// held drum keeps its read position across frames.
func (r *Replayer) loadTrackerLine() {
	tracker := r.frames.Tracker
	line := tracker.Lines[r.position]
	for v := range r.trackerVoices {
		tv := &r.trackerVoices[v]
		if v >= len(line) {
			tv.running = false
			continue
		}
		l := line[v]
		if l.FreqHz <= 0 {
			tv.running = false
			continue
		}
		tv.volume = l.Volume & 63
		tv.loop = l.Loop
		tv.step = ((uint64(l.FreqHz) << trackerPrec) << uint(tracker.FreqShift)) / uint64(r.sampleRate)
		if l.Sample >= 0 && l.Sample < len(tracker.Samples) {
			s := tracker.Samples[l.Sample]
			tv.running = len(s.Data) > 0
			tv.sample = s.Data
			rep := s.RepLen
			if rep <= 0 || rep > len(s.Data) {
				rep = len(s.Data)
			}
			tv.repLen = rep << trackerPrec
			tv.pos = 0
		}
	}
}

// generateTrackerSample mixes every running voice's PCM reader into
// one sample, with linear interpolation between adjacent sample
// bytes. Stored bytes are unsigned with a 0x80 midpoint.
func (r *Replayer) generateTrackerSample() float32 {
	if len(r.trackerVoices) == 0 {
		return 0
	}
	var sum float32
	for i := range r.trackerVoices {
		tv := &r.trackerVoices[i]
		if !tv.running || len(tv.sample) == 0 {
			continue
		}
		idx := int(tv.pos >> trackerPrec)
		if idx >= len(tv.sample) {
			tv.running = false
			continue
		}
		va := float32(tv.sample[idx]) - 128
		vb := va
		if idx+1 < len(tv.sample) {
			vb = float32(tv.sample[idx+1]) - 128
		}
		frac := float32(tv.pos&((1<<trackerPrec)-1)) / (1 << trackerPrec)
		value := va + (vb-va)*frac
		sum += value / 128 * float32(tv.volume) / 63

		tv.pos += tv.step
		if tv.pos >= uint64(len(tv.sample))<<trackerPrec {
			if tv.loop {
				tv.pos -= uint64(tv.repLen)
			} else {
				tv.running = false
			}
		}
	}
	return sum / float32(len(r.trackerVoices))
}
