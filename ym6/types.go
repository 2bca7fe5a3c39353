// Package ym6 implements the YM6 special-effects frame format and a
// Replayer that drives a psg.Engine and effects.Manager one frame at a
// time: YM2 through YM6, and the loop-footer variant YM3b.
package ym6

// Frame is one register snapshot: R0-R15, one byte each. Files that
// only store R0-R13 (YM2/YM3/YM3b) leave R14/R15 zero.
type Frame [16]byte

// Format identifies the YM container variant a FrameTable was decoded
// from, since frame layout and the available effect slots differ.
type Format int

const (
	FormatYM2 Format = iota
	FormatYM3
	FormatYM3b
	FormatYM4
	FormatYM5
	FormatYM6
	FormatYMT1
	FormatYMT2
)

// FrameTable is a fully decoded, ready-to-replay YM song body. For
// FormatYMT1/FormatYMT2, Frames is unused (there is no PSG register
// stream) and Tracker carries the per-voice PCM-reader lines instead.
type FrameTable struct {
	Format    Format
	Frames    []Frame
	LoopFrame int
	HasLoop   bool // true when the file itself carries a loop point
	FrameRate int  // replay rate in Hz, typically 50
	Name      string
	Author    string
	Comment   string

	Tracker *TrackerTable
}

// TrackerSample is one PCM entry of a YMT file's sample bank:
// unsigned 8-bit data plus the repeat length a looping voice rewinds
// by on overflow.
type TrackerSample struct {
	Data   []byte
	RepLen int
}

// TrackerVoiceLine is one voice's decoded 4-byte line within a single
// tracker frame: which sample to (re)start, the 0-63 volume, a loop
// flag, and the 16-bit PCM playback frequency assembled from the
// format's separate frequency-high/frequency-low bytes. A zero
// frequency silences the voice; Sample is -1 when the line holds the
// already-playing sample instead of restarting one.
type TrackerVoiceLine struct {
	Sample int // index into TrackerTable.Samples, -1 = keep current
	Volume int // 0-63
	Loop   bool
	FreqHz int // 0 = voice off this frame
}

// TrackerTable is the decoded body of a YMT1/YMT2 file: a sample
// bank plus one line per voice per frame, replayed by per-voice PCM
// readers — the PSG engine is never touched.
type TrackerTable struct {
	VoiceCount int
	FrameRate  int
	FreqShift  int // YMT2 playback-rate shift, 0 for YMT1
	Samples    []TrackerSample
	Lines      [][]TrackerVoiceLine // Lines[frame][voice]
}

// DigiDrum is one PCM sample bank entry, amplitude-register values
// 0-15 per byte (already converted from raw 8-bit sample data the way
// the loader's A_DRUM4BITS conversion does).
type DigiDrum struct {
	Data []byte
}

// DigiDrumBank is the full set of digidrum samples carried by a YM5/6
// file, indexed the way effect commands reference them.
type DigiDrumBank []DigiDrum

// MadMaxBank is a reconstructed placeholder for the eight fixed
// Mad-Max digidrum samples referenced by YM2 files' register 10 high
// bit. The real ROM sample bytes were not present in the retrieved
// source; this bank is shaped and sized the same way (eight short
// PCM-like ramps) but is NOT authoritative sample data — a real
// Mad-Max YM2 file should supply its own bank via ymfile once the
// genuine bytes are available.
var MadMaxBank = buildMadMaxBank()

func buildMadMaxBank() DigiDrumBank {
	bank := make(DigiDrumBank, 8)
	for i := range bank {
		n := 16 + i*8
		data := make([]byte, n)
		for j := range data {
			// A simple decaying ramp, distinct per slot.
			v := 15 - (j*16)/n
			if v < 0 {
				v = 0
			}
			data[j] = byte(v)
		}
		bank[i] = DigiDrum{Data: data}
	}
	return bank
}
