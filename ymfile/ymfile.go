// Package ymfile is the collaborator that turns a YM2-YM6, YM3b, or
// YMT1/YMT2 file on disk into a ym6.FrameTable and ym6.DigiDrumBank,
// depacking LZH compression and de-interleaving register streams the
// way the format requires. It sits outside the bit-exact core, the
// same way a file loader sits outside a DSP core in any of this
// pack's audio tools.
package ymfile

import (
	"bytes"
	"os"
	"strings"

	"github.com/retrochip/ym2149/errs"
	"github.com/retrochip/ym2149/lzh"
	"github.com/retrochip/ym2149/ym6"
)

// magic file IDs, read big-endian the way every YM header stores
// them.
const (
	magicYM2  = uint32(0x594D3221) // 'YM2!'
	magicYM3  = uint32(0x594D3321) // 'YM3!'
	magicYM3b = uint32(0x594D3362) // 'YM3b'
	magicYM4  = uint32(0x594D3421) // 'YM4!'
	magicYM5  = uint32(0x594D3521) // 'YM5!'
	magicYM6  = uint32(0x594D3621) // 'YM6!'
	magicYMT1 = uint32(0x594D5431) // 'YMT1'
	magicYMT2 = uint32(0x594D5432) // 'YMT2'
)

// Stream attribute bits carried in YM4/YM5/YM6/YMT headers.
const (
	attrInterleaved = 1 << 0
	attrDrum4Bits   = 1 << 2
	attrLoopMode    = 1 << 4
)

// maxFrames caps the header-declared frame count: anything larger is
// a corrupt or hostile file, not a real song.
const maxFrames = 100000

// Load reads path, depacks it if LZH-compressed, and decodes it into
// a frame table and digidrum bank.
func Load(path string) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IO, err, "reading %s", path)
	}
	return LoadBytes(data)
}

// LoadBytes decodes an in-memory YM file.
func LoadBytes(data []byte) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	data, err := depack(data)
	if err != nil {
		return nil, nil, err
	}
	return decode(data)
}

func depack(data []byte) ([]byte, error) {
	if len(data) < 22 {
		return data, nil
	}
	if lzh.IsLZHCompressed(data) {
		out, err := lzh.Decompress(data)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidFormat, err, "LZH decompression failed")
		}
		return out, nil
	}
	return data, nil
}

func readBE32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func readBE16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func readNtString(buf *bytes.Reader) string {
	var out []byte
	for {
		b, err := buf.ReadByte()
		if err != nil || b == 0 {
			break
		}
		out = append(out, b)
	}
	return string(out)
}

func decode(data []byte) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	if len(data) < 4 {
		return nil, nil, errs.New(errs.InvalidFormat, "file too small")
	}
	id := readBE32(data[:4])

	switch id {
	case magicYM2:
		return decodeInterleaved(data, ym6.FormatYM2, 0)
	case magicYM3:
		return decodeInterleaved(data, ym6.FormatYM3, 0)
	case magicYM3b:
		if len(data) < 8+14 {
			return nil, nil, errs.New(errs.InvalidFormat, "YM3b file too small")
		}
		loop := int(readBE32(data[len(data)-4:]))
		return decodeInterleaved(data, ym6.FormatYM3b, loop)
	case magicYM4:
		return decodeYM4(data)
	case magicYM5, magicYM6:
		return decodeYM56(data, id == magicYM6)
	case magicYMT1, magicYMT2:
		return decodeTracker(data, id == magicYMT2)
	default:
		return nil, nil, errs.New(errs.InvalidFormat, "unrecognised YM magic 0x%08X", id)
	}
}

// deinterleaveFrames turns a register-major byte stream (all R0
// columns, then all R1, ...) into per-frame rows.
func deinterleaveFrames(body []byte, nbFrame, streamInc int) []ym6.Frame {
	frames := make([]ym6.Frame, nbFrame)
	for reg := 0; reg < streamInc; reg++ {
		col := body[reg*nbFrame : (reg+1)*nbFrame]
		for f := 0; f < nbFrame; f++ {
			frames[f][reg] = col[f]
		}
	}
	return frames
}

// frameMajorFrames copies a frame-major byte stream into Frame rows.
func frameMajorFrames(body []byte, nbFrame, streamInc int) []ym6.Frame {
	frames := make([]ym6.Frame, nbFrame)
	for f := 0; f < nbFrame; f++ {
		copy(frames[f][:streamInc], body[f*streamInc:(f+1)*streamInc])
	}
	return frames
}

// decodeInterleaved handles the headerless YM2/YM3/YM3b layouts: a
// 4-byte magic, then 14 register columns, plus YM3b's 4-byte
// big-endian loop footer.
func decodeInterleaved(data []byte, format ym6.Format, loopFrame int) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	const streamInc = 14
	body := data[4:]
	if format == ym6.FormatYM3b {
		body = data[4 : len(data)-4]
	}
	nbFrame := len(body) / streamInc
	if nbFrame == 0 {
		return nil, nil, errs.New(errs.InvalidFormat, "no frames in YM stream")
	}
	if format == ym6.FormatYM3b && loopFrame >= nbFrame {
		return nil, nil, errs.New(errs.InvalidFormat, "YM3b loop frame %d beyond frame count %d", loopFrame, nbFrame)
	}

	table := &ym6.FrameTable{
		Format:    format,
		Frames:    deinterleaveFrames(body, nbFrame, streamInc),
		LoopFrame: loopFrame,
		HasLoop:   format == ym6.FormatYM3b,
		FrameRate: 50,
		Name:      "Unknown",
		Author:    "Unknown",
	}
	var drums ym6.DigiDrumBank
	if format == ym6.FormatYM2 {
		// Mad-Max songs reference a fixed built-in drum bank.
		drums = ym6.MadMaxBank
		table.Comment = "Converted by Leonard."
	}
	return table, drums, nil
}

// convertDrum reduces raw drum bytes to the 4-bit amplitude levels
// the effects manager writes into R8-R10: 4-bit banks keep their low
// nibble, 8-bit PCM drops to its top nibble.
func convertDrum(raw []byte, fourBits bool) []byte {
	out := make([]byte, len(raw))
	for i, b := range raw {
		if fourBits {
			out[i] = b & 0x0F
		} else {
			out[i] = b >> 4
		}
	}
	return out
}

// readDrums reads count size-prefixed digidrum samples; each size is
// a big-endian u32 (YM4/YM5/YM6).
func readDrums(r *bytes.Reader, count int, fourBits bool) (ym6.DigiDrumBank, error) {
	if count == 0 {
		return nil, nil
	}
	drums := make(ym6.DigiDrumBank, count)
	for i := 0; i < count; i++ {
		var szb [4]byte
		if n, _ := r.Read(szb[:]); n < 4 {
			return nil, errs.New(errs.InvalidFormat, "truncated digidrum section")
		}
		size := int(readBE32(szb[:]))
		if size == 0 {
			continue
		}
		if size > r.Len() {
			return nil, errs.New(errs.InvalidFormat, "truncated digidrum sample %d", i)
		}
		raw := make([]byte, size)
		r.Read(raw)
		drums[i] = ym6.DigiDrum{Data: convertDrum(raw, fourBits)}
	}
	return drums, nil
}

// decodeYM4 parses the fixed 26-byte YM4 header, its digidrum
// section and metadata strings, and the 14-register frame stream.
func decodeYM4(data []byte) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	if len(data) < 26 || !strings.HasPrefix(string(data[4:12]), "LeOnArD!") {
		return nil, nil, errs.New(errs.InvalidFormat, "missing LeOnArD! signature")
	}
	nbFrame := int(readBE32(data[12:16]))
	attrib := int(readBE32(data[16:20]))
	nbDrum := int(readBE16(data[20:22]))
	loopFrame := int(readBE32(data[22:26]))
	if nbFrame == 0 || nbFrame > maxFrames {
		return nil, nil, errs.New(errs.InvalidFormat, "YM4 frame count %d out of range", nbFrame)
	}

	r := bytes.NewReader(data[26:])
	drums, err := readDrums(r, nbDrum, attrib&attrDrum4Bits != 0)
	if err != nil {
		return nil, nil, err
	}

	name := readNtString(r)
	author := readNtString(r)
	comment := readNtString(r)

	const streamInc = 14
	if r.Len() < nbFrame*streamInc {
		return nil, nil, errs.New(errs.InvalidFormat, "truncated YM4 register stream")
	}
	body := make([]byte, nbFrame*streamInc)
	r.Read(body)

	var frames []ym6.Frame
	if attrib&attrInterleaved != 0 {
		frames = deinterleaveFrames(body, nbFrame, streamInc)
	} else {
		frames = frameMajorFrames(body, nbFrame, streamInc)
	}

	return &ym6.FrameTable{
		Format:    ym6.FormatYM4,
		Frames:    frames,
		LoopFrame: loopFrame,
		HasLoop:   loopFrame > 0 || attrib&attrLoopMode != 0,
		FrameRate: 50,
		Name:      name,
		Author:    author,
		Comment:   comment,
	}, drums, nil
}

func decodeYM56(data []byte, isV6 bool) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	if len(data) < 34 || !strings.HasPrefix(string(data[4:12]), "LeOnArD!") {
		return nil, nil, errs.New(errs.InvalidFormat, "missing LeOnArD! signature")
	}

	r := bytes.NewReader(data[12:])
	readU32 := func() uint32 {
		var b [4]byte
		r.Read(b[:])
		return readBE32(b[:])
	}
	readU16 := func() uint16 {
		var b [2]byte
		r.Read(b[:])
		return readBE16(b[:])
	}

	nbFrame := int(readU32())
	attrib := int(readU32())
	nbDrum := int(readU16())
	_ = readU32() // chip clock; the engine always runs at its emulated 2 MHz
	frameRate := int(readU16())
	loopFrame := int(readU32())
	skip := readU16()
	r.Seek(int64(skip), 1)

	if nbFrame == 0 || nbFrame > maxFrames {
		return nil, nil, errs.New(errs.InvalidFormat, "YM5/6 frame count %d out of range", nbFrame)
	}

	drums, err := readDrums(r, nbDrum, attrib&attrDrum4Bits != 0)
	if err != nil {
		return nil, nil, err
	}

	name := readNtString(r)
	author := readNtString(r)
	comment := readNtString(r)

	const streamInc = 16
	if r.Len() < nbFrame*streamInc {
		return nil, nil, errs.New(errs.InvalidFormat, "truncated YM5/6 register stream")
	}
	body := make([]byte, nbFrame*streamInc)
	r.Read(body)

	var frames []ym6.Frame
	if attrib&attrInterleaved != 0 {
		frames = deinterleaveFrames(body, nbFrame, streamInc)
	} else {
		frames = frameMajorFrames(body, nbFrame, streamInc)
	}

	format := ym6.FormatYM5
	if isV6 {
		format = ym6.FormatYM6
	}

	return &ym6.FrameTable{
		Format:    format,
		Frames:    frames,
		LoopFrame: loopFrame,
		HasLoop:   loopFrame > 0 || attrib&attrLoopMode != 0,
		FrameRate: frameRate,
		Name:      name,
		Author:    author,
		Comment:   comment,
	}, drums, nil
}

// decodeTracker parses a YMT1/YMT2 body: header, sample bank, and
// 4-bytes-per-voice-per-frame line stream.
func decodeTracker(data []byte, isV2 bool) (*ym6.FrameTable, ym6.DigiDrumBank, error) {
	if len(data) < 30 || !strings.HasPrefix(string(data[4:12]), "LeOnArD!") {
		return nil, nil, errs.New(errs.InvalidFormat, "missing LeOnArD! signature")
	}

	r := bytes.NewReader(data[12:])
	readU32 := func() uint32 {
		var b [4]byte
		r.Read(b[:])
		return readBE32(b[:])
	}
	readU16 := func() uint16 {
		var b [2]byte
		r.Read(b[:])
		return readBE16(b[:])
	}

	nbVoice := int(readU16())
	if nbVoice == 0 || nbVoice > 8 {
		return nil, nil, errs.New(errs.InvalidFormat, "unsupported tracker voice count %d", nbVoice)
	}
	playerRate := int(readU16())
	nbFrame := int(readU32())
	loopFrame := int(readU32())
	nbSample := int(readU16())
	attrib := int(readU32())

	if nbFrame == 0 || nbFrame > maxFrames {
		return nil, nil, errs.New(errs.InvalidFormat, "tracker frame count %d out of range", nbFrame)
	}

	name := readNtString(r)
	author := readNtString(r)
	comment := readNtString(r)

	samples := make([]ym6.TrackerSample, nbSample)
	for i := 0; i < nbSample; i++ {
		size := int(readU16())
		repLen := size
		if isV2 {
			repLen = int(readU16())
			_ = readU16() // per-sample flags, unused by the replayer
		}
		if size > r.Len() {
			return nil, nil, errs.New(errs.InvalidFormat, "truncated tracker sample %d", i)
		}
		raw := make([]byte, size)
		r.Read(raw)
		if repLen <= 0 || repLen > size {
			repLen = size
		}
		samples[i] = ym6.TrackerSample{Data: raw, RepLen: repLen}
	}

	const lineSize = 4
	body := make([]byte, nbVoice*nbFrame*lineSize)
	if r.Len() < len(body) {
		return nil, nil, errs.New(errs.InvalidFormat, "truncated tracker line stream")
	}
	r.Read(body)

	if attrib&attrInterleaved != 0 {
		body = deinterleaveTracker(body, nbVoice, nbFrame)
	}

	freqShift := 0
	if isV2 {
		freqShift = (attrib >> 28) & 0x0F
	}

	lines := make([][]ym6.TrackerVoiceLine, nbFrame)
	for f := 0; f < nbFrame; f++ {
		row := make([]ym6.TrackerVoiceLine, nbVoice)
		for v := 0; v < nbVoice; v++ {
			off := (f*nbVoice + v) * lineSize
			noteOn := body[off]
			volume := body[off+1]
			freq := int(body[off+2])<<8 | int(body[off+3])
			line := ym6.TrackerVoiceLine{
				Sample: -1,
				Volume: int(volume & 63),
				Loop:   volume&0x40 != 0,
				FreqHz: freq,
			}
			if noteOn != 0xFF {
				line.Sample = int(noteOn)
			}
			row[v] = line
		}
		lines[f] = row
	}

	if loopFrame >= nbFrame {
		loopFrame = 0
	}

	format := ym6.FormatYMT1
	if isV2 {
		format = ym6.FormatYMT2
	}
	return &ym6.FrameTable{
		Format:    format,
		LoopFrame: loopFrame,
		HasLoop:   attrib&attrLoopMode != 0,
		FrameRate: playerRate,
		Name:      name,
		Author:    author,
		Comment:   comment,
		Tracker: &ym6.TrackerTable{
			VoiceCount: nbVoice,
			FrameRate:  playerRate,
			FreqShift:  freqShift,
			Samples:    samples,
			Lines:      lines,
		},
	}, nil, nil
}

// deinterleaveTracker converts a column-major tracker line stream
// (each of the 4*nbVoice line bytes stored as its own nbFrame-long
// column) into frame-major order.
func deinterleaveTracker(body []byte, nbVoice, nbFrame int) []byte {
	step := 4 * nbVoice
	out := make([]byte, len(body))
	for col := 0; col < step; col++ {
		for f := 0; f < nbFrame; f++ {
			out[f*step+col] = body[col*nbFrame+f]
		}
	}
	return out
}
