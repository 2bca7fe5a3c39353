package ym6

// EffectKind tags the decoded effect command a single YM6/YM5 frame
// can carry.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectSidStart
	EffectSinusSidStart
	EffectDigiDrumStart
	EffectSyncBuzzerStart
)

// EffectCommand is the decoder's sole output shape: a channel-scoped
// effect trigger (or EffectNone). DecodeEffects never mutates any
// state — it is a pure function of one frame.
type EffectCommand struct {
	Kind      EffectKind
	Channel   int // 0=A,1=B,2=C; unused for EffectSyncBuzzerStart
	FreqHz    int
	Level     int // SID Voice amplitude level (0-15)
	DrumIndex int // DigiDrum bank index
	Shape     byte
}

// mfpPrediv is the MFP timer's eight selectable pre-dividers, shared
// by every effect frequency calculation below.
var mfpPrediv = [8]int{0, 4, 10, 16, 50, 64, 100, 200}

const mfpClock = 2457600

// DecodeEffects decodes up to two effect commands from a single YM5
// or YM6 frame. YM5 carries exactly one SID Voice slot and one
// DigiDrum slot; YM6 carries two independent general-purpose effect
// slots, each of which can be SID, Sinus-SID, DigiDrum, or
// Sync-Buzzer.
func DecodeEffects(format Format, frame Frame, drumCount int) []EffectCommand {
	switch format {
	case FormatYM5:
		return decodeYM5(frame, drumCount)
	case FormatYM6:
		var out []EffectCommand
		if c, ok := decodeYM6Slot(frame, 1, 6, 14, drumCount); ok {
			out = append(out, c)
		}
		if c, ok := decodeYM6Slot(frame, 3, 8, 15, drumCount); ok {
			out = append(out, c)
		}
		return out
	default:
		return nil
	}
}

func decodeYM5(frame Frame, drumCount int) []EffectCommand {
	var out []EffectCommand

	code := (frame[1] >> 4) & 3
	if code != 0 {
		voice := int(code - 1)
		prediv := mfpPrediv[(frame[6]>>5)&7] * int(frame[14])
		if prediv != 0 {
			out = append(out, EffectCommand{
				Kind:    EffectSidStart,
				Channel: voice,
				FreqHz:  mfpClock / prediv,
				Level:   int(frame[voice+8] & 15),
			})
		}
	}

	code = (frame[3] >> 4) & 3
	if code != 0 {
		voice := int(code - 1)
		ndrum := int(frame[8+voice] & 31)
		if ndrum < drumCount {
			prediv := mfpPrediv[(frame[8]>>5)&7] * int(frame[15])
			if prediv != 0 {
				out = append(out, EffectCommand{
					Kind:      EffectDigiDrumStart,
					Channel:   voice,
					FreqHz:    mfpClock / prediv,
					DrumIndex: ndrum,
				})
			}
		}
	}

	return out
}

func decodeYM6Slot(frame Frame, codeIdx, predivIdx, countIdx, drumCount int) (EffectCommand, bool) {
	effectCode := frame[codeIdx] & 0xF0
	if effectCode&0x30 == 0 {
		return EffectCommand{}, false
	}
	voice := int((effectCode&0x30)>>4) - 1
	predivVal := (frame[predivIdx] >> 5) & 7
	countVal := frame[countIdx]

	switch effectCode & 0xC0 {
	case 0x00, 0x80: // SID or Sinus-SID
		prediv := mfpPrediv[predivVal] * int(countVal)
		if prediv == 0 {
			return EffectCommand{}, false
		}
		freq := mfpClock / prediv
		if effectCode&0xC0 == 0x00 {
			return EffectCommand{Kind: EffectSidStart, Channel: voice, FreqHz: freq, Level: int(frame[voice+8] & 15)}, true
		}
		return EffectCommand{Kind: EffectSinusSidStart, Channel: voice, FreqHz: freq}, true

	case 0x40: // DigiDrum
		ndrum := int(frame[voice+8] & 31)
		if ndrum >= drumCount {
			return EffectCommand{}, false
		}
		prediv := mfpPrediv[predivVal] * int(countVal)
		if prediv == 0 {
			return EffectCommand{}, false
		}
		return EffectCommand{Kind: EffectDigiDrumStart, Channel: voice, FreqHz: mfpClock / prediv, DrumIndex: ndrum}, true

	case 0xC0: // Sync-Buzzer
		prediv := mfpPrediv[predivVal] * int(countVal)
		if prediv == 0 {
			return EffectCommand{}, false
		}
		return EffectCommand{Kind: EffectSyncBuzzerStart, FreqHz: mfpClock / prediv, Shape: frame[voice+8] & 15}, true
	}

	return EffectCommand{}, false
}
