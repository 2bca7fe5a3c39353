package psg

// volumeTable maps a 4-bit level to a normalised float32 amplitude.
// The shape is the classic YM2149 DAC curve (non-linear, roughly a
// factor of √2 per step), the published integer table normalised to [0,1] with
// level 0 forced to exactly 0.0 — the real chip's DAC floor is a
// small nonzero voltage, but level 0 is defined here as strictly
// silent.
var volumeTable = [16]float32{
	0.0,
	161.0 / 32767.0,
	265.0 / 32767.0,
	377.0 / 32767.0,
	580.0 / 32767.0,
	774.0 / 32767.0,
	1155.0 / 32767.0,
	1575.0 / 32767.0,
	2260.0 / 32767.0,
	3088.0 / 32767.0,
	4570.0 / 32767.0,
	6233.0 / 32767.0,
	9330.0 / 32767.0,
	13187.0 / 32767.0,
	21220.0 / 32767.0,
	1.0,
}

// VolumeTable returns the normalised [0,1] amplitude for a 4-bit PSG
// level (0-15, clamped). Any caller mixing against the same DAC curve
// the envelope/amplitude registers use reads it from here instead of
// re-deriving the table; the SID and DigiDrum effects share it
// implicitly by writing levels through the amplitude registers.
func VolumeTable(level int) float32 {
	if level < 0 {
		level = 0
	}
	if level > 15 {
		level = 15
	}
	return volumeTable[level]
}
