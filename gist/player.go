package gist

import "github.com/retrochip/ym2149/psg"

// driverTickHz is the GIST driver's own fixed envelope-update rate,
// independent of the host's output sample rate.
const driverTickHz = 200

// Player drives a Driver/psg.Engine pair and satisfies the same
// GenerateSamples/IsOver contract ym6.Replayer and arkos.SongPlayer
// do, so a GIST effect bank can be mixed or auditioned through
// audio.Player exactly like a song.
type Player struct {
	engine *psg.Engine
	driver *Driver

	samplesPerTick int
	sampleCtr      int
}

// NewPlayer returns a Player with its own psg.Engine, ticking the
// driver at 200Hz by integer-dividing outputRateHz.
func NewPlayer(outputRateHz int) *Player {
	engine := psg.NewEngine()
	spt := outputRateHz / driverTickHz
	if spt <= 0 {
		spt = 1
	}
	return &Player{engine: engine, driver: NewDriver(engine), samplesPerTick: spt}
}

// Driver exposes the underlying allocator for SndOn/SndOff/StopAll calls.
func (p *Player) Driver() *Driver { return p.driver }

// Engine exposes the underlying PSG engine for mute/inspection calls.
func (p *Player) Engine() *psg.Engine { return p.engine }

// GenerateSamples fills out with mixed PSG samples, ticking the
// driver once every samplesPerTick samples.
func (p *Player) GenerateSamples(out []float32) {
	for i := range out {
		if p.sampleCtr == 0 {
			p.driver.Tick()
		}
		out[i] = p.engine.Clock()
		p.sampleCtr++
		if p.sampleCtr >= p.samplesPerTick {
			p.sampleCtr = 0
		}
	}
}

// IsOver reports whether every voice has finished (no sound bank ever
// "loops", so this just mirrors IsPlaying's negation).
func (p *Player) IsOver() bool {
	return !p.driver.IsPlaying()
}
