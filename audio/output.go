// Package audio provides a real-time output sink abstraction and a
// generic player loop that pulls normalised float32 samples from any
// replay engine (ym6.Replayer, arkos.SongPlayer) and pushes int16 PCM
// to an Output implementation.
package audio

import (
	"errors"
	"sync"
	"time"
)

// Output is an audio output sink: open at a given rate/channel count,
// write interleaved int16 PCM, close when done.
type Output interface {
	Open(sampleRate, channels, bufferSize int) error
	Close() error
	Write(samples []int16) error
	IsPlaying() bool
}

// SampleSource is anything that can fill a float32 buffer with mixed
// PSG output and report when it has finished (non-looping playback
// reaching the end). Both ym6.Replayer and arkos.SongPlayer satisfy
// this.
type SampleSource interface {
	GenerateSamples(out []float32)
	IsOver() bool
}

// Player drives a SampleSource into an Output on its own goroutine.
type Player struct {
	source     SampleSource
	output     Output
	sampleRate int
	bufferSize int
	playing    bool
	paused     bool
	mu         sync.Mutex
	done       chan bool
}

// NewPlayer returns a Player pulling samples from source and writing
// PCM to output.
func NewPlayer(source SampleSource, output Output) *Player {
	return &Player{
		source: source,
		output: output,
		done:   make(chan bool),
	}
}

// Start opens the output and begins the audio loop.
func (p *Player) Start(sampleRate, bufferSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return errors.New("already playing")
	}

	p.sampleRate = sampleRate
	p.bufferSize = bufferSize

	if err := p.output.Open(sampleRate, 1, bufferSize); err != nil {
		return err
	}

	p.playing = true
	go p.audioLoop()

	return nil
}

// Stop halts the audio loop and closes the output.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.mu.Unlock()

	<-p.done

	p.output.Close()
}

// Pause silences output without stopping the loop.
func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume un-pauses playback.
func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// IsPaused reports whether playback is currently paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func floatToPCM(in []float32, out []int16) {
	for i, s := range in {
		v := s * 32767.0
		if v > 32767.0 {
			v = 32767.0
		}
		if v < -32768.0 {
			v = -32768.0
		}
		out[i] = int16(v)
	}
}

func (p *Player) audioLoop() {
	defer func() {
		p.done <- true
	}()

	floatBuf := make([]float32, p.bufferSize)
	pcmBuf := make([]int16, p.bufferSize)

	for {
		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			break
		}
		paused := p.paused
		p.mu.Unlock()

		if paused {
			for i := range pcmBuf {
				pcmBuf[i] = 0
			}
		} else {
			p.source.GenerateSamples(floatBuf)
			floatToPCM(floatBuf, pcmBuf)

			if p.source.IsOver() {
				p.mu.Lock()
				p.playing = false
				p.mu.Unlock()
				p.output.Write(pcmBuf)
				break
			}
		}

		if err := p.output.Write(pcmBuf); err != nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// BufferOutput is an in-memory Output, useful for tests and for
// rendering a song to a WAV file without a live audio device.
type BufferOutput struct {
	buffer     []int16
	sampleRate int
	channels   int
	mu         sync.Mutex
}

// NewBufferOutput returns an empty BufferOutput.
func NewBufferOutput() *BufferOutput {
	return &BufferOutput{}
}

func (b *BufferOutput) Open(sampleRate, channels, bufferSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sampleRate = sampleRate
	b.channels = channels
	b.buffer = make([]int16, 0, sampleRate*channels*10)
	return nil
}

func (b *BufferOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = nil
	return nil
}

func (b *BufferOutput) Write(samples []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer == nil {
		return errors.New("buffer not initialized")
	}

	b.buffer = append(b.buffer, samples...)
	return nil
}

func (b *BufferOutput) IsPlaying() bool {
	return true
}

// GetBuffer returns a copy of the accumulated PCM buffer.
func (b *BufferOutput) GetBuffer() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]int16, len(b.buffer))
	copy(result, b.buffer)
	return result
}

// Clear empties the buffer without closing the output.
func (b *BufferOutput) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = b.buffer[:0]
}
