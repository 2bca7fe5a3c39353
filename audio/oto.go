package audio

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/retrochip/ym2149/errs"
)

// The PSG engine and replayers only ever produce a single interleaved
// channel (mono), so every Output in this package is opened with
// channels fixed at 1; stereo widening, if ever wanted, belongs in a
// SampleSource, not here.
const otoChannels = 1

var (
	globalOtoMutex sync.Mutex
	globalContext  *oto.Context
	globalPlayers  int
)

// StreamingOtoOutput feeds mono PCM to the host's audio device through
// ebitengine/oto by writing into an io.Pipe that the oto.Player reads
// from on its own goroutine. A process-wide oto.Context is shared
// across every StreamingOtoOutput so replaying several songs back to
// back doesn't reinitialize the platform audio backend each time.
type StreamingOtoOutput struct {
	player     *oto.Player
	writer     *io.PipeWriter
	reader     *io.PipeReader
	sampleRate int
	bufferSize int
	mu         sync.Mutex
	closed     bool
	wg         sync.WaitGroup
}

// NewStreamingOtoOutput returns an unopened streaming output.
func NewStreamingOtoOutput() (*StreamingOtoOutput, error) {
	return &StreamingOtoOutput{}, nil
}

// Open starts the shared oto.Context (on first use) and attaches a
// fresh pipe-fed player to it. channels is accepted for Output
// compatibility but ignored; see otoChannels.
func (s *StreamingOtoOutput) Open(sampleRate, channels, bufferSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return errs.New(errs.InvalidParameter, "oto stream already open")
	}

	s.sampleRate = sampleRate
	s.bufferSize = bufferSize
	s.reader, s.writer = io.Pipe()

	globalOtoMutex.Lock()
	if globalContext == nil {
		bufferBytes := bufferSize * otoChannels * 2
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: otoChannels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(bufferBytes) * time.Second / time.Duration(sampleRate*otoChannels*2),
		}
		context, ready, err := oto.NewContext(op)
		if err != nil {
			globalOtoMutex.Unlock()
			return errs.Wrap(errs.IO, err, "creating oto context")
		}
		<-ready
		globalContext = context
	}
	globalPlayers++
	context := globalContext
	globalOtoMutex.Unlock()

	s.player = context.NewPlayer(s.reader)
	s.closed = false

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.player.Play()
	}()

	return nil
}

// Close stops feeding the player, waits briefly for the device buffer
// to drain, and tears down the pipe. The shared context is left
// running for the next Output to reuse.
func (s *StreamingOtoOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
	}

	time.Sleep(100 * time.Millisecond)

	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}

	globalOtoMutex.Lock()
	globalPlayers--
	globalOtoMutex.Unlock()

	s.wg.Wait()
	return nil
}

// Write pushes one buffer of little-endian PCM16 samples into the
// pipe the background player is draining.
func (s *StreamingOtoOutput) Write(samples []int16) error {
	s.mu.Lock()
	if s.closed || s.writer == nil {
		s.mu.Unlock()
		return errs.New(errs.IO, "oto stream not open")
	}
	writer := s.writer
	s.mu.Unlock()

	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}

	_, err := writer.Write(raw)
	if err != nil {
		return errs.Wrap(errs.IO, err, "writing oto stream")
	}
	return nil
}

// IsPlaying reports whether the stream is open and feeding a player.
func (s *StreamingOtoOutput) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.player != nil
}

// FallbackOutput paces playback with time.Sleep instead of a real
// audio device, for headless environments where oto can't find a
// backend (CI, containers without /dev/snd).
type FallbackOutput struct {
	sampleRate int
	closed     bool
	mu         sync.Mutex
}

// NewFallbackOutput returns an unopened FallbackOutput.
func NewFallbackOutput() (*FallbackOutput, error) {
	return &FallbackOutput{}, nil
}

func (f *FallbackOutput) Open(sampleRate, channels, bufferSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sampleRate = sampleRate
	f.closed = false
	return nil
}

func (f *FallbackOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// Write sleeps for the wall-clock duration the buffer represents,
// so a caller driving this in real time doesn't spin.
func (f *FallbackOutput) Write(samples []int16) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errs.New(errs.IO, "fallback output closed")
	}
	sampleRate := f.sampleRate
	f.mu.Unlock()

	time.Sleep(time.Duration(len(samples)) * time.Second / time.Duration(sampleRate))
	return nil
}

func (f *FallbackOutput) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}
