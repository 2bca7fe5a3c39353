// Command ym2149play loads a YM file and plays it through the host's
// audio output, falling back to a timing-only sink if no real device
// is available.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/retrochip/ym2149/audio"
	"github.com/retrochip/ym2149/ym6"
	"github.com/retrochip/ym2149/ymfile"
)

var (
	file       = flag.String("file", "", "YM file to play (required)")
	loop       = flag.Bool("loop", false, "Loop playback")
	mute       = flag.String("mute", "", "Comma-separated channel indices to mute (0,1,2)")
	sampleRate = flag.Int("rate", 44100, "Output sample rate (Hz)")
	bufferSize = flag.Int("buffer", 2048, "Buffer size in samples")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <ym-file> [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	frames, drums, err := ymfile.Load(*file)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *file, err)
	}

	replayer, err := ym6.NewReplayer(frames, drums, *sampleRate)
	if err != nil {
		log.Fatalf("failed to create replayer: %v", err)
	}
	replayer.SetLooping(*loop)
	replayer.Play()

	for _, idx := range mutedChannels(*mute) {
		replayer.Engine().SetChannelMute(idx, true)
	}

	fmt.Printf("Title:    %s\n", frames.Name)
	fmt.Printf("Author:   %s\n", frames.Author)
	fmt.Printf("Comment:  %s\n", frames.Comment)
	fmt.Printf("Frames:   %d (%d Hz replay rate, %.1fs)\n",
		replayer.FrameCount(), frames.FrameRate, replayer.Duration())

	var out audio.Output
	out, err = audio.NewStreamingOtoOutput()
	if err != nil {
		fmt.Printf("Warning: failed to open audio device (%v), falling back to timing-only output\n", err)
		out, err = audio.NewFallbackOutput()
		if err != nil {
			log.Fatalf("failed to create fallback output: %v", err)
		}
	}

	player := audio.NewPlayer(replayer, out)
	if err := player.Start(*sampleRate, *bufferSize); err != nil {
		log.Fatalf("failed to start playback: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Playing... (Ctrl+C to stop)\n")
	<-sigChan
	fmt.Printf("\nStopping...\n")
	player.Stop()
}

func mutedChannels(spec string) []int {
	if spec == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 2 {
			log.Printf("ignoring invalid -mute channel %q", part)
			continue
		}
		out = append(out, n)
	}
	return out
}
