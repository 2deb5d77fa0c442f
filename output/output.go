// Package output plays the mixer bus through the system audio device.
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	commonerrors "github.com/gruntwork-io/go-commons/errors"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/robmorgan/loopstation/config"
	"github.com/robmorgan/loopstation/logger"
	"github.com/sirupsen/logrus"
)

// SampleSource renders interleaved stereo float32 samples on demand.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the little endian float32 byte
// stream the audio player pulls from. Once closed it reports io.EOF so the
// player drains instead of rendering more blocks.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}

	// 2 channels * 4 bytes
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, sample := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sample))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var (
	audioContextOnce  sync.Once
	audioContext      *ebitaudio.Context
	contextSampleRate int
)

// sharedContext returns the process wide audio context. Only one sample rate
// can be used per process.
func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		contextSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if contextSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", contextSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Player pulls blocks from a SampleSource and plays them on the default
// output device.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
	log    *logrus.Logger
}

// NewPlayer creates a paused player. The device buffer holds one input
// chunk worth of audio so output latency tracks the capture block size.
func NewPlayer(cfg config.LooperConfig, source SampleSource) (*Player, error) {
	ctx, err := sharedContext(cfg.SampleRate)
	if err != nil {
		return nil, commonerrors.WithStackTrace(err)
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, commonerrors.WithStackTrace(err)
	}
	pl.SetBufferSize(time.Duration(cfg.BufferSize) * time.Second / time.Duration(cfg.SampleRate))
	return &Player{player: pl, reader: reader, log: logger.GetProjectLogger()}, nil
}

func (p *Player) Play() {
	p.log.Info("audio output started")
	p.player.Play()
}

// Stop pauses the device and releases the player.
func (p *Player) Stop() error {
	p.player.Pause()
	p.log.WithField("played", p.player.Position()).Info("audio output stopped")
	p.reader.Close()
	return commonerrors.WithStackTrace(p.player.Close())
}
