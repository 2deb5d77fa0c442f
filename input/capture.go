package input

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/loopstation/buffer"
	"github.com/robmorgan/loopstation/config"
	"github.com/robmorgan/loopstation/logger"
	"github.com/sirupsen/logrus"
)

// queueDepth is how many chunks may wait for the handler before capture
// starts dropping them.
const queueDepth = 32

// Capture records from the default input device. The device callback only
// copies samples into a queue; a worker goroutine hands them to the handler.
type Capture struct {
	channels   int
	sampleRate int
	frames     int
	handler    Handler
	queue      chan *buffer.Buffer
	dropped    atomic.Int64
	log        *logrus.Logger
}

func NewCapture(cfg config.LooperConfig, handler Handler) *Capture {
	return &Capture{
		channels:   cfg.Channels,
		sampleRate: cfg.SampleRate,
		frames:     cfg.BufferSize,
		handler:    handler,
		queue:      make(chan *buffer.Buffer, queueDepth),
		log:        logger.GetProjectLogger(),
	}
}

// Run opens the device and captures until ctx is cancelled. It returns once
// the stream is running; wg is released when the stream has been closed.
func (c *Capture) Run(ctx context.Context, wg *sync.WaitGroup) error {
	if err := portaudio.Initialize(); err != nil {
		return commonerrors.WithStackTrace(err)
	}

	stream, err := portaudio.OpenDefaultStream(c.channels, 0, float64(c.sampleRate), c.frames, c.process)
	if err != nil {
		portaudio.Terminate()
		return commonerrors.WithStackTrace(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return commonerrors.WithStackTrace(err)
	}

	c.log.WithFields(logrus.Fields{
		"sample_rate": c.sampleRate,
		"channels":    c.channels,
		"frames":      c.frames,
	}).Info("audio capture started")

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.deliver(ctx)

		if err := stream.Stop(); err != nil {
			c.log.Errorf("error stopping capture stream: %v", err)
		}
		if err := stream.Close(); err != nil {
			c.log.Errorf("error closing capture stream: %v", err)
		}
		if err := portaudio.Terminate(); err != nil {
			c.log.Errorf("error terminating portaudio: %v", err)
		}
		c.log.WithField("dropped_chunks", c.Dropped()).Info("audio capture stopped")
	}()
	return nil
}

// Dropped returns how many chunks were lost because the handler fell behind.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// process runs on the device thread. The input slices are reused by
// portaudio, so every chunk is copied before it is queued.
func (c *Capture) process(in [][]float32) {
	chunk := buffer.New(len(in), len(in[0]), c.sampleRate)
	for ch := range in {
		copy(chunk.Channel(ch), in[ch])
	}

	select {
	case c.queue <- chunk:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			c.log.WithField("dropped_chunks", n).Warn("input queue full, dropping audio")
		}
	}
}

func (c *Capture) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-c.queue:
			c.handler(chunk)
		}
	}
}
