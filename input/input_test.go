package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/loopstation/buffer"
	"github.com/robmorgan/loopstation/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// constant streams n frames of left/right values.
func constant(n int, left, right float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if n <= 0 {
			return 0, false
		}
		filled := 0
		for filled < len(samples) && n > 0 {
			samples[filled] = [2]float64{left, right}
			filled++
			n--
		}
		return filled, true
	})
}

func TestReadChunk(t *testing.T) {
	t.Parallel()

	s := constant(250, 0.25, -0.5)

	chunk, ok := ReadChunk(s, 100, 2, 1000)
	require.True(t, ok)
	require.Equal(t, 100, chunk.Len())
	require.Equal(t, 2, chunk.NumChannels())
	assert.Equal(t, 1000, chunk.SampleRate())
	assert.Equal(t, float32(0.25), chunk.Channel(0)[99])
	assert.Equal(t, float32(-0.5), chunk.Channel(1)[0])

	_, ok = ReadChunk(s, 100, 2, 1000)
	require.True(t, ok)

	chunk, ok = ReadChunk(s, 100, 2, 1000)
	assert.False(t, ok)
	assert.Equal(t, 50, chunk.Len())
}

func TestReadChunkMono(t *testing.T) {
	t.Parallel()

	chunk, _ := ReadChunk(constant(10, 0.25, -0.5), 10, 1, 1000)
	require.Equal(t, 1, chunk.NumChannels())
	assert.Equal(t, float32(0.25), chunk.Channel(0)[5])
}

func TestCaptureCopiesAndDelivers(t *testing.T) {
	t.Parallel()

	cfg := config.NewLooperConfig()
	cfg.SampleRate = 1000

	var mu sync.Mutex
	var got []*buffer.Buffer
	c := NewCapture(cfg, func(chunk *buffer.Buffer) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, chunk)
	})

	in := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	c.process(in)

	// the device reuses its buffers
	in[0][0] = 9

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.deliver(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []float32{0.1, 0.2}, got[0].Channel(0))
	assert.Equal(t, []float32{0.3, 0.4}, got[0].Channel(1))
	assert.Equal(t, 1000, got[0].SampleRate())
}

func TestCaptureDropsWhenBehind(t *testing.T) {
	t.Parallel()

	c := NewCapture(config.NewLooperConfig(), func(*buffer.Buffer) {})
	for i := 0; i < queueDepth+5; i++ {
		c.process([][]float32{{0}})
	}
	assert.Equal(t, int64(5), c.Dropped())
}

func writeWAV(t *testing.T, frames int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	format := beep.Format{SampleRate: 1000, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, constant(frames, 0.5, 0.5), format))
	return path
}

func TestStreamWAV(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 250)
	cfg := config.NewLooperConfig()
	cfg.SampleRate = 1000
	cfg.Channels = 1
	cfg.BufferSize = 100

	fc := testingclock.NewFakeClock(time.Now())
	var mu sync.Mutex
	var chunks []*buffer.Buffer
	errs := make(chan error, 1)
	go func() {
		errs <- StreamWAV(context.Background(), path, cfg, fc, func(chunk *buffer.Buffer) {
			mu.Lock()
			defer mu.Unlock()
			chunks = append(chunks, chunk)
		})
	}()

	var err error
	finished := false
	for !finished {
		select {
		case err = <-errs:
			finished = true
		case <-time.After(time.Millisecond):
			if fc.HasWaiters() {
				fc.Step(100 * time.Millisecond)
			}
		}
	}
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, chunks[0].Len())
	assert.Equal(t, 50, chunks[2].Len())
	assert.InDelta(t, 0.5, chunks[1].Channel(0)[10], 1e-3)
}

func TestStreamWAVMissingFile(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Now())
	err := StreamWAV(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), config.NewLooperConfig(), fc, func(*buffer.Buffer) {})
	require.Error(t, err)
}

func TestStreamWAVRejectsOtherSampleRates(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 100)
	fc := testingclock.NewFakeClock(time.Now())
	err := StreamWAV(context.Background(), path, config.NewLooperConfig(), fc, func(*buffer.Buffer) {})
	require.True(t, errors.Is(commonerrors.Unwrap(err), ErrFormatMismatch))
}
