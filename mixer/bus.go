// Package mixer renders loop playback into the master output.
package mixer

import (
	"sync"

	"github.com/robmorgan/loopstation/utils"
)

// Clock reports the audio time in seconds.
type Clock interface {
	CurrentTime() float64
}

// Bus is the master output. Gain nodes connected to it are summed into
// interleaved stereo blocks pulled by the output device.
type Bus struct {
	mu    sync.Mutex
	clock Clock
	gains []*Gain
}

func NewBus(clock Clock) *Bus {
	return &Bus{clock: clock}
}

// Connect routes g to the output. Connecting twice is a no-op.
func (b *Bus) Connect(g *Gain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, each := range b.gains {
		if each == g {
			return
		}
	}
	b.gains = append(b.gains, g)
}

// Disconnect removes g from the output.
func (b *Bus) Disconnect(g *Gain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, each := range b.gains {
		if each == g {
			b.gains = append(b.gains[:i], b.gains[i+1:]...)
			return
		}
	}
}

// Connected reports whether g is routed to the output.
func (b *Bus) Connected(g *Gain) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, each := range b.gains {
		if each == g {
			return true
		}
	}
	return false
}

// Process renders the next block of interleaved stereo samples into dst.
func (b *Bus) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}

	now := b.clock.CurrentTime()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.gains {
		g.process(dst, now)
	}
	for i := range dst {
		dst[i] = float32(utils.Clamp(float64(dst[i]), -1, 1))
	}
}
