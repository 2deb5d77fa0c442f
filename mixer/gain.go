package mixer

import (
	"sync"

	"github.com/fogleman/ease"
)

// Gain is a gain node: it sums its voices and scales them by its value.
// Changes to the value are eased in over one render block to avoid zipper noise.
type Gain struct {
	mu      sync.Mutex
	current float64
	target  float64
	voices  []*Voice
	ramp    []float32
}

func NewGain(value float64) *Gain {
	return &Gain{current: value, target: value}
}

// Value returns the most recently set gain.
func (g *Gain) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}

// SetValue changes the gain; the change lands by the end of the next block.
func (g *Gain) SetValue(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = v
}

// Add connects a voice to this node.
func (g *Gain) Add(v *Voice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voices = append(g.voices, v)
}

// Remove disconnects a voice.
func (g *Gain) Remove(v *Voice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, each := range g.voices {
		if each == v {
			g.voices = append(g.voices[:i], g.voices[i+1:]...)
			return
		}
	}
}

// Clear disconnects every voice.
func (g *Gain) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voices = nil
}

// Voices returns the number of connected voices.
func (g *Gain) Voices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

func (g *Gain) process(dst []float32, now float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	frames := len(dst) / 2
	if cap(g.ramp) < frames {
		g.ramp = make([]float32, frames)
	}
	ramp := g.ramp[:frames]
	from, to := g.current, g.target
	for i := range ramp {
		if from == to {
			ramp[i] = float32(to)
			continue
		}
		progress := ease.InOutQuad(float64(i+1) / float64(frames))
		ramp[i] = float32(from + (to-from)*progress)
	}
	g.current = to

	live := g.voices[:0]
	for _, v := range g.voices {
		v.mixInto(dst, ramp, now)
		if !v.Done() {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = live
}
