package mixer

import (
	"sync/atomic"

	"github.com/robmorgan/loopstation/buffer"
)

// Voice is a single playback of a buffer, the equivalent of a one-shot
// buffer source node. A voice is never restarted; create a new one instead.
type Voice struct {
	buf     *buffer.Buffer
	startAt float64
	pos     int
	stopped atomic.Bool
	done    atomic.Bool
}

// NewVoice plays buf from offset seconds, starting no earlier than audio time startAt.
func NewVoice(buf *buffer.Buffer, startAt, offset float64) *Voice {
	pos := 0
	if offset > 0 && buf != nil {
		pos = int(offset * float64(buf.SampleRate()))
	}
	v := &Voice{buf: buf, startAt: startAt, pos: pos}
	if pos >= buf.Len() {
		v.done.Store(true)
	}
	return v
}

// Stop silences the voice immediately.
func (v *Voice) Stop() {
	v.stopped.Store(true)
	v.done.Store(true)
}

// Done reports whether the voice has played to the end or was stopped.
func (v *Voice) Done() bool {
	return v.done.Load()
}

// mixInto adds frames into the interleaved stereo dst, scaled by the per-frame gains.
func (v *Voice) mixInto(dst []float32, gains []float32, now float64) {
	if v.stopped.Load() || v.done.Load() || now < v.startAt {
		return
	}

	left := v.buf.Channel(0)
	right := left
	if v.buf.NumChannels() > 1 {
		right = v.buf.Channel(1)
	}

	frames := len(dst) / 2
	for i := 0; i < frames; i++ {
		if v.pos >= len(left) {
			v.done.Store(true)
			return
		}
		dst[2*i] += left[v.pos] * gains[i]
		dst[2*i+1] += right[v.pos] * gains[i]
		v.pos++
	}
	if v.pos >= len(left) {
		v.done.Store(true)
	}
}
