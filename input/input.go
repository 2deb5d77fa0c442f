// Package input delivers fixed size chunks of audio to the looper, either from
// the default capture device or from a WAV file.
package input

import (
	"github.com/faiface/beep"
	"github.com/robmorgan/loopstation/buffer"
)

// Handler receives each chunk. The handler takes ownership of the chunk.
type Handler func(chunk *buffer.Buffer)

// ReadChunk pulls up to frames frames from s into a new buffer with the given
// number of channels. Mono chunks take the left channel. ok is false once s
// is drained; the returned buffer still holds whatever was read before that.
func ReadChunk(s beep.Streamer, frames, channels, sampleRate int) (chunk *buffer.Buffer, ok bool) {
	samples := make([][2]float64, frames)
	filled := 0
	ok = true
	for filled < frames {
		n, more := s.Stream(samples[filled:])
		filled += n
		if !more {
			ok = false
			break
		}
	}

	chunk = buffer.New(channels, filled, sampleRate)
	for ch := 0; ch < chunk.NumChannels(); ch++ {
		dst := chunk.Channel(ch)
		side := ch
		if side > 1 {
			side = 1
		}
		for i := 0; i < filled; i++ {
			dst[i] = float32(samples[i][side])
		}
	}
	return chunk, ok
}
