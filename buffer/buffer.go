// Package buffer holds recorded audio as channel-major float32 samples.
package buffer

// Buffer is a block of multichannel audio. Samples are stored per channel and
// every channel has the same number of frames.
type Buffer struct {
	sampleRate int
	channels   [][]float32
}

// New allocates a silent buffer with the given channel count and frame length.
func New(channels, frames, sampleRate int) *Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{sampleRate: sampleRate, channels: data}
}

// FromChannels wraps existing per-channel sample slices without copying them.
// The caller hands over ownership of the slices, which must share one length.
func FromChannels(sampleRate int, channels ...[]float32) *Buffer {
	return &Buffer{sampleRate: sampleRate, channels: channels}
}

// Len returns the number of frames.
func (b *Buffer) Len() int {
	if b == nil || len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// NumChannels returns the number of channels.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.channels)
}

// SampleRate returns the sample rate in Hz.
func (b *Buffer) SampleRate() int {
	if b == nil {
		return 0
	}
	return b.sampleRate
}

// Duration returns the length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.sampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.sampleRate)
}

// Channel returns the samples of channel i. The slice must not be modified
// once the buffer is shared.
func (b *Buffer) Channel(i int) []float32 {
	return b.channels[i]
}

// Append joins a and b into a new buffer. If either is nil the other is
// returned as is. The result has the channel count of the narrower input and
// the sample rate of a.
func Append(a, b *Buffer) *Buffer {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	nc := a.NumChannels()
	if b.NumChannels() < nc {
		nc = b.NumChannels()
	}

	out := New(nc, a.Len()+b.Len(), a.sampleRate)
	for i := 0; i < nc; i++ {
		copy(out.channels[i], a.channels[i])
		copy(out.channels[i][a.Len():], b.channels[i])
	}
	return out
}
