package looper

import (
	"github.com/robmorgan/loopstation/buffer"
	"github.com/robmorgan/loopstation/logger"
	"github.com/robmorgan/loopstation/mixer"
	"github.com/sirupsen/logrus"
)

// Output is where sealed loops are routed.
type Output interface {
	Connect(g *mixer.Gain)
	Disconnect(g *mixer.Gain)
}

// Loop is one recorded layer: a buffer plus its own playback and gain control.
// A Loop is owned by a Looper and is not safe for concurrent use.
type Loop struct {
	id           int
	buffer       *buffer.Buffer
	gain         *mixer.Gain
	voices       []*mixer.Voice
	output       Output
	isPlaying    bool
	playCount    int
	maxPlayCount int
	decayFactor  float64
	startOffset  float64
	disposed     bool
}

func newLoop(id, maxPlayCount int, decayFactor float64) *Loop {
	return &Loop{
		id:           id,
		gain:         mixer.NewGain(1),
		maxPlayCount: maxPlayCount,
		decayFactor:  decayFactor,
	}
}

func (l *Loop) ID() int { return l.id }

func (l *Loop) Buffer() *buffer.Buffer { return l.buffer }

// Duration returns the recorded length in seconds.
func (l *Loop) Duration() float64 { return l.buffer.Duration() }

func (l *Loop) IsPlaying() bool { return l.isPlaying }

func (l *Loop) PlayCount() int { return l.playCount }

func (l *Loop) Disposed() bool { return l.disposed }

// Sealed reports whether the loop has been routed to the output.
func (l *Loop) Sealed() bool { return l.output != nil }

// Gain returns the current gain value, zero once disposed.
func (l *Loop) Gain() float64 {
	if l.disposed {
		return 0
	}
	return l.gain.Value()
}

func (l *Loop) append(chunk *buffer.Buffer) {
	if l.disposed || l.Sealed() {
		return
	}
	l.buffer = buffer.Append(l.buffer, chunk)
}

// seal freezes the buffer and connects the loop's gain node to out.
func (l *Loop) seal(out Output) {
	if l.disposed || l.Sealed() {
		return
	}
	l.output = out
	out.Connect(l.gain)
}

// Play starts a new playback of the buffer no earlier than audio time at.
func (l *Loop) Play(at float64) {
	if l.disposed || l.buffer.Len() == 0 {
		return
	}

	live := l.voices[:0]
	for _, v := range l.voices {
		if !v.Done() {
			live = append(live, v)
		}
	}
	l.voices = live

	v := mixer.NewVoice(l.buffer, at, l.startOffset)
	l.gain.Add(v)
	l.voices = append(l.voices, v)
	l.isPlaying = true
	l.playCount++

	logger.GetProjectLogger().WithFields(logrus.Fields{"loop_id": l.id, "at": at, "play_count": l.playCount}).Debug("play loop")
}

// Stop halts every active playback.
func (l *Loop) Stop(at float64) {
	if l.disposed {
		return
	}
	for _, v := range l.voices {
		v.Stop()
		l.gain.Remove(v)
	}
	l.voices = nil
	l.isPlaying = false
}

// Attenuate lowers the gain by the decay factor and returns the new value.
func (l *Loop) Attenuate() float64 {
	if l.disposed {
		return 0
	}
	value := l.gain.Value() * l.decayFactor
	l.gain.SetValue(value)
	return value
}

// Exhausted reports whether the loop has used up its play budget.
func (l *Loop) Exhausted() bool {
	return l.playCount >= l.maxPlayCount
}

// Dispose stops the loop and releases its buffer and gain node.
func (l *Loop) Dispose() {
	if l.disposed {
		return
	}
	l.Stop(0)
	l.gain.Clear()
	if l.output != nil {
		l.output.Disconnect(l.gain)
	}
	l.output = nil
	l.gain = nil
	l.buffer = nil
	l.disposed = true
}
