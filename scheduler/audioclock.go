package scheduler

import (
	"time"

	"k8s.io/utils/clock"
)

// AudioClock is a monotonically increasing time source in seconds.
type AudioClock interface {
	CurrentTime() float64
}

type passiveAudioClock struct {
	clock clock.PassiveClock
	start time.Time
}

// NewAudioClock returns an AudioClock counting seconds since it was created.
func NewAudioClock(c clock.PassiveClock) AudioClock {
	return &passiveAudioClock{clock: c, start: c.Now()}
}

func (c *passiveAudioClock) CurrentTime() float64 {
	return c.clock.Since(c.start).Seconds()
}
