package rhythm

// Snapshot describes the timeline established by a metronome at its last tick.
type Snapshot struct {
	// Tempo in beats per minute.
	Tempo float64

	// BeatsPerBar is the bar length in beats.
	BeatsPerBar int

	// Bar counts ticks since the metronome was started, starting at 1.
	Bar int64

	// LastTick is the audio time of the most recent tick.
	LastTick float64

	// LoopLength is the tick period in seconds.
	LoopLength float64
}

// IsRunning reports whether the metronome has ticked since it was started.
func (s Snapshot) IsRunning() bool {
	return s.Bar > 0
}

// GetTimeOfBar determines the audio time at which a particular bar started or will start.
func (s Snapshot) GetTimeOfBar(bar int64) float64 {
	return s.LastTick + float64(bar-s.Bar)*s.LoopLength
}

// BeatInterval returns the length of one beat in milliseconds.
func (s Snapshot) BeatInterval() float64 {
	if s.BeatsPerBar <= 0 {
		return 0
	}
	return s.LoopLength * 1000 / float64(s.BeatsPerBar)
}
