package rhythm

import (
	"sync"

	"github.com/robmorgan/loopstation/scheduler"
)

// Scheduler is the part of the scheduler the metronome drives.
type Scheduler interface {
	Start(callback scheduler.Callback, args interface{})
	Insert(t float64, callback scheduler.Callback, args interface{}) int
}

// Metronome fires once per loop period on the audio clock. Each tick
// reschedules itself relative to its own playback time, so the pulse stays
// anchored to the clock instead of drifting with dispatch jitter.
type Metronome struct {
	mu          sync.Mutex
	sched       Scheduler
	period      func() float64
	onTick      func(playbackTime float64)
	beatsPerBar int

	// loop period in seconds as of the last tick
	loopLength float64
	ticks      int64
	lastTick   float64
}

// NewMetronome creates a stopped metronome. period returns the time between
// ticks in seconds and is read on every tick; onTick runs at each tick's playback time.
func NewMetronome(sched Scheduler, beatsPerBar int, period func() float64, onTick func(playbackTime float64)) *Metronome {
	return &Metronome{
		sched:       sched,
		period:      period,
		onTick:      onTick,
		beatsPerBar: beatsPerBar,
	}
}

// Start schedules the first tick at the current audio time.
func (m *Metronome) Start() {
	m.mu.Lock()
	m.ticks = 0
	m.mu.Unlock()

	m.sched.Start(m.tick, nil)
}

func (m *Metronome) tick(e scheduler.Event) {
	period := m.period()

	m.mu.Lock()
	m.ticks++
	m.lastTick = e.PlaybackTime
	m.loopLength = period
	m.mu.Unlock()

	m.onTick(e.PlaybackTime)
	m.sched.Insert(e.PlaybackTime+period, m.tick, nil)
}

// GetTempo returns the tempo in BPM implied by treating one loop period as a bar.
func (m *Metronome) GetTempo() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tempoForBar(m.loopLength, m.beatsPerBar)
}

// GetSnapshot captures the metronome's timeline as of the last tick.
func (m *Metronome) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Tempo:       tempoForBar(m.loopLength, m.beatsPerBar),
		BeatsPerBar: m.beatsPerBar,
		Bar:         m.ticks,
		LastTick:    m.lastTick,
		LoopLength:  m.loopLength,
	}
}

// tempoForBar calculates the BPM for a bar of beats lasting seconds
func tempoForBar(seconds float64, beats int) float64 {
	if seconds <= 0 {
		return 0
	}
	return 60.0 * float64(beats) / seconds
}
