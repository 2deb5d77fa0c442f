// Package looper records incoming audio into loops and plays them back in
// sync with a metronome derived from the first loop's length.
package looper

import (
	"context"
	"sync"

	"github.com/robmorgan/loopstation/buffer"
	"github.com/robmorgan/loopstation/config"
	"github.com/robmorgan/loopstation/logger"
	"github.com/robmorgan/loopstation/rhythm"
	"github.com/robmorgan/loopstation/scheduler"
	"github.com/robmorgan/loopstation/utils"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Status is a read-only snapshot of the looper for display.
type Status struct {
	State         State
	IsRecording   bool
	IsPlaying     bool
	IsOverdubbing bool
	HasRecordings bool
	Loops         int
	LoopLength    float64
	Tempo         float64
	Bar           int64

	// BeatInterval is the beat length in milliseconds.
	BeatInterval float64

	// NextBarAt is the audio time of the next metronome tick, zero until
	// the metronome has ticked.
	NextBarAt float64
}

// Looper drives recording, overdubbing and playback of an ordered set of loops.
//
// All entry points and scheduled callbacks are serialized on one mutex, so
// audio callbacks, button presses and metronome ticks observe each other in
// the order they happen.
type Looper struct {
	mu        sync.Mutex
	cfg       config.LooperConfig
	output    Output
	sched     *scheduler.Scheduler
	metronome *rhythm.Metronome
	log       *logrus.Logger

	loops      []*Loop
	current    int
	loopLength float64
	state      State
}

// New creates a stopped looper. clk drives the scheduler's polling timer,
// audio is the clock loops are scheduled against and out receives sealed loops.
func New(cfg config.LooperConfig, clk clock.Clock, audio scheduler.AudioClock, out Output) (*Looper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Looper{
		cfg:        cfg,
		output:     out,
		log:        logger.GetProjectLogger(),
		loopLength: cfg.MaxLoopDuration.Seconds(),
	}
	l.sched = scheduler.New(clk, audio,
		scheduler.WithDispatchLock(&l.mu),
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithLateTolerance(cfg.LateTolerance),
		scheduler.WithErrorHandler(func(err error) {
			l.log.WithField("loop_length", l.loopLength).Warn(err)
		}),
	)
	l.metronome = rhythm.NewMetronome(l.sched, cfg.BeatsPerBar, l.tickPeriod, l.playLoops)

	l.log.WithFields(logrus.Fields{
		"max_loop_duration": cfg.MaxLoopDuration,
		"max_play_count":    cfg.MaxPlayCount,
		"decay_factor":      cfg.DecayFactor,
		"final_gain":        utils.GainAfter(cfg.DecayFactor, cfg.MaxPlayCount),
	}).Debug("looper ready")
	return l, nil
}

// Run starts dispatching scheduled playback in the background until ctx is cancelled.
func (l *Looper) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go l.sched.Run(ctx, wg)
}

// OnRecordPress handles the record button.
func (l *Looper) OnRecordPress() {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.state
	switch {
	case l.state == StateStopped:
		l.reset()
		l.startRecording()
	case l.isOverdubbing():
		l.stopRecording()
		l.stopPlaying()
	case l.state == StateRecording:
		l.startOverdubbing()
	case l.state == StatePlaying:
		// Starting a new layer from plain playback is not supported yet.
		l.log.Debug("record pressed while playing, ignoring")
	}
	l.logTransition("record", from)
}

// OnPlaybackPress handles the play/stop button.
func (l *Looper) OnPlaybackPress() {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.state
	switch {
	case l.state == StatePlaying:
		l.stopPlaying()
	case l.state == StateRecording:
		l.stopRecording()
		l.startPlaying()
	case l.state == StateOverdubbing:
		l.stopRecording()
	case l.hasRecordings():
		l.startPlaying()
	}
	l.logTransition("playback", from)
}

// OnAudioProcess receives the next chunk from the audio input. The looper
// takes ownership of chunk.
func (l *Looper) OnAudioProcess(chunk *buffer.Buffer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.Recording() || chunk == nil {
		return
	}

	cur := l.loops[l.current]
	cur.append(chunk)
	if cur.Duration() <= l.loopLength-l.guard() {
		return
	}

	l.log.WithFields(logrus.Fields{"loop_id": cur.ID(), "duration": cur.Duration()}).Debug("loop sealed")
	cur.seal(l.output)
	l.incrementLoop()
}

func (l *Looper) IsRecording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Recording()
}

func (l *Looper) IsPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Playing()
}

func (l *Looper) IsOverdubbing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isOverdubbing()
}

func (l *Looper) HasRecordings() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasRecordings()
}

// Status returns a snapshot of the looper state.
func (l *Looper) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.metronome.GetSnapshot()
	var next float64
	if l.state.Playing() && snap.IsRunning() {
		next = snap.GetTimeOfBar(snap.Bar + 1)
	}
	return Status{
		State:         l.state,
		IsRecording:   l.state.Recording(),
		IsPlaying:     l.state.Playing(),
		IsOverdubbing: l.isOverdubbing(),
		HasRecordings: l.hasRecordings(),
		Loops:         len(l.loops),
		LoopLength:    l.loopLength,
		Tempo:         snap.Tempo,
		Bar:           snap.Bar,
		BeatInterval:  snap.BeatInterval(),
		NextBarAt:     next,
	}
}

func (l *Looper) isOverdubbing() bool {
	return l.state.Recording() && len(l.loops) > 1
}

func (l *Looper) hasRecordings() bool {
	return len(l.loops) > 0
}

func (l *Looper) guard() float64 {
	return l.cfg.GuardInterval.Seconds()
}

func (l *Looper) startRecording() {
	l.incrementLoop()
	l.state = stateFor(true, l.state.Playing())
}

// stopRecording locks the loop length from the first loop. An unfinished
// overdub layer is discarded.
func (l *Looper) stopRecording() {
	l.lockLoopLength()

	cur := l.loops[l.current]
	if l.current == 0 {
		cur.seal(l.output)
	} else if !cur.Sealed() {
		l.log.WithFields(logrus.Fields{"loop_id": cur.ID(), "duration": cur.Duration()}).Debug("discarding unfinished layer")
		cur.Dispose()
	}

	l.state = stateFor(false, l.state.Playing())
	l.log.WithFields(logrus.Fields{"loops": len(l.loops), "loop_length": l.loopLength}).Info("stopped recording")
}

func (l *Looper) startOverdubbing() {
	l.lockLoopLength()
	l.loops[0].seal(l.output)
	l.incrementLoop()
	l.startPlaying()
	l.log.WithField("loop_length", l.loopLength).Info("started overdubbing")
}

func (l *Looper) startPlaying() {
	l.loops[0].seal(l.output)
	l.metronome.Start()
	l.state = stateFor(l.state.Recording(), true)
}

func (l *Looper) stopPlaying() {
	l.state = stateFor(l.state.Recording(), false)
	l.sched.Stop(true)

	now := l.sched.CurrentTime()
	for _, each := range l.loops {
		each.Stop(now)
	}
}

// lockLoopLength always takes the length from the first loop, whichever layer
// is being recorded. A first loop shorter than the minimum is clamped up to it
// so the metronome period stays positive. Once the first loop has faded out
// the length it left behind stays locked.
func (l *Looper) lockLoopLength() {
	if l.loops[0].Disposed() {
		return
	}
	d := l.loops[0].Duration()
	if shortest := l.cfg.MinLoopDuration.Seconds(); d < shortest {
		l.log.WithFields(logrus.Fields{"duration": d, "loop_length": shortest}).Warn("first loop is shorter than the minimum, clamping")
		d = shortest
	}
	l.loopLength = d
}

func (l *Looper) tickPeriod() float64 {
	return l.loopLength - l.guard()
}

// playLoops runs on every metronome tick. While overdubbing it also fades
// every layer it plays and removes the ones that have used up their plays.
func (l *Looper) playLoops(at float64) {
	overdubbing := l.isOverdubbing()
	for _, each := range l.loops {
		if !each.Sealed() || each.Buffer().Len() == 0 {
			continue
		}
		each.Play(at)
		if overdubbing {
			l.decay(each)
		}
	}
}

func (l *Looper) decay(lp *Loop) {
	gain := lp.Attenuate()
	if !lp.Exhausted() {
		return
	}
	l.log.WithFields(logrus.Fields{"loop_id": lp.ID(), "play_count": lp.PlayCount(), "gain": gain}).Debug("layer faded out")
	lp.Dispose()
}

func (l *Looper) incrementLoop() {
	l.current = len(l.loops)
	l.loops = append(l.loops, newLoop(l.current, l.cfg.MaxPlayCount, l.cfg.DecayFactor))
}

func (l *Looper) reset() {
	for _, each := range l.loops {
		each.Dispose()
	}
	l.loops = nil
	l.current = 0
	l.loopLength = l.cfg.MaxLoopDuration.Seconds()
}

func (l *Looper) logTransition(button string, from State) {
	l.log.WithFields(logrus.Fields{
		"button":      button,
		"from":        from,
		"to":          l.state,
		"overdubbing": l.isOverdubbing(),
		"loops":       len(l.loops),
	}).Info("transport")
}
