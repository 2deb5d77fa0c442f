// Package scheduler fires callbacks at absolute audio-clock times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robmorgan/loopstation/logger"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"
)

const (
	DefaultInterval      = 25 * time.Millisecond
	DefaultLateTolerance = 50 * time.Millisecond
)

// ErrLateDispatch is reported when an event fires well after its requested time.
var ErrLateDispatch = errors.New("scheduler: late dispatch")

// Event is passed to a callback when it fires.
type Event struct {
	// PlaybackTime is the audio time the event was scheduled for. It is never
	// later than the current audio time when the callback runs.
	PlaybackTime float64

	Args interface{}
}

type Callback func(e Event)

type scheduledEvent struct {
	id         int
	time       float64
	callback   Callback
	args       interface{}
	generation uint64
}

type Option func(*Scheduler)

// WithInterval sets how often Run polls for due events.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithLateTolerance sets how late an event may fire before it is reported.
func WithLateTolerance(d time.Duration) Option {
	return func(s *Scheduler) {
		s.lateTolerance = d.Seconds()
	}
}

// WithDispatchLock makes callbacks run while holding l. Calling Stop(true)
// while holding the same lock guarantees no queued callback fires afterwards.
func WithDispatchLock(l sync.Locker) Option {
	return func(s *Scheduler) {
		s.dispatch = l
	}
}

// WithErrorHandler installs a hook for dispatch problems such as ErrLateDispatch.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// Scheduler keeps a time-ordered queue of one-shot callbacks. Dispatch is
// driven either by Run or by calling Process directly.
type Scheduler struct {
	mu            sync.Mutex
	clock         clock.Clock
	audio         AudioClock
	interval      time.Duration
	lateTolerance float64
	dispatch      sync.Locker
	onError       func(error)

	events     []*scheduledEvent
	running    bool
	generation uint64
	nextID     int
}

// New creates a stopped scheduler. clk drives the polling timer and audio is
// the time base events are scheduled against.
func New(clk clock.Clock, audio AudioClock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:         clk,
		audio:         audio,
		interval:      DefaultInterval,
		lateTolerance: DefaultLateTolerance.Seconds(),
		dispatch:      &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onError == nil {
		s.onError = func(err error) {
			logger.GetProjectLogger().Warn(err)
		}
	}
	return s
}

// CurrentTime returns the audio clock time in seconds.
func (s *Scheduler) CurrentTime() float64 {
	return s.audio.CurrentTime()
}

// Insert schedules callback to fire once at audio time t and returns its id.
// Events with the same time fire in insertion order.
func (s *Scheduler) Insert(t float64, callback Callback, args interface{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t, callback, args)
}

func (s *Scheduler) insertLocked(t float64, callback Callback, args interface{}) int {
	s.nextID++
	ev := &scheduledEvent{
		id:         s.nextID,
		time:       t,
		callback:   callback,
		args:       args,
		generation: s.generation,
	}
	i := slices.IndexFunc(s.events, func(e *scheduledEvent) bool {
		return e.time > t
	})
	if i < 0 {
		i = len(s.events)
	}
	s.events = slices.Insert(s.events, i, ev)
	return ev.id
}

// Start begins dispatching and schedules callback at the current audio time.
// The callback is expected to Insert its own next occurrence.
func (s *Scheduler) Start(callback Callback, args interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true
	s.insertLocked(s.audio.CurrentTime(), callback, args)
}

// Stop halts dispatching. With flush set every queued event is dropped and no
// event inserted before the call will ever fire.
func (s *Scheduler) Stop(flush bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if flush {
		s.events = nil
		s.generation++
	}
}

// Running reports whether the scheduler is dispatching events.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Process fires every event that is due at the current audio time. Events
// inserted by a callback are left for the next pass.
func (s *Scheduler) Process() {
	now := s.audio.CurrentTime()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	n := 0
	for n < len(s.events) && s.events[n].time <= now {
		n++
	}
	due := make([]*scheduledEvent, n)
	copy(due, s.events[:n])
	s.events = slices.Delete(s.events, 0, n)
	s.mu.Unlock()

	for _, ev := range due {
		s.fire(ev, now)
	}
}

func (s *Scheduler) fire(ev *scheduledEvent, now float64) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	live := s.running && ev.generation == s.generation
	s.mu.Unlock()
	if !live {
		return
	}

	if late := now - ev.time; late > s.lateTolerance {
		s.onError(fmt.Errorf("%w: event %d due at %.3fs fired %.1fms late", ErrLateDispatch, ev.id, ev.time, late*1000))
	}
	ev.callback(Event{PlaybackTime: ev.time, Args: ev.args})
}

// Run polls for due events every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := logger.GetProjectLogger()
	logger.Debugf("scheduler started, interval=%v", s.interval)

	t := s.clock.NewTimer(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("scheduler shutdown")
			return
		case <-t.C():
			s.Process()
			t.Reset(s.interval)
		}
	}
}
