package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newTestScheduler(opts ...Option) (*Scheduler, *testingclock.FakeClock) {
	fc := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(fc, NewAudioClock(fc), opts...), fc
}

func TestAudioClock(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Now())
	ac := NewAudioClock(fc)
	require.Equal(t, 0.0, ac.CurrentTime())

	fc.Step(1500 * time.Millisecond)
	require.InDelta(t, 1.5, ac.CurrentTime(), 1e-9)
}

func TestInsertNeverFiresEarly(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler()
	var fired []float64
	s.Start(func(Event) {}, nil)
	s.Insert(0.5, func(e Event) {
		fired = append(fired, e.PlaybackTime)
	}, nil)

	fc.Step(499 * time.Millisecond)
	s.Process()
	require.Empty(t, fired)

	fc.Step(2 * time.Millisecond)
	s.Process()
	require.Equal(t, []float64{0.5}, fired)

	// one-shot
	fc.Step(time.Second)
	s.Process()
	require.Len(t, fired, 1)
}

func TestEqualTimesFireInInsertionOrder(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler(WithLateTolerance(time.Hour))
	var order []string
	record := func(e Event) {
		order = append(order, e.Args.(string))
	}
	s.Insert(0.2, record, "c")
	s.Insert(0.1, record, "a")
	s.Insert(0.1, record, "b")
	s.Start(func(Event) {}, nil)

	fc.Step(time.Second)
	s.Process()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestStartSelfReschedules(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler()
	var ticks []float64
	var tick Callback
	tick = func(e Event) {
		ticks = append(ticks, e.PlaybackTime)
		s.Insert(e.PlaybackTime+0.1, tick, nil)
	}
	s.Start(tick, nil)
	require.True(t, s.Running())

	for i := 0; i < 30; i++ {
		s.Process()
		fc.Step(10 * time.Millisecond)
	}
	require.Len(t, ticks, 3)
	assert.InDelta(t, 0.0, ticks[0], 1e-9)
	assert.InDelta(t, 0.1, ticks[1], 1e-9)
	assert.InDelta(t, 0.2, ticks[2], 1e-9)
}

func TestStopFlushDropsQueuedEvents(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler()
	fired := 0
	s.Start(func(Event) { fired++ }, nil)
	s.Insert(0.05, func(Event) { fired++ }, nil)
	require.Equal(t, 2, s.Pending())

	s.Stop(true)
	require.False(t, s.Running())
	require.Equal(t, 0, s.Pending())

	// restarting must not resurrect anything inserted before the flush
	s.Start(func(Event) {}, nil)
	fc.Step(time.Second)
	s.Process()
	require.Equal(t, 0, fired)
}

func TestStopWithoutFlushKeepsQueue(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler(WithLateTolerance(time.Hour))
	fired := 0
	s.Insert(0.05, func(Event) { fired++ }, nil)
	s.Start(func(Event) {}, nil)
	s.Stop(false)

	fc.Step(time.Second)
	s.Process()
	require.Equal(t, 0, fired)
	require.Equal(t, 2, s.Pending())

	s.Start(func(Event) {}, nil)
	s.Process()
	require.Equal(t, 1, fired)
}

func TestFlushFromCallbackCancelsSamePass(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler(WithLateTolerance(time.Hour))
	fired := []string{}
	s.Insert(0.1, func(Event) {
		fired = append(fired, "stopper")
		s.Stop(true)
	}, nil)
	s.Insert(0.1, func(Event) {
		fired = append(fired, "orphan")
	}, nil)
	s.Start(func(Event) {}, nil)

	fc.Step(time.Second)
	s.Process()
	require.Equal(t, []string{"stopper"}, fired)
}

func TestFlushUnderDispatchLock(t *testing.T) {
	t.Parallel()

	owner := &sync.Mutex{}
	s, fc := newTestScheduler(WithDispatchLock(owner), WithLateTolerance(time.Hour))
	fired := 0
	s.Start(func(Event) { fired++ }, nil)
	fc.Step(time.Second)

	// the owner flushes while a dispatch pass is waiting on its lock
	owner.Lock()
	done := make(chan struct{})
	go func() {
		s.Process()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	s.Stop(true)
	owner.Unlock()
	<-done

	require.Equal(t, 0, fired)
}

func TestLateDispatchIsReported(t *testing.T) {
	t.Parallel()

	var reported []error
	s, fc := newTestScheduler(
		WithLateTolerance(50*time.Millisecond),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)
	fired := 0
	s.Start(func(Event) { fired++ }, nil)

	fc.Step(200 * time.Millisecond)
	s.Process()
	require.Equal(t, 1, fired)
	require.Len(t, reported, 1)
	require.True(t, errors.Is(reported[0], ErrLateDispatch))
}

func TestRunProcessesOnTimer(t *testing.T) {
	t.Parallel()

	s, fc := newTestScheduler(WithInterval(25*time.Millisecond), WithLateTolerance(time.Hour))
	fired := make(chan float64, 1)
	s.Start(func(e Event) { fired <- e.PlaybackTime }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go s.Run(ctx, &wg)

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(25 * time.Millisecond)

	select {
	case at := <-fired:
		require.Equal(t, 0.0, at)
	case <-time.After(time.Second):
		t.Fatal("scheduled callback did not fire")
	}

	cancel()
	wg.Wait()
}
