package motion

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// A Task is a callback registered with a Scheduler.
type Task interface {
	// Stop prevents the callback from running if it has not started yet. It reports whether the
	// callback was stopped.
	Stop() bool
}

// A Scheduler runs callbacks after a delay on its own goroutines.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task

	// Wait blocks until every callback scheduled so far has either returned or been stopped.
	Wait()
}

// NewScheduler returns a Scheduler backed by clk. Pass clock.New() in production and a
// clock.NewMock() in tests.
func NewScheduler(clk clock.Clock) Scheduler {
	return &clockScheduler{clk: clk}
}

type clockScheduler struct {
	clk      clock.Clock
	inFlight sync.WaitGroup
}

func (s *clockScheduler) AfterFunc(d time.Duration, fn func()) Task {
	s.inFlight.Add(1)
	t := &clockTask{inFlight: &s.inFlight}
	t.timer = s.clk.AfterFunc(d, func() {
		defer t.finish()
		fn()
	})
	return t
}

func (s *clockScheduler) Wait() {
	s.inFlight.Wait()
}

type clockTask struct {
	timer    *clock.Timer
	once     sync.Once
	inFlight *sync.WaitGroup
}

func (t *clockTask) Stop() bool {
	if t.timer.Stop() {
		t.finish()
		return true
	}
	return false
}

func (t *clockTask) finish() {
	t.once.Do(t.inFlight.Done)
}
