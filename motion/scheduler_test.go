package motion

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/viam-modules/pwm-servo/pwm"
)

func TestSchedulerRunsAfterDelay(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var ran atomic.Bool
	s.AfterFunc(20*time.Millisecond, func() { ran.Store(true) })

	mock.Add(10 * time.Millisecond)
	test.That(t, ran.Load(), test.ShouldBeFalse)

	mock.Add(10 * time.Millisecond)
	s.Wait()
	test.That(t, ran.Load(), test.ShouldBeTrue)
}

func TestSchedulerStop(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var ran atomic.Bool
	task := s.AfterFunc(20*time.Millisecond, func() { ran.Store(true) })
	test.That(t, task.Stop(), test.ShouldBeTrue)
	test.That(t, task.Stop(), test.ShouldBeFalse)

	mock.Add(time.Second)
	// A stopped task no longer counts as in flight.
	s.Wait()
	test.That(t, ran.Load(), test.ShouldBeFalse)
}

func TestSchedulerWaitBlocksOnRunningCallback(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	started := make(chan struct{})
	release := make(chan struct{})
	task := s.AfterFunc(0, func() {
		close(started)
		<-release
	})
	go mock.Add(0)
	<-started
	test.That(t, task.Stop(), test.ShouldBeFalse)

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned while a callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-waited
}

// TestEngineConcurrentCommands hammers one engine from several goroutines on the real clock. The
// angle and target must stay inside the limits and no pulse may ever reach a disabled output.
func TestEngineConcurrentCommands(t *testing.T) {
	ctx := context.Background()
	out := pwm.NewFake()
	e, err := NewEngine(out, NewScheduler(clock.New()), Options{TickInterval: time.Millisecond}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				switch r.Intn(5) {
				case 0:
					test.That(t, e.SetEnabled(ctx, r.Intn(2) == 0), test.ShouldBeNil)
				case 1:
					test.That(t, e.SetTargetAngle(ctx, r.Intn(400)-100), test.ShouldBeNil)
				case 2:
					test.That(t, e.SetSpeed(r.Intn(2000)-100), test.ShouldBeNil)
				case 3:
					l := Limits{MinAngle: r.Intn(90), MaxAngle: 90 + r.Intn(90), MinPulseNs: 1000000, MaxPulseNs: 2000000}
					test.That(t, e.SetLimits(ctx, l), test.ShouldBeNil)
				case 4:
					st := e.Status()
					test.That(t, st.Angle, test.ShouldBeBetweenOrEqual, st.Limits.MinAngle, st.Limits.MaxAngle)
					test.That(t, st.Target, test.ShouldBeBetweenOrEqual, st.Limits.MinAngle, st.Limits.MaxAngle)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	test.That(t, e.SetLimits(ctx, DefaultLimits()), test.ShouldBeNil)
	test.That(t, e.SetEnabled(ctx, true), test.ShouldBeNil)
	test.That(t, e.SetSpeed(1000), test.ShouldBeNil)
	test.That(t, e.SetTargetAngle(ctx, 30), test.ShouldBeNil)
	deadline := time.Now().Add(5 * time.Second)
	for e.Moving() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	test.That(t, e.Angle(), test.ShouldEqual, 30)

	test.That(t, e.Close(ctx), test.ShouldBeNil)
	writes := len(out.Writes())
	time.Sleep(20 * time.Millisecond)
	test.That(t, len(out.Writes()), test.ShouldEqual, writes)
	test.That(t, out.DisabledWrites(), test.ShouldEqual, 0)
	test.That(t, out.Enabled(), test.ShouldBeFalse)
}
