// Package motion implements the motion control core of a PWM hobby servo: the angle to pulse
// mapping, a speed-limited control loop and the commands that drive it.
package motion

import (
	"context"
	"math"
	"math/bits"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// Fixed timing of a standard hobby servo.
const (
	DefaultPeriod       = 20 * time.Millisecond // 50 Hz
	DefaultTickInterval = 20 * time.Millisecond
	DefaultAngle        = 90
)

// PWM is the hardware output the engine drives. Calls are synchronous and are made while the
// engine lock is held.
type PWM interface {
	Configure(ctx context.Context, dutyNs, periodNs uint32) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Options configure an Engine at construction. Zero values select the defaults.
type Options struct {
	Period       time.Duration
	TickInterval time.Duration
	Limits       *Limits
	StartAngle   *int
	Speed        int
}

func (o Options) validate() error {
	if o.Period < 0 || o.Period > time.Duration(1<<32-1) {
		return &ValidationError{Field: "period", Reason: "must fit in 32 bits of nanoseconds"}
	}
	if o.TickInterval < 0 {
		return &ValidationError{Field: "tick_interval", Reason: "cannot be negative"}
	}
	if o.TickInterval > 0 && o.TickInterval < time.Millisecond {
		return &ValidationError{Field: "tick_interval", Reason: "must be at least 1ms"}
	}
	if o.Limits != nil {
		if err := o.Limits.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// An Engine owns the state of one servo and runs its control loop.
type Engine struct {
	mu     sync.Mutex
	pwm    PWM
	sched  Scheduler
	logger logging.Logger

	periodNs     uint32
	tickInterval time.Duration

	enabled bool
	current int
	target  int
	speed   uint32
	limits  Limits

	// pending is the scheduled tick, nil while idle. epoch advances on every cancellation so
	// that a tick which already fired and is waiting for mu knows it must not run.
	pending Task
	epoch   uint64
	closed  bool

	// ticks have no caller, they run under this context until Close.
	loopCtx    context.Context
	cancelLoop context.CancelFunc
}

// NewEngine returns a disabled engine. Nothing is written to the PWM output until it is enabled.
func NewEngine(pwm PWM, sched Scheduler, opts Options, logger logging.Logger) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		pwm:          pwm,
		sched:        sched,
		logger:       logger,
		periodNs:     uint32(DefaultPeriod),
		tickInterval: DefaultTickInterval,
		limits:       DefaultLimits(),
	}
	if opts.Period != 0 {
		e.periodNs = uint32(opts.Period)
	}
	if opts.TickInterval != 0 {
		e.tickInterval = opts.TickInterval
	}
	if opts.Limits != nil {
		e.limits = *opts.Limits
	}
	start := DefaultAngle
	if opts.StartAngle != nil {
		start = *opts.StartAngle
	}
	e.current = e.limits.Clamp(start)
	e.target = e.current
	e.speed = clampSpeed(opts.Speed)
	e.loopCtx, e.cancelLoop = context.WithCancel(context.Background())
	return e, nil
}

// TickInterval returns the control loop period.
func (e *Engine) TickInterval() time.Duration {
	return e.tickInterval
}

// apply writes the pulse for angle. It does nothing while disabled and leaves current untouched
// if the backend fails.
func (e *Engine) apply(ctx context.Context, angle int) error {
	if !e.enabled {
		return nil
	}
	duty := PulseWidth(angle, e.limits)
	if err := e.pwm.Configure(ctx, duty, e.periodNs); err != nil {
		return hardwareError("configure", err)
	}
	e.current = angle
	return nil
}

func (e *Engine) needsMotion() bool {
	return e.enabled && e.speed > 0 && e.current != e.target
}

// step is the number of degrees moved per tick, rounded half up and never less than one.
func (e *Engine) step() uint64 {
	ms := uint64(e.tickInterval / time.Millisecond)
	hi, lo := bits.Mul64(uint64(e.speed), ms)
	lo, carry := bits.Add64(lo, 500, 0)
	if hi+carry >= 1000 {
		return math.MaxUint64
	}
	step, _ := bits.Div64(hi+carry, lo, 1000)
	if step == 0 {
		step = 1
	}
	return step
}

func clampSpeed(dps int) uint32 {
	switch {
	case dps < 0:
		return 0
	case uint64(dps) > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(dps)
	}
}

func (e *Engine) nextAngle() int {
	delta := e.target - e.current
	dist := uint64(delta)
	if delta < 0 {
		dist = uint64(-delta)
	}
	if step := e.step(); step < dist {
		dist = step
	}
	if delta < 0 {
		return e.current - int(dist)
	}
	return e.current + int(dist)
}

func (e *Engine) tick(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch != e.epoch {
		return
	}
	e.pending = nil

	if e.needsMotion() {
		next := e.nextAngle()
		if err := e.apply(e.loopCtx, next); err != nil {
			e.logger.Errorf("servo tick could not move from %d to %d: %v", e.current, next, err)
		} else {
			e.logger.Debugf("servo tick moved to %d (target %d)", e.current, e.target)
		}
	}

	if e.needsMotion() {
		e.scheduleLocked(e.tickInterval)
	}
}

func (e *Engine) scheduleLocked(d time.Duration) {
	epoch := e.epoch
	e.pending = e.sched.AfterFunc(d, func() { e.tick(epoch) })
}

// kickLocked starts the control loop unless a tick is already pending.
func (e *Engine) kickLocked() {
	if e.pending != nil || e.closed {
		return
	}
	e.scheduleLocked(0)
}

// cancelLocked stops the pending tick and invalidates any tick that has fired but not yet taken
// the lock. Because the caller holds the lock, no tick is mid-step.
func (e *Engine) cancelLocked() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.epoch++
}
