package motion

import (
	"context"

	"go.uber.org/multierr"
)

// Status is a consistent snapshot of the engine state.
type Status struct {
	Enabled bool
	Angle   int
	Target  int
	Speed   int
	Limits  Limits
	Moving  bool
}

// SetEnabled turns the PWM output on or off. Disabling cancels the control loop before the
// output is switched off. Enabling re-asserts the current angle and resumes any outstanding
// motion. The enabled flag only changes when the backend call succeeds.
func (e *Engine) SetEnabled(ctx context.Context, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	switch {
	case on && !e.enabled:
		if err := e.pwm.Enable(ctx); err != nil {
			return hardwareError("enable", err)
		}
		e.enabled = true
		err := e.apply(ctx, e.current)
		if e.speed > 0 {
			e.kickLocked()
		}
		return err
	case !on && e.enabled:
		e.cancelLocked()
		if err := e.pwm.Disable(ctx); err != nil {
			if e.needsMotion() {
				e.kickLocked()
			}
			return hardwareError("disable", err)
		}
		e.enabled = false
	}
	return nil
}

// SetTargetAngle stores angle, clamped into the limits, as the target. With speed 0 the servo
// jumps there at once; otherwise the control loop moves it.
func (e *Engine) SetTargetAngle(ctx context.Context, angle int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	e.target = e.limits.Clamp(angle)
	if !e.enabled {
		return nil
	}
	if e.speed == 0 {
		return e.apply(ctx, e.target)
	}
	e.kickLocked()
	return nil
}

// Angle returns the last angle written to the hardware.
func (e *Engine) Angle() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Target returns the angle the servo is moving towards.
func (e *Engine) Target() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// SetSpeed sets the speed in degrees per second. Negative values become 0, which means jump, and
// values above math.MaxUint32 saturate.
func (e *Engine) SetSpeed(dps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	e.speed = clampSpeed(dps)
	if e.needsMotion() {
		e.kickLocked()
	}
	return nil
}

// Speed returns the speed in degrees per second.
func (e *Engine) Speed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.speed)
}

// SetLimits replaces the limits. Malformed limits are rejected without any change. The current
// and target angles are clamped into the new range and, while enabled, the current angle is
// written again under the new pulse bounds. If that write fails the previous limits are kept.
func (e *Engine) SetLimits(ctx context.Context, l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	prevLimits, prevTarget := e.limits, e.target
	e.limits = l
	e.target = l.Clamp(e.target)
	if e.enabled {
		if err := e.apply(ctx, l.Clamp(e.current)); err != nil {
			e.limits, e.target = prevLimits, prevTarget
			return err
		}
	} else {
		e.current = l.Clamp(e.current)
	}
	if e.needsMotion() {
		e.kickLocked()
	}
	return nil
}

// Limits returns the current limits.
func (e *Engine) Limits() Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// Enabled reports whether the PWM output is driven.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Moving reports whether the control loop still has distance to cover.
func (e *Engine) Moving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.needsMotion()
}

// Status returns a snapshot of the whole state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Enabled: e.enabled,
		Angle:   e.current,
		Target:  e.target,
		Speed:   int(e.speed),
		Limits:  e.limits,
		Moving:  e.needsMotion(),
	}
}

// Halt stops gradual motion where it is by making the current angle the target.
func (e *Engine) Halt(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.target = e.current
	return nil
}

// Close cancels the control loop, waits for any tick still running and switches the output off.
// The engine cannot be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelLocked()
	e.mu.Unlock()

	// Ticks that fired before the cancellation need mu to notice they are stale.
	e.sched.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLoop()
	var err error
	if e.enabled {
		if derr := e.pwm.Disable(ctx); derr != nil {
			err = multierr.Append(err, hardwareError("disable", derr))
		}
		e.enabled = false
	}
	if closer, ok := e.pwm.(interface{ Close(context.Context) error }); ok {
		err = multierr.Append(err, closer.Close(ctx))
	}
	return err
}
