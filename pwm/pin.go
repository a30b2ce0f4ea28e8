// Package pwm contains PWM output backends for the servo motion engine.
package pwm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/board"
)

// Pin drives a PWM capable GPIO pin of an rdk board.
type Pin struct {
	mu     sync.Mutex
	pin    board.GPIOPin
	freqHz uint
}

// NewPin wraps pin. The pin's frequency is only set once the first pulse is written.
func NewPin(pin board.GPIOPin) *Pin {
	return &Pin{pin: pin}
}

// Configure sets the pin frequency to match periodNs, if it changed, and the duty cycle to
// dutyNs/periodNs.
func (p *Pin) Configure(ctx context.Context, dutyNs, periodNs uint32) error {
	if periodNs == 0 {
		return errors.New("pwm period cannot be 0")
	}
	if dutyNs > periodNs {
		return errors.Errorf("pwm duty %dns is longer than the period %dns", dutyNs, periodNs)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	freqHz := uint(1e9 / uint64(periodNs))
	if freqHz != p.freqHz {
		if err := p.pin.SetPWMFreq(ctx, freqHz, nil); err != nil {
			return errors.Wrapf(err, "couldn't set pwm frequency to %dHz", freqHz)
		}
		p.freqHz = freqHz
	}
	if err := p.pin.SetPWM(ctx, float64(dutyNs)/float64(periodNs), nil); err != nil {
		return errors.Wrap(err, "couldn't set pwm duty cycle")
	}
	return nil
}

// Enable re-asserts the last frequency. Board pins have no separate output enable, the output
// starts with the first non-zero duty cycle.
func (p *Pin) Enable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freqHz == 0 {
		return nil
	}
	if err := p.pin.SetPWMFreq(ctx, p.freqHz, nil); err != nil {
		return errors.Wrap(err, "couldn't enable pwm output")
	}
	return nil
}

// Disable holds the pin low.
func (p *Pin) Disable(ctx context.Context) error {
	if err := p.pin.SetPWM(ctx, 0, nil); err != nil {
		return errors.Wrap(err, "couldn't disable pwm output")
	}
	return nil
}
