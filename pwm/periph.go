package pwm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Periph drives a PWM pin through the periph.io host drivers.
type Periph struct {
	mu  sync.Mutex
	pin gpio.PinOut
}

// OpenPeriph initializes the periph.io host drivers and looks up the pin by name, for example
// "GPIO18" or "PWM0".
func OpenPeriph(name string) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "couldn't initialize periph host drivers")
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no gpio pin named %q", name)
	}
	return NewPeriph(pin), nil
}

// NewPeriph wraps an already resolved pin.
func NewPeriph(pin gpio.PinOut) *Periph {
	return &Periph{pin: pin}
}

// dutyFor scales dutyNs/periodNs onto gpio.DutyMax.
func dutyFor(dutyNs, periodNs uint32) gpio.Duty {
	return gpio.Duty(uint64(dutyNs) * uint64(gpio.DutyMax) / uint64(periodNs))
}

// frequencyFor converts a period in nanoseconds to a physic.Frequency.
func frequencyFor(periodNs uint32) physic.Frequency {
	return physic.Frequency(int64(physic.Hertz) * 1e9 / int64(periodNs))
}

// Configure writes the duty cycle and frequency in one call.
func (p *Periph) Configure(ctx context.Context, dutyNs, periodNs uint32) error {
	if periodNs == 0 {
		return errors.New("pwm period cannot be 0")
	}
	if dutyNs > periodNs {
		return errors.Errorf("pwm duty %dns is longer than the period %dns", dutyNs, periodNs)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pin.PWM(dutyFor(dutyNs, periodNs), frequencyFor(periodNs)); err != nil {
		return errors.Wrapf(err, "couldn't set pwm on %s", p.pin)
	}
	return nil
}

// Enable is a no-op: the output starts with the first Configure.
func (p *Periph) Enable(ctx context.Context) error {
	return nil
}

// Disable drives the pin low.
func (p *Periph) Disable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pin.Out(gpio.Low); err != nil {
		return errors.Wrapf(err, "couldn't drive %s low", p.pin)
	}
	return nil
}

// Close halts the pin.
func (p *Periph) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrapf(p.pin.Halt(), "couldn't halt %s", p.pin)
}
