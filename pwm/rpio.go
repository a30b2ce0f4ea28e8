//go:build linux

package pwm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// rpioTickNs is the resolution of the PWM counter. A 20ms period becomes 20000 counts.
const rpioTickNs = 1000

// RPIO drives a Raspberry Pi hardware PWM pin through /dev/gpiomem.
type RPIO struct {
	mu      sync.Mutex
	pin     rpio.Pin
	freq    int
	cycle   uint32
	enabled bool
}

// OpenRPIO maps the GPIO registers and returns a backend for pin. Close unmaps them.
func OpenRPIO(pin int) (*RPIO, error) {
	if !RPIOPins[pin] {
		return nil, errors.Errorf("pin %d has no hardware pwm", pin)
	}
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "couldn't open gpio memory")
	}
	return &RPIO{pin: rpio.Pin(pin)}, nil
}

// Configure sets the counter clock so one count lasts rpioTickNs and writes the duty cycle.
func (r *RPIO) Configure(ctx context.Context, dutyNs, periodNs uint32) error {
	if periodNs < rpioTickNs {
		return errors.Errorf("pwm period %dns is shorter than the %dns resolution", periodNs, rpioTickNs)
	}
	if dutyNs > periodNs {
		return errors.Errorf("pwm duty %dns is longer than the period %dns", dutyNs, periodNs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cycle := periodNs / rpioTickNs
	freq := int(cycle) * int(1e9/periodNs)
	if freq != r.freq {
		r.pin.Freq(freq)
		r.freq = freq
	}
	r.cycle = cycle
	r.pin.DutyCycle(dutyNs/rpioTickNs, cycle)
	return nil
}

// Enable switches the pin to its PWM function.
func (r *RPIO) Enable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pin.Mode(rpio.Pwm)
	r.enabled = true
	return nil
}

// Disable writes a zero duty cycle.
func (r *RPIO) Disable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled && r.cycle != 0 {
		r.pin.DutyCycle(0, r.cycle)
	}
	r.enabled = false
	return nil
}

// Close unmaps the GPIO registers.
func (r *RPIO) Close(ctx context.Context) error {
	return errors.Wrap(rpio.Close(), "couldn't close gpio memory")
}
