//go:build !linux

package pwm

import (
	"context"

	"github.com/pkg/errors"
)

// RPIO is only available on linux.
type RPIO struct{}

// OpenRPIO always fails off linux.
func OpenRPIO(pin int) (*RPIO, error) {
	return nil, errors.New("rpio pwm is only supported on linux")
}

// Configure is never reached off linux.
func (r *RPIO) Configure(ctx context.Context, dutyNs, periodNs uint32) error {
	return errors.New("rpio pwm is only supported on linux")
}

// Enable is never reached off linux.
func (r *RPIO) Enable(ctx context.Context) error {
	return errors.New("rpio pwm is only supported on linux")
}

// Disable is never reached off linux.
func (r *RPIO) Disable(ctx context.Context) error {
	return errors.New("rpio pwm is only supported on linux")
}

// Close is never reached off linux.
func (r *RPIO) Close(ctx context.Context) error {
	return nil
}
