package motion

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by every command issued after Close.
var ErrClosed = errors.New("servo motion engine is closed")

// ValidationError reports a malformed limit or option. It is returned before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// HardwareError wraps a failure returned by the PWM backend.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("pwm %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the backend error.
func (e *HardwareError) Unwrap() error {
	return e.Err
}

func hardwareError(op string, err error) error {
	return &HardwareError{Op: op, Err: err}
}
