package motion

import "math/bits"

// Limits define the accepted angle range and the pulse widths it maps onto.
type Limits struct {
	MinAngle   int    `json:"min_angle"`
	MaxAngle   int    `json:"max_angle"`
	MinPulseNs uint32 `json:"min_pulse_ns"`
	MaxPulseNs uint32 `json:"max_pulse_ns"`
}

// Default servo limits: 0..180 degrees over a 1.0..2.0 ms pulse.
const (
	DefaultMinAngle   = 0
	DefaultMaxAngle   = 180
	DefaultMinPulseNs = 1000000
	DefaultMaxPulseNs = 2000000
)

// DefaultLimits returns the limits of a standard hobby servo.
func DefaultLimits() Limits {
	return Limits{
		MinAngle:   DefaultMinAngle,
		MaxAngle:   DefaultMaxAngle,
		MinPulseNs: DefaultMinPulseNs,
		MaxPulseNs: DefaultMaxPulseNs,
	}
}

// Validate rejects empty or inverted ranges.
func (l Limits) Validate() error {
	if l.MaxAngle <= l.MinAngle {
		return &ValidationError{
			Field:  "limits",
			Reason: "max_angle must be greater than min_angle",
		}
	}
	if l.MaxPulseNs <= l.MinPulseNs {
		return &ValidationError{
			Field:  "limits",
			Reason: "max_pulse_ns must be greater than min_pulse_ns",
		}
	}
	return nil
}

// Clamp returns angle limited to [MinAngle, MaxAngle].
func (l Limits) Clamp(angle int) int {
	if angle < l.MinAngle {
		return l.MinAngle
	}
	if angle > l.MaxAngle {
		return l.MaxAngle
	}
	return angle
}

// PulseWidth maps angle onto a pulse width in nanoseconds by linear interpolation between the
// pulse limits. The angle is clamped first and the result is truncated, so it never leaves
// [MinPulseNs, MaxPulseNs]. l must be valid.
func PulseWidth(angle int, l Limits) uint32 {
	angle = l.Clamp(angle)
	span := uint64(l.MaxPulseNs - l.MinPulseNs)
	offset := uint64(angle) - uint64(l.MinAngle)
	angleRange := uint64(l.MaxAngle) - uint64(l.MinAngle)
	// offset <= angleRange, so the 128-bit quotient fits in 64 bits and is at most span.
	hi, lo := bits.Mul64(span, offset)
	q, _ := bits.Div64(hi, lo, angleRange)
	return l.MinPulseNs + uint32(q)
}
