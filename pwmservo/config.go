package pwmservo

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/pwm-servo/motion"
	"github.com/viam-modules/pwm-servo/pwm"
)

// Supported PWM backends.
const (
	BackendBoard  = "board"
	BackendRPIO   = "rpio"
	BackendPeriph = "periph"
	BackendFake   = "fake"
)

const (
	defaultFrequencyHz = 50
	maxFrequencyHz     = 450
)

// Config describes the configuration of a PWM servo.
type Config struct {
	Backend        string `json:"backend,omitempty"` // board (default), rpio, periph or fake
	BoardName      string `json:"board,omitempty"`   // used only by the board backend
	Pin            string `json:"pin,omitempty"`
	FrequencyHz    uint   `json:"frequency_hz,omitempty"`
	TickIntervalMs uint   `json:"tick_interval_ms,omitempty"`

	MinAngleDeg *int    `json:"min_angle_deg,omitempty"`
	MaxAngleDeg *int    `json:"max_angle_deg,omitempty"`
	MinPulseNs  *uint32 `json:"min_pulse_ns,omitempty"`
	MaxPulseNs  *uint32 `json:"max_pulse_ns,omitempty"`

	StartingPositionDeg *int `json:"starting_position_deg,omitempty"`
	SpeedDegsPerSec     int  `json:"speed_degs_per_sec,omitempty"`
	EnableOnStart       bool `json:"enable_on_start,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) ([]string, []string, error) {
	var deps []string
	switch config.backend() {
	case BackendBoard:
		if config.BoardName == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "board")
		}
		if config.Pin == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "pin")
		}
		deps = append(deps, config.BoardName)
	case BackendRPIO:
		if config.Pin == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "pin")
		}
		n, err := strconv.Atoi(config.Pin)
		if err != nil || !pwm.RPIOPins[n] {
			return nil, nil, resource.NewConfigValidationError(path,
				errors.Errorf("pin %q is not a hardware pwm pin (12, 13, 18 or 19)", config.Pin))
		}
	case BackendPeriph:
		if config.Pin == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "pin")
		}
	case BackendFake:
	default:
		return nil, nil, resource.NewConfigValidationError(path,
			errors.Errorf("unknown backend %q", config.Backend))
	}

	if config.FrequencyHz > maxFrequencyHz {
		return nil, nil, resource.NewConfigValidationError(path,
			errors.Errorf("frequency_hz should not be above %dHz, have %d", maxFrequencyHz, config.FrequencyHz))
	}
	limits := config.limits()
	if err := limits.Validate(); err != nil {
		return nil, nil, resource.NewConfigValidationError(path, err)
	}
	if periodNs := uint64(config.period()); uint64(limits.MaxPulseNs) > periodNs {
		return nil, nil, resource.NewConfigValidationError(path,
			errors.Errorf("max_pulse_ns %d is longer than the %dns pwm period", limits.MaxPulseNs, periodNs))
	}
	if config.StartingPositionDeg != nil {
		if start := *config.StartingPositionDeg; start < limits.MinAngle || start > limits.MaxAngle {
			return nil, nil, resource.NewConfigValidationError(path,
				errors.Errorf("starting_position_deg should be between %d and %d", limits.MinAngle, limits.MaxAngle))
		}
	}
	if config.SpeedDegsPerSec < 0 {
		return nil, nil, resource.NewConfigValidationError(path, errors.New("speed_degs_per_sec cannot be negative"))
	}
	return deps, nil, nil
}

func (config *Config) backend() string {
	if config.Backend == "" {
		return BackendBoard
	}
	return config.Backend
}

func (config *Config) limits() motion.Limits {
	l := motion.DefaultLimits()
	if config.MinAngleDeg != nil {
		l.MinAngle = *config.MinAngleDeg
	}
	if config.MaxAngleDeg != nil {
		l.MaxAngle = *config.MaxAngleDeg
	}
	if config.MinPulseNs != nil {
		l.MinPulseNs = *config.MinPulseNs
	}
	if config.MaxPulseNs != nil {
		l.MaxPulseNs = *config.MaxPulseNs
	}
	return l
}

func (config *Config) period() time.Duration {
	if config.FrequencyHz != 0 {
		return time.Second / time.Duration(config.FrequencyHz)
	}
	return time.Second / defaultFrequencyHz
}

func (config *Config) engineOptions() motion.Options {
	limits := config.limits()
	opts := motion.Options{
		Limits:     &limits,
		StartAngle: config.StartingPositionDeg,
		Speed:      config.SpeedDegsPerSec,
	}
	opts.Period = config.period()
	if config.TickIntervalMs != 0 {
		opts.TickInterval = time.Duration(config.TickIntervalMs) * time.Millisecond
	}
	return opts
}
