// Package pwmservo implements a hobby servo driven by a PWM output with speed-limited motion.
package pwmservo

import (
	"context"
	"math"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/servo"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/pwm-servo/motion"
	"github.com/viam-modules/pwm-servo/pwm"
)

// Model for the PWM servo.
var Model = resource.NewModel("viam", "pwm-servo", "pwm")

func init() {
	resource.RegisterComponent(servo.API, Model, resource.Registration[servo.Servo, *Config]{
		Constructor: newServo,
	})
}

// A Servo is a hobby servo whose angle is set by the pulse width of a PWM output.
type Servo struct {
	resource.Named
	resource.AlwaysRebuild
	engine    *motion.Engine
	logger    logging.Logger
	opMgr     *operation.SingleOperationManager
	servoName string
}

var _ servo.Servo = (*Servo)(nil)

// newServo returns a servo on the configured backend.
func newServo(ctx context.Context, deps resource.Dependencies, c resource.Config, logger logging.Logger,
) (servo.Servo, error) {
	conf, err := resource.NativeConfig[*Config](c)
	if err != nil {
		return nil, err
	}
	out, err := openBackend(deps, conf)
	if err != nil {
		return nil, err
	}
	s, err := makeServo(ctx, *conf, c.ResourceName(), logger, out, motion.NewScheduler(clock.New()))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openBackend resolves the PWM output named by the config.
func openBackend(deps resource.Dependencies, conf *Config) (motion.PWM, error) {
	switch conf.backend() {
	case BackendBoard:
		b, err := board.FromDependencies(deps, conf.BoardName)
		if err != nil {
			return nil, errors.Errorf("%q is not a board", conf.BoardName)
		}
		pin, err := b.GPIOPinByName(conf.Pin)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't get servo pin")
		}
		return pwm.NewPin(pin), nil
	case BackendRPIO:
		n, err := strconv.Atoi(conf.Pin)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid rpio pin %q", conf.Pin)
		}
		out, err := pwm.OpenRPIO(n)
		if err != nil {
			return nil, err
		}
		return out, nil
	case BackendPeriph:
		out, err := pwm.OpenPeriph(conf.Pin)
		if err != nil {
			return nil, err
		}
		return out, nil
	case BackendFake:
		return pwm.NewFake(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", conf.Backend)
	}
}

// makeServo returns a servo on out. It is separate from newServo, above, so you can inject a
// fake PWM output and scheduler during testing. The servo owns out from here on, it is closed on
// failure and by Close.
func makeServo(ctx context.Context, c Config, name resource.Name, logger logging.Logger,
	out motion.PWM, sched motion.Scheduler,
) (*Servo, error) {
	engine, err := motion.NewEngine(out, sched, c.engineOptions(), logger)
	if err != nil {
		if closer, ok := out.(interface{ Close(context.Context) error }); ok {
			err = multierr.Combine(err, closer.Close(ctx))
		}
		return nil, err
	}
	s := &Servo{
		Named:     name.AsNamed(),
		engine:    engine,
		logger:    logger,
		opMgr:     operation.NewSingleOperationManager(),
		servoName: name.ShortName(),
	}
	if c.EnableOnStart {
		if err := engine.SetEnabled(ctx, true); err != nil {
			return nil, multierr.Combine(
				errors.Wrapf(err, "couldn't enable servo (%s)", s.servoName),
				engine.Close(ctx),
			)
		}
	}
	return s, nil
}

// Move sets the target angle. While the servo moves gradually this blocks until it arrives,
// the output is disabled or a new operation cancels this one.
func (s *Servo) Move(ctx context.Context, angleDeg uint32, extra map[string]interface{}) error {
	ctx, done := s.opMgr.New(ctx)
	defer done()

	angle := math.MaxInt32
	if angleDeg < math.MaxInt32 {
		angle = int(angleDeg)
	}
	if err := s.engine.SetTargetAngle(ctx, angle); err != nil {
		return errors.Wrapf(err, "error in Move from servo (%s)", s.servoName)
	}
	if !s.engine.Enabled() {
		s.logger.CWarnf(ctx, "servo (%s) is disabled, target stored until it is enabled", s.servoName)
		return nil
	}
	return s.opMgr.WaitForSuccess(ctx, s.engine.TickInterval(), s.IsStopped)
}

// Position returns the last angle written to the servo.
func (s *Servo) Position(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	angle := s.engine.Angle()
	if angle < 0 {
		return 0, errors.Errorf("servo (%s) angle %d cannot be reported as a position", s.servoName, angle)
	}
	return uint32(angle), nil
}

// Stop cancels any running Move and holds the servo where it is. The output stays enabled.
func (s *Servo) Stop(ctx context.Context, extra map[string]interface{}) error {
	s.opMgr.CancelRunning(ctx)
	return s.engine.Halt(ctx)
}

// IsMoving returns whether the servo is still travelling towards its target.
func (s *Servo) IsMoving(ctx context.Context) (bool, error) {
	return s.engine.Moving(), nil
}

// IsStopped returns true if the servo is NOT moving.
func (s *Servo) IsStopped(ctx context.Context) (bool, error) {
	return !s.engine.Moving(), nil
}

// DoCommand executes the servo command protocol: enable, set_angle, get_angle, set_speed,
// get_speed, set_limits, get_limits, status and halt.
func (s *Servo) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if name, _ := cmd[motion.Command].(string); name == motion.HaltCmd {
		s.opMgr.CancelRunning(ctx)
	}
	return s.engine.DoCommand(ctx, cmd)
}

// Close stops the control loop, disables the output and releases the backend.
func (s *Servo) Close(ctx context.Context) error {
	s.opMgr.CancelRunning(ctx)
	return s.engine.Close(ctx)
}
