package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/viam-modules/pwm-servo/motion"
	"github.com/viam-modules/pwm-servo/pwm"
)

type testRig struct {
	engine   *motion.Engine
	out      *pwm.Fake
	stdout   *bytes.Buffer
	app      *cli.App
	released int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	out := pwm.NewFake()
	e, err := motion.NewEngine(out, motion.NewScheduler(clock.New()),
		motion.Options{TickInterval: time.Millisecond}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { test.That(t, e.Close(context.Background()), test.ShouldBeNil) })

	rig := &testRig{engine: e, out: out, stdout: &bytes.Buffer{}}
	rig.app = newApp(func(c *cli.Context) (commander, func() error, error) {
		test.That(t, c.String(flagAddress), test.ShouldEqual, "robot.local:8080")
		test.That(t, c.String(flagComponent), test.ShouldEqual, "servo")
		return e, func() error {
			rig.released++
			return nil
		}, nil
	})
	rig.app.Writer = rig.stdout
	return rig
}

func (r *testRig) run(args ...string) error {
	r.stdout.Reset()
	argv := append([]string{"servoctl", "--address", "robot.local:8080", "--component", "servo"}, args...)
	return r.app.RunContext(context.Background(), argv)
}

func TestCommands(t *testing.T) {
	rig := newTestRig(t)

	test.That(t, rig.run("enable"), test.ShouldBeNil)
	test.That(t, rig.engine.Enabled(), test.ShouldBeTrue)
	test.That(t, rig.out.Enabled(), test.ShouldBeTrue)

	test.That(t, rig.run("angle", "30"), test.ShouldBeNil)
	test.That(t, rig.run("angle"), test.ShouldBeNil)
	test.That(t, rig.stdout.String(), test.ShouldEqual, "30\n")

	test.That(t, rig.run("speed", "120"), test.ShouldBeNil)
	test.That(t, rig.run("speed"), test.ShouldBeNil)
	test.That(t, rig.stdout.String(), test.ShouldEqual, "120\n")

	test.That(t, rig.run("limits", "10", "170", "900000", "2100000"), test.ShouldBeNil)
	test.That(t, rig.run("limits"), test.ShouldBeNil)
	test.That(t, rig.stdout.String(), test.ShouldEqual, "angle=[10, 170] pulse=[900000, 2100000]ns\n")

	test.That(t, rig.run("status"), test.ShouldBeNil)
	test.That(t, rig.stdout.String(), test.ShouldEqual,
		"enabled=true angle=30 target=30 speed=120 moving=false limits=[10, 170] pulse=[900000, 2100000]ns\n")

	test.That(t, rig.run("disable"), test.ShouldBeNil)
	test.That(t, rig.engine.Enabled(), test.ShouldBeFalse)

	test.That(t, rig.released, test.ShouldEqual, 9)
}

func TestNegativeAngles(t *testing.T) {
	rig := newTestRig(t)

	test.That(t, rig.run("enable"), test.ShouldBeNil)
	test.That(t, rig.run("limits", "--", "-90", "90", "1000000", "2000000"), test.ShouldBeNil)
	test.That(t, rig.run("angle", "--", "-45"), test.ShouldBeNil)
	test.That(t, rig.engine.Angle(), test.ShouldEqual, -45)

	test.That(t, rig.run("angle"), test.ShouldBeNil)
	test.That(t, rig.stdout.String(), test.ShouldEqual, "-45\n")
	test.That(t, rig.out.LastWrite().DutyNs, test.ShouldEqual, uint32(1250000))

	// Without the separator the value is taken for a flag.
	test.That(t, rig.run("angle", "-30"), test.ShouldNotBeNil)
	test.That(t, rig.engine.Angle(), test.ShouldEqual, -45)
}

func TestCommandErrors(t *testing.T) {
	rig := newTestRig(t)

	err := rig.run("angle", "ninety")
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid angle")

	err = rig.run("angle", "1", "2")
	test.That(t, err, test.ShouldBeError, errors.New("angle takes at most one argument"))

	err = rig.run("limits", "10", "170")
	test.That(t, err.Error(), test.ShouldContainSubstring, "all four")

	err = rig.run("limits", "170", "10", "900000", "2100000")
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_angle must be greater than min_angle")
	test.That(t, rig.engine.Limits(), test.ShouldResemble, motion.DefaultLimits())

	// Every successful dial is released, failed commands included.
	test.That(t, rig.released, test.ShouldEqual, 4)
}

func TestMissingFlags(t *testing.T) {
	dialed := false
	app := newApp(func(c *cli.Context) (commander, func() error, error) {
		dialed = true
		return nil, nil, errors.New("should not dial")
	})
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}

	err := app.RunContext(context.Background(), []string{"servoctl", "--component", "servo", "status"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "address")
	test.That(t, dialed, test.ShouldBeFalse)
}

func TestDialError(t *testing.T) {
	app := newApp(func(c *cli.Context) (commander, func() error, error) {
		return nil, nil, errors.New("no route to robot")
	})
	app.Writer = &bytes.Buffer{}
	err := app.RunContext(context.Background(),
		[]string{"servoctl", "--address", "robot.local:8080", "--component", "servo", "enable"})
	test.That(t, err, test.ShouldBeError, errors.New("no route to robot"))
}

func TestDemo(t *testing.T) {
	t.Run("disables when done", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.run("demo", "--settle", "200ms"), test.ShouldBeNil)
		test.That(t, rig.stdout.String(), test.ShouldStartWith, "Current angle: ")
		test.That(t, rig.engine.Enabled(), test.ShouldBeFalse)
		test.That(t, rig.out.Enabled(), test.ShouldBeFalse)
		test.That(t, rig.engine.Speed(), test.ShouldEqual, 90)
		test.That(t, rig.engine.Target(), test.ShouldEqual, 135)
	})

	t.Run("leave enabled", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.run("demo", "--settle", "200ms", "--leave-enabled"), test.ShouldBeNil)
		test.That(t, rig.engine.Enabled(), test.ShouldBeTrue)

		deadline := time.Now().Add(5 * time.Second)
		for rig.engine.Moving() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		test.That(t, rig.engine.Angle(), test.ShouldEqual, 135)
	})
}
