// Package main is a command line client for a pwm-servo component on a running robot.
package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/servo"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils"
	"go.viam.com/utils/rpc"

	"github.com/viam-modules/pwm-servo/motion"
)

const (
	// Flags.
	flagAddress      = "address"
	flagAPIKeyID     = "api-key-id"
	flagAPIKey       = "api-key"
	flagComponent    = "component"
	flagSettle       = "settle"
	flagLeaveEnabled = "leave-enabled"
)

// commander is the part of a servo the CLI talks to.
type commander interface {
	DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error)
}

// dialFunc connects to the servo named by the flags. The returned func releases the connection.
type dialFunc func(c *cli.Context) (commander, func() error, error)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("servoctl"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(dialRobot(logger)).RunContext(ctx, args)
}

func dialRobot(logger logging.Logger) dialFunc {
	return func(c *cli.Context) (commander, func() error, error) {
		var opts []client.RobotClientOption
		if keyID := c.String(flagAPIKeyID); keyID != "" {
			opts = append(opts, client.WithDialOptions(rpc.WithEntityCredentials(keyID, rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: c.String(flagAPIKey),
			})))
		}
		robot, err := client.New(c.Context, c.String(flagAddress), logger, opts...)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "couldn't connect to %s", c.String(flagAddress))
		}
		s, err := servo.FromRobot(robot, c.String(flagComponent))
		if err != nil {
			return nil, nil, multierr.Combine(err, robot.Close(c.Context))
		}
		return s, func() error { return robot.Close(context.Background()) }, nil
	}
}

func newApp(dial dialFunc) *cli.App {
	withServo := func(action func(c *cli.Context, s commander) error) cli.ActionFunc {
		return func(c *cli.Context) (err error) {
			s, release, err := dial(c)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Combine(err, release())
			}()
			return action(c, s)
		}
	}

	return &cli.App{
		Name:  "servoctl",
		Usage: "drive a pwm servo on a robot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagAddress,
				Usage:    "robot address",
				EnvVars:  []string{"SERVOCTL_ADDRESS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    flagAPIKeyID,
				Usage:   "api key id used to authenticate",
				EnvVars: []string{"SERVOCTL_API_KEY_ID"},
			},
			&cli.StringFlag{
				Name:    flagAPIKey,
				Usage:   "api key used to authenticate",
				EnvVars: []string{"SERVOCTL_API_KEY"},
			},
			&cli.StringFlag{
				Name:     flagComponent,
				Aliases:  []string{"c"},
				Usage:    "name of the servo component",
				EnvVars:  []string{"SERVOCTL_COMPONENT"},
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "enable",
				Usage: "switch the pwm output on",
				Action: withServo(func(c *cli.Context, s commander) error {
					return send(c.Context, s, motion.Enable, map[string]interface{}{motion.Value: true})
				}),
			},
			{
				Name:  "disable",
				Usage: "switch the pwm output off",
				Action: withServo(func(c *cli.Context, s commander) error {
					return send(c.Context, s, motion.Enable, map[string]interface{}{motion.Value: false})
				}),
			},
			{
				Name:      "angle",
				Usage:     "set the target angle, or print the current one",
				ArgsUsage: "[degrees] (use -- before a negative angle: angle -- -45)",
				Action: withServo(func(c *cli.Context, s commander) error {
					return setOrGet(c, s, motion.SetAngle, motion.GetAngle, "angle")
				}),
			},
			{
				Name:      "speed",
				Usage:     "set the speed in degrees per second (0 jumps), or print it",
				ArgsUsage: "[degrees-per-second]",
				Action: withServo(func(c *cli.Context, s commander) error {
					return setOrGet(c, s, motion.SetSpeed, motion.GetSpeed, "speed")
				}),
			},
			{
				Name:      "limits",
				Usage:     "set the angle and pulse limits, or print them",
				ArgsUsage: "[min-angle max-angle min-pulse-ns max-pulse-ns] (use -- before negative angles)",
				Action:    withServo(limitsAction),
			},
			{
				Name:  "status",
				Usage: "print the servo state",
				Action: withServo(func(c *cli.Context, s commander) error {
					resp, err := s.DoCommand(c.Context, map[string]interface{}{motion.Command: motion.GetStatus})
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer,
						"enabled=%v angle=%v target=%v speed=%v moving=%v limits=[%v, %v] pulse=[%v, %v]ns\n",
						resp["enabled"], resp["angle"], resp["target"], resp["speed"], resp["moving"],
						resp[motion.MinAngleKey], resp[motion.MaxAngleKey],
						resp[motion.MinPulseNsKey], resp[motion.MaxPulseNsKey])
					return nil
				}),
			},
			{
				Name:  "demo",
				Usage: "sweep to 45 then 135 degrees at 90 degrees per second",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  flagSettle,
						Value: 2 * time.Second,
						Usage: "time to wait at 45 degrees",
					},
					&cli.BoolFlag{
						Name:  flagLeaveEnabled,
						Usage: "keep the output on when the demo ends",
					},
				},
				Action: withServo(demoAction),
			},
		},
	}
}

func send(ctx context.Context, s commander, name string, args map[string]interface{}) error {
	cmd := map[string]interface{}{motion.Command: name}
	for k, v := range args {
		cmd[k] = v
	}
	if _, err := s.DoCommand(ctx, cmd); err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

func setOrGet(c *cli.Context, s commander, set, get, key string) error {
	if c.Args().Len() > 1 {
		return errors.Errorf("%s takes at most one argument", c.Command.Name)
	}
	if c.Args().Present() {
		v, err := strconv.Atoi(c.Args().First())
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		return send(c.Context, s, set, map[string]interface{}{motion.Value: v})
	}
	resp, err := s.DoCommand(c.Context, map[string]interface{}{motion.Command: get})
	if err != nil {
		return errors.Wrap(err, get)
	}
	fmt.Fprintln(c.App.Writer, resp[key])
	return nil
}

func limitsAction(c *cli.Context, s commander) error {
	keys := []string{motion.MinAngleKey, motion.MaxAngleKey, motion.MinPulseNsKey, motion.MaxPulseNsKey}
	switch c.Args().Len() {
	case 0:
		resp, err := s.DoCommand(c.Context, map[string]interface{}{motion.Command: motion.GetLimits})
		if err != nil {
			return errors.Wrap(err, motion.GetLimits)
		}
		fmt.Fprintf(c.App.Writer, "angle=[%v, %v] pulse=[%v, %v]ns\n",
			resp[motion.MinAngleKey], resp[motion.MaxAngleKey], resp[motion.MinPulseNsKey], resp[motion.MaxPulseNsKey])
		return nil
	case len(keys):
		args := map[string]interface{}{}
		for i, key := range keys {
			v, err := strconv.Atoi(c.Args().Get(i))
			if err != nil {
				return errors.Wrapf(err, "invalid %s", key)
			}
			args[key] = v
		}
		return send(c.Context, s, motion.SetLimits, args)
	default:
		return errors.New("limits takes no arguments or all four of min-angle max-angle min-pulse-ns max-pulse-ns")
	}
}

func demoAction(c *cli.Context, s commander) error {
	ctx := c.Context
	if err := send(ctx, s, motion.Enable, map[string]interface{}{motion.Value: true}); err != nil {
		return err
	}
	if err := send(ctx, s, motion.SetSpeed, map[string]interface{}{motion.Value: 90}); err != nil {
		return err
	}
	if err := send(ctx, s, motion.SetAngle, map[string]interface{}{motion.Value: 45}); err != nil {
		return err
	}
	if !utils.SelectContextOrWait(ctx, c.Duration(flagSettle)) {
		return ctx.Err()
	}
	if err := send(ctx, s, motion.SetAngle, map[string]interface{}{motion.Value: 135}); err != nil {
		return err
	}
	resp, err := s.DoCommand(ctx, map[string]interface{}{motion.Command: motion.GetAngle})
	if err != nil {
		return errors.Wrap(err, motion.GetAngle)
	}
	fmt.Fprintf(c.App.Writer, "Current angle: %v\n", resp["angle"])

	if c.Bool(flagLeaveEnabled) {
		return nil
	}
	return send(ctx, s, motion.Enable, map[string]interface{}{motion.Value: false})
}
