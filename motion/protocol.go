package motion

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

// Command protocol keys and command names.
const (
	Command = "command"
	Value   = "value"

	Enable    = "enable"
	SetAngle  = "set_angle"
	GetAngle  = "get_angle"
	SetSpeed  = "set_speed"
	GetSpeed  = "get_speed"
	SetLimits = "set_limits"
	GetLimits = "get_limits"
	GetStatus = "status"
	HaltCmd   = "halt"
)

// Limit keys of set_limits and get_limits.
const (
	MinAngleKey   = "min_angle"
	MaxAngleKey   = "max_angle"
	MinPulseNsKey = "min_pulse_ns"
	MaxPulseNsKey = "max_pulse_ns"
)

// DoCommand decodes one command protocol request, applies it and encodes the response. Requests
// with a missing or malformed payload are rejected before the engine is touched.
func (e *Engine) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd[Command]
	if !ok {
		return nil, errors.Errorf("missing %s value", Command)
	}
	switch name {
	case Enable:
		on, err := boolArg(cmd, Value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, e.SetEnabled(ctx, on)
	case SetAngle:
		angle, err := intArg(cmd, Value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, e.SetTargetAngle(ctx, angle)
	case GetAngle:
		return map[string]interface{}{"angle": e.Angle()}, nil
	case SetSpeed:
		dps, err := intArg(cmd, Value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, e.SetSpeed(dps)
	case GetSpeed:
		return map[string]interface{}{"speed": e.Speed()}, nil
	case SetLimits:
		l, err := limitsArg(cmd)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{}, e.SetLimits(ctx, l)
	case GetLimits:
		return limitsMap(e.Limits()), nil
	case GetStatus:
		st := e.Status()
		resp := limitsMap(st.Limits)
		resp["enabled"] = st.Enabled
		resp["angle"] = st.Angle
		resp["target"] = st.Target
		resp["speed"] = st.Speed
		resp["moving"] = st.Moving
		return resp, nil
	case HaltCmd:
		return map[string]interface{}{}, e.Halt(ctx)
	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}

func limitsMap(l Limits) map[string]interface{} {
	return map[string]interface{}{
		MinAngleKey:   l.MinAngle,
		MaxAngleKey:   l.MaxAngle,
		MinPulseNsKey: l.MinPulseNs,
		MaxPulseNsKey: l.MaxPulseNs,
	}
}

func limitsArg(cmd map[string]interface{}) (Limits, error) {
	var l Limits
	var err error
	if l.MinAngle, err = intArg(cmd, MinAngleKey); err != nil {
		return Limits{}, err
	}
	if l.MaxAngle, err = intArg(cmd, MaxAngleKey); err != nil {
		return Limits{}, err
	}
	if l.MinPulseNs, err = pulseArg(cmd, MinPulseNsKey); err != nil {
		return Limits{}, err
	}
	if l.MaxPulseNs, err = pulseArg(cmd, MaxPulseNsKey); err != nil {
		return Limits{}, err
	}
	return l, nil
}

func pulseArg(cmd map[string]interface{}, key string) (uint32, error) {
	v, err := intArg(cmd, key)
	if err != nil {
		return 0, err
	}
	if v < 0 || int64(v) > math.MaxUint32 {
		return 0, errors.Errorf("%s must be between 0 and %d, got %d", key, uint32(math.MaxUint32), v)
	}
	return uint32(v), nil
}

// intArg reads an integer payload. JSON numbers arrive as float64.
func intArg(cmd map[string]interface{}, key string) (int, error) {
	raw, ok := cmd[key]
	if !ok {
		return 0, errors.Errorf("%v requires %q", cmd[Command], key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, errors.Errorf("%s must be a whole number, got %v", key, v)
		}
		return int(v), nil
	default:
		return 0, errors.Errorf("%s must be a number, got %T", key, raw)
	}
}

func boolArg(cmd map[string]interface{}, key string) (bool, error) {
	if b, ok := cmd[key].(bool); ok {
		return b, nil
	}
	v, err := intArg(cmd, key)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
