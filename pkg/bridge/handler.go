package bridge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	"github.com/robotalks/fable.go/pkg/module"
)

// DefaultCommandTimeout bounds executing a single command.
const DefaultCommandTimeout = 3 * time.Second

// Registry finds attached modules.
type Registry interface {
	Module(serialID string) (*module.Module, error)
	Modules() []*module.Module
}

// Handler executes bridge commands against attached modules.
// It implements comm.CommandHandler.
type Handler struct {
	Registry Registry
	Timeout  time.Duration
}

// HandleCommand implements comm.CommandHandler.
func (h *Handler) HandleCommand(ctx context.Context, cmd msgs.Message) msgs.Message {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := h.execute(ctx, cmd)
	if err != nil {
		glog.V(1).Infof("command %T: %v", cmd, err)
		return msgs.NewCommandErr(err)
	}
	return reply
}

func (h *Handler) execute(ctx context.Context, cmd msgs.Message) (msgs.Message, error) {
	switch c := cmd.(type) {
	case *msgs.SetPosition:
		return h.actuate(ctx, c.Serial, c.Axis, c.Value, setPos)
	case *msgs.SetSpeed:
		return h.actuate(ctx, c.Serial, c.Axis, c.Value, setSpeed)
	case *msgs.SetTorque:
		return h.actuate(ctx, c.Serial, c.Axis, c.Value, setTorque)
	case *msgs.ReadField:
		m, err := h.Registry.Module(c.Serial)
		if err != nil {
			return nil, err
		}
		v, err := m.Read(ctx, c.Field)
		if err != nil {
			return nil, err
		}
		return msgs.NewFieldValue(c.Serial, c.Field, v), nil
	case *msgs.ListModules:
		list := &msgs.ModuleList{}
		for _, m := range h.Registry.Modules() {
			list.Modules = append(list.Modules, msgs.StatusOf(m))
		}
		return list, nil
	case *msgs.Terminate:
		m, err := h.Registry.Module(c.Serial)
		if err != nil {
			return nil, err
		}
		if err := m.Terminate(ctx); err != nil {
			return nil, err
		}
		return msgs.NewCommandOK(), nil
	}
	return nil, msgs.ErrUnsupportedCommand
}

type actuator struct {
	joint func(*module.Joint, context.Context, module.Axis, float64) error
	spin  func(*module.Spin, context.Context, module.Motor, float64) error
}

var (
	setPos = actuator{
		joint: (*module.Joint).SetPos,
		spin: func(s *module.Spin, ctx context.Context, motor module.Motor, v float64) error {
			return s.SetPos(ctx, motor, int(math.Round(v)))
		},
	}
	setSpeed = actuator{
		joint: (*module.Joint).SetSpeed,
		spin: func(s *module.Spin, ctx context.Context, motor module.Motor, v float64) error {
			return s.SetSpeed(ctx, motor, int(math.Round(v)))
		},
	}
	setTorque = actuator{
		joint: (*module.Joint).SetTorqueLimit,
		spin:  (*module.Spin).SetTorque,
	}
)

func (h *Handler) actuate(ctx context.Context, serial, axis string, v float64, act actuator) (msgs.Message, error) {
	m, err := h.Registry.Module(serial)
	if err != nil {
		return nil, err
	}
	switch m.Type() {
	case module.TypeJoint:
		j, _ := module.AsJoint(m)
		err = act.joint(j, ctx, module.ParseAxis(axis), v)
	case module.TypeSpin:
		s, _ := module.AsSpin(m)
		err = act.spin(s, ctx, module.ParseMotor(axis), v)
	default:
		err = fmt.Errorf("%w: %s has no motors", module.ErrWrongType, m)
	}
	if err != nil {
		return nil, err
	}
	return msgs.NewCommandOK(), nil
}
