// Package runtime wires the dongle, its reconnect loop, the sync loop
// and the attached modules together.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/dongle"
	fx "github.com/robotalks/fable.go/pkg/framework"
	"github.com/robotalks/fable.go/pkg/module"
	"github.com/robotalks/fable.go/pkg/sim"
	"github.com/robotalks/fable.go/pkg/trace"
)

// SimDevice is the device name of the simulated dongle.
const SimDevice = "sim"

// Errors
var (
	ErrAttached    = errors.New("module already attached")
	ErrNotAttached = errors.New("module not attached")
)

// Runtime owns the dongle and synchronizes attached modules on a
// single loop.
type Runtime struct {
	Config    *Config
	Dongle    *dongle.Dongle
	Connector *dongle.Connector
	Loop      *fx.Loop
	// World is the simulator when Config.Simulate is set.
	World *sim.World

	recorder *trace.Recorder
	lock     sync.RWMutex
	modules  map[string]*module.Module
	order    []string
}

// NewRuntime creates the runtime and attaches the configured modules.
func (c *Config) NewRuntime() (*Runtime, error) {
	if c.ConfigFile != "" {
		if err := c.Load(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	r := &Runtime{
		Config:  c,
		Dongle:  dongle.New(),
		Loop:    fx.NewLoop(),
		modules: make(map[string]*module.Module),
	}
	r.Loop.Interval = c.Interval

	var enumerators []dongle.Enumerator
	switch {
	case c.Simulate:
		world, err := sim.NewConfig().NewWorld()
		if err != nil {
			return nil, err
		}
		r.World = world
		r.Dongle.Open = world.Open
		r.Dongle.TerminalEscape = false
		r.Loop.Add(world.Physics)
		enumerators = append(enumerators, dongle.StaticDevices{SimDevice})
	case c.Device != "":
		enumerators = append(enumerators, dongle.StaticDevices{c.Device})
	default:
		enumerators = append(enumerators, dongle.USBEnumerator{})
	}
	r.Connector = dongle.NewConnector(r.Dongle, enumerators...)
	if c.ReconnectPeriod > 0 {
		r.Connector.Period = c.ReconnectPeriod
	}
	r.Loop.AddRunnable(r.Connector)

	if c.TracePath != "" {
		rec, err := trace.Create(c.TracePath)
		if err != nil {
			return nil, err
		}
		r.recorder = rec
		r.Dongle.Tracer = rec
	}

	for _, mc := range c.Modules {
		typ, err := module.ParseType(mc.Type)
		if err != nil {
			r.Close()
			return nil, err
		}
		if _, err := r.Attach(typ, mc.Serial, mc.RadioID); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// MustNewRuntime creates the runtime and fails on error.
func (c *Config) MustNewRuntime() *Runtime {
	r, err := c.NewRuntime()
	if err != nil {
		log.Fatalln(err)
	}
	return r
}

// Attach creates a module synchronized by the loop. The module is
// marked seen.
func (r *Runtime) Attach(typ module.Type, serialID string, radioID int) (*module.Module, error) {
	tpl, err := module.TemplateFor(typ)
	if err != nil {
		return nil, err
	}
	opts := r.Config.ModuleOptions()
	opts.Scheduler = r.Loop
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.modules[serialID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAttached, serialID)
	}
	m, err := module.New(tpl, serialID, radioID, r.Dongle, opts)
	if err != nil {
		return nil, err
	}
	m.Seen()
	r.modules[serialID] = m
	r.order = append(r.order, serialID)
	r.Loop.AddController(m)
	glog.Infof("%s attached, radio ID %d", m, radioID)
	return m, nil
}

// Detach terminates a module and stops synchronizing it. It requires
// the loop running to release the module.
func (r *Runtime) Detach(ctx context.Context, serialID string) error {
	m, err := r.Module(serialID)
	if err != nil {
		return err
	}
	err = m.Terminate(ctx)
	r.lock.Lock()
	r.Loop.RemoveController(m)
	delete(r.modules, serialID)
	for n, id := range r.order {
		if id == serialID {
			r.order = append(r.order[:n:n], r.order[n+1:]...)
			break
		}
	}
	r.lock.Unlock()
	glog.Infof("%s detached", m)
	return err
}

// Module finds an attached module by serial ID.
func (r *Runtime) Module(serialID string) (*module.Module, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m, ok := r.modules[serialID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAttached, serialID)
	}
	return m, nil
}

// Joint finds an attached joint.
func (r *Runtime) Joint(serialID string) (*module.Joint, error) {
	m, err := r.Module(serialID)
	if err != nil {
		return nil, err
	}
	return module.AsJoint(m)
}

// Face finds an attached face.
func (r *Runtime) Face(serialID string) (*module.Face, error) {
	m, err := r.Module(serialID)
	if err != nil {
		return nil, err
	}
	return module.AsFace(m)
}

// Spin finds an attached spin.
func (r *Runtime) Spin(serialID string) (*module.Spin, error) {
	m, err := r.Module(serialID)
	if err != nil {
		return nil, err
	}
	return module.AsSpin(m)
}

// Modules lists attached modules in attach order.
func (r *Runtime) Modules() []*module.Module {
	r.lock.RLock()
	defer r.lock.RUnlock()
	modules := make([]*module.Module, 0, len(r.order))
	for _, id := range r.order {
		modules = append(modules, r.modules[id])
	}
	return modules
}

// WaitConnected blocks until the dongle is connected.
func (r *Runtime) WaitConnected(ctx context.Context) error {
	return r.Connector.WaitConnected(ctx)
}

// Run implements Runnable. It runs the loop and the reconnect task
// until ctx is done. On exit, attached modules are released and the
// dongle is closed.
func (r *Runtime) Run(ctx context.Context) error {
	err := r.Loop.Run(ctx)
	for _, m := range r.Modules() {
		if e := m.Release(); e != nil {
			glog.V(1).Infof("%s: release: %v", m, e)
		}
	}
	if e := r.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// Close closes the dongle and the trace recorder.
func (r *Runtime) Close() error {
	errs := &fx.AggregatedError{}
	errs.Add(r.Dongle.Close())
	if r.recorder != nil {
		errs.Add(r.recorder.Close())
	}
	return errs.Aggregate()
}
