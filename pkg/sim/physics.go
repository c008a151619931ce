package sim

import (
	"time"

	fx "github.com/robotalks/fable.go/pkg/framework"
)

// MaxStep bounds the time a single physics step simulates.
const MaxStep = 100 * time.Millisecond

// Physics moves the simulated mechanics of every module in range of
// a dongle, once per loop iteration.
type Physics struct {
	Dongle *Dongle

	last time.Time
}

// NewPhysics creates the physics engine.
func NewPhysics(d *Dongle) *Physics {
	return &Physics{Dongle: d}
}

// AddToLoop implements LoopAdder.
func (p *Physics) AddToLoop(l *fx.Loop) {
	l.AddController(p)
}

// Control implements Controller.
func (p *Physics) Control(cc fx.ControlContext) error {
	p.Step(cc.Time())
	return nil
}

// Step advances all modules to now.
func (p *Physics) Step(now time.Time) {
	if p.last.IsZero() {
		p.last = now
		return
	}
	dt := now.Sub(p.last)
	p.last = now
	if dt <= 0 {
		return
	}
	if dt > MaxStep {
		dt = MaxStep
	}
	for _, mod := range p.Dongle.Modules() {
		mod.Step(dt)
	}
}
