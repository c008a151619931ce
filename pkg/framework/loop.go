package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the iteration interval when Loop.Interval is not set.
const DefaultInterval = 20 * time.Millisecond

// Loop is the scheduler. It runs registered controllers one after
// another on a single goroutine, either on every tick of Interval or
// immediately when an iteration is triggered.
type Loop struct {
	Interval time.Duration

	controllers []Controller
	runners     []Runnable
	lock        sync.Mutex

	paused    bool
	iteration uint64

	wakeUpCh chan struct{}
}

type loopIteration struct {
	*Loop
	ctx       context.Context
	time      time.Time
	iteration uint64
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from the context passed to Runnables
// started by a Loop. It returns nil outside of a Loop.
func LoopCtlFrom(ctx context.Context) LoopControl {
	lc, _ := ctx.Value(loopCtxKey).(LoopControl)
	return lc
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop. Controllers can be
// added while the loop is running, they join from the next iteration.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers = append(l.controllers, ctls...)
	return l
}

// RemoveController unregisters a controller.
// It returns false if the controller is not found.
func (l *Loop) RemoveController(ctl Controller) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	for n, c := range l.controllers {
		if c == ctl {
			ctls := make([]Controller, 0, len(l.controllers)-1)
			ctls = append(ctls, l.controllers[:n]...)
			l.controllers = append(ctls, l.controllers[n+1:]...)
			return true
		}
	}
	return false
}

// Controllers returns a snapshot of registered controllers.
func (l *Loop) Controllers() []Controller {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]Controller(nil), l.controllers...)
}

// AddRunnable adds Runnable implementions started together with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	runners := l.runners
	l.lock.Unlock()

	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	runner.Go(runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx)
		case <-l.wakeUpCh:
			l.runIteration(ctx)
		}
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Bootstrap implements LoopControl.
func (l *Loop) Bootstrap() {
	l.TriggerNext()
}

// Pause implements LoopControl.
func (l *Loop) Pause() {
	l.lock.Lock()
	l.paused = true
	l.lock.Unlock()
	glog.V(2).Info("loop paused")
}

// Restart implements LoopControl.
func (l *Loop) Restart() {
	l.lock.Lock()
	wasPaused := l.paused
	l.paused = false
	l.lock.Unlock()
	if wasPaused {
		glog.V(2).Info("loop restarted")
	}
	l.TriggerNext()
}

// IsPaused implements LoopControl.
func (l *Loop) IsPaused() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.paused
}

// Iteration returns the number of iterations executed.
func (l *Loop) Iteration() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.iteration
}

func (l *Loop) runIteration(ctx context.Context) {
	l.lock.Lock()
	if l.paused {
		l.lock.Unlock()
		return
	}
	l.iteration++
	iter := &loopIteration{Loop: l, time: time.Now(), iteration: l.iteration}
	ctls := l.controllers
	l.lock.Unlock()

	iter.ctx = context.WithValue(ctx, loopCtxKey, LoopControl(l))
	for _, ctl := range ctls {
		if ctx.Err() != nil {
			return
		}
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Iteration() uint64 {
	return t.iteration
}
