package module

import (
	"context"
	"fmt"
	"time"
)

func (m *Module) submit(ctx context.Context, req request) error {
	select {
	case m.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poke makes sure the scheduler runs a cycle soon.
func (m *Module) poke() {
	if s := m.opts.Scheduler; s != nil {
		if s.IsPaused() {
			s.Restart()
		}
		s.Bootstrap()
	}
}

func (m *Module) field(name string) (int, FieldDef, error) {
	n, ok := m.tpl.Lookup(name)
	if !ok {
		return -1, FieldDef{}, fmt.Errorf("%w: %s has no %q", ErrUnknownField, m.tpl.Type, name)
	}
	return n, m.tpl.Fields[n], nil
}

// Set changes the host side value of a field. The value is written to
// the module by a later cycle. Set returns once the sync task accepted
// the value.
func (m *Module) Set(ctx context.Context, name string, v Value) error {
	n, f, err := m.field(name)
	if err != nil {
		return err
	}
	if !f.Access.Writable() {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	if err := checkValue(f, v); err != nil {
		return err
	}
	v = v.Clone()
	done := make(chan struct{})
	if err := m.submit(ctx, func(time.Time) {
		m.soft[n].value = v
		close(done)
	}); err != nil {
		return err
	}
	m.poke()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read subscribes a read field and waits until fresh values arrived,
// i.e. two more successful cycles completed. It returns the host side
// value immediately when the field is already subscribed, the field
// isn't a read field, the module was never seen or it's owned by
// another dongle. A persistent field is fetched once.
func (m *Module) Read(ctx context.Context, name string) (Value, error) {
	return m.read(ctx, name, 0)
}

// ReadEvery is Read with the field refreshed no more often than period.
func (m *Module) ReadEvery(ctx context.Context, name string, period time.Duration) (Value, error) {
	return m.read(ctx, name, period)
}

func (m *Module) read(ctx context.Context, name string, period time.Duration) (Value, error) {
	n, _, err := m.field(name)
	if err != nil {
		return Value{}, err
	}
	reply := make(chan Value, 1)
	if err := m.submit(ctx, func(time.Time) { m.subscribe(n, period, reply) }); err != nil {
		return Value{}, err
	}
	m.poke()
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return Value{}, ctx.Err()
	}
}

func (m *Module) subscribe(n int, period time.Duration, reply chan<- Value) {
	s := &m.soft[n]
	switch m.tpl.Fields[n].Access {
	case Write:
		reply <- s.value.Clone()
		return
	case Persistent:
		if s.lastSync.IsZero() && !s.subscribed {
			s.subscribed, s.once = true, true
		}
	default:
		if s.subscribed {
			s.period = period
			reply <- s.value.Clone()
			return
		}
		s.subscribed, s.period = true, period
	}
	if !m.seen() || m.locked() || !s.subscribed {
		reply <- s.value.Clone()
		return
	}
	m.waiters = append(m.waiters, &waiter{field: n, target: m.okCycles + freshCycles, reply: reply})
}

// Get returns the host side value of a field without subscribing.
func (m *Module) Get(ctx context.Context, name string) (Value, error) {
	n, _, err := m.field(name)
	if err != nil {
		return Value{}, err
	}
	reply := make(chan Value, 1)
	if err := m.submit(ctx, func(time.Time) { reply <- m.soft[n].value.Clone() }); err != nil {
		return Value{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return Value{}, ctx.Err()
	}
}

// FieldState is the sync state of one field.
type FieldState struct {
	Field      FieldDef
	Soft       Value
	Hard       Value
	Subscribed bool
	LastSync   time.Time
	LastWrite  time.Time
}

// Snapshot lists the state of all fields in directory order.
func (m *Module) Snapshot(ctx context.Context) ([]FieldState, error) {
	reply := make(chan []FieldState, 1)
	if err := m.submit(ctx, func(time.Time) {
		states := make([]FieldState, len(m.tpl.Fields))
		for n, f := range m.tpl.Fields {
			s := m.soft[n]
			states[n] = FieldState{
				Field:      f,
				Soft:       s.value.Clone(),
				Hard:       m.hard[n].Clone(),
				Subscribed: s.subscribed,
				LastSync:   s.lastSync,
				LastWrite:  s.lastWrite,
			}
		}
		reply <- states
	}); err != nil {
		return nil, err
	}
	m.poke()
	select {
	case states := <-reply:
		return states, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate releases the module: the release command is sent if the
// module was used, and all fields return to their defaults.
func (m *Module) Terminate(ctx context.Context) error {
	done := make(chan error, 1)
	if err := m.submit(ctx, func(time.Time) { done <- m.Release() }); err != nil {
		return err
	}
	m.poke()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release is Terminate executed directly. It must only be called by
// the sync task or when no sync task is running.
func (m *Module) Release() error {
	var err error
	if rid := m.soft[m.radioIdx].value.Int; m.used && rid >= 0 && rid <= 0xff {
		err = m.link.WriteRadioPacket([]byte{byte(m.tpl.Type), byte(rid), CmdRelease})
	}
	m.releaseWaiters(true)
	m.resetTables()
	m.used = false
	m.hasBeenReset = false
	m.errorCount = 0
	m.okCycles = 0
	m.statsLock.Lock()
	m.stats.Cycles = 0
	m.statsLock.Unlock()
	m.publish()
	return err
}
