package dongle

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/fable.go/pkg/framework"
)

// DefaultReconnectPeriod is how often the connector checks the dongle.
const DefaultReconnectPeriod = time.Second

// Connector keeps the dongle connected. Once the dongle drops the
// port after an I/O failure, it periodically tries every candidate
// device until one connects.
type Connector struct {
	Dongle      *Dongle
	Enumerators []Enumerator
	Period      time.Duration

	lock    sync.Mutex
	paused  bool
	waiters []chan struct{}
}

// NewConnector creates a Connector for the dongle.
func NewConnector(d *Dongle, enumerators ...Enumerator) *Connector {
	return &Connector{Dongle: d, Enumerators: enumerators, Period: DefaultReconnectPeriod}
}

// Run implements framework.Runnable.
func (c *Connector) Run(ctx context.Context) error {
	period := c.Period
	if period <= 0 {
		period = DefaultReconnectPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	loop := fx.LoopCtlFrom(ctx)
	for {
		if !c.IsPaused() {
			wasConnected := c.Dongle.Connected()
			// modules sync right away on a new connection
			if c.Check() && !wasConnected && loop != nil {
				loop.Bootstrap()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Check verifies the connection once and reconnects if needed.
// It returns true if a dongle is connected afterwards.
func (c *Connector) Check() bool {
	// a live link is left alone, an I/O failure on it drops the port
	if c.Dongle.Connected() {
		c.notify()
		return true
	}
	candidates, err := Dongles(c.Enumerators...)
	if err != nil {
		glog.V(2).Infof("enumerate dongles: %v", err)
	}
	for _, candidate := range candidates {
		if err := c.Dongle.Connect(candidate.Device); err != nil {
			glog.V(2).Infof("connect %s: %v", candidate.Device, err)
			continue
		}
		c.notify()
		return true
	}
	return false
}

// Pause suspends reconnection, e.g. while the device is flashed.
func (c *Connector) Pause() {
	c.lock.Lock()
	c.paused = true
	c.lock.Unlock()
}

// Resume resumes reconnection.
func (c *Connector) Resume() {
	c.lock.Lock()
	c.paused = false
	c.lock.Unlock()
}

// IsPaused tells if reconnection is suspended.
func (c *Connector) IsPaused() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.paused
}

// WaitConnected blocks until a dongle is connected.
func (c *Connector) WaitConnected(ctx context.Context) error {
	c.lock.Lock()
	if c.Dongle.Connected() {
		c.lock.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.lock.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connector) notify() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}
