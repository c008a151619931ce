package comm

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
)

// DefaultCommandExpiration is the default expiration expecting a result.
// Reads wait for fresh values, so it's longer than a few sync cycles.
const DefaultCommandExpiration = 5 * time.Second

// Result represents result of a command.
type Result struct {
	Msg msgs.Message
	Err error
}

// CommandFuture is the future of sent command.
type CommandFuture interface {
	ResultChan() <-chan Result
}

// Client sends commands through a Pipe and matches replies by
// sequence. Expired commands are purged by a loop controller.
type Client struct {
	Expiration time.Duration
	// Events receives events, on the pipe goroutine.
	Events func(msgs.Message)

	pipe     Pipe
	seq      uint32
	commands list.List
	seqMap   map[uint32]*commandFuture
	lock     sync.Mutex
}

// NewClient creates a Client.
func NewClient(rw PacketReadWriter) *Client {
	c := &Client{}
	c.Init(rw)
	return c
}

// Init initializes Client with defaults.
func (c *Client) Init(rw PacketReadWriter) {
	c.Expiration = DefaultCommandExpiration
	c.pipe.ReadWriter = rw
	c.pipe.Handler = msgs.HandleTypedMsgFunc(c.handleTypedMsg)
	c.seqMap = make(map[uint32]*commandFuture)
}

// DoCommand sends a command.
func (c *Client) DoCommand(msg msgs.Message) CommandFuture {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.seq++
	if c.seq == 0 {
		c.seq++
	}
	f := &commandFuture{
		seq:      c.seq,
		expireAt: time.Now().Add(c.Expiration),
		result:   make(chan Result, 1),
	}
	if err := c.pipe.SendCommandMsg(msg, f.seq); err != nil {
		f.result <- Result{Err: err}
		close(f.result)
		return f
	}
	f.elem = c.commands.PushBack(f)
	c.seqMap[f.seq] = f
	return f
}

// Do sends a command and waits for the reply. A CommandErr reply is
// returned as the error.
func (c *Client) Do(ctx context.Context, msg msgs.Message) (msgs.Message, error) {
	select {
	case res := <-c.DoCommand(msg).ResultChan():
		return res.Msg, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run implements Runnable.
func (c *Client) Run(ctx context.Context) error {
	return c.pipe.Run(ctx)
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.pipe.Close()
}

// AddToLoop implements LoopAdder.
func (c *Client) AddToLoop(l *fx.Loop) {
	l.Add(&c.pipe)
	l.AddController(fx.ControlFunc(c.PurgeExpired))
}

func (c *Client) handleTypedMsg(ctx context.Context, msg msgs.Message, typed *msgs.Typed) error {
	if typed.IsEvent() {
		if fn := c.Events; fn != nil {
			fn(msg)
		}
		return nil
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	f := c.seqMap[typed.Sequence]
	if f == nil {
		return nil
	}
	c.commands.Remove(f.elem)
	delete(c.seqMap, typed.Sequence)
	result := Result{Msg: msg}
	if cmdErr, ok := msg.(*msgs.CommandErr); ok {
		result.Err = cmdErr
	}
	f.result <- result
	close(f.result)
	return nil
}

// PurgeExpired fails commands without reply after Expiration.
func (c *Client) PurgeExpired(cc fx.ControlContext) error {
	now := cc.Time()
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.commands.Len() > 0 {
		elem := c.commands.Front()
		f := elem.Value.(*commandFuture)
		if f.expireAt.After(now) {
			break
		}
		c.commands.Remove(elem)
		delete(c.seqMap, f.seq)
		f.result <- Result{Err: context.DeadlineExceeded}
		close(f.result)
	}
	return nil
}

type commandFuture struct {
	seq      uint32
	expireAt time.Time
	elem     *list.Element
	result   chan Result
}

func (c *commandFuture) ResultChan() <-chan Result {
	return c.result
}
