package comm

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
)

// CommandHandler executes a command and returns the reply.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd msgs.Message) msgs.Message
}

// CommandHandlerFunc is func form of CommandHandler.
type CommandHandlerFunc func(context.Context, msgs.Message) msgs.Message

// HandleCommand implements CommandHandler.
func (f CommandHandlerFunc) HandleCommand(ctx context.Context, cmd msgs.Message) msgs.Message {
	return f(ctx, cmd)
}

// EventSender sends events to remote peers.
type EventSender interface {
	SendEvent(msgs.Message) error
}

// Server answers commands received from a pipe. Commands are
// executed in the order received, one at a time.
type Server struct {
	Handler CommandHandler

	pipe Pipe
}

// NewServer creates a Server.
func NewServer(rw PacketReadWriter, h CommandHandler) *Server {
	s := &Server{Handler: h}
	s.pipe.ReadWriter = rw
	s.pipe.Handler = msgs.HandleTypedMsgFunc(s.handleTypedMsg)
	return s
}

// SendEvent implements EventSender.
func (s *Server) SendEvent(msg msgs.Message) error {
	return s.pipe.SendEventMsg(msg)
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	return s.pipe.Run(ctx)
}

// AddToLoop implements LoopAdder.
func (s *Server) AddToLoop(loop *fx.Loop) {
	loop.Add(&s.pipe)
}

func (s *Server) handleTypedMsg(ctx context.Context, msg msgs.Message, typed *msgs.Typed) error {
	if !typed.IsCommand() || typed.IsReply() {
		return nil
	}
	var reply msgs.Message
	if h := s.Handler; h != nil {
		reply = h.HandleCommand(ctx, msg)
	}
	if reply == nil {
		reply = msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
	}
	if err := s.pipe.SendCommandMsg(reply, typed.Sequence); err != nil {
		glog.V(1).Infof("reply %x: %v", typed.TypeId, err)
		return err
	}
	return nil
}

// Broadcaster sends events to a changing set of senders.
type Broadcaster struct {
	lock    sync.RWMutex
	senders map[EventSender]struct{}
}

// Add registers a sender.
func (b *Broadcaster) Add(s EventSender) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.senders == nil {
		b.senders = make(map[EventSender]struct{})
	}
	b.senders[s] = struct{}{}
}

// Remove unregisters a sender.
func (b *Broadcaster) Remove(s EventSender) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.senders, s)
}

// Len is the number of registered senders.
func (b *Broadcaster) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.senders)
}

// SendEvent implements EventSender.
func (b *Broadcaster) SendEvent(msg msgs.Message) error {
	b.lock.RLock()
	defer b.lock.RUnlock()
	var errs fx.AggregatedError
	for s := range b.senders {
		errs.Add(s.SendEvent(msg))
	}
	return errs.Aggregate()
}
