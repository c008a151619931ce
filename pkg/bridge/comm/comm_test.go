package comm

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fable.go/pkg/bridge/comm/stream"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
)

type unknownCommand struct {
	msgs.PbCommandOK
}

func (m *unknownCommand) NewMessage() msgs.Message    { return &unknownCommand{} }
func (m *unknownCommand) TypeID() uint32              { return msgs.GroupModule | 0x0fff }
func (m *unknownCommand) Serializable() proto.Message { return &m.PbCommandOK }

type pipeTestEnv struct {
	server *Server
	client *Client
	events chan msgs.Message
	cancel context.CancelFunc
	done   sync.WaitGroup
}

func newPipeTestEnv(t *testing.T, h CommandHandler) *pipeTestEnv {
	serverConn, clientConn := net.Pipe()
	env := &pipeTestEnv{
		server: NewServer(stream.New(serverConn), h),
		client: NewClient(stream.New(clientConn)),
		events: make(chan msgs.Message, 4),
	}
	env.client.Events = func(msg msgs.Message) { env.events <- msg }
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	env.done.Add(2)
	go func() {
		defer env.done.Done()
		env.server.Run(ctx)
	}()
	go func() {
		defer env.done.Done()
		env.client.Run(ctx)
	}()
	t.Cleanup(env.stop)
	return env
}

func (e *pipeTestEnv) stop() {
	e.cancel()
	e.done.Wait()
}

func TestServerCommands(t *testing.T) {
	var received []msgs.Message
	env := newPipeTestEnv(t, CommandHandlerFunc(func(ctx context.Context, cmd msgs.Message) msgs.Message {
		received = append(received, cmd)
		switch c := cmd.(type) {
		case *msgs.SetPosition:
			return msgs.NewCommandOK()
		case *msgs.Terminate:
			return msgs.NewCommandErr(errors.New("no module " + c.Serial))
		}
		return nil
	}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := env.client.Do(ctx, &msgs.SetPosition{PbSetPosition: msgs.PbSetPosition{Serial: "SJ01", Axis: "x", Value: 30}})
	require.NoError(t, err)
	assert.IsType(t, &msgs.CommandOK{}, reply)

	_, err = env.client.Do(ctx, &msgs.Terminate{PbTerminate: msgs.PbTerminate{Serial: "SJ02"}})
	require.Error(t, err)
	assert.Equal(t, "no module SJ02", err.Error())

	_, err = env.client.Do(ctx, &msgs.ListModules{})
	require.Error(t, err)
	assert.Equal(t, msgs.ErrUnsupportedCommand.Error(), err.Error())

	require.Len(t, received, 3)
	assert.Equal(t, "SJ01", received[0].(*msgs.SetPosition).Serial)
}

func TestServerUnknownCommand(t *testing.T) {
	env := newPipeTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := env.client.Do(ctx, &unknownCommand{})
	var cmdErr *msgs.CommandErr
	require.True(t, errors.As(err, &cmdErr))
	assert.Contains(t, cmdErr.Message, "unknown type")
}

func TestServerEvents(t *testing.T) {
	env := newPipeTestEnv(t, nil)
	var b Broadcaster
	b.Add(env.server)
	assert.Equal(t, 1, b.Len())

	ev := &msgs.ModuleStatus{PbModuleStatus: msgs.PbModuleStatus{Serial: "SJ01", Type: "joint", Cycles: 3}}
	require.NoError(t, b.SendEvent(ev))
	select {
	case msg := <-env.events:
		assert.Equal(t, ev, msg)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}

	assert.Error(t, env.server.SendEvent(msgs.NewCommandOK()))

	b.Remove(env.server)
	assert.Equal(t, 0, b.Len())
	assert.NoError(t, b.SendEvent(ev))
}

type discardReadWriter struct {
	packets [][]byte
}

func (d *discardReadWriter) ReadPacket() ([]byte, error) {
	select {}
}

func (d *discardReadWriter) WritePacket(pkt []byte) error {
	d.packets = append(d.packets, pkt)
	return nil
}

type fakeControlContext struct {
	fx.LoopControl
	now time.Time
}

func (c *fakeControlContext) Time() time.Time          { return c.now }
func (c *fakeControlContext) Context() context.Context { return context.Background() }
func (c *fakeControlContext) Iteration() uint64        { return 1 }

func TestClientPurgeExpired(t *testing.T) {
	rw := &discardReadWriter{}
	client := NewClient(rw)
	client.Expiration = time.Minute
	f1 := client.DoCommand(&msgs.ListModules{})
	f2 := client.DoCommand(&msgs.ListModules{})
	require.Len(t, rw.packets, 2)

	cc := &fakeControlContext{now: time.Now()}
	require.NoError(t, client.PurgeExpired(cc))
	select {
	case <-f1.ResultChan():
		t.Fatal("purged too early")
	default:
	}

	cc.now = cc.now.Add(2 * time.Minute)
	require.NoError(t, client.PurgeExpired(cc))
	for _, f := range []CommandFuture{f1, f2} {
		res := <-f.ResultChan()
		assert.Equal(t, context.DeadlineExceeded, res.Err)
	}
}

func TestClientSendEventAsCommand(t *testing.T) {
	client := NewClient(&discardReadWriter{})
	res := <-client.DoCommand(&msgs.ModuleStatus{}).ResultChan()
	assert.Error(t, res.Err)
}
