package bridge

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fable.go/pkg/bridge/comm"
	"github.com/robotalks/fable.go/pkg/bridge/comm/stream"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	"github.com/robotalks/fable.go/pkg/module"
	"github.com/robotalks/fable.go/pkg/runtime"
)

type bridgeTestEnv struct {
	ctx     context.Context
	runtime *runtime.Runtime
	bridge  *Bridge
	client  *comm.Client
	events  chan msgs.Message
}

func newBridgeTestEnv(t *testing.T) *bridgeTestEnv {
	conf := runtime.NewConfig()
	conf.Simulate = true
	conf.Interval = 5 * time.Millisecond
	conf.ReconnectPeriod = 10 * time.Millisecond
	conf.ExactWordDecode = true
	conf.TracePath = filepath.Join(t.TempDir(), "radio.trace")
	conf.Modules = []runtime.ModuleConfig{
		{Serial: "SJ01", Type: "joint", RadioID: 1},
		{Serial: "FC01", Type: "face", RadioID: 2},
	}
	r, err := conf.NewRuntime()
	require.NoError(t, err)

	bconf := NewConfig()
	bconf.HostID = "test"
	bconf.StatusPeriod = 20 * time.Millisecond
	b, err := bconf.NewBridge(r)
	require.NoError(t, err)
	b.AddToLoop(r.Loop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	runCh := make(chan error, 1)
	go func() { runCh <- r.Run(ctx) }()

	serverConn, clientConn := net.Pipe()
	go b.Serve(ctx, stream.New(serverConn))
	client := comm.NewClient(stream.New(clientConn))
	events := make(chan msgs.Message, 16)
	client.Events = func(msg msgs.Message) {
		select {
		case events <- msg:
		default:
		}
	}
	go client.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-runCh
	})
	require.NoError(t, r.WaitConnected(ctx))
	return &bridgeTestEnv{ctx: ctx, runtime: r, bridge: b, client: client, events: events}
}

func (e *bridgeTestEnv) do(msg msgs.Message) (msgs.Message, error) {
	return e.client.Do(e.ctx, msg)
}

func TestBridgeListModules(t *testing.T) {
	env := newBridgeTestEnv(t)
	reply, err := env.do(&msgs.ListModules{})
	require.NoError(t, err)
	list, ok := reply.(*msgs.ModuleList)
	require.True(t, ok)
	require.Len(t, list.Modules, 2)
	assert.Equal(t, "SJ01", list.Modules[0].Serial)
	assert.Equal(t, "joint", list.Modules[0].Type)
	assert.Equal(t, int32(1), list.Modules[0].RadioId)
	assert.Equal(t, "FC01", list.Modules[1].Serial)
	assert.Equal(t, "face", list.Modules[1].Type)
}

func TestBridgeSetPosition(t *testing.T) {
	env := newBridgeTestEnv(t)
	_, err := env.do(&msgs.SetPosition{PbSetPosition: msgs.PbSetPosition{Serial: "SJ01", Axis: "x", Value: 15}})
	require.NoError(t, err)

	joint, err := env.runtime.Joint("SJ01")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		pos, err := joint.Pos(env.ctx, module.AxisX)
		return err == nil && pos > 14.5 && pos < 15.5
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeReadField(t *testing.T) {
	env := newBridgeTestEnv(t)
	reply, err := env.do(&msgs.ReadField{PbReadField: msgs.PbReadField{Serial: "SJ01", Field: module.FieldBatteryLevel}})
	require.NoError(t, err)
	val, ok := reply.(*msgs.FieldValue)
	require.True(t, ok)
	assert.Equal(t, "SJ01", val.Serial)
	assert.Equal(t, 100, val.Value().Int)

	_, err = env.do(&msgs.ReadField{PbReadField: msgs.PbReadField{Serial: "SJ01", Field: "nothing"}})
	assert.Error(t, err)
}

func TestBridgeCommandErrors(t *testing.T) {
	env := newBridgeTestEnv(t)
	testCases := []struct {
		name string
		cmd  msgs.Message
	}{
		{"unknown serial", &msgs.SetSpeed{PbSetSpeed: msgs.PbSetSpeed{Serial: "NONE", Axis: "x", Value: 10}}},
		{"face has no motors", &msgs.SetTorque{PbSetTorque: msgs.PbSetTorque{Serial: "FC01", Axis: "x", Value: 50}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.do(tc.cmd)
			var cmdErr *msgs.CommandErr
			assert.ErrorAs(t, err, &cmdErr)
		})
	}
}

func TestBridgeTerminate(t *testing.T) {
	env := newBridgeTestEnv(t)
	_, err := env.do(&msgs.SetPosition{PbSetPosition: msgs.PbSetPosition{Serial: "SJ01", Axis: "x", Value: 5}})
	require.NoError(t, err)
	joint, err := env.runtime.Joint("SJ01")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		pos, err := joint.Pos(env.ctx, module.AxisX)
		return err == nil && pos > 4.5 && pos < 5.5
	}, 5*time.Second, 10*time.Millisecond)

	_, err = env.do(&msgs.Terminate{PbTerminate: msgs.PbTerminate{Serial: "SJ01"}})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return env.runtime.World.Modules()[0].Released() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, env.runtime.Modules(), 2)
}

func TestBridgeStatusEvents(t *testing.T) {
	env := newBridgeTestEnv(t)
	select {
	case msg := <-env.events:
		status, ok := msg.(*msgs.ModuleStatus)
		require.True(t, ok)
		assert.Contains(t, []string{"SJ01", "FC01"}, status.Serial)
	case <-time.After(5 * time.Second):
		t.Fatal("no status event")
	}
}

func TestMachineID(t *testing.T) {
	assert.NotEmpty(t, MachineID())
}
