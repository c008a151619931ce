package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fable.go/pkg/module"
	"github.com/robotalks/fable.go/pkg/trace"
)

func TestParseConfig(t *testing.T) {
	conf := NewConfig()
	conf.Modules = []ModuleConfig{{Serial: "AB12", Type: "joint", RadioID: 1}}
	require.NoError(t, conf.Parse([]byte(`
device: /dev/ttyACM0
interval: 10ms
exact_word_decode: true
modules:
  - serial: FC01
    type: face
    radio_id: 2
`)))
	require.Equal(t, "/dev/ttyACM0", conf.Device)
	require.Equal(t, 10*time.Millisecond, conf.Interval)
	require.Equal(t, module.DefaultHeartbeat, conf.Heartbeat)
	require.Equal(t, []ModuleConfig{
		{Serial: "AB12", Type: "joint", RadioID: 1},
		{Serial: "FC01", Type: "face", RadioID: 2},
	}, conf.Modules)

	opts := conf.ModuleOptions()
	require.True(t, opts.ExactWordDecode)
	require.Equal(t, module.DefaultReplyTimeout, opts.ReplyTimeout)

	require.Error(t, conf.Parse([]byte("interval: [")))
	require.Error(t, conf.Load(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestParseModule(t *testing.T) {
	testCases := []struct {
		in  string
		out ModuleConfig
		ok  bool
	}{
		{"joint:AB12:3", ModuleConfig{Serial: "AB12", Type: "joint", RadioID: 3}, true},
		{"face:FC01:-1", ModuleConfig{Serial: "FC01", Type: "face", RadioID: -1}, true},
		{"joint:AB12", ModuleConfig{}, false},
		{"joint:AB12:x", ModuleConfig{}, false},
	}
	for _, tc := range testCases {
		mc, err := ParseModule(tc.in)
		if !tc.ok {
			assert.Errorf(t, err, "%q", tc.in)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.out, mc)
	}

	conf := &Config{}
	f := moduleFlag{conf}
	require.NoError(t, f.Set("spin:SP01:4"))
	require.Len(t, conf.Modules, 1)
	require.Error(t, f.Set("spin"))
}

func newSimRuntime(t *testing.T) *Runtime {
	conf := NewConfig()
	conf.Simulate = true
	conf.Interval = 5 * time.Millisecond
	conf.ReconnectPeriod = 10 * time.Millisecond
	conf.ExactWordDecode = true
	conf.TracePath = filepath.Join(t.TempDir(), "radio.trace")
	conf.Modules = []ModuleConfig{{Serial: "SJ01", Type: "joint", RadioID: 1}}
	r, err := conf.NewRuntime()
	require.NoError(t, err)
	return r
}

func TestAttach(t *testing.T) {
	r := newSimRuntime(t)
	defer r.Close()

	require.Len(t, r.Modules(), 1)
	_, err := r.Attach(module.TypeJoint, "SJ01", 1)
	require.ErrorIs(t, err, ErrAttached)
	_, err = r.Attach(module.Type(9), "XX01", 1)
	require.Error(t, err)

	face, err := r.Attach(module.TypeFace, "FC01", 2)
	require.NoError(t, err)
	require.Equal(t, []*module.Module{r.Modules()[0], face}, r.Modules())
	require.Len(t, r.Loop.Controllers(), 3)

	_, err = r.Joint("SJ01")
	require.NoError(t, err)
	_, err = r.Face("FC01")
	require.NoError(t, err)
	_, err = r.Spin("FC01")
	require.ErrorIs(t, err, module.ErrWrongType)
	_, err = r.Module("NONE")
	require.ErrorIs(t, err, ErrNotAttached)

	conf := NewConfig()
	conf.Simulate = true
	conf.Modules = []ModuleConfig{{Serial: "SJ01", Type: "wheel"}}
	_, err = conf.NewRuntime()
	require.Error(t, err)
}

func TestRunSimulated(t *testing.T) {
	r := newSimRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	runCh := make(chan error, 1)
	go func() { runCh <- r.Run(runCtx) }()

	require.NoError(t, r.WaitConnected(ctx))
	joint, err := r.Joint("SJ01")
	require.NoError(t, err)
	require.NoError(t, joint.SetPos(ctx, module.AxisY, -20))
	require.Eventually(t, func() bool {
		pos, err := joint.Pos(ctx, module.AxisY)
		return err == nil && pos > -20.5 && pos < -19.5
	}, 5*time.Second, 10*time.Millisecond)

	simJoint := r.World.Modules()[0]
	require.NoError(t, r.Detach(ctx, "SJ01"))
	require.Equal(t, 1, simJoint.Released())
	require.Empty(t, r.Modules())

	stop()
	require.ErrorIs(t, <-runCh, context.Canceled)
	require.False(t, r.Dongle.Connected())

	reader, err := trace.Open(r.Config.TracePath)
	require.NoError(t, err)
	defer reader.Close()
	ev, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, trace.Sent, ev.Direction)

	_, err = os.Stat(r.Config.TracePath)
	require.NoError(t, err)
}
