package module

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRadio answers sync packets like a module with a register file.
type fakeRadio struct {
	typ    Type
	rid    byte
	status byte
	regs   [128]byte
	sent   [][]byte
	reply  []byte
	drop   bool
	mutate func([]byte) []byte
}

func (f *fakeRadio) WriteRadioPacket(data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.reply = nil
	if f.drop || len(data) < 3 || data[2] != CmdSync {
		return nil
	}
	reply := []byte{'#', 0, byte(f.typ), f.rid, f.status}
	for i := 3; i < len(data); {
		addr := data[i]
		if addr&ReadFlag != 0 {
			reply = append(reply, f.regs[addr&^ReadFlag])
			i++
			continue
		}
		if i+1 < len(data) {
			f.regs[addr] = data[i+1]
		}
		i += 2
	}
	if f.mutate != nil {
		reply = f.mutate(reply)
	}
	f.reply = reply
	return nil
}

func (f *fakeRadio) Exchange(data []byte, n int, timeout time.Duration) ([]byte, error) {
	if err := f.WriteRadioPacket(data); err != nil {
		return nil, err
	}
	if n > len(f.reply) {
		n = len(f.reply)
	}
	out := f.reply[:n]
	f.reply = f.reply[n:]
	return out, nil
}

func (f *fakeRadio) last() []byte {
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type syncTestEnv struct {
	t     *testing.T
	radio *fakeRadio
	now   time.Time
	m     *Module
}

func newSyncTestEnv(t *testing.T, tpl *Template, status byte) *syncTestEnv {
	env := &syncTestEnv{
		t:     t,
		radio: &fakeRadio{typ: tpl.Type, rid: 5, status: status},
		now:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	opts := DefaultOptions()
	opts.ReplyTimeout = 5 * time.Millisecond
	opts.Now = func() time.Time { return env.now }
	m, err := New(tpl, "AB12", 5, env.radio, opts)
	require.NoError(t, err)
	env.m = m
	return env
}

func (e *syncTestEnv) sync() (Outcome, error) {
	e.now = e.now.Add(time.Second)
	return e.m.Sync()
}

func (e *syncTestEnv) syncOK() {
	outcome, err := e.sync()
	require.NoError(e.t, err)
	require.Equal(e.t, OutcomeOK, outcome)
}

// do runs a blocking call while serving the request queue.
func (e *syncTestEnv) do(fn func(context.Context) error) {
	errCh := make(chan error, 1)
	go func() { errCh <- fn(context.Background()) }()
	for {
		select {
		case err := <-errCh:
			require.NoError(e.t, err)
			return
		case <-time.After(time.Millisecond):
			e.m.drain(e.now)
		}
	}
}

// read runs Read while syncing until it returns.
func (e *syncTestEnv) read(name string) Value {
	ch := make(chan Value, 1)
	go func() {
		v, err := e.m.Read(context.Background(), name)
		assert.NoError(e.t, err)
		ch <- v
	}()
	for i := 0; i < 200; i++ {
		select {
		case v := <-ch:
			return v
		case <-time.After(time.Millisecond):
			e.sync()
		}
	}
	e.t.Fatalf("read %q not answered", name)
	return Value{}
}

func (e *syncTestEnv) set(name string, v Value) {
	e.do(func(ctx context.Context) error { return e.m.Set(ctx, name, v) })
}

func (e *syncTestEnv) snapshot() []FieldState {
	var states []FieldState
	e.do(func(ctx context.Context) (err error) {
		states, err = e.m.Snapshot(ctx)
		return
	})
	return states
}

func (e *syncTestEnv) state(name string) FieldState {
	n, ok := e.m.Template().Lookup(name)
	require.True(e.t, ok, name)
	return e.snapshot()[n]
}

func hasPair(pkt []byte, addr, val byte) bool {
	return bytes.Contains(pkt[3:], []byte{addr, val})
}

func TestSyncHeartbeat(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	outcome, err := env.m.Sync()
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync}, env.radio.last())

	env.now = env.now.Add(100 * time.Millisecond)
	outcome, err = env.m.Sync()
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnore, outcome)
	require.Len(t, env.radio.sent, 1)

	env.now = env.now.Add(DefaultHeartbeat)
	outcome, err = env.m.Sync()
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome)
	require.Len(t, env.radio.sent, 2)

	st := env.m.Stats()
	require.EqualValues(t, 3, st.Cycles)
	require.EqualValues(t, 2, st.OKCycles)
	require.Equal(t, StatusReady, st.Status)
	require.Equal(t, []Outcome{OutcomeOK, OutcomeIgnore, OutcomeOK}, st.History)
}

func TestSyncWriteCommit(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	j, err := AsJoint(env.m)
	require.NoError(t, err)
	env.do(func(ctx context.Context) error { return j.SetPos(ctx, AxisX, 0) })
	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync, 62, 0, 63, 2}, env.radio.last())
	require.Equal(t, byte(0), env.radio.regs[62])
	require.Equal(t, byte(2), env.radio.regs[63])
	require.True(t, env.m.Stats().Used)

	// committed, only heartbeat follows
	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync}, env.radio.last())
}

func TestSyncCommitHard(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	addr := AddrJointX + JointGoalPos
	env.set("posX", IntValue(300))
	require.Equal(t, 0, env.state("posX").Hard.Int)

	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync, addr, 44, addr + 1, 1}, env.radio.last())
	st := env.state("posX")
	require.Equal(t, 300, st.Hard.Int)
	require.Equal(t, 300, st.Soft.Int)
	require.Equal(t, env.now, st.LastWrite)
}

func TestSyncFailureKeepsPending(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.set(JointFieldSpeed+"Y", IntValue(300))
	env.radio.drop = true
	for i := 1; i <= 2; i++ {
		outcome, err := env.sync()
		require.Error(t, err)
		require.Equal(t, OutcomeError, outcome)
		require.Equal(t, i, env.m.SyncErrorCount())
		require.True(t, hasPair(env.radio.last(), AddrJointY+JointMovingSpeed, 44))
	}
	require.Equal(t, 0.0, env.m.ConnectionQuality())

	env.radio.drop = false
	env.syncOK()
	require.True(t, hasPair(env.radio.last(), AddrJointY+JointMovingSpeed, 44))
	require.Equal(t, 0, env.m.SyncErrorCount())
	require.InDelta(t, 100.0/3, env.m.ConnectionQuality(), 0.001)
}

func replyByte(n int, b byte) func([]byte) []byte {
	return func(r []byte) []byte {
		r[n] = b
		return r
	}
}

func TestSyncBadReply(t *testing.T) {
	testCases := []struct {
		name   string
		tpl    *Template
		mutate func([]byte) []byte
		ok     bool
	}{
		{"wrong marker", JointTemplate, replyByte(0, '!'), false},
		{"wrong type", JointTemplate, replyByte(2, byte(TypeSpin)), false},
		{"wrong sender", JointTemplate, replyByte(3, 9), false},
		{"short", JointTemplate, func(r []byte) []byte { return r[:3] }, false},
		{"extra data", JointTemplate, func(r []byte) []byte { return append(r, 1) }, true},
		{"face ignores sender", FaceTemplate, replyByte(3, 9), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newSyncTestEnv(t, tc.tpl, StatusReady)
			if tc.ok {
				env.radio.mutate = tc.mutate
				outcome, err := env.sync()
				require.NoError(t, err)
				require.Equal(t, OutcomeOK, outcome)
				return
			}

			// committed, subscribed and pending fields of each kind
			env.set("posX", IntValue(300))
			env.syncOK()
			env.radio.regs[AddrJointX+JointCurrentPos] = 7
			env.read("currentPosX")
			env.set("posX", IntValue(400))
			env.set(FieldName, StringValue("bob"))
			before := env.snapshot()
			require.True(t, before[mustLookup(t, "currentPosX")].Subscribed)

			env.radio.mutate = tc.mutate
			outcome, err := env.sync()
			require.Equal(t, OutcomeError, outcome)
			var replyErr *ReplyError
			require.True(t, errors.As(err, &replyErr))
			require.Equal(t, before, env.snapshot())

			// the same writes go out again
			env.radio.mutate = nil
			env.syncOK()
			require.True(t, hasPair(env.radio.last(), AddrJointX+JointGoalPos, 144))
			require.True(t, hasPair(env.radio.last(), AddrName, 'b'))
			require.Equal(t, 400, env.state("posX").Hard.Int)
		})
	}
}

func mustLookup(t *testing.T, name string) int {
	n, ok := JointTemplate.Lookup(name)
	require.True(t, ok, name)
	return n
}

func TestSyncNoRadioID(t *testing.T) {
	m, err := New(JointTemplate, "AB12", NoRadioID, &fakeRadio{}, DefaultOptions())
	require.NoError(t, err)
	outcome, err := m.Sync()
	require.ErrorIs(t, err, ErrNoRadioID)
	require.Equal(t, OutcomeError, outcome)
}

func TestSyncPacketCap(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	for _, name := range []string{"posX", "posY", "speedX", "speedY", "torqueLimitX", "torqueLimitY", "punchX"} {
		env.set(name, IntValue(100))
	}
	env.syncOK()
	pkt := env.radio.last()
	require.Len(t, pkt, 27)
	require.False(t, hasPair(pkt, AddrJointX+JointPunch, 100))

	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync, AddrJointX + JointPunch, 100, AddrJointX + JointPunch + 1, 0},
		env.radio.last())
}

func TestSyncOversizeSkipped(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.set(FieldName, StringValue("a very long joint nm"))
	env.set("speedX", IntValue(5))
	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync, AddrJointX + JointMovingSpeed, 5, AddrJointX + JointMovingSpeed + 1, 0},
		env.radio.last())
	require.Equal(t, 1, env.m.Stats().Oversize)

	env.set(FieldName, StringValue("bob"))
	env.syncOK()
	require.True(t, hasPair(env.radio.last(), AddrName, 'b'))
	require.True(t, hasPair(env.radio.last(), AddrName+1, 'o'))
}

func TestSyncRestoreAfterReset(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.set("posX", IntValue(600))
	env.syncOK()

	env.radio.status = StatusBoot
	outcome, err := env.sync()
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnore, outcome)
	require.Equal(t, StatusBoot, env.m.Status())

	env.radio.status = StatusReady
	env.syncOK()
	require.True(t, hasPair(env.radio.last(), AddrJointStatus, StatusReady))
	require.False(t, hasPair(env.radio.last(), AddrJointX, 88))

	env.syncOK()
	require.True(t, hasPair(env.radio.last(), AddrJointX, 88))
	require.True(t, hasPair(env.radio.last(), AddrJointX+1, 2))
}

func TestSyncLocked(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusLocked)
	env.m.Seen()
	v := env.read(JointFieldCurrentPos + "X")
	require.Equal(t, 0, v.Int)
	require.True(t, env.m.IsOwnedByAnotherDongle())
	require.Equal(t, 0, env.m.SyncErrorCount())
}

func TestReadWaitsForFreshValues(t *testing.T) {
	testCases := []struct {
		name  string
		exact bool
		value int
	}{
		{"legacy decode", false, 0x10 + 255*2},
		{"exact decode", true, 0x210},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newSyncTestEnv(t, JointTemplate, StatusReady)
			env.m.opts.ExactWordDecode = tc.exact
			env.radio.regs[AddrJointX+JointCurrentPos] = 0x10
			env.radio.regs[AddrJointX+JointCurrentPos+1] = 2
			env.m.Seen()
			v := env.read(JointFieldCurrentPos + "X")
			require.Equal(t, tc.value, v.Int)
			require.True(t, env.m.Stats().OKCycles >= freshCycles)
			require.True(t, env.m.Stats().Used)
		})
	}
}

func TestReadUnseenReturnsImmediately(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.radio.regs[AddrJointBatteryLevel] = 77
	var v Value
	env.do(func(ctx context.Context) (err error) {
		v, err = env.m.Read(ctx, FieldBatteryLevel)
		return
	})
	require.Equal(t, 0, v.Int)

	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync, ReadFlag | AddrJointBatteryLevel, ReadFlag | (AddrJointBatteryLevel + 1)},
		env.radio.last())
	require.False(t, env.m.Stats().Used)
	env.do(func(ctx context.Context) (err error) {
		v, err = env.m.Get(ctx, FieldBatteryLevel)
		return
	})
	require.Equal(t, 77, v.Int)
}

func TestReadPersistentOnce(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.radio.regs[AddrFirmware] = 7
	env.m.Seen()
	v := env.read(FieldFirmwareVersion)
	require.Equal(t, 7, v.Int)
	env.syncOK()
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdSync}, env.radio.last())
}

func TestSetRejects(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	ctx := context.Background()
	require.ErrorIs(t, env.m.Set(ctx, "nope", IntValue(1)), ErrUnknownField)
	require.ErrorIs(t, env.m.Set(ctx, FieldBatteryLevel, IntValue(1)), ErrReadOnly)
	require.ErrorIs(t, env.m.Set(ctx, "posX", IntValue(70000)), ErrOutOfRange)
	require.ErrorIs(t, env.m.Set(ctx, FieldName, StringValue("this name is far too long")), ErrOutOfRange)
}

func TestTerminate(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	env.set("posX", IntValue(600))
	env.syncOK()
	env.do(env.m.Terminate)
	require.Equal(t, []byte{byte(TypeJoint), 5, CmdRelease}, env.radio.last())
	require.Zero(t, env.m.Cycles())
	require.False(t, env.m.Stats().Used)

	var v Value
	env.do(func(ctx context.Context) (err error) {
		v, err = env.m.Get(ctx, "posX")
		return
	})
	require.Equal(t, 0, v.Int)

	// unused module is released silently
	sent := len(env.radio.sent)
	env.do(env.m.Terminate)
	require.Len(t, env.radio.sent, sent)
}

func TestFacadeScaling(t *testing.T) {
	env := newSyncTestEnv(t, JointTemplate, StatusReady)
	j, err := AsJoint(env.m)
	require.NoError(t, err)
	_, err = AsFace(env.m)
	require.ErrorIs(t, err, ErrWrongType)

	get := func(name string) Value {
		var v Value
		env.do(func(ctx context.Context) (err error) {
			v, err = env.m.Get(ctx, name)
			return
		})
		return v
	}
	env.do(func(ctx context.Context) error { return j.SetPos(ctx, AxisY, 30) })
	require.Equal(t, 614, get("posY").Int)
	env.do(func(ctx context.Context) error { return j.SetPos(ctx, AxisY, 400) })
	require.Equal(t, 1023, get("posY").Int)
	env.do(func(ctx context.Context) error { return j.SetSpeed(ctx, AxisX, 150) })
	require.Equal(t, 500, get("speedX").Int)
	env.do(func(ctx context.Context) error { return j.SetTorqueLimit(ctx, AxisX, 50) })
	require.Equal(t, 300, get("torqueLimitX").Int)
	env.do(func(ctx context.Context) error { return j.SetComplianceMargin(ctx, CW, AxisX, 300) })
	require.Equal(t, 255, get("CWComplianceMarginX").Int)
	env.do(func(ctx context.Context) error { return j.SetPunch(ctx, AxisX, 1) })
	require.Equal(t, 32, get("punchX").Int)
	env.do(func(ctx context.Context) error { return j.SetRGBLed(ctx, 100, 50, -3) })
	require.Equal(t, []byte{255, 128, 0}, get(FieldLEDRGB).Bytes)

	face := newSyncTestEnv(t, FaceTemplate, FaceStatusReady)
	f, err := AsFace(face.m)
	require.NoError(t, err)
	face.do(func(ctx context.Context) error { return f.SetFocus(ctx, Z, 0) })
	face.do(func(ctx context.Context) error { return f.SetEmotion(ctx, Angry) })
	face.syncOK()
	require.True(t, hasPair(face.radio.last(), AddrFaceEmotionGoal, byte(Angry)))
	require.True(t, hasPair(face.radio.last(), AddrFaceFocusGoal+4, 0))
	require.True(t, hasPair(face.radio.last(), AddrFaceFocusGoal+5, 0x80))
	require.ErrorIs(t, f.SetEmotion(context.Background(), Emotion(9)), ErrOutOfRange)
}

func TestParseSelectors(t *testing.T) {
	require.Equal(t, AxisX, ParseAxis("x"))
	require.Equal(t, AxisX, ParseAxis("0"))
	require.Equal(t, AxisY, ParseAxis("1"))
	require.Equal(t, MotorA, ParseMotor("A"))
	require.Equal(t, MotorB, ParseMotor("b"))
	e, err := ParseEmotion("Happy")
	require.NoError(t, err)
	require.Equal(t, Happy, e)
	e, err = ParseEmotion("4")
	require.NoError(t, err)
	require.Equal(t, Tired, e)
	_, err = ParseEmotion("bored")
	require.Error(t, err)
	require.Equal(t, "LandscapeLeft", LandscapeLeft.String())
}
