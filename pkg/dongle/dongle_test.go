package dongle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fable.go/pkg/module"
)

// fakePort scripts dongle replies: every Write may queue bytes to Read.
type fakePort struct {
	lock    sync.Mutex
	in      []byte
	written [][]byte
	respond func(cmd []byte) []byte
	readErr error
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.written = append(p.written, append([]byte(nil), b...))
	if p.respond != nil {
		p.in = append(p.in, p.respond(b)...)
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) Flush() error {
	return nil
}

func (p *fakePort) feed(data ...byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.in = append(p.in, data...)
}

func (p *fakePort) last() []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.written[len(p.written)-1]
}

func dongleState(typ module.Type) []byte {
	state := make([]byte, module.SharedStateSize)
	copy(state, "D0N1")
	state[module.AddrType] = byte(typ)
	return state
}

// dongleResponder answers like a dongle reporting state.
func dongleResponder(state []byte) func([]byte) []byte {
	return func(cmd []byte) []byte {
		switch {
		case cmd[0] == 0x65:
			return []byte("\r\n")
		case cmd[0] == OpGetState && len(cmd) == 3:
			return state[:cmd[1]]
		case cmd[0] == OpGetState:
			return []byte{ACK, 0x10, 0x27, 0, 0}
		case cmd[0] == OpPing:
			acks := make([]byte, len(cmd))
			for n := range acks {
				acks[n] = ACK
			}
			return acks
		}
		return []byte{ACK}
	}
}

func connectedDongle(t *testing.T) (*Dongle, *fakePort) {
	port := &fakePort{respond: dongleResponder(dongleState(module.TypeDongle))}
	d := &Dongle{Open: func(string) (Port, error) { return port, nil }}
	require.NoError(t, d.Connect("fake0"))
	return d, port
}

func TestConnect(t *testing.T) {
	port := &fakePort{respond: dongleResponder(dongleState(module.TypeDongle))}
	d := &Dongle{
		Open:           func(string) (Port, error) { return port, nil },
		TerminalEscape: true,
	}
	require.NoError(t, d.Connect("fake0"))
	require.True(t, d.Connected())
	require.Equal(t, "fake0", d.Device())
	require.Equal(t, "D0N1", d.Info().SerialID)
	require.Equal(t, [][]byte{{0x65, 0}, {OpGetState, module.SharedStateSize, 0}, {OpPing}}, port.written)

	require.NoError(t, d.Close())
	require.True(t, port.closed)
	require.False(t, d.Connected())
	require.ErrorIs(t, d.Ping(), ErrNotConnected)
}

func TestConnectNotDongle(t *testing.T) {
	port := &fakePort{respond: dongleResponder(dongleState(module.TypeJoint))}
	d := &Dongle{Open: func(string) (Port, error) { return port, nil }}
	require.ErrorIs(t, d.Connect("fake0"), ErrNotDongle)
	require.False(t, d.Connected())
	require.True(t, port.closed)

	port = &fakePort{}
	require.ErrorIs(t, d.Connect("fake0"), ErrTimeout)

	d.Open = func(string) (Port, error) { return nil, errors.New("no such device") }
	require.Error(t, d.Connect("fake0"))
}

func TestCommandACK(t *testing.T) {
	testCases := []struct {
		name    string
		reply   []byte
		err     error
		dropped int
	}{
		{"ack", []byte{ACK}, nil, 0},
		{"late ack", []byte("xyA"), nil, 2},
		{"no ack", []byte("xy"), ErrNoACK, 2},
		{"silent", nil, ErrNoACK, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, port := connectedDongle(t)
			port.respond = func([]byte) []byte { return tc.reply }
			err := d.SetLED(true)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, []byte{OpLED, 1}, port.last())
			require.Equal(t, tc.dropped, d.Statistics().BytesDropped)
		})
	}
}

func TestCommandFrames(t *testing.T) {
	d, port := connectedDongle(t)
	require.NoError(t, d.SetRGB(1, 2, 3))
	require.Equal(t, []byte{OpRGB, 1, 2, 3}, port.last())
	require.NoError(t, d.SetBuzzer(0x1234))
	require.Equal(t, []byte{OpBuzzer, 0x12, 0x34}, port.last())
	require.NoError(t, d.SetState(9, []byte{7, 8}))
	require.Equal(t, []byte{OpBuzzer, 0x0F, 0xAB, 0x1E, 2, 9, 7, 8}, port.last())
	require.NoError(t, d.Stop())
	require.Equal(t, []byte{OpStop}, port.last())

	ms, err := d.Time()
	require.NoError(t, err)
	require.EqualValues(t, 10000, ms)
}

func TestWakeup(t *testing.T) {
	d, port := connectedDongle(t)
	require.NoError(t, d.Wakeup())
	require.Equal(t, 1, d.Statistics().Wakeups)
	require.Equal(t, []byte{OpPing}, port.last())
	require.Len(t, port.written[len(port.written)-2], wakeupBytes)
}

func TestScan(t *testing.T) {
	d, port := connectedDongle(t)
	port.respond = func([]byte) []byte { return []byte{2, 5, 3, 7} }
	data, err := d.Scan()
	require.NoError(t, err)
	require.Equal(t, []byte{2, 5, 3, 7}, data)
}

type traceRecord struct {
	op             byte
	sent, received []byte
	err            error
}

type traceRecorder struct {
	records []traceRecord
}

func (r *traceRecorder) Trace(op byte, sent, received []byte, err error) {
	r.records = append(r.records, traceRecord{op, sent, received, err})
}

func TestRadioPackets(t *testing.T) {
	d, port := connectedDongle(t)
	tracer := &traceRecorder{}
	d.Tracer = tracer

	require.NoError(t, d.WriteRadioPacket([]byte{2, 5, 252}))
	require.Equal(t, []byte{OpRadioPacket, 3, 2, 5, 252}, port.last())
	require.ErrorIs(t, d.WriteRadioPacket(make([]byte, 31)), ErrPacketTooLarge)

	port.feed('#', 0, 2, 5)
	data, err := d.ReadPacket(5, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{'#', 0, 2, 5}, data)

	port.feed(1, 2, 3)
	data, err = d.ReadPacket(3, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)

	st := d.Statistics()
	require.Equal(t, 1, st.SentOK)
	require.Equal(t, 1, st.RecvOK)
	require.Equal(t, 1, st.RecvErrors)
	require.Len(t, tracer.records, 3)
	require.Equal(t, OpRadioPacket, tracer.records[0].op)
	require.Equal(t, []byte{1, 2, 3}, tracer.records[2].received)
}

// radioResponder answers sync packets with a bare module reply.
func radioResponder(cmd []byte) []byte {
	switch cmd[0] {
	case OpRadioPacket:
		return []byte{ACK, '#', 0, cmd[2], cmd[3], 0}
	case OpPing:
		return []byte{ACK}
	}
	return nil
}

func TestExchange(t *testing.T) {
	d, port := connectedDongle(t)
	tracer := &traceRecorder{}
	d.Tracer = tracer
	port.respond = radioResponder

	reply, err := d.Exchange([]byte{2, 5, module.CmdSync}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{'#', 0, 2, 5, 0}, reply)
	require.Equal(t, []byte{OpRadioPacket, 3, 2, 5, module.CmdSync}, port.last())

	reply, err = d.Exchange([]byte{2, 5, module.CmdSync}, 7, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, reply, 5)

	_, err = d.Exchange(make([]byte, 31), 5, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrPacketTooLarge)

	st := d.Statistics()
	require.Equal(t, 2, st.SentOK)
	require.Equal(t, 1, st.RecvOK)
	require.Equal(t, 1, st.RecvErrors)
	require.Len(t, tracer.records, 4)
	require.Equal(t, []byte{2, 5, module.CmdSync}, tracer.records[0].sent)
	require.Equal(t, []byte{'#', 0, 2, 5, 0}, tracer.records[1].received)
}

type tracerFunc func(op byte, sent, received []byte, err error)

func (f tracerFunc) Trace(op byte, sent, received []byte, err error) {
	f(op, sent, received, err)
}

func TestTraceUnlocked(t *testing.T) {
	d, port := connectedDongle(t)
	port.respond = radioResponder
	traced := 0
	d.Tracer = tracerFunc(func(byte, []byte, []byte, error) {
		// the link must be free while the tracer runs
		assert.True(t, d.Connected())
		traced++
	})
	_, err := d.Exchange([]byte{2, 5, module.CmdSync}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, d.WriteRadioPacket([]byte{2, 5, module.CmdRelease}))
	require.Equal(t, 3, traced)
}

func TestExchangeKeepsReplyWithConnector(t *testing.T) {
	d, port := connectedDongle(t)
	port.respond = radioResponder
	c := NewConnector(d, StaticDevices{"fake0"})

	written := len(port.written)
	require.True(t, c.Check())
	require.Len(t, port.written, written)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for n := 0; n < 100; n++ {
			c.Check()
			d.Ping()
		}
	}()
	go func() {
		defer wg.Done()
		for n := 0; n < 100; n++ {
			reply, err := d.Exchange([]byte{2, 5, module.CmdSync}, 5, 10*time.Millisecond)
			assert.NoError(t, err)
			assert.Equal(t, []byte{'#', 0, 2, 5, 0}, reply)
		}
	}()
	wg.Wait()
	require.Zero(t, d.Statistics().BytesDropped)
	require.True(t, d.Connected())
}

func TestIOErrorDisconnects(t *testing.T) {
	d, port := connectedDongle(t)
	port.readErr = errors.New("device gone")
	require.ErrorIs(t, d.Ping(), ErrNotConnected)
	require.False(t, d.Connected())
	require.True(t, port.closed)
	_, err := d.ReadPacket(1, 1)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCandidates(t *testing.T) {
	testCases := []struct {
		c     Candidate
		fable bool
	}{
		{Candidate{VID: "03eb", PID: "fabe"}, true},
		{Candidate{VID: "03EB", PID: "6124"}, false},
		{Candidate{Product: "Fable Dongle"}, true},
		{Candidate{Product: "Fabled"}, false},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.fable, tc.c.IsFable(), "%+v", tc.c)
	}

	found, err := Dongles(
		StaticDevices{"/dev/a"},
		EnumeratorFunc(func() ([]Candidate, error) {
			return []Candidate{{Device: "/dev/a", Product: "Fable Dongle"}, {Device: "/dev/b"}}, nil
		}),
		EnumeratorFunc(func() ([]Candidate, error) { return nil, errors.New("enumeration failed") }),
	)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "/dev/a", found[0].Device)

	_, err = Dongles(EnumeratorFunc(func() ([]Candidate, error) { return nil, errors.New("enumeration failed") }))
	require.Error(t, err)
}

func TestConnectorReconnects(t *testing.T) {
	var ports []*fakePort
	d := &Dongle{Open: func(string) (Port, error) {
		port := &fakePort{respond: dongleResponder(dongleState(module.TypeDongle))}
		ports = append(ports, port)
		return port, nil
	}}
	c := NewConnector(d, StaticDevices{"fake0"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	waitCh := make(chan error, 1)
	go func() { waitCh <- c.WaitConnected(ctx) }()

	require.True(t, c.Check())
	require.NoError(t, <-waitCh)
	require.Len(t, ports, 1)

	require.True(t, c.Check())
	require.Len(t, ports, 1)

	ports[0].readErr = errors.New("unplugged")
	require.True(t, c.Check())
	require.Len(t, ports, 1)
	require.ErrorIs(t, d.Ping(), ErrNotConnected)
	require.True(t, c.Check())
	require.Len(t, ports, 2)
	require.True(t, ports[0].closed)
	require.NoError(t, c.WaitConnected(ctx))

	c.Pause()
	require.True(t, c.IsPaused())
	c.Resume()
	require.False(t, c.IsPaused())
}
