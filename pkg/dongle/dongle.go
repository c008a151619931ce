package dongle

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/module"
)

// Opcodes of the dongle serial protocol.
const (
	OpPing        byte = 0xFF
	OpRadioPacket byte = 0xFE
	OpLED         byte = 0xFB
	OpRGB         byte = 0xFA
	OpBuzzer      byte = 0xF9
	OpGetState    byte = 0xF8
	OpStop        byte = 0xF7
	OpScan        byte = 0xF4

	// ACK terminates most commands.
	ACK byte = 'A'
)

var setStateMagic = []byte{0x0F, 0xAB, 0x1E}

// Protocol timing.
const (
	WakeupSettle = 100 * time.Millisecond
	ScanSettle   = 200 * time.Millisecond
	wakeupBytes  = 10
	ackTries     = 2
	drainLimit   = 256
	drainChunk   = 64
)

// Tracer observes radio traffic.
type Tracer interface {
	Trace(op byte, sent, received []byte, err error)
}

// Dongle is the transport to the USB dongle. All operations are
// serialized, a logical exchange never interleaves with another.
type Dongle struct {
	// Open opens a device, OpenSerial with the dongle defaults if nil.
	Open func(device string) (Port, error)
	// TerminalEscape switches the dongle out of terminal mode after
	// opening, needed on Linux.
	TerminalEscape bool
	// Tracer, if set, is told about every radio exchange.
	Tracer Tracer

	lock   sync.Mutex
	port   Port
	device string
	info   *module.Info
	stats  Statistics
}

// New creates a Dongle using serial ports.
func New() *Dongle {
	return &Dongle{TerminalEscape: runtime.GOOS == "linux"}
}

// Statistics are traffic counters.
type Statistics struct {
	Wakeups      int
	BytesDropped int
	SentOK       int
	SentErrors   int
	RecvOK       int
	RecvErrors   int
}

// String implements fmt.Stringer.
func (s Statistics) String() string {
	return fmt.Sprintf("wakeups=%d dropped=%d sent=%d/%d recv=%d/%d",
		s.Wakeups, s.BytesDropped, s.SentOK, s.SentErrors, s.RecvOK, s.RecvErrors)
}

// Connect opens the device, checks it's a dongle and pings it.
// An existing connection is closed first.
func (d *Dongle) Connect(device string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closePort()

	open := d.Open
	if open == nil {
		open = func(dev string) (Port, error) { return OpenSerial(DefaultSerialConfig(dev)) }
	}
	port, err := open(device)
	if err != nil {
		return err
	}
	d.port = port
	if err = d.handshake(); err != nil {
		d.closePort()
		return fmt.Errorf("%s: %w", device, err)
	}
	d.device = device
	glog.Infof("dongle %s connected on %s", d.info.SerialID, device)
	return nil
}

func (d *Dongle) handshake() error {
	if d.TerminalEscape {
		if err := d.write([]byte{0x65, 0}); err != nil {
			return err
		}
		if _, err := d.read(2, ackTries); err != nil {
			return err
		}
	}
	state, err := d.getState(module.SharedStateSize)
	if err != nil {
		return err
	}
	info, err := module.DecodeInfo(state)
	if err != nil {
		return err
	}
	if info.Type != module.TypeDongle {
		return fmt.Errorf("%w: type %v", ErrNotDongle, info.Type)
	}
	d.info = info
	return d.command([]byte{OpPing})
}

// Close disconnects the dongle.
func (d *Dongle) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.closePort()
}

func (d *Dongle) closePort() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port, d.device, d.info = nil, "", nil
	return err
}

// Connected tells if a dongle is attached.
func (d *Dongle) Connected() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.port != nil
}

// Device is the device name of the attached dongle.
func (d *Dongle) Device() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.device
}

// Info is the state the attached dongle reported when connected.
func (d *Dongle) Info() *module.Info {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.info
}

// Statistics returns a copy of the traffic counters.
func (d *Dongle) Statistics() Statistics {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.stats
}

// Ping checks the dongle is responsive.
func (d *Dongle) Ping() error {
	return d.locked(func() error { return d.command([]byte{OpPing}) })
}

// Wakeup kicks a sleeping dongle and pings it.
func (d *Dongle) Wakeup() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stats.Wakeups++
	kick := make([]byte, wakeupBytes)
	for n := range kick {
		kick[n] = OpPing
	}
	if err := d.write(kick); err != nil {
		return err
	}
	time.Sleep(WakeupSettle)
	if _, err := d.drain(); err != nil {
		return err
	}
	return d.command([]byte{OpPing})
}

// SetLED switches the dongle LED.
func (d *Dongle) SetLED(on bool) error {
	var v byte
	if on {
		v = 1
	}
	return d.locked(func() error { return d.command([]byte{OpLED, v}) })
}

// SetRGB sets the color of the dongle LED.
func (d *Dongle) SetRGB(r, g, b byte) error {
	return d.locked(func() error { return d.command([]byte{OpRGB, r, g, b}) })
}

// SetBuzzer sets the buzzer tone, 0 is silent.
func (d *Dongle) SetBuzzer(tone uint16) error {
	return d.locked(func() error { return d.command([]byte{OpBuzzer, byte(tone >> 8), byte(tone)}) })
}

// Stop stops the dongle.
func (d *Dongle) Stop() error {
	return d.locked(func() error { return d.command([]byte{OpStop}) })
}

// GetState reads the first size bytes of the dongle's register file.
func (d *Dongle) GetState(size int) (state []byte, err error) {
	err = d.locked(func() error {
		state, err = d.getState(size)
		return err
	})
	return
}

func (d *Dongle) getState(size int) ([]byte, error) {
	if size <= 0 || size > 0xff {
		return nil, fmt.Errorf("state size %d out of range", size)
	}
	if err := d.write([]byte{OpGetState, byte(size), 0}); err != nil {
		return nil, err
	}
	data, err := d.read(size, 1+size/8)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: state %d of %d bytes", ErrTimeout, len(data), size)
	}
	return data, nil
}

// SetState writes data into the dongle's register file at index.
func (d *Dongle) SetState(index byte, data []byte) error {
	if len(data) > 0xff {
		return fmt.Errorf("state data of %d bytes too large", len(data))
	}
	cmd := append([]byte{OpBuzzer}, setStateMagic...)
	cmd = append(cmd, byte(len(data)), index)
	cmd = append(cmd, data...)
	return d.locked(func() error { return d.command(cmd) })
}

// Time reads the dongle clock in milliseconds.
func (d *Dongle) Time() (t uint32, err error) {
	err = d.locked(func() error {
		if err := d.command([]byte{OpGetState}); err != nil {
			return err
		}
		data, err := d.read(4, ackTries)
		if err != nil {
			return err
		}
		if len(data) < 4 {
			return fmt.Errorf("%w: time", ErrTimeout)
		}
		t = binary.LittleEndian.Uint32(data)
		return nil
	})
	return
}

// Scan asks modules in range to announce themselves and returns
// everything received after ScanSettle.
func (d *Dongle) Scan() (data []byte, err error) {
	err = d.locked(func() error {
		if err := d.write([]byte{OpScan}); err != nil {
			return err
		}
		time.Sleep(ScanSettle)
		data, err = d.drain()
		return err
	})
	return
}

// WriteRadioPacket forwards a packet to the radio. It implements module.Link.
func (d *Dongle) WriteRadioPacket(data []byte) error {
	if len(data) > module.MaxRadioPacket {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(data))
	}
	d.lock.Lock()
	err := d.writeRadio(data)
	d.lock.Unlock()
	d.trace(OpRadioPacket, data, nil, err)
	return err
}

// ReadPacket reads up to n bytes using at most tries byte timeouts.
func (d *Dongle) ReadPacket(n, tries int) ([]byte, error) {
	d.lock.Lock()
	data, err := d.read(n, tries)
	d.countRecv(len(data) == n && err == nil)
	d.lock.Unlock()
	if len(data) > 0 || err != nil {
		d.trace(0, nil, data, err)
	}
	return data, err
}

// Exchange forwards a packet to the radio and collects up to n reply
// bytes until timeout. The link stays locked for the whole exchange
// so nothing else consumes the reply. It implements module.Link.
func (d *Dongle) Exchange(data []byte, n int, timeout time.Duration) ([]byte, error) {
	if len(data) > module.MaxRadioPacket {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(data))
	}
	d.lock.Lock()
	err := d.writeRadio(data)
	if err != nil {
		d.lock.Unlock()
		d.trace(OpRadioPacket, data, nil, err)
		return nil, err
	}
	reply := make([]byte, 0, n)
	deadline := time.Now().Add(timeout)
	for len(reply) < n {
		var got []byte
		got, err = d.read(n-len(reply), 1)
		reply = append(reply, got...)
		if err != nil || (len(got) == 0 && !time.Now().Before(deadline)) {
			break
		}
	}
	d.countRecv(len(reply) == n && err == nil)
	d.lock.Unlock()

	d.trace(OpRadioPacket, data, nil, nil)
	if len(reply) > 0 || err != nil {
		d.trace(0, nil, reply, err)
	}
	return reply, err
}

func (d *Dongle) writeRadio(data []byte) error {
	cmd := make([]byte, 0, 2+len(data))
	cmd = append(cmd, OpRadioPacket, byte(len(data)))
	cmd = append(cmd, data...)
	err := d.command(cmd)
	if err != nil {
		d.stats.SentErrors++
	} else {
		d.stats.SentOK++
	}
	return err
}

func (d *Dongle) countRecv(ok bool) {
	if ok {
		d.stats.RecvOK++
	} else {
		d.stats.RecvErrors++
	}
}

// trace must be called without the lock held.
func (d *Dongle) trace(op byte, sent, received []byte, err error) {
	if d.Tracer != nil {
		d.Tracer.Trace(op, sent, received, err)
	}
}

func (d *Dongle) locked(fn func() error) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return fn()
}

// command sends cmd and expects an ACK.
func (d *Dongle) command(cmd []byte) error {
	if err := d.write(cmd); err != nil {
		return err
	}
	reply, err := d.read(1, ackTries)
	if err != nil {
		return err
	}
	if len(reply) == 1 && reply[0] == ACK {
		return nil
	}
	pending, err := d.drain()
	if err != nil {
		return err
	}
	if len(pending) > 0 && pending[len(pending)-1] == ACK {
		if dropped := len(reply) + len(pending) - 1; dropped > 0 {
			d.stats.BytesDropped += dropped
			glog.Warningf("dongle: late ACK for 0x%02x after %d bytes", cmd[0], dropped)
		}
		return nil
	}
	d.stats.BytesDropped += len(reply) + len(pending)
	return fmt.Errorf("%w: 0x%02x", ErrNoACK, cmd[0])
}

func (d *Dongle) write(data []byte) error {
	if d.port == nil {
		return ErrNotConnected
	}
	if _, err := d.port.Write(data); err != nil {
		return d.broken(err)
	}
	if err := d.port.Flush(); err != nil {
		return d.broken(err)
	}
	glog.V(4).Infof("dongle > % x", data)
	return nil
}

// read reads up to n bytes, each try waits one byte timeout at most.
func (d *Dongle) read(n, tries int) ([]byte, error) {
	if d.port == nil {
		return nil, ErrNotConnected
	}
	buf := make([]byte, n)
	got := 0
	for try := 0; got < n && try < tries; try++ {
		cnt, err := d.port.Read(buf[got:])
		got += cnt
		if err != nil {
			return buf[:got], d.broken(err)
		}
	}
	if got > 0 {
		glog.V(4).Infof("dongle < % x", buf[:got])
	}
	return buf[:got], nil
}

// drain reads until the input is quiet.
func (d *Dongle) drain() ([]byte, error) {
	var pending []byte
	for len(pending) < drainLimit {
		data, err := d.read(drainChunk, 1)
		pending = append(pending, data...)
		if err != nil || len(data) == 0 {
			return pending, err
		}
	}
	return pending, nil
}

// broken drops the port after an I/O failure so the connector
// reconnects.
func (d *Dongle) broken(err error) error {
	glog.Warningf("dongle %s: %v", d.device, err)
	d.closePort()
	return fmt.Errorf("%w: %v", ErrNotConnected, err)
}
