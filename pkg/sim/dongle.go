package sim

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/dongle"
	m "github.com/robotalks/fable.go/pkg/module"
)

// DefaultReadTimeout is how long Read waits when nothing is pending.
const DefaultReadTimeout = time.Millisecond

// ErrClosed is returned by a closed port.
var ErrClosed = errors.New("port closed")

// Dongle emulates the dongle serial protocol in memory and forwards
// radio packets to simulated modules. Every Write is one command.
type Dongle struct {
	SerialID    string
	ReadTimeout time.Duration

	lock    sync.Mutex
	modules []*Module
	in      []byte
	closed  bool
	offline bool
	drop    int
	started time.Time
	led     bool
	rgb     [3]byte
	tone    uint16
	state   [RegisterFileSize]byte
	opens   int
}

// NewDongle creates a simulated dongle.
func NewDongle(serialID string, modules ...*Module) *Dongle {
	d := &Dongle{
		SerialID:    serialID,
		ReadTimeout: DefaultReadTimeout,
		modules:     modules,
		started:     time.Now(),
	}
	copy(d.state[m.AddrSerialNumber:m.AddrSerialNumber+m.SerialLength], serialID)
	d.state[m.AddrType] = byte(m.TypeDongle)
	d.state[m.AddrFirmware] = 1
	d.state[m.AddrHardware] = 1
	return d
}

// Open implements the dongle.Dongle Open hook, every device name
// resolves to this dongle.
func (d *Dongle) Open(device string) (dongle.Port, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.offline {
		return nil, errors.New(device + ": no such device")
	}
	d.closed = false
	d.in = nil
	d.opens++
	glog.V(1).Infof("sim: dongle %s opened as %s", d.SerialID, device)
	return d, nil
}

// Opens is the number of times the port was opened.
func (d *Dongle) Opens() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.opens
}

// Add puts more modules in range.
func (d *Dongle) Add(modules ...*Module) {
	d.lock.Lock()
	d.modules = append(d.modules, modules...)
	d.lock.Unlock()
}

// Modules returns the modules in range.
func (d *Dongle) Modules() []*Module {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*Module(nil), d.modules...)
}

// SetOffline unplugs (true) or plugs in the dongle. An unplugged
// dongle fails every I/O and can't be opened.
func (d *Dongle) SetOffline(offline bool) {
	d.lock.Lock()
	d.offline = offline
	d.lock.Unlock()
}

// Drop discards the replies of the next n radio packets.
func (d *Dongle) Drop(n int) {
	d.lock.Lock()
	d.drop = n
	d.lock.Unlock()
}

// LED returns the LED state.
func (d *Dongle) LED() (on bool, rgb [3]byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.led, d.rgb
}

// Tone returns the buzzer tone.
func (d *Dongle) Tone() uint16 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.tone
}

// Read implements io.Reader. It returns 0 bytes after ReadTimeout if
// nothing is pending.
func (d *Dongle) Read(b []byte) (int, error) {
	d.lock.Lock()
	if err := d.usable(); err != nil {
		d.lock.Unlock()
		return 0, err
	}
	if len(d.in) == 0 {
		d.lock.Unlock()
		time.Sleep(d.ReadTimeout)
		return 0, nil
	}
	n := copy(b, d.in)
	d.in = d.in[n:]
	d.lock.Unlock()
	return n, nil
}

// Write implements io.Writer.
func (d *Dongle) Write(b []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if err := d.usable(); err != nil {
		return 0, err
	}
	if len(b) > 0 {
		d.execute(b)
	}
	return len(b), nil
}

// Flush implements dongle.Port.
func (d *Dongle) Flush() error {
	return nil
}

// Close implements io.Closer.
func (d *Dongle) Close() error {
	d.lock.Lock()
	d.closed = true
	d.lock.Unlock()
	return nil
}

func (d *Dongle) usable() error {
	if d.closed {
		return ErrClosed
	}
	if d.offline {
		return errors.New("device unplugged")
	}
	return nil
}

func (d *Dongle) reply(data ...byte) {
	d.in = append(d.in, data...)
}

func (d *Dongle) execute(cmd []byte) {
	switch cmd[0] {
	case 0x65:
		d.reply('\r', '\n')
	case dongle.OpPing:
		for range cmd {
			d.reply(dongle.ACK)
		}
	case dongle.OpLED:
		if len(cmd) > 1 {
			d.led = cmd[1] != 0
		}
		d.reply(dongle.ACK)
	case dongle.OpRGB:
		copy(d.rgb[:], cmd[1:])
		d.reply(dongle.ACK)
	case dongle.OpBuzzer:
		d.buzzer(cmd[1:])
		d.reply(dongle.ACK)
	case dongle.OpStop:
		d.reply(dongle.ACK)
	case dongle.OpGetState:
		if len(cmd) > 1 {
			d.reply(d.state[:cmd[1]]...)
			return
		}
		var ms [4]byte
		binary.LittleEndian.PutUint32(ms[:], uint32(time.Since(d.started)/time.Millisecond))
		d.reply(dongle.ACK)
		d.reply(ms[:]...)
	case dongle.OpScan:
		for _, mod := range d.modules {
			d.reply(byte(mod.Type), mod.RadioID)
		}
	case dongle.OpRadioPacket:
		d.radio(cmd[1:])
	default:
		glog.Warningf("sim: unknown dongle command % x", cmd)
	}
}

// buzzer handles the tone command and its set-state variant.
func (d *Dongle) buzzer(args []byte) {
	if len(args) >= 5 && args[0] == 0x0F && args[1] == 0xAB && args[2] == 0x1E {
		size, index := int(args[3]), int(args[4])
		data := args[5:]
		if len(data) > size {
			data = data[:size]
		}
		if index < len(d.state) {
			copy(d.state[index:], data)
		}
		return
	}
	if len(args) >= 2 {
		d.tone = uint16(args[0])<<8 | uint16(args[1])
	}
}

func (d *Dongle) radio(args []byte) {
	if len(args) == 0 || int(args[0]) != len(args)-1 {
		return
	}
	pkt := args[1:]
	d.reply(dongle.ACK)
	if len(pkt) < 2 {
		return
	}
	for _, mod := range d.modules {
		if byte(mod.Type) != pkt[0] || mod.RadioID != pkt[1] {
			continue
		}
		reply := mod.HandlePacket(pkt)
		if d.drop > 0 && reply != nil {
			d.drop--
			return
		}
		d.reply(reply...)
		return
	}
}
