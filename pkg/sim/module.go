package sim

import (
	"sync"
	"time"

	m "github.com/robotalks/fable.go/pkg/module"
)

// RegisterFileSize is the size of a simulated module's register file.
const RegisterFileSize = 128

// DefaultJointSpeed is the position change rate in units per second
// for a joint with moving speed 0.
const DefaultJointSpeed = 1000

// Module simulates a module answering radio packets with its
// register file.
type Module struct {
	Type    m.Type
	RadioID byte

	lock     sync.Mutex
	regs     [RegisterFileSize]byte
	status   byte
	silent   bool
	packets  int
	released int
}

// NewModule creates a module with the shared registers set.
func NewModule(typ m.Type, serialID string, radioID byte) *Module {
	mod := &Module{Type: typ, RadioID: radioID}
	copy(mod.regs[m.AddrSerialNumber:m.AddrSerialNumber+m.SerialLength], serialID)
	mod.regs[m.AddrType] = byte(typ)
	mod.regs[m.AddrFirmware] = 1
	mod.regs[m.AddrHardware] = 1
	mod.regs[m.AddrRadioID] = radioID
	switch typ {
	case m.TypeJoint:
		mod.status = m.StatusReady
		mod.setWord(m.AddrJointBatteryLevel, 100)
		for _, axis := range []byte{m.AddrJointX, m.AddrJointY} {
			mod.setWord(axis+m.JointGoalPos, 512)
			mod.setWord(axis+m.JointCurrentPos, 512)
			mod.regs[axis+m.JointVoltage] = 120
			mod.regs[axis+m.JointTemperature] = 30
		}
	case m.TypeSpin:
		mod.status = m.StatusReady
		mod.setWord(m.AddrSpinBattery, 100)
	case m.TypeFace:
		mod.status = m.FaceStatusReady
		mod.setWord(m.AddrFaceBattery, 100)
	}
	return mod
}

// Status is the status byte reported in replies.
func (mod *Module) Status() byte {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	return mod.status
}

// SetStatus forces the status byte, e.g. to BOOT or LOCKED.
func (mod *Module) SetStatus(status byte) {
	mod.lock.Lock()
	mod.status = status
	mod.lock.Unlock()
}

// SetSilent makes the module ignore packets, as if out of range.
func (mod *Module) SetSilent(silent bool) {
	mod.lock.Lock()
	mod.silent = silent
	mod.lock.Unlock()
}

// Register reads a register.
func (mod *Module) Register(addr byte) byte {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	return mod.regs[addr]
}

// SetRegister changes a register.
func (mod *Module) SetRegister(addr, v byte) {
	mod.lock.Lock()
	mod.regs[addr] = v
	mod.lock.Unlock()
}

// Word reads a little endian register pair.
func (mod *Module) Word(addr byte) int {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	return mod.word(addr)
}

// SetWord changes a little endian register pair.
func (mod *Module) SetWord(addr byte, v int) {
	mod.lock.Lock()
	mod.setWord(addr, v)
	mod.lock.Unlock()
}

func (mod *Module) word(addr byte) int {
	return int(mod.regs[addr]) | int(mod.regs[addr+1])<<8
}

func (mod *Module) setWord(addr byte, v int) {
	mod.regs[addr] = m.Low(v)
	mod.regs[addr+1] = m.High(v)
}

// Packets is the number of sync packets answered.
func (mod *Module) Packets() int {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	return mod.packets
}

// Released is the number of release commands received.
func (mod *Module) Released() int {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	return mod.released
}

// HandlePacket processes a radio packet addressed to the module and
// returns the reply, nil if there's none.
func (mod *Module) HandlePacket(pkt []byte) []byte {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	if mod.silent || len(pkt) < 3 {
		return nil
	}
	switch pkt[2] {
	case m.CmdRelease:
		mod.released++
		return nil
	case m.CmdSync:
	default:
		return nil
	}
	mod.packets++
	var values []byte
	for n := 3; n < len(pkt); {
		addr := pkt[n]
		if addr&m.ReadFlag != 0 {
			values = append(values, mod.regs[addr&^m.ReadFlag])
			n++
			continue
		}
		if n+1 >= len(pkt) {
			break
		}
		if mod.status != m.StatusLocked || mod.Type == m.TypeFace {
			mod.write(addr, pkt[n+1])
		}
		n += 2
	}
	reply := make([]byte, 0, 5+len(values))
	reply = append(reply, '#', byte(5+len(values)), byte(mod.Type), mod.RadioID, mod.status)
	return append(reply, values...)
}

func (mod *Module) write(addr, v byte) {
	mod.regs[addr] = v
	switch {
	case mod.Type == m.TypeJoint && addr == m.AddrJointStatus:
		mod.status = v
	case mod.Type == m.TypeSpin && addr == m.AddrSpinStatus:
		mod.status = v
	case mod.Type == m.TypeFace && addr == m.AddrFaceStatus:
		mod.status = v
	}
}

// Step advances the simulated mechanics by dt.
func (mod *Module) Step(dt time.Duration) {
	mod.lock.Lock()
	defer mod.lock.Unlock()
	switch mod.Type {
	case m.TypeJoint:
		for _, axis := range []byte{m.AddrJointX, m.AddrJointY} {
			speed := mod.word(axis + m.JointMovingSpeed)
			if speed == 0 {
				speed = DefaultJointSpeed
			}
			cur, goal := mod.word(axis+m.JointCurrentPos), mod.word(axis+m.JointGoalPos)
			cur = approach(cur, goal, int(float64(speed)*dt.Seconds())+1)
			mod.setWord(axis+m.JointCurrentPos, cur)
			moving := byte(0)
			if cur != goal {
				moving = 1
			}
			mod.regs[axis+m.JointMoving] = moving
		}
	case m.TypeFace:
		mod.regs[m.AddrFaceEmotionCurrent] = mod.regs[m.AddrFaceEmotionGoal]
		copy(mod.regs[m.AddrFaceFocusCurrent:m.AddrFaceFocusCurrent+6], mod.regs[m.AddrFaceFocusGoal:m.AddrFaceFocusGoal+6])
	case m.TypeSpin:
		for _, motor := range []byte{m.AddrSpinMotorA, m.AddrSpinMotorB} {
			cur, goal := mod.word(motor+m.SpinCurrentPos), mod.word(motor+m.SpinGoalPos)
			mod.setWord(motor+m.SpinCurrentPos, approach(cur, goal, int(DefaultJointSpeed*dt.Seconds())+1))
			if mod.regs[motor+m.SpinResetEncoder] != 0 {
				mod.setWord(motor+m.SpinCurrentPos, 0)
				mod.setWord(motor+m.SpinGoalPos, 0)
				mod.regs[motor+m.SpinResetEncoder] = 0
			}
		}
	}
}

func approach(cur, goal, step int) int {
	switch {
	case goal > cur+step:
		return cur + step
	case goal < cur-step:
		return cur - step
	}
	return goal
}
