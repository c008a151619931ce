package module

import (
	"fmt"
)

// FieldDef describes one logical field of a module's register file.
type FieldDef struct {
	Name    string
	Access  Access
	Kind    Kind
	Addrs   []byte
	Default Value

	// Claims marks the module in use when the field is only read,
	// so it is released on termination.
	Claims bool
}

// Width is the number of register bytes the field spans.
func (f FieldDef) Width() int {
	return len(f.Addrs)
}

// WithDefault returns a copy of the field using v as default value.
func (f FieldDef) WithDefault(v Value) FieldDef {
	f.Default = v
	return f
}

// Claiming returns a copy of the field which claims the module when read.
func (f FieldDef) Claiming() FieldDef {
	f.Claims = true
	return f
}

// StatusCodes describe how a module type reports its life cycle in
// the status byte. Types without a boot/lock protocol leave it nil.
type StatusCodes struct {
	Boot    byte
	Ready   byte
	Running byte
	Locked  byte
}

// Template is the per-type directory of fields, in the order fields
// are walked when a sync packet is composed.
type Template struct {
	Type Type
	// MaxPacket caps the total sync packet length, header included.
	MaxPacket int
	// CheckSender requires the radio ID in replies to match.
	CheckSender bool
	// Status is nil when the module doesn't implement the
	// boot/ready/locked protocol.
	Status *StatusCodes

	Fields []FieldDef

	index map[string]int
}

// NewTemplate validates field definitions and builds a Template.
func NewTemplate(typ Type, maxPacket int, fields ...FieldDef) (*Template, error) {
	if maxPacket < 4 || maxPacket > MaxRadioPacket {
		return nil, fmt.Errorf("%v: packet cap %d out of range", typ, maxPacket)
	}
	t := &Template{
		Type:      typ,
		MaxPacket: maxPacket,
		Fields:    fields,
		index:     make(map[string]int, len(fields)),
	}
	used := make(map[byte]string)
	for n, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%v: field %d has no name", typ, n)
		}
		if _, exists := t.index[f.Name]; exists {
			return nil, fmt.Errorf("%v: duplicated field %q", typ, f.Name)
		}
		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("%v: %w", typ, err)
		}
		for _, addr := range f.Addrs {
			if owner, ok := used[addr]; ok {
				return nil, fmt.Errorf("%v: address %d of %q already used by %q", typ, addr, f.Name, owner)
			}
			used[addr] = f.Name
		}
		t.index[f.Name] = n
	}
	return t, nil
}

// MustTemplate is NewTemplate which panics on invalid definitions.
func MustTemplate(typ Type, maxPacket int, fields ...FieldDef) *Template {
	t, err := NewTemplate(typ, maxPacket, fields...)
	if err != nil {
		panic(err)
	}
	return t
}

func validateField(f FieldDef) error {
	if len(f.Addrs) == 0 {
		return fmt.Errorf("field %q has no address", f.Name)
	}
	for _, addr := range f.Addrs {
		if addr&ReadFlag != 0 {
			return fmt.Errorf("field %q address %d exceeds register space", f.Name, addr)
		}
	}
	switch f.Kind {
	case Int:
		if len(f.Addrs) > 2 {
			return fmt.Errorf("integer field %q spans %d addresses", f.Name, len(f.Addrs))
		}
	case Bool:
		if len(f.Addrs) != 1 {
			return fmt.Errorf("boolean field %q spans %d addresses", f.Name, len(f.Addrs))
		}
	case Bytes, String:
		if len(f.Default.Bytes) > len(f.Addrs) {
			return fmt.Errorf("default of %q is longer than its addresses", f.Name)
		}
	default:
		return fmt.Errorf("field %q has unknown kind %d", f.Name, f.Kind)
	}
	switch f.Access {
	case Persistent, Write, Read:
	default:
		return fmt.Errorf("field %q has unknown access %d", f.Name, f.Access)
	}
	return nil
}

// Lookup finds the index of a field.
func (t *Template) Lookup(name string) (int, bool) {
	n, ok := t.index[name]
	return n, ok
}

// Field finds a field by name.
func (t *Template) Field(name string) (FieldDef, bool) {
	if n, ok := t.index[name]; ok {
		return t.Fields[n], true
	}
	return FieldDef{}, false
}

// Names lists field names in walk order.
func (t *Template) Names() []string {
	names := make([]string, len(t.Fields))
	for n, f := range t.Fields {
		names[n] = f.Name
	}
	return names
}

// TemplateFor returns the directory of a module type.
func TemplateFor(typ Type) (*Template, error) {
	switch typ {
	case TypeJoint:
		return JointTemplate, nil
	case TypeFace:
		return FaceTemplate, nil
	case TypeSpin:
		return SpinTemplate, nil
	case TypeDongle:
		return DongleTemplate, nil
	}
	return nil, fmt.Errorf("no directory for module type %v", typ)
}

func reg(name string, access Access, addr byte) FieldDef {
	return FieldDef{Name: name, Access: access, Kind: Int, Addrs: []byte{addr}}
}

func word(name string, access Access, addr byte) FieldDef {
	return FieldDef{Name: name, Access: access, Kind: Int, Addrs: []byte{addr, addr + 1}}
}

func flag(name string, access Access, addr byte) FieldDef {
	return FieldDef{Name: name, Access: access, Kind: Bool, Addrs: []byte{addr}}
}

func span(addr byte, n int) []byte {
	addrs := make([]byte, n)
	for i := range addrs {
		addrs[i] = addr + byte(i)
	}
	return addrs
}

func text(name string, access Access, addr byte, n int) FieldDef {
	return FieldDef{Name: name, Access: access, Kind: String, Addrs: span(addr, n)}
}

func list(name string, access Access, addrs ...byte) FieldDef {
	return FieldDef{Name: name, Access: access, Kind: Bytes, Addrs: addrs, Default: BytesValue(make([]byte, len(addrs))...)}
}

// Field names shared by all module types.
const (
	FieldSerialID        = "serialID"
	FieldType            = "type"
	FieldFirmwareVersion = "firmwareVersion"
	FieldHardwareVersion = "hardwareVersion"
	FieldResetCount      = "resetCount"
	FieldOnTime          = "onTime"
	FieldRadioChannel    = "radioChannel"
	FieldRadioID         = "radioID"
	FieldBoothMode       = "boothMode"
	FieldName            = "name"
	FieldStatus          = "status"
	FieldBatteryLevel    = "batteryLevel"
	FieldLEDRGB          = "ledRGB"
)

func sharedFields(typ Type) []FieldDef {
	return []FieldDef{
		text(FieldSerialID, Persistent, AddrSerialNumber, SerialLength),
		reg(FieldType, Persistent, AddrType).WithDefault(IntValue(int(typ))),
		reg(FieldFirmwareVersion, Persistent, AddrFirmware),
		reg(FieldHardwareVersion, Persistent, AddrHardware),
		word(FieldResetCount, Persistent, AddrResetCount),
		word(FieldOnTime, Persistent, AddrOnTime),
		reg(FieldRadioChannel, Persistent, AddrRadioChannel),
		reg(FieldRadioID, Persistent, AddrRadioID).WithDefault(IntValue(NoRadioID)),
		reg(FieldBoothMode, Persistent, AddrBoothMode),
		text(FieldName, Persistent, AddrName, NameLength),
	}
}

// NoRadioID is the radioID value of a module without radio address.
const NoRadioID = -1

var jointStatus = &StatusCodes{
	Boot:    StatusBoot,
	Ready:   StatusReady,
	Running: StatusRunning,
	Locked:  StatusLocked,
}

// Joint axis field prefixes, suffixed by X or Y.
const (
	JointFieldPos           = "pos"
	JointFieldSpeed         = "speed"
	JointFieldTorqueLimit   = "torqueLimit"
	JointFieldCWMargin      = "CWComplianceMargin"
	JointFieldCCWMargin     = "CCWComplianceMargin"
	JointFieldCWSlope       = "CWComplianceSlope"
	JointFieldCCWSlope      = "CCWComplianceSlope"
	JointFieldPunch         = "punch"
	JointFieldTorqueEnable  = "torqueEnable"
	JointFieldCurrentPos    = "currentPos"
	JointFieldCurrentSpeed  = "currentSpeed"
	JointFieldCurrentLoad   = "currentLoad"
	JointFieldCurrentMoving = "currentMoving"
	JointFieldVoltage       = "voltage"
	JointFieldTemperature   = "temperature"
	JointFieldVCCLevel      = "vccLevel"
	JointFieldCurrentFlow   = "currentFlow"
	JointFieldCharging      = "charging"
)

func jointFields() []FieldDef {
	fields := sharedFields(TypeJoint)
	axes := []struct {
		suffix string
		base   byte
	}{{"X", AddrJointX}, {"Y", AddrJointY}}
	unset := IntValue(-1)
	for _, field := range []func(string, byte) FieldDef{
		func(s string, b byte) FieldDef { return word(JointFieldPos+s, Write, b+JointGoalPos) },
		func(s string, b byte) FieldDef { return word(JointFieldSpeed+s, Write, b+JointMovingSpeed) },
		func(s string, b byte) FieldDef {
			return word(JointFieldTorqueLimit+s, Write, b+JointTorqueLimit).WithDefault(unset)
		},
		func(s string, b byte) FieldDef {
			return reg(JointFieldCWMargin+s, Write, b+JointCWMargin).WithDefault(unset)
		},
		func(s string, b byte) FieldDef {
			return reg(JointFieldCCWMargin+s, Write, b+JointCCWMargin).WithDefault(unset)
		},
		func(s string, b byte) FieldDef {
			return reg(JointFieldCWSlope+s, Write, b+JointCWSlope).WithDefault(unset)
		},
		func(s string, b byte) FieldDef {
			return reg(JointFieldCCWSlope+s, Write, b+JointCCWSlope).WithDefault(unset)
		},
		func(s string, b byte) FieldDef { return word(JointFieldPunch+s, Write, b+JointPunch) },
		func(s string, b byte) FieldDef { return flag(JointFieldTorqueEnable+s, Write, b+JointTorqueEnable) },
		func(s string, b byte) FieldDef { return word(JointFieldCurrentPos+s, Read, b+JointCurrentPos) },
		func(s string, b byte) FieldDef { return word(JointFieldCurrentSpeed+s, Read, b+JointSpeed) },
		func(s string, b byte) FieldDef { return word(JointFieldCurrentLoad+s, Read, b+JointLoad) },
		func(s string, b byte) FieldDef { return flag(JointFieldCurrentMoving+s, Read, b+JointMoving) },
		func(s string, b byte) FieldDef { return reg(JointFieldVoltage+s, Read, b+JointVoltage) },
		func(s string, b byte) FieldDef { return reg(JointFieldTemperature+s, Read, b+JointTemperature) },
	} {
		for _, axis := range axes {
			fields = append(fields, field(axis.suffix, axis.base).Claiming())
		}
	}
	return append(fields,
		list(FieldLEDRGB, Write, AddrJointLEDR, AddrJointLEDG, AddrJointLEDB),
		word(FieldBatteryLevel, Read, AddrJointBatteryLevel),
		word(JointFieldVCCLevel, Read, AddrJointVCCLevel),
		word(JointFieldCurrentFlow, Read, AddrJointCurrentFlow),
		flag(JointFieldCharging, Read, AddrJointCharging),
		reg(FieldStatus, Write, AddrJointStatus),
	)
}

// Face field names.
const (
	FaceFieldGoalEmotion  = "goalEmotion"
	FaceFieldGoalFocus    = "goalFocus"
	FaceFieldEmotion      = "currentEmotion"
	FaceFieldFocus        = "currentFocus"
	FaceFieldOrientation  = "currentOrientation"
	FaceFieldCompass      = "currentCompass"
	FaceFieldAcceleration = "currentAcceleration"
)

var xyz = []string{"X", "Y", "Z"}

func faceFields() []FieldDef {
	fields := append(sharedFields(TypeFace),
		word(FieldBatteryLevel, Read, AddrFaceBattery),
		reg(FieldStatus, Write, AddrFaceStatus),
		reg(FaceFieldGoalEmotion, Write, AddrFaceEmotionGoal),
	)
	for n, axis := range xyz {
		fields = append(fields, word(FaceFieldGoalFocus+axis, Write, AddrFaceFocusGoal+byte(2*n)))
	}
	fields = append(fields, reg(FaceFieldEmotion, Read, AddrFaceEmotionCurrent))
	for n, axis := range xyz {
		fields = append(fields, word(FaceFieldFocus+axis, Read, AddrFaceFocusCurrent+byte(2*n)))
	}
	fields = append(fields,
		reg(FaceFieldOrientation, Read, AddrFaceOrientation),
		word(FaceFieldCompass, Read, AddrFaceCompass),
	)
	for n, axis := range xyz {
		fields = append(fields, word(FaceFieldAcceleration+axis, Read, AddrFaceAcceleration+byte(2*n)))
	}
	return fields
}

// Spin field prefixes, motor fields are suffixed by A or B and
// sensor fields by 1, 2 or 3.
const (
	SpinFieldTorque          = "torque"
	SpinFieldGoalPos         = "goalPos"
	SpinFieldGoalSpeed       = "goalSpeed"
	SpinFieldGoalStopPos     = "goalStopPos"
	SpinFieldCurrentSpeed    = "currentSpeed"
	SpinFieldCurrentPos      = "currentPos"
	SpinFieldAchievedStopPos = "achievedStopPos"
	SpinFieldResetEncoder    = "resetEncoder"
	SpinFieldHeadlight       = "headlight"
	SpinFieldSensorInit      = "sensorInit"
	SpinFieldSensorColor     = "sensorColor"
	SpinFieldSensorProximity = "sensorProximity"
	SpinFieldIRWrite         = "irWrite"
	SpinFieldIRRead          = "irRead"
	SpinFieldVCCLevel        = "vccLevel"
	SpinFieldCharging        = "charging"
)

func spinFields() []FieldDef {
	fields := append(sharedFields(TypeSpin),
		list(FieldLEDRGB, Write, AddrSpinLEDR, AddrSpinLEDG, AddrSpinLEDB),
		word(FieldBatteryLevel, Read, AddrSpinBattery),
		word(SpinFieldVCCLevel, Read, AddrSpinVCC),
		reg(SpinFieldTorque+"A", Write, AddrSpinTorqueA),
		reg(SpinFieldTorque+"B", Write, AddrSpinTorqueB),
		flag(SpinFieldCharging, Read, AddrSpinCharging),
		reg(FieldStatus, Write, AddrSpinStatus),
	)
	for _, motor := range []struct {
		suffix string
		base   byte
	}{{"A", AddrSpinMotorA}, {"B", AddrSpinMotorB}} {
		b := motor.base
		fields = append(fields,
			word(SpinFieldGoalPos+motor.suffix, Write, b+SpinGoalPos),
			word(SpinFieldGoalSpeed+motor.suffix, Write, b+SpinGoalSpeed),
			word(SpinFieldGoalStopPos+motor.suffix, Write, b+SpinGoalStopPos),
			word(SpinFieldCurrentSpeed+motor.suffix, Read, b+SpinCurrentSpeed),
			word(SpinFieldCurrentPos+motor.suffix, Read, b+SpinCurrentPos),
			reg(SpinFieldAchievedStopPos+motor.suffix, Read, b+SpinAchievedStopPos),
			flag(SpinFieldResetEncoder+motor.suffix, Write, b+SpinResetEncoder),
		)
	}
	fields = append(fields, reg(SpinFieldHeadlight, Write, AddrSpinHeadlight))
	for n := 0; n < SpinSensorCount; n++ {
		b := AddrSpinSensor1 + byte(n*SpinSensorStride)
		suffix := string(rune('1' + n))
		fields = append(fields,
			flag(SpinFieldSensorInit+suffix, Write, b+SpinSensorInit),
			list(SpinFieldSensorColor+suffix, Read, b+SpinSensorClear, b+SpinSensorRed, b+SpinSensorGreen, b+SpinSensorBlue),
			reg(SpinFieldSensorProximity+suffix, Read, b+SpinSensorProx),
		)
	}
	return append(fields,
		reg(SpinFieldIRWrite, Write, AddrSpinIRWrite),
		reg(SpinFieldIRRead, Read, AddrSpinIRRead),
	)
}

// Dongle field names.
const (
	DongleFieldBLESPIErrors  = "bleSPIErrors"
	DongleFieldBLECommErrors = "bleCommErrors"
)

func dongleFields() []FieldDef {
	return append(sharedFields(TypeDongle),
		word(DongleFieldBLESPIErrors, Read, AddrDongleBLESPIErr),
		word(DongleFieldBLECommErrors, Read, AddrDongleBLECommErr),
	)
}

// Directories of all module types.
var (
	JointTemplate = withStatus(MustTemplate(TypeJoint, 28, jointFields()...), jointStatus, true)
	SpinTemplate  = withStatus(MustTemplate(TypeSpin, 28, spinFields()...), jointStatus, true)
	FaceTemplate  = withStatus(MustTemplate(TypeFace, MaxRadioPacket, faceFields()...), nil, false)

	DongleTemplate = withStatus(MustTemplate(TypeDongle, MaxRadioPacket, dongleFields()...), nil, false)
)

func withStatus(t *Template, codes *StatusCodes, checkSender bool) *Template {
	t.Status, t.CheckSender = codes, checkSender
	return t
}
