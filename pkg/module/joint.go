package module

import (
	"context"
	"math"
	"strings"
	"time"
)

// Axis selects a motor of a Joint.
type Axis int

// Joint axes.
const (
	AxisX Axis = iota
	AxisY
)

// ParseAxis accepts "0", "x" or "X" for AxisX, anything else is AxisY.
func ParseAxis(s string) Axis {
	switch strings.TrimSpace(s) {
	case "0", "x", "X":
		return AxisX
	}
	return AxisY
}

// String implements fmt.Stringer.
func (a Axis) String() string {
	if a == AxisX {
		return "X"
	}
	return "Y"
}

func (a Axis) field(prefix string) string {
	return prefix + a.String()
}

// Compliance direction for SetComplianceMargin/Slope.
const (
	CCW = -1
	CW  = 1
)

// Joint unit conversions. Positions are in degrees, 0 is the center.
const (
	unitsPerDegree = 3.41333333
	centerPos      = 512
	maxPos         = 1023
)

// BatteryPeriod is how often battery levels are refreshed once read.
const BatteryPeriod = time.Second

// Joint is a two axis servo module.
type Joint struct {
	*Module
}

// NewJoint creates a Joint module.
func NewJoint(serialID string, radioID int, link Link, opts Options) (*Joint, error) {
	m, err := New(JointTemplate, serialID, radioID, link, opts)
	if err != nil {
		return nil, err
	}
	return &Joint{Module: m}, nil
}

// AsJoint wraps a Module of TypeJoint.
func AsJoint(m *Module) (*Joint, error) {
	if m.Type() != TypeJoint {
		return nil, ErrWrongType
	}
	return &Joint{Module: m}, nil
}

func (m *Module) setInt(ctx context.Context, name string, v int) error {
	return m.Set(ctx, name, IntValue(v))
}

func (m *Module) readInt(ctx context.Context, name string) (int, error) {
	v, err := m.Read(ctx, name)
	return v.Int, err
}

func setRGB(ctx context.Context, m *Module, r, g, b float64) error {
	scale := func(x float64) byte { return byte(Clamp(0, 255, math.Round(2.55*x))) }
	return m.Set(ctx, FieldLEDRGB, BytesValue(scale(r), scale(g), scale(b)))
}

// SetPos sets the goal position in degrees.
func (j *Joint) SetPos(ctx context.Context, axis Axis, degrees float64) error {
	raw := Clamp(0, maxPos, math.Round(unitsPerDegree*degrees+centerPos))
	return j.setInt(ctx, axis.field(JointFieldPos), int(raw))
}

// Pos reads the current position in degrees.
func (j *Joint) Pos(ctx context.Context, axis Axis) (float64, error) {
	raw, err := j.readInt(ctx, axis.field(JointFieldCurrentPos))
	return (float64(raw) - centerPos) / unitsPerDegree, err
}

// SetSpeed sets the moving speed in percent, 1 to 100.
func (j *Joint) SetSpeed(ctx context.Context, axis Axis, percent float64) error {
	return j.setInt(ctx, axis.field(JointFieldSpeed), int(5*Clamp(1, 100, math.Round(percent))))
}

// Speed reads the current speed.
func (j *Joint) Speed(ctx context.Context, axis Axis) (int, error) {
	return j.readInt(ctx, axis.field(JointFieldCurrentSpeed))
}

// Load reads the current load.
func (j *Joint) Load(ctx context.Context, axis Axis) (int, error) {
	return j.readInt(ctx, axis.field(JointFieldCurrentLoad))
}

// IsMoving tells if the axis is moving.
func (j *Joint) IsMoving(ctx context.Context, axis Axis) (bool, error) {
	v, err := j.Read(ctx, axis.field(JointFieldCurrentMoving))
	return v.Bool(), err
}

// Voltage reads the motor supply in volts.
func (j *Joint) Voltage(ctx context.Context, axis Axis) (float64, error) {
	raw, err := j.readInt(ctx, axis.field(JointFieldVoltage))
	return float64(raw) / 10, err
}

// Temperature reads the motor temperature in Celsius.
func (j *Joint) Temperature(ctx context.Context, axis Axis) (int, error) {
	return j.readInt(ctx, axis.field(JointFieldTemperature))
}

// SetTorqueLimit limits the torque in percent.
func (j *Joint) SetTorqueLimit(ctx context.Context, axis Axis, percent float64) error {
	return j.setInt(ctx, axis.field(JointFieldTorqueLimit), int(Clamp(1, 600, math.Round(6*percent))))
}

// SetTorqueEnable switches the motor torque.
func (j *Joint) SetTorqueEnable(ctx context.Context, axis Axis, on bool) error {
	return j.Set(ctx, axis.field(JointFieldTorqueEnable), BoolValue(on))
}

// SetComplianceMargin sets the CW margin when dir > 0, CCW otherwise.
func (j *Joint) SetComplianceMargin(ctx context.Context, dir int, axis Axis, margin int) error {
	prefix := JointFieldCCWMargin
	if dir > 0 {
		prefix = JointFieldCWMargin
	}
	return j.setInt(ctx, axis.field(prefix), int(Clamp(0, 255, float64(margin))))
}

// SetComplianceSlope sets the CW slope when dir > 0, CCW otherwise.
func (j *Joint) SetComplianceSlope(ctx context.Context, dir int, axis Axis, slope int) error {
	prefix := JointFieldCCWSlope
	if dir > 0 {
		prefix = JointFieldCWSlope
	}
	return j.setInt(ctx, axis.field(prefix), int(Clamp(0, 255, float64(slope))))
}

// SetPunch sets the minimum drive current.
func (j *Joint) SetPunch(ctx context.Context, axis Axis, punch int) error {
	return j.setInt(ctx, axis.field(JointFieldPunch), int(Clamp(32, 1024, float64(punch))))
}

// SetRGBLed sets the LED color, components in percent.
func (j *Joint) SetRGBLed(ctx context.Context, r, g, b float64) error {
	return setRGB(ctx, j.Module, r, g, b)
}

// BatteryLevel reads the battery level, refreshed every BatteryPeriod.
func (j *Joint) BatteryLevel(ctx context.Context) (int, error) {
	v, err := j.ReadEvery(ctx, FieldBatteryLevel, BatteryPeriod)
	return v.Int, err
}

// IsCharging tells if the battery is charging.
func (j *Joint) IsCharging(ctx context.Context) (bool, error) {
	v, err := j.ReadEvery(ctx, JointFieldCharging, BatteryPeriod)
	return v.Bool(), err
}

// ClearStatus acknowledges an error status.
func (j *Joint) ClearStatus(ctx context.Context) error {
	return j.setInt(ctx, FieldStatus, StatusReady)
}
