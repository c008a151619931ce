package module

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Motor selects a motor of a Spin.
type Motor int

// Spin motors.
const (
	MotorA Motor = iota
	MotorB
)

// ParseMotor accepts "0", "a" or "A" for MotorA, anything else is MotorB.
func ParseMotor(s string) Motor {
	switch strings.TrimSpace(s) {
	case "0", "a", "A":
		return MotorA
	}
	return MotorB
}

// String implements fmt.Stringer.
func (m Motor) String() string {
	if m == MotorA {
		return "A"
	}
	return "B"
}

// Spin is a two wheel module with color sensors and an IR transceiver.
// Motor values are raw register units.
type Spin struct {
	*Module
}

// NewSpin creates a Spin module.
func NewSpin(serialID string, radioID int, link Link, opts Options) (*Spin, error) {
	m, err := New(SpinTemplate, serialID, radioID, link, opts)
	if err != nil {
		return nil, err
	}
	return &Spin{Module: m}, nil
}

// AsSpin wraps a Module of TypeSpin.
func AsSpin(m *Module) (*Spin, error) {
	if m.Type() != TypeSpin {
		return nil, ErrWrongType
	}
	return &Spin{Module: m}, nil
}

func word16(v int) int {
	return int(Clamp(0, 0xffff, float64(v)))
}

// SetPos sets the goal position of a motor.
func (s *Spin) SetPos(ctx context.Context, motor Motor, pos int) error {
	return s.setInt(ctx, SpinFieldGoalPos+motor.String(), word16(pos))
}

// SetSpeed sets the goal speed of a motor.
func (s *Spin) SetSpeed(ctx context.Context, motor Motor, speed int) error {
	return s.setInt(ctx, SpinFieldGoalSpeed+motor.String(), word16(speed))
}

// SetStopPos sets where the motor stops.
func (s *Spin) SetStopPos(ctx context.Context, motor Motor, pos int) error {
	return s.setInt(ctx, SpinFieldGoalStopPos+motor.String(), word16(pos))
}

// SetTorque sets the motor torque in percent.
func (s *Spin) SetTorque(ctx context.Context, motor Motor, percent float64) error {
	return s.setInt(ctx, SpinFieldTorque+motor.String(), int(Clamp(0, 255, math.Round(2.55*percent))))
}

// ResetEncoder requests the position encoder of a motor to be zeroed.
func (s *Spin) ResetEncoder(ctx context.Context, motor Motor) error {
	return s.Set(ctx, SpinFieldResetEncoder+motor.String(), BoolValue(true))
}

// Pos reads the current position of a motor.
func (s *Spin) Pos(ctx context.Context, motor Motor) (int, error) {
	return s.readInt(ctx, SpinFieldCurrentPos+motor.String())
}

// Speed reads the current speed of a motor.
func (s *Spin) Speed(ctx context.Context, motor Motor) (int, error) {
	return s.readInt(ctx, SpinFieldCurrentSpeed+motor.String())
}

// HasStopped tells if the motor reached its stop position.
func (s *Spin) HasStopped(ctx context.Context, motor Motor) (bool, error) {
	v, err := s.readInt(ctx, SpinFieldAchievedStopPos+motor.String())
	return v != 0, err
}

// SetHeadlight sets the headlight brightness in percent.
func (s *Spin) SetHeadlight(ctx context.Context, percent float64) error {
	return s.setInt(ctx, SpinFieldHeadlight, int(Clamp(0, 255, math.Round(2.55*percent))))
}

// SetRGBLed sets the LED color, components in percent.
func (s *Spin) SetRGBLed(ctx context.Context, r, g, b float64) error {
	return setRGB(ctx, s.Module, r, g, b)
}

func sensorSuffix(sensor int) (string, error) {
	if sensor < 1 || sensor > SpinSensorCount {
		return "", fmt.Errorf("%w: sensor %d", ErrOutOfRange, sensor)
	}
	return string(rune('0' + sensor)), nil
}

// Color is a color sensor reading.
type Color struct {
	Clear, R, G, B int
}

// Color enables sensor 1 to 3 and reads its color.
func (s *Spin) Color(ctx context.Context, sensor int) (Color, error) {
	suffix, err := sensorSuffix(sensor)
	if err != nil {
		return Color{}, err
	}
	if err = s.Set(ctx, SpinFieldSensorInit+suffix, BoolValue(true)); err != nil {
		return Color{}, err
	}
	v, err := s.Read(ctx, SpinFieldSensorColor+suffix)
	if err != nil || len(v.Bytes) < 4 {
		return Color{}, err
	}
	return Color{Clear: int(v.Bytes[0]), R: int(v.Bytes[1]), G: int(v.Bytes[2]), B: int(v.Bytes[3])}, nil
}

// Proximity enables sensor 1 to 3 and reads its proximity value.
func (s *Spin) Proximity(ctx context.Context, sensor int) (int, error) {
	suffix, err := sensorSuffix(sensor)
	if err != nil {
		return 0, err
	}
	if err = s.Set(ctx, SpinFieldSensorInit+suffix, BoolValue(true)); err != nil {
		return 0, err
	}
	return s.readInt(ctx, SpinFieldSensorProximity+suffix)
}

// SendIR transmits an IR code.
func (s *Spin) SendIR(ctx context.Context, code byte) error {
	return s.setInt(ctx, SpinFieldIRWrite, int(code))
}

// IR reads the last received IR code.
func (s *Spin) IR(ctx context.Context) (byte, error) {
	v, err := s.readInt(ctx, SpinFieldIRRead)
	return byte(v), err
}

// BatteryLevel reads the battery level, refreshed every BatteryPeriod.
func (s *Spin) BatteryLevel(ctx context.Context) (int, error) {
	v, err := s.ReadEvery(ctx, FieldBatteryLevel, BatteryPeriod)
	return v.Int, err
}

// ClearStatus acknowledges an error status.
func (s *Spin) ClearStatus(ctx context.Context) error {
	return s.setInt(ctx, FieldStatus, StatusReady)
}
