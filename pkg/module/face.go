package module

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Emotion is a facial expression.
type Emotion int

// Emotions.
const (
	Neutral Emotion = iota
	Happy
	Sad
	Angry
	Tired
)

var emotionNames = []string{"neutral", "happy", "sad", "angry", "tired"}

// String implements fmt.Stringer.
func (e Emotion) String() string {
	if e >= 0 && int(e) < len(emotionNames) {
		return emotionNames[e]
	}
	return "Emotion(" + strconv.Itoa(int(e)) + ")"
}

// ParseEmotion parses an emotion name or number.
func ParseEmotion(s string) (Emotion, error) {
	for n, name := range emotionNames {
		if strings.EqualFold(name, s) {
			return Emotion(n), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(emotionNames) {
		return Emotion(n), nil
	}
	return Neutral, fmt.Errorf("unknown emotion %q", s)
}

// Orientation is the posture of the face reported by its accelerometer.
type Orientation int

// Orientations.
const (
	OrientationUnknown Orientation = iota
	Portrait
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
	FaceUp
	FaceDown
)

var orientationNames = []string{
	"Unknown", "Portrait", "PortraitUpsideDown", "LandscapeLeft", "LandscapeRight", "FaceUp", "FaceDown",
}

// String implements fmt.Stringer.
func (o Orientation) String() string {
	if o >= 0 && int(o) < len(orientationNames) {
		return orientationNames[o]
	}
	return "Orientation(" + strconv.Itoa(int(o)) + ")"
}

// Axis3 selects a spatial axis.
type Axis3 int

// Spatial axes.
const (
	X Axis3 = iota
	Y
	Z
)

// String implements fmt.Stringer.
func (a Axis3) String() string {
	return xyz[a]
}

// Face value ranges, both quantized into two bytes.
const (
	focusRange = 10.0
	accelRange = 20.0
)

// Face is a phone acting as a module, showing a face.
type Face struct {
	*Module
}

// NewFace creates a Face module.
func NewFace(serialID string, radioID int, link Link, opts Options) (*Face, error) {
	m, err := New(FaceTemplate, serialID, radioID, link, opts)
	if err != nil {
		return nil, err
	}
	return &Face{Module: m}, nil
}

// AsFace wraps a Module of TypeFace.
func AsFace(m *Module) (*Face, error) {
	if m.Type() != TypeFace {
		return nil, ErrWrongType
	}
	return &Face{Module: m}, nil
}

// SetEmotion changes the expression.
func (f *Face) SetEmotion(ctx context.Context, e Emotion) error {
	if e < Neutral || e > Tired {
		return fmt.Errorf("%w: emotion %d", ErrOutOfRange, e)
	}
	return f.setInt(ctx, FaceFieldGoalEmotion, int(e))
}

// Emotion reads the current expression.
func (f *Face) Emotion(ctx context.Context) (Emotion, error) {
	v, err := f.readInt(ctx, FaceFieldEmotion)
	return Emotion(v), err
}

// SetFocus moves the focus point of the eyes, in meters.
func (f *Face) SetFocus(ctx context.Context, axis Axis3, meters float64) error {
	return f.setInt(ctx, FaceFieldGoalFocus+axis.String(), Quantize(meters, -focusRange, focusRange, 2))
}

// Focus reads the current focus point.
func (f *Face) Focus(ctx context.Context, axis Axis3) (float64, error) {
	v, err := f.readInt(ctx, FaceFieldFocus+axis.String())
	return Dequantize(v, -focusRange, focusRange, 2), err
}

// Orientation reads the posture.
func (f *Face) Orientation(ctx context.Context) (Orientation, error) {
	v, err := f.readInt(ctx, FaceFieldOrientation)
	return Orientation(v), err
}

// Compass reads the heading in degrees.
func (f *Face) Compass(ctx context.Context) (int, error) {
	return f.readInt(ctx, FaceFieldCompass)
}

// Acceleration reads the acceleration along an axis in m/s².
func (f *Face) Acceleration(ctx context.Context, axis Axis3) (float64, error) {
	v, err := f.readInt(ctx, FaceFieldAcceleration+axis.String())
	return Dequantize(v, -accelRange, accelRange, 2), err
}

// BatteryLevel reads the battery level, refreshed every BatteryPeriod.
func (f *Face) BatteryLevel(ctx context.Context) (int, error) {
	v, err := f.ReadEvery(ctx, FieldBatteryLevel, BatteryPeriod)
	return v.Int, err
}

// ClearStatus acknowledges the current status.
func (f *Face) ClearStatus(ctx context.Context) error {
	return f.setInt(ctx, FieldStatus, FaceStatusReady)
}
