package module

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies the kind of a Fable module on the wire.
type Type byte

// Module types.
const (
	TypeDongle Type = 1
	TypeJoint  Type = 2
	TypeFace   Type = 3
	TypeSpin   Type = 4
)

var typeNames = map[Type]string{
	TypeDongle: "Dongle",
	TypeJoint:  "Joint",
	TypeFace:   "Face",
	TypeSpin:   "Spin",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType parses a type name (case insensitive) or a numeric code.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		if _, ok := typeNames[Type(n)]; ok {
			return Type(n), nil
		}
	}
	return 0, fmt.Errorf("unknown module type %q", s)
}

// Access tells how a field is synchronized.
type Access int

// Access kinds.
const (
	// Persistent fields live in the module's non-volatile memory.
	// They are written when changed but never polled.
	Persistent Access = iota
	// Write fields are pushed to the module whenever the host changes them.
	Write
	// Read fields are pulled from the module once subscribed.
	Read
)

// String implements fmt.Stringer.
func (a Access) String() string {
	switch a {
	case Persistent:
		return "p"
	case Write:
		return "w"
	case Read:
		return "r"
	}
	return "?"
}

// Writable tells if the host may push values of this kind.
func (a Access) Writable() bool {
	return a != Read
}

// Kind is the value representation of a field.
type Kind int

// Value kinds.
const (
	// Int spans one or two addresses, low byte first.
	Int Kind = iota
	// Bool spans one address, any non-zero byte is true.
	Bool
	// Bytes spans one address per element.
	Bytes
	// String spans one address per character.
	String
)

// Value holds a field value. Int and Bool fields use Int, Bytes and
// String fields use Bytes.
type Value struct {
	Int   int
	Bytes []byte
}

// IntValue creates an integer Value.
func IntValue(v int) Value {
	return Value{Int: v}
}

// BoolValue creates a boolean Value.
func BoolValue(b bool) Value {
	if b {
		return Value{Int: 1}
	}
	return Value{}
}

// BytesValue creates a byte-list Value.
func BytesValue(b ...byte) Value {
	return Value{Bytes: append([]byte{}, b...)}
}

// StringValue creates a string Value.
func StringValue(s string) Value {
	return Value{Bytes: []byte(s)}
}

// Bool interprets the value as boolean.
func (v Value) Bool() bool {
	return v.Int != 0
}

// Text interprets the value as a string, trailing NULs are trimmed.
func (v Value) Text() string {
	return string(bytes.TrimRight(v.Bytes, "\x00"))
}

// Equal compares two values.
func (v Value) Equal(o Value) bool {
	return v.Int == o.Int && bytes.Equal(v.Bytes, o.Bytes)
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	if v.Bytes != nil {
		v.Bytes = append([]byte{}, v.Bytes...)
	}
	return v
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.Bytes != nil {
		return fmt.Sprintf("%v", v.Bytes)
	}
	return strconv.Itoa(v.Int)
}
