package module

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRadioID indicates the module has no radio address assigned.
	ErrNoRadioID = errors.New("no radio ID")
	// ErrUnknownField indicates the field is not in the module's directory.
	ErrUnknownField = errors.New("unknown field")
	// ErrReadOnly indicates the host tried to change a read field.
	ErrReadOnly = errors.New("read-only field")
	// ErrOutOfRange indicates the value can't be encoded into the field.
	ErrOutOfRange = errors.New("value out of range")
	// ErrWrongType indicates a facade is requested for another module type.
	ErrWrongType = errors.New("wrong module type")
)

// ReplyError reports a sync reply which doesn't match the request.
type ReplyError struct {
	Reason string
	Reply  []byte
}

// Error implements error.
func (e *ReplyError) Error() string {
	return fmt.Sprintf("bad reply: %s % x", e.Reason, e.Reply)
}

func badReply(reply []byte, format string, args ...interface{}) error {
	return &ReplyError{Reason: fmt.Sprintf(format, args...), Reply: append([]byte(nil), reply...)}
}
