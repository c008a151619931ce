package dongle

import "errors"

var (
	// ErrNotConnected indicates no dongle is attached.
	ErrNotConnected = errors.New("dongle not connected")
	// ErrNoACK indicates the dongle didn't acknowledge a command.
	ErrNoACK = errors.New("no ACK")
	// ErrTimeout indicates a reply didn't arrive in time.
	ErrTimeout = errors.New("timeout")
	// ErrNotDongle indicates the serial device is not a Fable dongle.
	ErrNotDongle = errors.New("not a Fable dongle")
	// ErrPacketTooLarge indicates a radio packet beyond the radio limit.
	ErrPacketTooLarge = errors.New("radio packet too large")
)
