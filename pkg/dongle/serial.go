package dongle

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is a serial connection to the dongle. Read returns 0 bytes
// without error when nothing arrived within the byte timeout.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data.
	Flush() error
}

// Serial defaults of the dongle.
const (
	DefaultBaud        = 500000
	DefaultReadTimeout = 15 * time.Millisecond
)

// SerialConfig holds serial port configuration.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns the configuration the dongle expects.
func DefaultSerialConfig(device string) *SerialConfig {
	return &SerialConfig{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

type nativePort struct {
	port *serial.Port
}

// OpenSerial opens a native serial port.
func OpenSerial(cfg *SerialConfig) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &nativePort{port: port}, nil
}

// Read implements io.Reader. The port reports io.EOF on timeout.
func (p *nativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Write implements io.Writer.
func (p *nativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close implements io.Closer.
func (p *nativePort) Close() error {
	return p.port.Close()
}

// Flush implements Port. Write already hands data to the driver.
func (p *nativePort) Flush() error {
	return nil
}
