// Package trace records radio traffic between the host and the dongle
// as a stream of CBOR encoded events.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Direction tells which way a packet went.
type Direction uint8

// Directions.
const (
	Sent Direction = iota + 1
	Received
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Sent:
		return ">"
	case Received:
		return "<"
	}
	return "?"
}

// Event is one recorded exchange.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Session   string    `cbor:"2,keyasint"`
	Direction Direction `cbor:"3,keyasint"`
	Op        byte      `cbor:"4,keyasint"`
	Data      []byte    `cbor:"5,keyasint,omitempty"`
	Error     string    `cbor:"6,keyasint,omitempty"`
}

// String implements fmt.Stringer.
func (e Event) String() string {
	s := fmt.Sprintf("%s %s %02x % x", e.Timestamp.Format("15:04:05.000000"), e.Direction, e.Op, e.Data)
	if e.Error != "" {
		s += " (" + e.Error + ")"
	}
	return s
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Recorder writes events. It is safe for concurrent use and
// implements dongle.Tracer.
type Recorder struct {
	Session string

	lock    sync.Mutex
	encoder *cbor.Encoder
	closer  io.Closer
	now     func() time.Time
	err     error
}

// NewRecorder creates a Recorder with a new session ID.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		Session: uuid.New().String(),
		encoder: encMode.NewEncoder(w),
		now:     time.Now,
	}
}

// Create records into a new or truncated file.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// Trace implements dongle.Tracer.
func (r *Recorder) Trace(op byte, sent, received []byte, err error) {
	ev := Event{Op: op, Direction: Sent, Data: sent}
	if sent == nil {
		ev.Direction, ev.Data = Received, received
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.Record(ev)
}

// Record writes an event, filling in timestamp and session.
// The first encoding error stops recording and is reported by Close.
func (r *Recorder) Record(ev Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil || r.encoder == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	if ev.Session == "" {
		ev.Session = r.Session
	}
	r.err = r.encoder.Encode(ev)
}

// Close stops recording.
func (r *Recorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	err := r.err
	r.encoder = nil
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}

// Reader reads recorded events.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// NewReader reads events from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: decMode.NewDecoder(r)}
}

// Open reads events from a file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next event or io.EOF.
func (r *Reader) Next() (ev Event, err error) {
	err = r.decoder.Decode(&ev)
	return
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
