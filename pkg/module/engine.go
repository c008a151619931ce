package module

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/framework"
)

// Link is the radio path to modules, normally the dongle.
type Link interface {
	// WriteRadioPacket forwards one packet that expects no reply.
	WriteRadioPacket(data []byte) error
	// Exchange writes one sync packet and collects up to n reply
	// bytes within timeout, without anything else using the link in
	// between. A short reply without error means nothing more arrived.
	Exchange(data []byte, n int, timeout time.Duration) ([]byte, error)
}

// Scheduler is the part of the loop a module pokes from the
// caller side when a read is waiting.
type Scheduler interface {
	Bootstrap()
	IsPaused() bool
	Restart()
}

// Options tunes a Module.
type Options struct {
	// ReplyTimeout bounds collecting a sync reply.
	ReplyTimeout time.Duration
	// Heartbeat is the minimum interval between header-only packets.
	Heartbeat time.Duration
	// ExactWordDecode combines two-byte integers as low+256*high.
	// Modules historically are decoded as low+255*high.
	ExactWordDecode bool
	// QueueSize is the capacity of the request queue.
	QueueSize int
	// Scheduler is poked when a read waits for fresh values.
	Scheduler Scheduler
	// Now overrides the clock used by Sync.
	Now func() time.Time
}

// Default option values.
const (
	DefaultReplyTimeout = 300 * time.Millisecond
	DefaultHeartbeat    = 500 * time.Millisecond
	DefaultQueueSize    = 64
)

// DefaultOptions returns the options modules use unless told otherwise.
func DefaultOptions() Options {
	return Options{
		ReplyTimeout: DefaultReplyTimeout,
		Heartbeat:    DefaultHeartbeat,
		QueueSize:    DefaultQueueSize,
	}
}

// freshCycles is the number of successful cycles a read waits for.
const freshCycles = 2

// Stats is a snapshot of a module's synchronization health.
type Stats struct {
	Cycles     uint64
	OKCycles   uint64
	ErrorCount int
	Oversize   int
	LastSync   time.Time
	Status     int
	RadioID    int
	Seen       bool
	Used       bool
	Quality    float64
	History    []Outcome
}

type slot struct {
	value      Value
	subscribed bool
	once       bool
	period     time.Duration
	lastSync   time.Time
	lastWrite  time.Time
}

type waiter struct {
	field  int
	target uint64
	reply  chan<- Value
}

type request func(now time.Time)

// Module mirrors the register file of one physical module. The host
// side (soft) and the last known module side (hard) values of every
// field are owned by the sync task, i.e. the goroutine calling Control
// or Sync. Other goroutines talk to it through the request queue.
type Module struct {
	tpl      *Template
	serialID string
	link     Link
	opts     Options
	requests chan request

	defaults     []Value
	soft         []slot
	hard         []Value
	oversized    []bool
	statusIdx    int
	radioIdx     int
	used         bool
	hasBeenReset bool
	lastSend     time.Time
	waiters      []*waiter
	okCycles     uint64
	errorCount   int
	oversize     int
	lastSync     time.Time

	statsLock sync.RWMutex
	stats     Stats
	history   History
}

// New creates a Module of the template's type. radioID may be
// NoRadioID when the module is not reachable yet.
func New(tpl *Template, serialID string, radioID int, link Link, opts Options) (*Module, error) {
	if len(serialID) > SerialLength {
		return nil, fmt.Errorf("%w: serial ID %q longer than %d", ErrOutOfRange, serialID, SerialLength)
	}
	if radioID < NoRadioID || radioID > 0xff {
		return nil, fmt.Errorf("%w: radio ID %d", ErrOutOfRange, radioID)
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Module{
		tpl:       tpl,
		serialID:  serialID,
		link:      link,
		opts:      opts,
		requests:  make(chan request, opts.QueueSize),
		defaults:  make([]Value, len(tpl.Fields)),
		soft:      make([]slot, len(tpl.Fields)),
		hard:      make([]Value, len(tpl.Fields)),
		oversized: make([]bool, len(tpl.Fields)),
		statusIdx: -1,
	}
	for n, f := range tpl.Fields {
		m.defaults[n] = f.Default.Clone()
	}
	var ok bool
	if m.radioIdx, ok = tpl.Lookup(FieldRadioID); !ok {
		return nil, fmt.Errorf("%v: directory has no %q", tpl.Type, FieldRadioID)
	}
	m.defaults[m.radioIdx] = IntValue(radioID)
	if n, ok := tpl.Lookup(FieldSerialID); ok {
		m.defaults[n] = StringValue(serialID)
	}
	if n, ok := tpl.Lookup(FieldStatus); ok {
		m.statusIdx = n
	}
	m.resetTables()
	m.publish()
	return m, nil
}

// Name implements framework.Named.
func (m *Module) Name() string {
	return m.tpl.Type.String() + "(" + m.serialID + ")"
}

// String implements fmt.Stringer.
func (m *Module) String() string {
	return m.Name()
}

// Type is the module type.
func (m *Module) Type() Type {
	return m.tpl.Type
}

// SerialID is the serial ID the module was created with.
func (m *Module) SerialID() string {
	return m.serialID
}

// Template returns the field directory.
func (m *Module) Template() *Template {
	return m.tpl
}

func (m *Module) resetTables() {
	for n := range m.tpl.Fields {
		m.soft[n] = slot{value: m.defaults[n].Clone()}
		m.hard[n] = m.defaults[n].Clone()
	}
}

// Control implements framework.Controller. Sync failures are recorded
// in the statistics and never stop the loop.
func (m *Module) Control(cc framework.ControlContext) error {
	outcome, err := m.cycle(cc.Time())
	if err != nil {
		if m.errorCount == 1 {
			glog.Warningf("%s: sync failed: %v", m, err)
		} else {
			glog.V(2).Infof("%s: sync failed (%d): %v", m, m.errorCount, err)
		}
	}
	if outcome == OutcomeOK && len(m.waiters) > 0 {
		cc.TriggerNext()
	}
	return nil
}

// Sync processes pending requests and runs one synchronization cycle.
// It must not be called concurrently with itself or Control.
func (m *Module) Sync() (Outcome, error) {
	return m.cycle(m.opts.Now())
}

func (m *Module) cycle(now time.Time) (Outcome, error) {
	m.drain(now)
	outcome, err := m.sync(now)
	switch {
	case m.locked():
		m.releaseWaiters(true)
	case outcome == OutcomeOK:
		m.releaseWaiters(false)
	}
	m.publish()
	return outcome, err
}

func (m *Module) drain(now time.Time) {
	for {
		select {
		case req := <-m.requests:
			req(now)
		default:
			return
		}
	}
}

func (m *Module) sync(now time.Time) (Outcome, error) {
	rid := m.soft[m.radioIdx].value.Int
	if rid < 0 || rid > 0xff {
		return m.fail(ErrNoRadioID)
	}
	pkt, writes, reads := m.compose(now, byte(rid))
	if len(writes)+len(reads) == 0 && !m.lastSend.IsZero() && now.Sub(m.lastSend) < m.opts.Heartbeat {
		m.finish(OutcomeIgnore)
		return OutcomeIgnore, nil
	}
	m.lastSend = now
	m.lastSync = now

	nread := 0
	for _, n := range reads {
		nread += len(m.tpl.Fields[n].Addrs)
	}
	reply, err := m.exchange(pkt, nread)
	if err != nil {
		return m.fail(err)
	}
	if err := m.validate(reply, byte(rid), nread); err != nil {
		return m.fail(err)
	}
	if !m.handleStatus(reply[4]) {
		m.finish(OutcomeIgnore)
		return OutcomeIgnore, nil
	}
	if m.hasBeenReset {
		m.restore()
	}

	data := reply[5:]
	for _, n := range reads {
		f := m.tpl.Fields[n]
		m.hard[n] = decodeValue(f, data, m.opts.ExactWordDecode)
		data = data[len(f.Addrs):]
	}
	for _, n := range writes {
		m.hard[n] = m.soft[n].value.Clone()
		m.soft[n].lastWrite = now
	}
	for _, n := range reads {
		s := &m.soft[n]
		s.value = m.hard[n].Clone()
		s.lastSync = now
		if s.once {
			s.subscribed, s.once = false, false
		}
	}
	m.okCycles++
	m.errorCount = 0
	m.finish(OutcomeOK)
	return OutcomeOK, nil
}

// compose walks the directory in order and collects pending writes
// and due reads until the packet cap is reached. Writes are placed
// before reads.
func (m *Module) compose(now time.Time, rid byte) (pkt []byte, writes, reads []int) {
	var wbuf, rbuf []byte
	size := 3
	for n, f := range m.tpl.Fields {
		s := &m.soft[n]
		write := f.Access.Writable() && !s.value.Equal(m.hard[n])
		read := s.subscribed && (s.lastSync.IsZero() || !now.Before(s.lastSync.Add(s.period)))
		if !write && !read {
			continue
		}
		need := 0
		if write {
			need += writeSize(f, s.value)
		}
		if read {
			need += len(f.Addrs)
		}
		if 3+need > m.tpl.MaxPacket {
			m.reportOversize(n, need)
			continue
		}
		if size+need > m.tpl.MaxPacket {
			break
		}
		size += need
		if write {
			wbuf = appendWrite(wbuf, f, s.value)
			writes = append(writes, n)
			m.used = true
		}
		if read {
			rbuf = appendRead(rbuf, f)
			reads = append(reads, n)
			if f.Claims {
				m.used = true
			}
		}
	}
	pkt = make([]byte, 0, size)
	pkt = append(pkt, byte(m.tpl.Type), rid, CmdSync)
	pkt = append(append(pkt, wbuf...), rbuf...)
	return
}

func (m *Module) reportOversize(n, need int) {
	m.oversize++
	if !m.oversized[n] {
		m.oversized[n] = true
		glog.Warningf("%s: field %q needs %d bytes, exceeds packet cap %d, skipped",
			m, m.tpl.Fields[n].Name, need, m.tpl.MaxPacket)
	}
}

// exchange sends the packet and collects the reply within ReplyTimeout.
func (m *Module) exchange(pkt []byte, nread int) ([]byte, error) {
	return m.link.Exchange(pkt, 5+nread, m.opts.ReplyTimeout)
}

// validate checks the reply frame: '#', ?, type, radio ID, status, data.
func (m *Module) validate(reply []byte, rid byte, nread int) error {
	if len(reply) < 5 {
		return badReply(reply, "%d bytes", len(reply))
	}
	if reply[0] != '#' {
		return badReply(reply, "missing marker")
	}
	if Type(reply[2]) != m.tpl.Type {
		return badReply(reply, "type %v", Type(reply[2]))
	}
	if m.tpl.CheckSender && reply[3] != rid {
		return badReply(reply, "sender %d", reply[3])
	}
	if len(reply)-5 != nread {
		return badReply(reply, "expect %d values, got %d", nread, len(reply)-5)
	}
	return nil
}

// handleStatus tracks the reported status and tells if the reply
// values can be committed.
func (m *Module) handleStatus(status byte) bool {
	if m.statusIdx < 0 {
		return true
	}
	codes := m.tpl.Status
	if m.hard[m.statusIdx].Int != int(status) {
		m.hard[m.statusIdx] = IntValue(int(status))
		if codes != nil && (status == codes.Ready || status == codes.Running) {
			m.hasBeenReset = true
		}
	}
	if codes != nil && status == codes.Boot {
		return false
	}
	m.soft[m.statusIdx].value = IntValue(int(status))
	if codes != nil && status == codes.Locked {
		m.hasBeenReset = false
		return false
	}
	return true
}

// restore forces everything ever written, except status, to be
// written again after the module reset.
func (m *Module) restore() {
	glog.V(1).Infof("%s: reset detected, restoring written fields", m)
	for n := range m.tpl.Fields {
		if n == m.statusIdx || m.soft[n].lastWrite.IsZero() {
			continue
		}
		m.hard[n] = Value{}
	}
	m.hasBeenReset = false
}

func (m *Module) locked() bool {
	codes := m.tpl.Status
	return codes != nil && m.statusIdx >= 0 && m.hard[m.statusIdx].Int == int(codes.Locked)
}

func (m *Module) fail(err error) (Outcome, error) {
	m.errorCount++
	m.finish(OutcomeError)
	return OutcomeError, err
}

func (m *Module) finish(o Outcome) {
	m.statsLock.Lock()
	m.stats.Cycles++
	m.history.Add(o)
	m.statsLock.Unlock()
}

func (m *Module) releaseWaiters(all bool) {
	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if all || m.okCycles >= w.target {
			w.reply <- m.soft[w.field].value.Clone()
		} else {
			kept = append(kept, w)
		}
	}
	for n := len(kept); n < len(m.waiters); n++ {
		m.waiters[n] = nil
	}
	m.waiters = kept
}

// publish copies sync task state into the stats visible to other goroutines.
func (m *Module) publish() {
	m.statsLock.Lock()
	defer m.statsLock.Unlock()
	m.stats.OKCycles = m.okCycles
	m.stats.ErrorCount = m.errorCount
	m.stats.Oversize = m.oversize
	m.stats.LastSync = m.lastSync
	m.stats.Used = m.used
	m.stats.RadioID = m.soft[m.radioIdx].value.Int
	if m.statusIdx >= 0 {
		m.stats.Status = m.hard[m.statusIdx].Int
	}
}

// Stats returns a snapshot of synchronization statistics.
func (m *Module) Stats() Stats {
	m.statsLock.RLock()
	defer m.statsLock.RUnlock()
	st := m.stats
	st.Quality = m.history.Quality()
	st.History = m.history.Outcomes()
	return st
}

// ConnectionQuality is the percentage of successful recent cycles.
func (m *Module) ConnectionQuality() float64 {
	m.statsLock.RLock()
	defer m.statsLock.RUnlock()
	return m.history.Quality()
}

// SyncErrorCount is the number of consecutive failed cycles.
func (m *Module) SyncErrorCount() int {
	return m.Stats().ErrorCount
}

// LastSyncTime is when a packet was last sent.
func (m *Module) LastSyncTime() time.Time {
	return m.Stats().LastSync
}

// Cycles is the number of cycles since creation or termination.
func (m *Module) Cycles() uint64 {
	return m.Stats().Cycles
}

// Status is the status byte the module last reported.
func (m *Module) Status() int {
	return m.Stats().Status
}

// IsOwnedByAnotherDongle tells if the module reports being locked.
func (m *Module) IsOwnedByAnotherDongle() bool {
	codes := m.tpl.Status
	return codes != nil && m.Status() == int(codes.Locked)
}

// Seen tells the module was just discovered, i.e. it's alive and
// answering. Reads wait for fresh values only once it's seen.
func (m *Module) Seen() {
	m.statsLock.Lock()
	defer m.statsLock.Unlock()
	m.stats.Seen = true
	m.history.Add(OutcomeOK)
}

func (m *Module) seen() bool {
	m.statsLock.RLock()
	defer m.statsLock.RUnlock()
	return m.stats.Seen
}
