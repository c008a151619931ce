package module

// Outcome is the result of one synchronization cycle.
type Outcome int

// Cycle outcomes.
const (
	OutcomeOK Outcome = iota
	OutcomeError
	// OutcomeIgnore is recorded when nothing was exchanged.
	OutcomeIgnore
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeIgnore:
		return "ignore"
	}
	return "unknown"
}

// HistorySize is the number of outcomes kept for quality estimation.
const HistorySize = 100

// History is a fixed size ring of the most recent outcomes.
type History struct {
	entries [HistorySize]Outcome
	next    int
	size    int
}

// Add records an outcome, evicting the oldest when full.
func (h *History) Add(o Outcome) {
	h.entries[h.next] = o
	h.next = (h.next + 1) % HistorySize
	if h.size < HistorySize {
		h.size++
	}
}

// Len is the number of recorded outcomes.
func (h *History) Len() int {
	return h.size
}

// Count counts recorded outcomes of one kind.
func (h *History) Count(o Outcome) (n int) {
	for i := 0; i < h.size; i++ {
		if h.entries[i] == o {
			n++
		}
	}
	return
}

// Outcomes lists recorded outcomes from oldest to newest.
func (h *History) Outcomes() []Outcome {
	out := make([]Outcome, 0, h.size)
	start := (h.next - h.size + HistorySize) % HistorySize
	for i := 0; i < h.size; i++ {
		out = append(out, h.entries[(start+i)%HistorySize])
	}
	return out
}

// Quality is the percentage of ok among ok and error outcomes,
// 100 when there are none.
func (h *History) Quality() float64 {
	ok, failed := h.Count(OutcomeOK), h.Count(OutcomeError)
	if ok+failed == 0 {
		return 100
	}
	return 100 * float64(ok) / float64(ok+failed)
}

// Reset clears the history.
func (h *History) Reset() {
	*h = History{}
}
