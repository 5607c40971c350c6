// Package aggregate tracks per-unit execution outcomes and rolls them up into
// a dispatch summary. A unit is one host in a fan-out dispatch or one step of
// a batch. The aggregator is pure bookkeeping: no I/O, safe for concurrent use.
package aggregate

import (
	"sync"
	"time"
)

// Status is the lifecycle state of an execution unit.
// A unit transitions Pending -> Running -> {Succeeded|Failed} exactly once;
// Skipped is terminal and set before Running when a precondition fails.
type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Skipped
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// Unit is one tracked unit of work.
type Unit struct {
	ID        string // host name for dispatch, step id for batches
	Target    string // empty for local/batch steps
	ActionID  string
	StartedAt time.Time
	EndedAt   time.Time
	Status    Status
	Detail    string // skip reason or trimmed output
	Err       error
}

// Duration returns the wall time the unit spent executing, or zero if it
// never ran.
func (u Unit) Duration() time.Duration {
	if u.StartedAt.IsZero() || u.EndedAt.IsZero() {
		return 0
	}
	return u.EndedAt.Sub(u.StartedAt)
}

// Summary is the finalized roll-up of a dispatch or batch run.
// Invariant: Total == Succeeded + Failed + Skipped.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Units     []Unit
	Err       error // set when the whole call was rejected (unknown action, elevation)
}

// Aggregator accumulates unit outcomes. Record is idempotent per unit id:
// recording the same id twice overwrites the previous entry rather than
// double-counting. Units are reported in first-recorded order.
type Aggregator struct {
	mu    sync.Mutex
	order []string
	units map[string]Unit
	err   error
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{units: make(map[string]Unit)}
}

// Record stores a unit outcome, overwriting any prior record with the same id.
func (a *Aggregator) Record(u Unit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.units[u.ID]; !seen {
		a.order = append(a.order, u.ID)
	}
	a.units[u.ID] = u
}

// Get returns the current record for a unit id.
func (a *Aggregator) Get(id string) (Unit, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.units[id]
	return u, ok
}

// SetErr records a call-level error (unknown action, elevation precondition)
// that is surfaced on the summary.
func (a *Aggregator) SetErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Summarize builds the summary from everything recorded so far. Units still
// in a non-terminal state count toward Total but none of the outcome buckets;
// callers finalize every unit before the summary they hand out.
func (a *Aggregator) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Err: a.err}
	for _, id := range a.order {
		u := a.units[id]
		s.Units = append(s.Units, u)
		s.Total++
		switch u.Status {
		case Succeeded:
			s.Succeeded++
		case Failed:
			s.Failed++
		case Skipped:
			s.Skipped++
		}
	}
	return s
}
