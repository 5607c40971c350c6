// Package loop drives the health monitor: on each tick every registered
// check is probed, unhealthy checks are remediated, and the tick outcome is
// recorded and optionally appended to a tick log.
package loop

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/health"
	"github.com/fleetmedic/fleetmedic/internal/notify"
)

// Result is the outcome of one check within a tick. Remediation is nil when
// the probe reported healthy.
type Result struct {
	CheckName   string                     `json:"check"`
	Outcome     health.CheckOutcome        `json:"outcome"`
	Remediation *health.RemediationOutcome `json:"remediation,omitempty"`
}

// TickRecord captures one complete pass over the registry.
type TickRecord struct {
	TickAt         time.Time `json:"tick_at"`
	Results        []Result  `json:"results"`
	ActionsApplied int       `json:"actions_applied"`
}

// LoopContext carries loop state across ticks. ActionsToday counts
// remediations applied over the lifetime of the process; History holds every
// completed tick in order.
type LoopContext struct {
	ActionsToday int
	History      []TickRecord
}

// TickWriter persists completed tick records.
type TickWriter interface {
	Write(rec TickRecord) error
}

// Loop runs registered checks on a fixed interval.
type Loop struct {
	registry *health.Registry
	notifier notify.Notifier
	ticklog  TickWriter
	interval time.Duration
	backoff  time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithNotifier sets the channel notified about remediations.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Loop) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithTickLog sets the writer that persists tick records.
func WithTickLog(w TickWriter) Option {
	return func(l *Loop) { l.ticklog = w }
}

// WithBackoff sets the pause after a failed tick before the loop resumes.
func WithBackoff(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// New creates a Loop over the given registry.
func New(reg *health.Registry, opts ...Option) *Loop {
	l := &Loop{
		registry: reg,
		notifier: notify.Noop{},
		interval: 15 * time.Minute,
		backoff:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOnce executes a single tick and returns its record.
func (l *Loop) RunOnce(ctx context.Context, lc *LoopContext) (*TickRecord, error) {
	rec, err := l.tick(ctx, lc)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Run ticks until the context is cancelled. Cancellation is observed between
// ticks only; a tick in flight completes. A tick error is logged and the loop
// resumes after the backoff interval rather than exiting.
func (l *Loop) Run(ctx context.Context, lc *LoopContext) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if _, err := l.tick(ctx, lc); err != nil {
			log.Printf("[WARN] tick failed: %v (backing off %s)", err, l.backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.backoff):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick probes every check in registration order, remediating the unhealthy
// ones. Check failures never escape a tick; only the tick log writer can fail
// it. The record is appended to history after all checks have run.
func (l *Loop) tick(ctx context.Context, lc *LoopContext) (*TickRecord, error) {
	rec := TickRecord{TickAt: time.Now()}

	for _, check := range l.registry.All() {
		res := Result{CheckName: check.Name}
		res.Outcome = l.probe(ctx, check)

		if !res.Outcome.Healthy {
			log.Printf("[WARN] check %s unhealthy: %s", check.Name, res.Outcome.Detail)
			rem := l.remediate(ctx, check)
			res.Remediation = &rem

			switch {
			case rem.Err != nil:
				log.Printf("[WARN] remediation for %s failed: %v", check.Name, rem.Err)
				l.notifier.Notify(ctx, "remediation failed",
					fmt.Sprintf("%s: %v", check.Name, rem.Err), notify.Error)
			case rem.Applied:
				lc.ActionsToday++
				log.Printf("[INFO] remediated %s: %s", check.Name, rem.Detail)
				l.notifier.Notify(ctx, "remediation applied",
					fmt.Sprintf("%s: %s", check.Name, rem.Detail), notify.Success)
				rec.ActionsApplied++
			}
		}

		rec.Results = append(rec.Results, res)
	}

	lc.History = append(lc.History, rec)

	if l.ticklog != nil {
		if err := l.ticklog.Write(rec); err != nil {
			return nil, fmt.Errorf("write tick log: %w", err)
		}
	}
	return &rec, nil
}

// probe runs a check's probe with panic isolation, so one broken check never
// takes down the loop.
func (l *Loop) probe(ctx context.Context, c health.Check) (out health.CheckOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = health.CheckOutcome{Healthy: false, Detail: fmt.Sprintf("probe error: %v", r)}
		}
	}()
	return c.Probe(ctx)
}

// remediate runs a check's remediation with panic isolation.
func (l *Loop) remediate(ctx context.Context, c health.Check) (out health.RemediationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = health.RemediationOutcome{Err: fmt.Errorf("remediation panic: %v", r)}
		}
	}()
	return c.Remediate(ctx)
}
