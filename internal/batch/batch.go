// Package batch executes an ordered list of catalog actions on the local
// machine, tracking each step as a unit through the aggregator.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/dispatch"
	"github.com/fleetmedic/fleetmedic/internal/notify"
)

// ErrAborted marks steps skipped because an earlier step failed and
// continue-on-error was off.
var ErrAborted = errors.New("aborted by prior failure")

// Step is one action invocation in a batch, with optional parameters.
type Step struct {
	Action string
	Params map[string]string
}

// Runner executes batches sequentially. Steps run through the same runner
// interface the dispatcher uses, so tests substitute fakes the same way.
type Runner struct {
	catalog         *catalog.Catalog
	runner          dispatch.Runner
	notifier        notify.Notifier
	elevated        bool
	continueOnError bool
}

// Option configures a batch Runner.
type Option func(*Runner)

// WithNotifier sets the channel notified when the batch completes.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithElevation marks the calling context as elevated.
func WithElevation(elevated bool) Option {
	return func(r *Runner) { r.elevated = elevated }
}

// WithContinueOnError keeps executing after a failed step instead of
// skipping the remainder.
func WithContinueOnError(cont bool) Option {
	return func(r *Runner) { r.continueOnError = cont }
}

// New creates a batch Runner.
func New(cat *catalog.Catalog, runner dispatch.Runner, opts ...Option) *Runner {
	r := &Runner{
		catalog:  cat,
		runner:   runner,
		notifier: notify.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the steps in order. Every step's action id is resolved before
// anything executes; an unknown id fails the whole call: all steps are
// recorded as Skipped and the call-level error is set, the same fail-fast
// treatment the dispatcher gives its preconditions. A failed step stops
// enumeration of the remaining steps unless continue-on-error is set; the
// skipped remainder is still recorded so the summary covers every step.
func (r *Runner) Run(ctx context.Context, steps []Step) *aggregate.Summary {
	agg := aggregate.New()

	acts, ok := r.precheck(agg, steps)
	if !ok {
		summary := agg.Summarize()
		r.notifyDone(ctx, summary)
		return &summary
	}

	aborted := false
	for i, step := range steps {
		id := fmt.Sprintf("step-%d", i+1)

		if aborted {
			agg.Record(aggregate.Unit{
				ID:       id,
				ActionID: step.Action,
				Status:   aggregate.Skipped,
				Detail:   "aborted by prior failure",
				Err:      ErrAborted,
			})
			continue
		}

		u := r.runStep(ctx, id, acts[i], step)
		agg.Record(u)

		if u.Status == aggregate.Failed && !r.continueOnError {
			aborted = true
		}
	}

	summary := agg.Summarize()
	r.notifyDone(ctx, summary)
	return &summary
}

// precheck resolves every step's action up front. On the first unknown id it
// records all steps as Skipped, sets the call-level error, and reports false;
// nothing runs on that path.
func (r *Runner) precheck(agg *aggregate.Aggregator, steps []Step) ([]catalog.Action, bool) {
	acts := make([]catalog.Action, len(steps))
	for i, step := range steps {
		act, err := r.catalog.Lookup(step.Action)
		if err != nil {
			callErr := fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
			agg.SetErr(callErr)
			for j, s := range steps {
				detail := "invalid batch"
				if j == i {
					detail = "unknown action"
				}
				agg.Record(aggregate.Unit{
					ID:       fmt.Sprintf("step-%d", j+1),
					ActionID: s.Action,
					Status:   aggregate.Skipped,
					Detail:   detail,
					Err:      callErr,
				})
			}
			return nil, false
		}
		acts[i] = act
	}
	return acts, true
}

// runStep takes a single step to a terminal state. An elevation precondition
// failure skips the step; execution failures fail it.
func (r *Runner) runStep(ctx context.Context, id string, act catalog.Action, step Step) aggregate.Unit {
	u := aggregate.Unit{ID: id, ActionID: step.Action, Status: aggregate.Pending}

	if act.RequiresElevation && !r.elevated {
		u.Status = aggregate.Skipped
		u.Detail = "elevation required"
		u.Err = dispatch.ErrElevationRequired
		return u
	}

	command, err := act.RenderCommand(step.Params)
	if err != nil {
		u.Status = aggregate.Failed
		u.Detail = err.Error()
		u.Err = err
		return u
	}

	u.Status = aggregate.Running
	u.StartedAt = time.Now()
	res := r.runner.Run(ctx, "localhost", command, act.RequiresElevation)
	u.EndedAt = time.Now()

	switch {
	case res.Err != nil:
		u.Status = aggregate.Failed
		u.Detail = res.Err.Error()
		u.Err = res.Err
	case res.ExitCode != 0:
		u.Status = aggregate.Failed
		u.Detail = trimmed(res.Stderr, res.Stdout)
		u.Err = fmt.Errorf("exit code %d", res.ExitCode)
	default:
		u.Status = aggregate.Succeeded
		u.Detail = trimmed(res.Stdout, nil)
	}
	return u
}

func (r *Runner) notifyDone(ctx context.Context, s aggregate.Summary) {
	severity := notify.Success
	switch {
	case s.Failed > 0 || s.Err != nil:
		severity = notify.Error
	case s.Skipped > 0:
		severity = notify.Warning
	}
	msg := fmt.Sprintf("%d steps: %d succeeded, %d failed, %d skipped",
		s.Total, s.Succeeded, s.Failed, s.Skipped)
	r.notifier.Notify(ctx, "batch run", msg, severity)
}

func trimmed(primary, fallback []byte) string {
	out := primary
	if len(out) == 0 {
		out = fallback
	}
	s := string(out)
	const max = 4096
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
