// Package dispatch fans a catalog action out across target hosts, probing
// reachability first and isolating per-target failure. Every call produces a
// summary; per-target errors are recorded on units, never returned.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/notify"
	"github.com/fleetmedic/fleetmedic/internal/probe"
)

// Sentinel errors for units that were never attempted.
var (
	ErrElevationRequired    = errors.New("elevation required")
	ErrRemoteNotSupported   = errors.New("remote not supported")
	ErrUnreachable          = errors.New("target unreachable")
	ErrTransportUnavailable = errors.New("remote transport unavailable")
)

// Runner executes a rendered action command on a single host.
type Runner interface {
	Run(ctx context.Context, host, command string, elevated bool) *catalog.Result
}

// Fetcher pulls a file off a host after a successful run (collect actions).
type Fetcher interface {
	Fetch(ctx context.Context, host, remotePath, localDir string) error
}

// Prober checks target reachability before execution.
type Prober interface {
	Probe(ctx context.Context, host string) probe.Target
}

// Dispatcher runs catalog actions against target lists. All cross-call state
// lives on this struct; there are no package globals, so tests can run
// dispatchers in parallel.
type Dispatcher struct {
	catalog     *catalog.Catalog
	prober      Prober
	runner      Runner
	fetcher     Fetcher
	notifier    notify.Notifier
	elevated    bool
	concurrency int
	timeout     time.Duration // overall deadline across all targets; 0 means none
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFetcher enables post-run file collection for actions that declare it.
func WithFetcher(f Fetcher) Option {
	return func(d *Dispatcher) { d.fetcher = f }
}

// WithNotifier sets the channel notified when a dispatch completes.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithElevation marks the calling context as elevated (root, or sudo
// credentials available), allowing actions that require elevation.
func WithElevation(elevated bool) Option {
	return func(d *Dispatcher) { d.elevated = elevated }
}

// WithConcurrency bounds parallel targets in async mode.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithTimeout sets an optional overall deadline for a dispatch call. Units
// still running when it expires are marked Failed with reason "timeout".
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// New creates a Dispatcher.
func New(cat *catalog.Catalog, prober Prober, runner Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:     cat,
		prober:      prober,
		runner:      runner,
		notifier:    notify.Noop{},
		concurrency: 20,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the action synchronously: one target at a time, in order, a
// failure on one target never aborting the loop over the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, actionID string, targets []string, params map[string]string) *aggregate.Summary {
	agg := aggregate.New()

	act, command, ok := d.precheck(agg, actionID, targets, params)
	if !ok || len(targets) == 0 {
		summary := agg.Summarize()
		d.notifyDone(ctx, actionID, summary)
		return &summary
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	for _, host := range targets {
		agg.Record(d.runTarget(runCtx, act, host, command, params))
	}

	summary := agg.Summarize()
	d.notifyDone(ctx, actionID, summary)
	return &summary
}

// DispatchAsync launches every target as an independent concurrent task and
// returns a handle the caller can poll or wait on. Precondition failures
// (unknown action, elevation, remote support) complete the handle immediately.
func (d *Dispatcher) DispatchAsync(ctx context.Context, actionID string, targets []string, params map[string]string) *Handle {
	agg := aggregate.New()
	h := newHandle(agg)

	act, command, ok := d.precheck(agg, actionID, targets, params)
	if !ok || len(targets) == 0 {
		h.finish(ctx, d, actionID)
		return h
	}

	go func() {
		runCtx := ctx
		var cancel context.CancelFunc
		if d.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for _, host := range targets {
			host := host
			g.Go(func() error {
				agg.Record(d.runTarget(runCtx, act, host, command, params))
				return nil
			})
		}
		g.Wait()
		h.finish(ctx, d, actionID)
	}()

	return h
}

// precheck resolves the action and applies the fail-fast preconditions.
// On failure every target is recorded as Skipped, the call-level error is set
// on the aggregator, and ok is false. No probing happens on this path.
func (d *Dispatcher) precheck(agg *aggregate.Aggregator, actionID string, targets []string, params map[string]string) (act catalog.Action, command string, ok bool) {
	act, err := d.catalog.Lookup(actionID)
	if err != nil {
		d.skipAll(agg, actionID, targets, "unknown action", err)
		return catalog.Action{}, "", false
	}

	if act.RequiresElevation && !d.elevated {
		d.skipAll(agg, actionID, targets, "elevation required", ErrElevationRequired)
		return catalog.Action{}, "", false
	}

	if !act.SupportsRemote && anyRemote(targets) {
		d.skipAll(agg, actionID, targets, "remote not supported", ErrRemoteNotSupported)
		return catalog.Action{}, "", false
	}

	command, err = act.RenderCommand(params)
	if err != nil {
		// Nothing valid to execute, same treatment as an unknown action.
		d.skipAll(agg, actionID, targets, "invalid params", err)
		return catalog.Action{}, "", false
	}

	return act, command, true
}

func (d *Dispatcher) skipAll(agg *aggregate.Aggregator, actionID string, targets []string, reason string, err error) {
	agg.SetErr(err)
	for _, host := range targets {
		agg.Record(aggregate.Unit{
			ID:       host,
			Target:   host,
			ActionID: actionID,
			Status:   aggregate.Skipped,
			Detail:   reason,
			Err:      err,
		})
	}
}

// runTarget takes one host through probe, execute, and collect. It always
// returns a terminal unit and never lets an error escape.
func (d *Dispatcher) runTarget(ctx context.Context, act catalog.Action, host, command string, params map[string]string) aggregate.Unit {
	u := aggregate.Unit{ID: host, Target: host, ActionID: act.ID, Status: aggregate.Pending}

	tgt := d.prober.Probe(ctx, host)
	if !tgt.Reachable {
		u.Status = aggregate.Skipped
		u.Detail = "unreachable"
		u.Err = ErrUnreachable
		return u
	}
	if !tgt.TransportAvailable {
		u.Status = aggregate.Skipped
		u.Detail = "transport unavailable"
		u.Err = ErrTransportUnavailable
		return u
	}

	u.Status = aggregate.Running
	u.StartedAt = time.Now()
	res := d.runner.Run(ctx, host, command, act.RequiresElevation)
	u.EndedAt = time.Now()

	switch {
	case res.Err != nil:
		u.Status = aggregate.Failed
		u.Err = res.Err
		if errors.Is(res.Err, context.DeadlineExceeded) {
			u.Detail = "timeout"
		} else {
			u.Detail = res.Err.Error()
		}
	case res.ExitCode != 0:
		u.Status = aggregate.Failed
		u.Err = fmt.Errorf("exit code %d", res.ExitCode)
		u.Detail = trimOutput(res.Stderr, res.Stdout)
	default:
		if act.Collect != nil && d.fetcher != nil {
			if err := d.collect(ctx, act, host, params); err != nil {
				u.Status = aggregate.Failed
				u.Err = err
				u.EndedAt = time.Now()
				u.Detail = err.Error()
				return u
			}
		}
		u.Status = aggregate.Succeeded
		u.Detail = trimOutput(res.Stdout, nil)
	}
	return u
}

func (d *Dispatcher) collect(ctx context.Context, act catalog.Action, host string, params map[string]string) error {
	remotePath, err := act.RenderCollectPath(params)
	if err != nil {
		return err
	}
	if err := d.fetcher.Fetch(ctx, host, remotePath, act.Collect.LocalDir); err != nil {
		return fmt.Errorf("collect %s: %w", remotePath, err)
	}
	return nil
}

func (d *Dispatcher) notifyDone(ctx context.Context, actionID string, s aggregate.Summary) {
	severity := notify.Success
	switch {
	case s.Failed > 0 || s.Err != nil:
		severity = notify.Error
	case s.Skipped > 0:
		severity = notify.Warning
	}
	msg := fmt.Sprintf("%d targets: %d succeeded, %d failed, %d skipped",
		s.Total, s.Succeeded, s.Failed, s.Skipped)
	d.notifier.Notify(ctx, "dispatch "+actionID, msg, severity)
}

// anyRemote reports whether any target refers to a host other than the local one.
func anyRemote(targets []string) bool {
	hostname, _ := os.Hostname()
	for _, t := range targets {
		if name, ok := splitUserHost(t); ok {
			t = name
		}
		switch t {
		case "localhost", "127.0.0.1", "::1", hostname:
		default:
			return true
		}
	}
	return false
}

func splitUserHost(s string) (host string, ok bool) {
	i := strings.Index(s, "@")
	if i <= 0 {
		return "", false
	}
	return s[i+1:], true
}

// trimOutput picks the first non-empty stream and bounds its size for the
// unit detail field. Full output is the caller's concern, not the summary's.
func trimOutput(primary, fallback []byte) string {
	out := primary
	if len(out) == 0 {
		out = fallback
	}
	s := strings.TrimSpace(string(out))
	const max = 4096
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
