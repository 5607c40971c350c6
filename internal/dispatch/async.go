package dispatch

import (
	"context"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
)

// Handle tracks an async dispatch. The caller may poll Snapshot for progress,
// select on Done, or block in Wait for the finalized summary.
type Handle struct {
	agg     *aggregate.Aggregator
	done    chan struct{}
	summary aggregate.Summary
}

func newHandle(agg *aggregate.Aggregator) *Handle {
	return &Handle{agg: agg, done: make(chan struct{})}
}

// finish snapshots the final summary, notifies, and releases waiters.
func (h *Handle) finish(ctx context.Context, d *Dispatcher, actionID string) {
	h.summary = h.agg.Summarize()
	d.notifyDone(ctx, actionID, h.summary)
	close(h.done)
}

// Done is closed when every unit has reached a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the dispatch completes or ctx expires. On ctx expiry it
// returns the current snapshot and the context error; the underlying tasks
// keep running to completion.
func (h *Handle) Wait(ctx context.Context) (*aggregate.Summary, error) {
	select {
	case <-h.done:
		s := h.summary
		return &s, nil
	case <-ctx.Done():
		s := h.agg.Summarize()
		return &s, ctx.Err()
	}
}

// Snapshot returns the units recorded so far. Before completion the counts
// cover only finished targets.
func (h *Handle) Snapshot() aggregate.Summary {
	select {
	case <-h.done:
		return h.summary
	default:
		return h.agg.Summarize()
	}
}
