// Package probe tests whether target hosts are reachable and whether the
// remote-execution transport responds on them.
package probe

import (
	"context"
	"time"
)

// Transport is the reachability interface the SSH layer implements.
type Transport interface {
	// Ping performs a lightweight liveness check (TCP connect).
	Ping(ctx context.Context, host string, timeout time.Duration) bool
	// TestTransport checks whether the remote-execution endpoint responds.
	TestTransport(ctx context.Context, host string, timeout time.Duration) bool
}

// Target is the result of probing a single host. Created per dispatch call,
// not persisted.
type Target struct {
	HostName           string
	Reachable          bool
	TransportAvailable bool
	LastProbedAt       time.Time
}

// Prober probes hosts with a bounded per-check timeout.
type Prober struct {
	transport Transport
	timeout   time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a Prober over the given transport.
func New(transport Transport, opts ...Option) *Prober {
	p := &Prober{
		transport: transport,
		timeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks liveness first and the transport only if the host is live.
// TransportAvailable is always false for an unreachable host; the transport
// check is never attempted in that case. Probe never returns an error: any
// failure of either check is recorded as false.
func (p *Prober) Probe(ctx context.Context, host string) Target {
	t := Target{HostName: host, LastProbedAt: time.Now()}

	t.Reachable = p.transport.Ping(ctx, host, p.timeout)
	if !t.Reachable {
		return t
	}

	t.TransportAvailable = p.transport.TestTransport(ctx, host, p.timeout)
	return t
}
