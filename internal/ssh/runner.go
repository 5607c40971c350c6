package ssh

import (
	"context"
	"net"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/transfer"
)

// Runner executes catalog actions on remote targets over pooled SSH
// connections. It implements the dispatcher's Runner and Fetcher interfaces
// and the prober's Transport interface.
type Runner struct {
	pool         *Pool
	sudoPassword string
}

// NewRunner creates a Runner over the given pool. sudoPassword is used for
// elevated commands; empty means NOPASSWD sudo.
func NewRunner(pool *Pool, sudoPassword string) *Runner {
	return &Runner{pool: pool, sudoPassword: sudoPassword}
}

// Run executes a rendered action command on a single host.
func (r *Runner) Run(ctx context.Context, host, command string, elevated bool) *catalog.Result {
	stdout, stderr, exitCode, err := r.pool.Exec(ctx, host, command, elevated, r.sudoPassword)
	return &catalog.Result{
		OK:       err == nil && exitCode == 0,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Err:      err,
	}
}

// Ping performs the liveness check: a bounded TCP connect to the host's
// SSH address. Any failure is reported as unreachable, never as an error.
func (r *Runner) Ping(ctx context.Context, host string, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(dialCtx, "tcp", r.pool.Addr(host))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// TestTransport checks that a full SSH connection can be established.
// A successful check leaves the connection cached in the pool for the
// dispatch that follows.
func (r *Runner) TestTransport(ctx context.Context, host string, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := r.pool.Client(dialCtx, host)
	return err == nil
}

// Fetch pulls a file off the target via SFTP into localDir/<host>/.
func (r *Runner) Fetch(ctx context.Context, host, remotePath, localDir string) error {
	client, err := r.pool.Client(ctx, host)
	if err != nil {
		return WrapConnectError(host, err)
	}
	_, _, err = transfer.Pull(ctx, client.SSHClient(), remotePath, localDir, host)
	return err
}

// Close releases the underlying connection pool.
func (r *Runner) Close() error {
	return r.pool.Close()
}
