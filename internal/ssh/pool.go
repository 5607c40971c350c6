package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// HostConfig holds per-host connection overrides from the config layer.
type HostConfig struct {
	Hostname     string // actual hostname to dial (may differ from the map key)
	User         string
	Port         int
	IdentityFile string
}

// dialResult holds the outcome of a Dial attempt, shared between goroutines
// waiting for the same host connection.
type dialResult struct {
	client *Client
	err    error
}

// Pool manages persistent SSH connections to multiple target hosts,
// reusing cached connections across probes and commands and coordinating
// concurrent dials to the same host.
type Pool struct {
	mu        sync.Mutex
	clients   map[string]*Client
	inflight  map[string]chan dialResult
	baseConf  ClientConfig
	hostConfs map[string]HostConfig
}

// NewPool creates a connection pool with the given base config and per-host overrides.
func NewPool(baseConf ClientConfig, hostConfs map[string]HostConfig) *Pool {
	return &Pool{
		clients:   make(map[string]*Client),
		inflight:  make(map[string]chan dialResult),
		baseConf:  baseConf,
		hostConfs: hostConfs,
	}
}

// Client returns a connected client for the host, reusing a cached connection
// if available. On a stale-looking cached connection the caller should Evict
// and retry.
func (p *Pool) Client(ctx context.Context, host string) (*Client, error) {
	p.mu.Lock()

	// Fast path: already connected.
	if client, ok := p.clients[host]; ok {
		p.mu.Unlock()
		return client, nil
	}

	// Check if another goroutine is already dialing this host.
	if ch, ok := p.inflight[host]; ok {
		p.mu.Unlock()
		select {
		case res := <-ch:
			// Put the result back so other waiters can also read it.
			ch <- res
			return res.client, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We are the first to dial this host. Create a coordination channel.
	ch := make(chan dialResult, 1)
	p.inflight[host] = ch
	p.mu.Unlock()

	conf, dialHost := p.resolveHostConf(host)
	client, err := Dial(ctx, dialHost, conf)

	p.mu.Lock()
	delete(p.inflight, host)
	if err == nil {
		p.clients[host] = client
	}
	p.mu.Unlock()

	// Broadcast result to any waiters.
	ch <- dialResult{client: client, err: err}

	return client, err
}

// Exec runs a command on a host through a pooled connection, evicting and
// redialing once if the cached connection looks stale.
func (p *Pool) Exec(ctx context.Context, host, command string, sudo bool, sudoPassword string) (stdout, stderr []byte, exitCode int, err error) {
	stdout, stderr, exitCode, err = p.execOnce(ctx, host, command, sudo, sudoPassword)
	if err != nil && isReconnectable(err) {
		p.Evict(host)
		stdout, stderr, exitCode, err = p.execOnce(ctx, host, command, sudo, sudoPassword)
	}
	return stdout, stderr, exitCode, err
}

func (p *Pool) execOnce(ctx context.Context, host, command string, sudo bool, sudoPassword string) ([]byte, []byte, int, error) {
	client, err := p.Client(ctx, host)
	if err != nil {
		return nil, nil, -1, WrapConnectError(host, err)
	}
	if sudo {
		return client.RunCommandSudo(ctx, command, sudoPassword)
	}
	return client.RunCommand(ctx, command)
}

// Evict drops and closes the cached connection for a host.
func (p *Pool) Evict(host string) {
	p.mu.Lock()
	client, ok := p.clients[host]
	if ok {
		delete(p.clients, host)
	}
	p.mu.Unlock()

	if ok {
		client.Close()
	}
}

// Addr resolves the dial address for a host, applying per-host overrides.
func (p *Pool) Addr(host string) string {
	conf, dialHost := p.resolveHostConf(host)
	return Addr(dialHost, conf)
}

// IsConnected reports whether a cached connection exists for the given host.
func (p *Pool) IsConnected(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.clients[host]
	return ok
}

// Close closes all cached connections and resets the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var firstErr error
	for _, client := range clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveHostConf applies per-host overrides to the base client config.
func (p *Pool) resolveHostConf(host string) (ClientConfig, string) {
	conf := p.baseConf
	dialHost := host
	if hc, ok := p.hostConfs[host]; ok {
		if hc.Hostname != "" {
			dialHost = hc.Hostname
		}
		if hc.User != "" {
			conf.User = hc.User
		}
		if hc.Port > 0 {
			conf.Port = hc.Port
		}
		if hc.IdentityFile != "" {
			conf.IdentityFiles = []string{hc.IdentityFile}
		}
	}
	return conf, dialHost
}

// isReconnectable returns true if the error suggests a stale/broken connection
// that might succeed on retry with a fresh dial. It returns false for errors
// that are permanent (auth failures, context cancellation).
func isReconnectable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") {
		return true
	}
	return false
}
