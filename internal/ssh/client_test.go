package ssh_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/fleetmedic/fleetmedic/internal/ssh"
	"github.com/fleetmedic/fleetmedic/internal/sshtest"
)

func startServer(t *testing.T, opts ...sshtest.Option) (host string, conf ssh.ClientConfig, cleanup func()) {
	t.Helper()

	// Force key-file auth so an ambient agent cannot interfere.
	t.Setenv("SSH_AUTH_SOCK", "")

	pub, keyPath := sshtest.GenerateKey(t)
	opts = append(opts, sshtest.WithPublicKey(pub))
	addr, cleanup := sshtest.Start(t, opts...)
	h, port := sshtest.ParseAddr(t, addr)

	conf = ssh.ClientConfig{
		User:            "tester",
		Port:            port,
		IdentityFiles:   []string{keyPath},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	}
	return h, conf, cleanup
}

func TestDialAndRunCommand(t *testing.T) {
	host, conf, cleanup := startServer(t, sshtest.WithCmdHandler(
		func(cmd string) (string, string, int) {
			switch cmd {
			case "uptime":
				return "up 3 days", "", 0
			case "fail":
				return "", "it broke", 2
			default:
				return "", "unknown command", 127
			}
		}))
	defer cleanup()

	client, err := ssh.Dial(context.Background(), host, conf)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	stdout, stderr, code, err := client.RunCommand(context.Background(), "uptime")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if code != 0 || string(stdout) != "up 3 days" {
		t.Errorf("result = %q / %q / %d", stdout, stderr, code)
	}

	_, stderr, code, err = client.RunCommand(context.Background(), "fail")
	if err != nil {
		t.Fatalf("non-zero exit is not an error: %v", err)
	}
	if code != 2 || string(stderr) != "it broke" {
		t.Errorf("result = %q / %d", stderr, code)
	}
}

func TestRunCommandSudo(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	host, conf, cleanup := startServer(t, sshtest.WithCmdHandler(
		func(cmd string) (string, string, int) {
			mu.Lock()
			seen = append(seen, cmd)
			mu.Unlock()
			return "ok", "", 0
		}))
	defer cleanup()

	client, err := ssh.Dial(context.Background(), host, conf)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, _, _, err := client.RunCommandSudo(context.Background(), "systemctl restart nginx", ""); err != nil {
		t.Fatalf("RunCommandSudo: %v", err)
	}
	if _, _, _, err := client.RunCommandSudo(context.Background(), "reboot", "hunter2"); err != nil {
		t.Fatalf("RunCommandSudo with password: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("commands seen = %v", seen)
	}
	if seen[0] != "sudo -n sh -c 'systemctl restart nginx'" {
		t.Errorf("passwordless sudo command = %q", seen[0])
	}
	if !strings.HasPrefix(seen[1], "sudo -S -p '' sh -c ") {
		t.Errorf("password sudo command = %q", seen[1])
	}
}

func TestRunCommandContextCancel(t *testing.T) {
	block := make(chan struct{})
	host, conf, cleanup := startServer(t, sshtest.WithCmdHandler(
		func(cmd string) (string, string, int) {
			<-block
			return "", "", 0
		}))
	defer cleanup()
	defer close(block)

	client, err := ssh.Dial(context.Background(), host, conf)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, _, err = client.RunCommand(ctx, "hang")
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestPoolExecAndCaching(t *testing.T) {
	host, conf, cleanup := startServer(t)
	defer cleanup()

	pool := ssh.NewPool(conf, map[string]ssh.HostConfig{
		"web1": {Hostname: host, Port: conf.Port},
	})
	defer pool.Close()

	stdout, _, code, err := pool.Exec(context.Background(), "web1", "hostname", false, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	// The default handler echoes the command.
	if code != 0 || string(stdout) != "hostname" {
		t.Errorf("result = %q / %d", stdout, code)
	}

	if !pool.IsConnected("web1") {
		t.Error("connection should be cached after Exec")
	}

	// Second exec reuses the cached connection.
	if _, _, _, err := pool.Exec(context.Background(), "web1", "uptime", false, ""); err != nil {
		t.Fatalf("second Exec: %v", err)
	}

	pool.Evict("web1")
	if pool.IsConnected("web1") {
		t.Error("evicted host should not be connected")
	}
}

func TestRunnerTransport(t *testing.T) {
	host, conf, cleanup := startServer(t)
	defer cleanup()

	pool := ssh.NewPool(conf, map[string]ssh.HostConfig{
		"web1": {Hostname: host, Port: conf.Port},
		"dead": {Hostname: "127.0.0.1", Port: 1}, // nothing listens here
	})
	runner := ssh.NewRunner(pool, "")
	defer runner.Close()

	ctx := context.Background()
	if !runner.Ping(ctx, "web1", time.Second) {
		t.Error("Ping should succeed against the test server")
	}
	if !runner.TestTransport(ctx, "web1", 5*time.Second) {
		t.Error("TestTransport should succeed against the test server")
	}
	if !pool.IsConnected("web1") {
		t.Error("TestTransport should leave the connection cached")
	}

	if runner.Ping(ctx, "dead", 200*time.Millisecond) {
		t.Error("Ping should fail for a closed port")
	}

	res := runner.Run(ctx, "web1", "uptime", false)
	if !res.OK || string(res.Stdout) != "uptime" {
		t.Errorf("Run result = %+v", res)
	}
}

func TestDialBadKey(t *testing.T) {
	host, conf, cleanup := startServer(t)
	defer cleanup()

	// A key the server does not know.
	_, otherKey := sshtest.GenerateKey(t)
	conf.IdentityFiles = []string{otherKey}

	_, err := ssh.Dial(context.Background(), host, conf)
	if err == nil {
		t.Fatal("expected auth failure")
	}

	wrapped := ssh.WrapConnectError(host, err)
	var ce *ssh.ConnectError
	if !errors.As(wrapped, &ce) {
		t.Fatalf("expected ConnectError, got %v", wrapped)
	}
}
