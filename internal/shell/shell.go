// Package shell runs catalog actions on the local machine, for batch steps
// and for dispatches that target the local host only.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fleetmedic/fleetmedic/internal/catalog"
)

// Runner executes rendered action commands through the local shell.
type Runner struct {
	sudoPassword string
}

// NewRunner creates a local Runner. sudoPassword is used for elevated
// commands when the process is not already root; empty means NOPASSWD sudo.
func NewRunner(sudoPassword string) *Runner {
	return &Runner{sudoPassword: sudoPassword}
}

// Run executes a command locally. Elevated commands run under sudo unless the
// process is already root.
func (r *Runner) Run(ctx context.Context, _ string, command string, elevated bool) *catalog.Result {
	var cmd *exec.Cmd
	switch {
	case !elevated || os.Geteuid() == 0:
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	case r.sudoPassword != "":
		cmd = exec.CommandContext(ctx, "sudo", "-S", "-p", "", "sh", "-c", command)
		cmd.Stdin = newPasswordReader(r.sudoPassword)
	default:
		cmd = exec.CommandContext(ctx, "sudo", "-n", "sh", "-c", command)
	}

	var stdout, stderr safeBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &catalog.Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Err = err
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && res.Err == nil {
		res.Err = ctxErr
	}
	res.OK = res.Err == nil && res.ExitCode == 0
	return res
}

// Fetch copies a locally generated file into localDir/<host>/, mirroring the
// layout the SFTP fetcher produces for remote targets.
func (r *Runner) Fetch(_ context.Context, host, remotePath, localDir string) error {
	src, err := os.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open report file: %w", err)
	}
	defer src.Close()

	hostDir := filepath.Join(localDir, host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}

	dst, err := os.Create(filepath.Join(hostDir, filepath.Base(remotePath)))
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

// newPasswordReader yields the password followed by a newline, once.
func newPasswordReader(password string) io.Reader {
	return &passwordReader{data: []byte(password + "\n")}
}

type passwordReader struct {
	data []byte
	off  int
}

func (p *passwordReader) Read(b []byte) (int, error) {
	if p.off >= len(p.data) {
		return 0, io.EOF
	}
	n := copy(b, p.data[p.off:])
	p.off += n
	return n, nil
}
