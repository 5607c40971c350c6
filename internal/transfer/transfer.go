// Package transfer provides SFTP-based retrieval of report files from targets.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Pull downloads a remote file to a local directory via SFTP.
// Files are saved as localDir/<host>/<filename>. It returns the SHA-256
// checksum of the transferred bytes and the byte count.
func Pull(ctx context.Context, sshClient *ssh.Client, remotePath, localDir, host string) (checksum string, bytesWritten int64, err error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", 0, fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", 0, fmt.Errorf("open remote file: %w", err)
	}
	defer remoteFile.Close()

	hostDir := filepath.Join(localDir, host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return "", 0, fmt.Errorf("create local dir: %w", err)
	}

	localPath := filepath.Join(hostDir, filepath.Base(remotePath))
	localFile, err := os.Create(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("create local file: %w", err)
	}
	defer localFile.Close()

	hasher := sha256.New()
	writer := io.MultiWriter(localFile, hasher)

	written, err := copyWithContext(ctx, writer, remoteFile)
	if err != nil {
		return "", written, fmt.Errorf("copy: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// copyWithContext copies in chunks, checking for cancellation between reads.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, writeErr := dst.Write(buf[:n])
			written += int64(w)
			if writeErr != nil {
				return written, writeErr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
