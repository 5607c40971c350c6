package ssh

import (
	"bytes"
	"sync"
)

// safeBuffer captures stdout/stderr from exec sessions. The session writes
// from its own goroutine while the caller may be tearing the session down, so
// every access takes the lock.
type safeBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.b.Len())
	copy(out, s.b.Bytes())
	return out
}
