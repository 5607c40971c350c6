package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileTickLog appends tick records to a file, one JSON object per line.
// The file is opened append-only so concurrent loops on the same path do not
// interleave within a record.
type FileTickLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenTickLog opens (creating if needed) a tick log at path.
func OpenTickLog(path string) (*FileTickLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create tick log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open tick log: %w", err)
	}
	return &FileTickLog{f: f}, nil
}

// Write appends one record as a JSON line.
func (t *FileTickLog) Write(rec TickRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.f.Write(append(data, '\n'))
	return err
}

// Close closes the underlying file.
func (t *FileTickLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
