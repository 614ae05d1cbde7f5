package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/tmdtools/internal/errkind"
)

// ErrorLogFilename is the error log written in the output directory.
const ErrorLogFilename = "errors.msgpack"

// ErrorRecord is one failed trip.
type ErrorRecord struct {
	Kind    errkind.Kind `msgpack:"kind"`
	Message string       `msgpack:"message"`
	Path    string       `msgpack:"path"`
	Time    time.Time    `msgpack:"time"`
	RunID   string       `msgpack:"run_id,omitempty"`
}

// ErrorLog accumulates error records across runs. Records are kept in
// memory and persisted by Flush.
type ErrorLog struct {
	path string

	mu      sync.Mutex
	records []ErrorRecord
}

// LoadErrorLog reads the records persisted at path. A missing file yields
// an empty log.
func LoadErrorLog(path string) (*ErrorLog, error) {
	l := &ErrorLog{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return l, nil
	}
	if err := msgpack.Unmarshal(raw, &l.records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return l, nil
}

// Add appends a record.
func (l *ErrorLog) Add(rec ErrorRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a copy of the records, oldest first.
func (l *ErrorLog) Records() []ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorRecord(nil), l.records...)
}

// Len returns the number of records.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Flush writes every record to the log file.
func (l *ErrorLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := msgpack.Marshal(l.records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
