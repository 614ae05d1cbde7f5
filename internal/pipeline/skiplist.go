package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SkipListFilename lists, one per line, the trips that need manual handling.
const SkipListFilename = "to_handle.txt"

// SkipList appends trip paths to a text file.
type SkipList struct {
	path string
	mu   sync.Mutex
}

// NewSkipList returns a skip list writing to path.
func NewSkipList(path string) *SkipList {
	return &SkipList{path: path}
}

// Add appends relPath on its own line.
func (s *SkipList) Add(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, relPath); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
