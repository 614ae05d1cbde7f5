package datadir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// UIDsFilename is the registry file at the root of a data directory.
const UIDsFilename = "uids.json"

// Info is the free-form device description sent at registration. The
// collection app always sets "app_name".
type Info map[string]any

// AppName returns the app_name entry, or "" when absent.
func (i Info) AppName() string {
	s, _ := i["app_name"].(string)
	return s
}

// Registry maps user ids to their registration info. It is safe for
// concurrent use.
type Registry struct {
	path string

	mu      sync.RWMutex
	entries map[string]Info
}

// LoadRegistry reads the registry at path. A missing file yields an empty
// registry that will be created on the first Put.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Info)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.entries); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if r.entries == nil {
		r.entries = make(map[string]Info)
	}
	return r, nil
}

// Path is the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Get returns the info registered for uid.
func (r *Registry) Get(uid string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[uid]
	return info, ok
}

// Has reports whether uid is registered.
func (r *Registry) Has(uid string) bool {
	_, ok := r.Get(uid)
	return ok
}

// UIDs returns the registered ids in lexical order.
func (r *Registry) UIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uids := make([]string, 0, len(r.entries))
	for uid := range r.entries {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// Reserve registers info under the first id accepted by next that is not
// already taken, and persists the registry. next is called with 0, 1, 2...
func (r *Registry) Reserve(info Info, next func(attempt int) string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := next(0)
	for attempt := 1; ; attempt++ {
		if _, taken := r.entries[uid]; !taken {
			break
		}
		uid = next(attempt)
	}
	r.entries[uid] = info
	if err := r.saveLocked(); err != nil {
		delete(r.entries, uid)
		return "", err
	}
	return uid, nil
}

// Put registers or replaces uid and persists the registry.
func (r *Registry) Put(uid string, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.entries[uid]
	r.entries[uid] = info
	if err := r.saveLocked(); err != nil {
		if existed {
			r.entries[uid] = prev
		} else {
			delete(r.entries, uid)
		}
		return err
	}
	return nil
}

// saveLocked writes the registry through a temporary file so readers never
// observe a partial document.
func (r *Registry) saveLocked() error {
	raw, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
