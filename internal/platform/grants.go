package platform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
)

// Grant is a remembered answer to a permission prompt.
type Grant struct {
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GrantStore persists permission answers as JSON, like the OS remembers an
// app's runtime permissions across launches.
type GrantStore struct {
	path   string
	mu     sync.RWMutex
	grants map[capability.Permission]Grant
}

// OpenGrantStore loads path if it exists.
func OpenGrantStore(path string) (*GrantStore, error) {
	s := &GrantStore{path: path, grants: make(map[capability.Permission]Grant)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("grant store: read: %w", err)
	}
	if err := json.Unmarshal(data, &s.grants); err != nil {
		return nil, fmt.Errorf("grant store: decode %s: %w", path, err)
	}
	return s, nil
}

// Granted reports whether perm was granted.
func (s *GrantStore) Granted(perm capability.Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[perm].Granted
}

// All returns a copy of every remembered answer.
func (s *GrantStore) All() map[capability.Permission]Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[capability.Permission]Grant, len(s.grants))
	for k, v := range s.grants {
		out[k] = v
	}
	return out
}

// Set records an answer for perms and saves the file.
func (s *GrantStore) Set(perms []capability.Permission, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range perms {
		s.grants[p] = Grant{Granted: granted, UpdatedAt: now}
	}
	return s.saveLocked()
}

// Revoke forgets perm.
func (s *GrantStore) Revoke(perm capability.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, perm)
	return s.saveLocked()
}

func (s *GrantStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("grant store: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.grants, "", "  ")
	if err != nil {
		return fmt.Errorf("grant store: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("grant store: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("grant store: rename: %w", err)
	}
	return nil
}
