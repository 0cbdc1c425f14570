// Package credentials stores the Wi-Fi station credentials the companion
// apps push to the controller.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Credential keys.
const (
	SSID     = "SSID"
	Password = "PASSWORD"
)

// ErrBadKeys is returned when a credential set is not exactly SSID and PASSWORD.
var ErrBadKeys = errors.New("credentials: want exactly SSID and PASSWORD")

// Store keeps credentials in <dir>/secrets/secrets.json.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "secrets", "secrets.json")}
}

// Path is the file the credentials live in.
func (s *Store) Path() string { return s.path }

// Load returns the stored credentials. A missing file is created empty.
func (s *Store) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.write(map[string]string{}); err != nil {
			return nil, err
		}
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read: %w", err)
	}
	out := map[string]string{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("credentials: decode %s: %w", s.path, err)
	}
	return out, nil
}

// Save replaces the stored credentials with c.
func (s *Store) Save(c map[string]string) error {
	if len(c) != 2 {
		return ErrBadKeys
	}
	if _, ok := c[SSID]; !ok {
		return ErrBadKeys
	}
	if _, ok := c[Password]; !ok {
		return ErrBadKeys
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(c)
}

// Reset stores an empty credential set.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(map[string]string{})
}

func (s *Store) write(c map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credentials: create dir: %w", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("credentials: write: %w", err)
	}
	return nil
}
