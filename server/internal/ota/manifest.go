package ota

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// manifest maps installed file → version and is persisted as JSON.
type manifest struct {
	path string

	mu       sync.Mutex
	versions map[string]string
}

func loadManifest(path string) (*manifest, error) {
	m := &manifest{path: path, versions: make(map[string]string)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, m.save()
	}
	if err != nil {
		return nil, fmt.Errorf("ota: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.versions); err != nil {
		return nil, fmt.Errorf("ota: parse manifest: %w", err)
	}
	return m, nil
}

func (m *manifest) version(file string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.versions[file]; ok {
		return v
	}
	return NoVersion
}

func (m *manifest) set(file, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[file] = version
}

func (m *manifest) save() error {
	m.mu.Lock()
	data, err := json.Marshal(m.versions)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ota: encode manifest: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("ota: write manifest: %w", err)
	}
	return nil
}
