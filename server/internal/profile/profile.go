// Package profile persists named device layouts as JSON files in a directory.
//
// A profile file holds one entry per device keyed by its pin string plus an
// explicit "order" list, so the layout is rebuilt in the order it was saved:
//
//	{"0,1": {"pins": [0, 1], "state": "turn", "name": "RelayTrainSwitch"},
//	 "order": ["0,1"]}
//
// One profile may be marked as the favorite; it is loaded at boot.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/railyard/railyard/pkg/types"
)

// FavoriteFile is the reserved file that names the favorite profile.
const FavoriteFile = "__favorite_profile__"

const ext = ".json"

var (
	// ErrInvalidName is returned for names that cannot be used as a profile file.
	ErrInvalidName = errors.New("profile: invalid name")
	// ErrNotFound is returned when the named profile does not exist.
	ErrNotFound = errors.New("profile: not found")
)

// Profile is an ordered device layout.
type Profile struct {
	Order   []string
	Devices map[string]types.Device
}

// FromDevices builds a Profile from devices in order.
func FromDevices(devices []types.Device) Profile {
	p := Profile{Order: make([]string, 0, len(devices)), Devices: make(map[string]types.Device, len(devices))}
	for _, d := range devices {
		key := pinKey(d.Pins)
		p.Order = append(p.Order, key)
		p.Devices[key] = d
	}
	return p
}

// List returns the devices in saved order. Keys listed in order but missing
// from the body are reported as an error.
func (p Profile) List() ([]types.Device, error) {
	out := make([]types.Device, 0, len(p.Order))
	for _, key := range p.Order {
		d, ok := p.Devices[key]
		if !ok {
			return nil, fmt.Errorf("profile: order names %q but no such device", key)
		}
		out = append(out, d)
	}
	return out, nil
}

func (p Profile) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Devices)+1)
	for k, d := range p.Devices {
		flat[k] = d
	}
	order := p.Order
	if order == nil {
		order = []string{}
	}
	flat["order"] = order
	return json.Marshal(flat)
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	rawOrder, ok := flat["order"]
	if !ok {
		return errors.New("profile: missing order")
	}
	if err := json.Unmarshal(rawOrder, &p.Order); err != nil {
		return fmt.Errorf("profile: order: %w", err)
	}
	delete(flat, "order")
	p.Devices = make(map[string]types.Device, len(flat))
	for k, raw := range flat {
		var d types.Device
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("profile: device %q: %w", k, err)
		}
		p.Devices[k] = d
	}
	return nil
}

// Store is a directory of profiles.
type Store struct {
	dir string
}

// NewStore opens dir, creating it when needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("profile: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// CleanName trims name and rejects anything that is not a plain file stem.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	case name == FavoriteFile:
		return "", fmt.Errorf("%w: %s is a protected name", ErrInvalidName, FavoriteFile)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return name, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name+ext) }

// Names returns the saved profile names, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("profile: list: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Save writes p under name, replacing an existing profile.
func (s *Store) Save(name string, p Profile) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: encode %s: %w", name, err)
	}
	if err := writeFile(s.path(name), b); err != nil {
		return fmt.Errorf("profile: save %s: %w", name, err)
	}
	return nil
}

// Load reads the profile called name.
func (s *Store) Load(name string) (Profile, error) {
	name, err := CleanName(name)
	if err != nil {
		return Profile{}, err
	}
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profile: load %s: %w", name, err)
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: decode %s: %w", name, err)
	}
	return p, nil
}

// Delete removes a profile. When it was the favorite, the favorite is cleared.
func (s *Store) Delete(name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	err = os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("profile: delete %s: %w", name, err)
	}
	if fav, ok, _ := s.Favorite(); ok && fav == name {
		return s.ClearFavorite()
	}
	return nil
}

// Favorite returns the favorite profile name, if one is set.
func (s *Store) Favorite() (string, bool, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, FavoriteFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("profile: read favorite: %w", err)
	}
	name := strings.TrimSpace(string(b))
	return name, name != "", nil
}

// SetFavorite marks name as the favorite. The profile need not exist yet.
func (s *Store) SetFavorite(name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(s.dir, FavoriteFile), []byte(name)); err != nil {
		return fmt.Errorf("profile: set favorite: %w", err)
	}
	return nil
}

// ClearFavorite removes the favorite mark. Clearing an unset favorite is not an error.
func (s *Store) ClearFavorite() error {
	err := os.Remove(filepath.Join(s.dir, FavoriteFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("profile: clear favorite: %w", err)
	}
	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func pinKey(pins []int) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ",")
}
