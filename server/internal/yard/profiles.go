package yard

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/profile"
)

// Profiles lists the saved profiles and the favorite.
func (y *Yard) Profiles() (types.ProfilesResponse, error) {
	names, err := y.profiles.Names()
	if err != nil {
		return types.ProfilesResponse{}, err
	}
	out := types.ProfilesResponse{Profiles: names, FavoriteProfile: []string{}}
	fav, ok, err := y.profiles.Favorite()
	if err != nil {
		return types.ProfilesResponse{}, err
	}
	if ok {
		out.FavoriteProfile = append(out.FavoriteProfile, fav)
	}
	return out, nil
}

// SaveProfile stores the current layout under name.
func (y *Yard) SaveProfile(name string) (types.ProfilesResponse, error) {
	devices := y.Devices().Devices
	if err := y.profiles.Save(name, profile.FromDevices(devices)); err != nil {
		return types.ProfilesResponse{}, err
	}
	slog.Info("yard: profile saved", "profile", name, "devices", len(devices))
	return y.Profiles()
}

// DeleteProfile removes a saved profile.
func (y *Yard) DeleteProfile(name string) (types.ProfilesResponse, error) {
	if err := y.profiles.Delete(name); err != nil {
		return types.ProfilesResponse{}, err
	}
	return y.Profiles()
}

// SetFavorite marks name as the profile to load at boot.
func (y *Yard) SetFavorite(name string) (types.ProfilesResponse, error) {
	if err := y.profiles.SetFavorite(name); err != nil {
		return types.ProfilesResponse{}, err
	}
	return y.Profiles()
}

// ClearFavorite unsets the boot profile.
func (y *Yard) ClearFavorite() (types.ProfilesResponse, error) {
	if err := y.profiles.ClearFavorite(); err != nil {
		return types.ProfilesResponse{}, err
	}
	return y.Profiles()
}

type planned struct {
	pins   []int
	spec   *device.Spec
	params device.Params
	state  device.State
}

// plan validates a saved layout without touching hardware.
func (y *Yard) plan(saved []types.Device) ([]planned, error) {
	configured := y.fullPool()
	used := make(map[int]bool)
	out := make([]planned, 0, len(saved))
	for _, sd := range saved {
		spec, err := device.ByName(sd.Name)
		if err != nil {
			return nil, err
		}
		params := device.Params(sd.Params)
		if _, err := spec.Resolve(params); err != nil {
			return nil, err
		}
		if len(sd.Pins) != spec.RequiredPins {
			return nil, fmt.Errorf("%w: %s on %v", device.ErrPinCount, spec.Name, sd.Pins)
		}
		for _, n := range sd.Pins {
			if !configured[n] || used[n] {
				return nil, fmt.Errorf("%w: pin %d in %s", ErrPinsUnavailable, n, spec.Name)
			}
			used[n] = true
		}
		p := planned{pins: sd.Pins, spec: spec, params: params}
		if sd.State != nil {
			p.state = device.State(*sd.State)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadProfile replaces the current devices with the layout saved as name and
// re-applies the saved states. A layout that does not fit the configured pins
// is rejected before any device is closed.
func (y *Yard) LoadProfile(name string) (types.DevicesResponse, error) {
	p, err := y.profiles.Load(name)
	if err != nil {
		return types.DevicesResponse{}, err
	}
	saved, err := p.List()
	if err != nil {
		return types.DevicesResponse{}, err
	}
	plan, err := y.plan(saved)
	if err != nil {
		return types.DevicesResponse{}, fmt.Errorf("yard: profile %s: %w", name, err)
	}

	y.mu.Lock()
	if err := y.closeAll(); err != nil {
		slog.Warn("yard: close failed while loading profile", "profile", name, "err", err)
	}
	var errs []error
	built := make([]device.Device, 0, len(plan))
	for _, pl := range plan {
		d, err := y.add(pl.pins, pl.spec, pl.params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		built = append(built, d)
		if err := d.Action(pl.state); err != nil {
			slog.Warn("yard: restore state failed", "device", d.Name(), "pins", device.PinString(pl.pins), "state", pl.state, "err", err)
		}
	}
	out := y.snapshot()
	y.mu.Unlock()

	err = errors.Join(errs...)
	slog.Info("yard: profile loaded", "profile", name, "devices", len(built), "err", err)
	y.notify(Event{Kind: EventProfileLoaded, Profile: name, Err: err, Devices: out.Devices})
	if err != nil {
		return out, fmt.Errorf("yard: profile %s: %w", name, err)
	}
	return out, nil
}

// LoadDefaults replaces the current devices with the configured default layout.
func (y *Yard) LoadDefaults() types.DevicesResponse {
	y.mu.Lock()
	if err := y.closeAll(); err != nil {
		slog.Warn("yard: close failed while loading defaults", "err", err)
	}
	for _, pl := range y.defaults {
		pins, err := ParsePins(pl.Pins)
		if err == nil {
			var spec *device.Spec
			var params device.Params
			if spec, params, err = device.Lookup(pl.Type); err == nil {
				_, err = y.add(pins, spec, params)
			}
		}
		if err != nil {
			slog.Warn("yard: default device skipped", "pins", pl.Pins, "type", pl.Type, "err", err)
		}
	}
	out := y.snapshot()
	y.mu.Unlock()

	y.notify(Event{Kind: EventAdded, Devices: out.Devices})
	return out
}

// Boot loads the favorite profile, falling back to the default layout when
// there is none or it fails to load. Only a favorite that exists but cannot
// be loaded raises EventBootFallback.
func (y *Yard) Boot() types.DevicesResponse {
	fav, ok, err := y.profiles.Favorite()
	if err != nil {
		slog.Warn("yard: read favorite failed", "err", err)
	}
	if ok {
		out, err := y.LoadProfile(fav)
		if err == nil {
			return out
		}
		if errors.Is(err, profile.ErrNotFound) {
			slog.Info("yard: favorite profile no longer exists, using defaults", "profile", fav)
			return y.LoadDefaults()
		}
		slog.Error("yard: favorite profile failed, using defaults", "profile", fav, "err", err)
		y.notify(Event{Kind: EventBootFallback, Profile: fav, Err: err, Devices: y.Devices().Devices})
	}
	return y.LoadDefaults()
}
