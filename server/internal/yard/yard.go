// Package yard owns the set of devices wired to the controller: which pins
// they use, the order they were added in, and the saved layouts (profiles)
// they can be rebuilt from.
package yard

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/profile"
)

var (
	// ErrInvalidPins is returned for a malformed pin list.
	ErrInvalidPins = errors.New("yard: invalid pins")
	// ErrPinsUnavailable is returned when a pin is in use, repeated or not configured.
	ErrPinsUnavailable = errors.New("yard: pins not available")
	// ErrNoDevice is returned when no device uses the given pins.
	ErrNoDevice = errors.New("yard: no device on pins")
)

// Placement is one device of the default layout.
type Placement struct {
	Pins string `yaml:"pins"`
	Type string `yaml:"type"`
}

// DefaultPins are the usable GPIOs of the controller board.
func DefaultPins() []int {
	pins := make([]int, 29)
	for i := range pins {
		pins[i] = i
	}
	return pins
}

// DefaultLayout is thirteen relay switches covering every usable pin pair.
func DefaultLayout() []Placement {
	pairs := []string{
		"0,1", "2,3", "4,5", "6,7", "8,9", "10,11", "12,13",
		"14,15", "16,17", "18,19", "20,21", "22,26", "27,28",
	}
	out := make([]Placement, len(pairs))
	for i, p := range pairs {
		out[i] = Placement{Pins: p, Type: "RelayTrainSwitch"}
	}
	return out
}

// Config configures a Yard.
type Config struct {
	// Pins are the GPIOs devices may use. Empty means DefaultPins.
	Pins []int
	// Defaults is the layout used when no favorite profile loads. Nil means
	// DefaultLayout; an empty non-nil slice means start empty.
	Defaults []Placement
}

// Yard is safe for concurrent use. Device actions are serialised.
type Yard struct {
	env      device.Env
	profiles *profile.Store
	pins     []int
	defaults []Placement

	mu      sync.Mutex
	order   []string
	devices map[string]device.Device
	pool    map[int]bool

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an empty yard. Device events raised through env.Emit are
// forwarded to observers.
func New(cfg Config, env device.Env, profiles *profile.Store) *Yard {
	pins := cfg.Pins
	if len(pins) == 0 {
		pins = DefaultPins()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultLayout()
	}
	y := &Yard{
		profiles: profiles,
		pins:     append([]int(nil), pins...),
		defaults: defaults,
		devices:  make(map[string]device.Device),
	}
	emit := env.Emit
	env.Emit = func(e device.Event) {
		if emit != nil {
			emit(e)
		}
		y.deviceEvent(e)
	}
	y.env = env
	y.pool = y.fullPool()
	return y
}

// ParsePins parses "3,1" into sorted pins.
func ParsePins(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPins)
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPins, s)
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Devices lists all devices in insertion order.
func (y *Yard) Devices() types.DevicesResponse {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.snapshot()
}

// PinPool returns the free pins, sorted.
func (y *Yard) PinPool() []int {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.freePins()
}

// Types lists the device catalogue and the free pins.
func (y *Yard) Types() types.TypesResponse {
	return types.TypesResponse{Types: device.Types(), PinPool: y.PinPool()}
}

// Len is the number of devices.
func (y *Yard) Len() int {
	y.mu.Lock()
	defer y.mu.Unlock()
	return len(y.order)
}

// Add builds a device of type typ on pins.
func (y *Yard) Add(pins, typ string) (types.DevicesResponse, error) {
	p, err := ParsePins(pins)
	if err != nil {
		return types.DevicesResponse{}, err
	}
	spec, params, err := device.Lookup(typ)
	if err != nil {
		return types.DevicesResponse{}, err
	}

	y.mu.Lock()
	d, err := y.add(p, spec, params)
	if err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	out := y.snapshot()
	y.mu.Unlock()

	slog.Info("yard: device added", "device", d.Name(), "pins", device.PinString(p))
	y.notify(Event{Kind: EventAdded, Type: d.Name(), Pins: p, Devices: out.Devices})
	return out, nil
}

// add requires y.mu.
func (y *Yard) add(pins []int, spec *device.Spec, params device.Params) (device.Device, error) {
	if err := y.available(pins); err != nil {
		return nil, err
	}
	d, err := spec.New(y.env, pins, params)
	if err != nil {
		return nil, err
	}
	key := device.PinString(pins)
	y.order = append(y.order, key)
	y.devices[key] = d
	for _, n := range pins {
		delete(y.pool, n)
	}
	return d, nil
}

func (y *Yard) available(pins []int) error {
	seen := make(map[int]bool, len(pins))
	for _, n := range pins {
		if seen[n] {
			return fmt.Errorf("%w: pin %d repeated", ErrPinsUnavailable, n)
		}
		seen[n] = true
		if !y.pool[n] {
			return fmt.Errorf("%w: pin %d", ErrPinsUnavailable, n)
		}
	}
	return nil
}

// Remove closes the device on pins and frees them.
func (y *Yard) Remove(pins string) (types.DevicesResponse, error) {
	y.mu.Lock()
	key, d, err := y.lookup(pins)
	if err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	closeErr := d.Close()
	y.drop(key)
	out := y.snapshot()
	y.mu.Unlock()

	if closeErr != nil {
		slog.Warn("yard: close failed", "device", d.Name(), "pins", key, "err", closeErr)
	}
	slog.Info("yard: device removed", "device", d.Name(), "pins", key)
	y.notify(Event{Kind: EventRemoved, Type: d.Name(), Pins: d.Pins(), Devices: out.Devices})
	return out, nil
}

// drop forgets key and returns its pins. Requires y.mu.
func (y *Yard) drop(key string) {
	d := y.devices[key]
	delete(y.devices, key)
	for i, k := range y.order {
		if k == key {
			y.order = append(y.order[:i], y.order[i+1:]...)
			break
		}
	}
	for _, n := range d.Pins() {
		y.pool[n] = true
	}
}

// lookup requires y.mu.
func (y *Yard) lookup(pins string) (string, device.Device, error) {
	p, err := ParsePins(pins)
	if err != nil {
		return "", nil, err
	}
	key := device.PinString(p)
	d, ok := y.devices[key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNoDevice, key)
	}
	return key, d, nil
}

// Toggle moves a device in its on state to off, anything else to on.
func (y *Yard) Toggle(pins string) (types.DevicesResponse, error) {
	return y.act(pins, func(d device.Device) device.State {
		if d.State() == d.OnState() {
			return d.OffState()
		}
		return d.OnState()
	})
}

// On drives the device into its on state.
func (y *Yard) On(pins string) (types.DevicesResponse, error) {
	return y.act(pins, device.Device.OnState)
}

// Off drives the device into its off state.
func (y *Yard) Off(pins string) (types.DevicesResponse, error) {
	return y.act(pins, device.Device.OffState)
}

// Reset returns the device to the uncontrolled state.
func (y *Yard) Reset(pins string) (types.DevicesResponse, error) {
	return y.act(pins, func(device.Device) device.State { return device.None })
}

func (y *Yard) act(pins string, target func(device.Device) device.State) (types.DevicesResponse, error) {
	y.mu.Lock()
	_, d, err := y.lookup(pins)
	if err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	a := target(d)
	actErr := d.Action(a)
	touched := types.DevicesResponse{Devices: []types.Device{d.JSON()}}
	all := y.snapshot()
	y.mu.Unlock()

	y.notify(Event{Kind: EventAction, Type: d.Name(), Pins: d.Pins(), Action: string(a), Err: actErr, Devices: all.Devices})
	if actErr != nil {
		return types.DevicesResponse{}, actErr
	}
	return touched, nil
}

// Change replaces the device on pins with one of type typ. Both types must
// use the same number of pins. If the new device cannot be built the pins
// are left free.
func (y *Yard) Change(pins, typ string) (types.DevicesResponse, error) {
	spec, params, err := device.Lookup(typ)
	if err != nil {
		return types.DevicesResponse{}, err
	}

	y.mu.Lock()
	key, old, err := y.lookup(pins)
	if err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	if spec.RequiredPins != old.RequiredPins() {
		y.mu.Unlock()
		return types.DevicesResponse{}, fmt.Errorf("%w: %s needs %d, %s uses %d",
			device.ErrPinCount, spec.Name, spec.RequiredPins, old.Name(), old.RequiredPins())
	}
	if err := old.Close(); err != nil {
		slog.Warn("yard: close failed", "device", old.Name(), "pins", key, "err", err)
	}
	d, err := spec.New(y.env, old.Pins(), params)
	if err != nil {
		y.drop(key)
		all := y.snapshot()
		y.mu.Unlock()
		y.notify(Event{Kind: EventRemoved, Type: old.Name(), Pins: old.Pins(), Err: err, Devices: all.Devices})
		return types.DevicesResponse{}, err
	}
	y.devices[key] = d
	touched := types.DevicesResponse{Devices: []types.Device{d.JSON()}}
	all := y.snapshot()
	y.mu.Unlock()

	slog.Info("yard: device changed", "pins", key, "from", old.Name(), "to", d.Name())
	y.notify(Event{Kind: EventChanged, Type: d.Name(), Pins: d.Pins(), Devices: all.Devices})
	return touched, nil
}

// Steps returns the travel of the device on pins.
func (y *Yard) Steps(pins string) (int, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	_, d, err := y.lookup(pins)
	if err != nil {
		return 0, err
	}
	return device.Steps(d)
}

// SetSteps adjusts the travel of the device on pins.
func (y *Yard) SetSteps(pins string, n int) (types.DevicesResponse, error) {
	y.mu.Lock()
	_, d, err := y.lookup(pins)
	if err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	if err := device.SetSteps(d, n); err != nil {
		y.mu.Unlock()
		return types.DevicesResponse{}, err
	}
	touched := types.DevicesResponse{Devices: []types.Device{d.JSON()}}
	all := y.snapshot()
	y.mu.Unlock()

	slog.Info("yard: steps set", "pins", device.PinString(d.Pins()), "device", d.Name(), "steps", n)
	y.notify(Event{Kind: EventChanged, Type: d.Name(), Pins: d.Pins(), Detail: "steps=" + strconv.Itoa(n), Devices: all.Devices})
	return touched, nil
}

// Shutdown closes every device and frees all pins.
func (y *Yard) Shutdown() error {
	y.mu.Lock()
	err := y.closeAll()
	y.mu.Unlock()

	slog.Info("yard: all devices closed")
	y.notify(Event{Kind: EventShutdown, Devices: []types.Device{}})
	return err
}

// closeAll requires y.mu.
func (y *Yard) closeAll() error {
	var errs []error
	for _, key := range y.order {
		if err := y.devices[key].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	y.order = nil
	y.devices = make(map[string]device.Device)
	y.pool = y.fullPool()
	return errors.Join(errs...)
}

// snapshot requires y.mu.
func (y *Yard) snapshot() types.DevicesResponse {
	out := types.DevicesResponse{Devices: make([]types.Device, 0, len(y.order))}
	for _, key := range y.order {
		out.Devices = append(out.Devices, y.devices[key].JSON())
	}
	return out
}

func (y *Yard) fullPool() map[int]bool {
	pool := make(map[int]bool, len(y.pins))
	for _, n := range y.pins {
		pool[n] = true
	}
	return pool
}

func (y *Yard) freePins() []int {
	out := make([]int, 0, len(y.pool))
	for n := range y.pool {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
