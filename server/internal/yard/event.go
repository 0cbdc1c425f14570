package yard

import (
	"log/slog"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/device"
)

// Event kinds delivered to observers.
const (
	EventAdded         = "device_added"
	EventRemoved       = "device_removed"
	EventChanged       = "device_changed"
	EventAction        = "device_action"
	EventShutdown      = "shutdown"
	EventProfileLoaded = "profile_loaded"
	EventBootFallback  = "boot_fallback"
	EventAutoOff       = device.EventAutoOff
	EventBeamError     = device.EventBeamError
)

// Event describes one change to the yard. Devices is the full device list
// after the change.
type Event struct {
	Kind    string
	Type    string
	Pins    []int
	Action  string
	Profile string
	Detail  string
	Err     error
	Devices []types.Device
}

// Observer is called after every change, without any yard lock held.
type Observer func(Event)

// Observe registers fn.
func (y *Yard) Observe(fn Observer) {
	y.obsMu.Lock()
	defer y.obsMu.Unlock()
	y.observers = append(y.observers, fn)
}

func (y *Yard) notify(e Event) {
	y.obsMu.RLock()
	obs := make([]Observer, len(y.observers))
	copy(obs, y.observers)
	y.obsMu.RUnlock()

	for _, fn := range obs {
		fn(e)
	}
}

// deviceEvent forwards events raised by devices on their own goroutines.
func (y *Yard) deviceEvent(e device.Event) {
	slog.Info("yard: device event", "kind", e.Kind, "device", e.Device, "pins", device.PinString(e.Pins), "detail", e.Detail)
	y.notify(Event{
		Kind:    e.Kind,
		Type:    e.Device,
		Pins:    e.Pins,
		Detail:  e.Detail,
		Devices: y.Devices().Devices,
	})
}
