package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/gpio"
)

var (
	// ErrInvalidAction is returned for an action that is neither state of the device.
	ErrInvalidAction = errors.New("device: invalid action")
	// ErrUnknownType is returned by Lookup for a name missing from the catalogue.
	ErrUnknownType = errors.New("device: unknown device type")
	// ErrPinCount is returned when the pin count does not match the type.
	ErrPinCount = errors.New("device: wrong number of pins")
	// ErrInvalidParams is returned for malformed or out-of-range parameters.
	ErrInvalidParams = errors.New("device: invalid parameters")
	// ErrNoSteps is returned when steps are read or written on a device without them.
	ErrNoSteps = errors.New("device: device has no steps")
)

// State is a device state name. The empty State means uncontrolled.
type State string

// None is the uncontrolled state.
const None State = ""

// Params are integer construction parameters (light beams only for now).
type Params map[string]int

// Device is one accessory bound to its pins.
type Device interface {
	// ID is unique per constructed instance.
	ID() string
	// Name is the catalogue type name.
	Name() string
	Pins() []int
	RequiredPins() int
	OnState() State
	OffState() State
	State() State
	Stateless() bool
	Action(a State) error
	JSON() types.Device
	Close() error
}

// Queue is the background job queue shared by light beams and disconnects.
type Queue interface {
	Enqueue(id string, cost time.Duration, fn func(context.Context))
	Dequeue(id string) bool
	Pause()
	Resume()
}

type noopQueue struct{}

func (noopQueue) Enqueue(string, time.Duration, func(context.Context)) {}
func (noopQueue) Dequeue(string) bool                                  { return false }
func (noopQueue) Pause()                                               {}
func (noopQueue) Resume()                                              {}

// Event is emitted when a device changes state on its own.
type Event struct {
	Kind   string
	Device string
	Pins   []int
	Detail string
}

// Event kinds.
const (
	EventAutoOff   = "disconnect_auto_off"
	EventBeamError = "light_beam_error"
)

// Timing groups the hardware delays. Zero fields take defaults.
type Timing struct {
	// Blink is how long a relay pulse lasts.
	Blink time.Duration
	// SafeShutdown is how long a disconnect stays energised.
	SafeShutdown time.Duration
	// StepDelay is half a stepper pulse period.
	StepDelay time.Duration
	// MotorRun is how long a motor or continuous servo turns per action.
	MotorRun time.Duration
}

// Default timings.
const (
	DefaultBlink        = 100 * time.Millisecond
	DefaultSafeShutdown = 4 * time.Second
	DefaultStepDelay    = 66 * time.Millisecond
	DefaultMotorRun     = time.Second
)

func (t Timing) withDefaults() Timing {
	if t.Blink <= 0 {
		t.Blink = DefaultBlink
	}
	if t.SafeShutdown <= 0 {
		t.SafeShutdown = DefaultSafeShutdown
	}
	if t.StepDelay <= 0 {
		t.StepDelay = DefaultStepDelay
	}
	if t.MotorRun <= 0 {
		t.MotorRun = DefaultMotorRun
	}
	return t
}

// Stopper is a cancellable one-shot timer.
type Stopper interface {
	Stop() bool
}

// Env carries everything a device needs from its surroundings.
type Env struct {
	Backend gpio.Backend
	Queue   Queue
	Timing  Timing

	// Sleep blocks for d. Defaults to time.Sleep.
	Sleep func(d time.Duration)
	// AfterFunc arms a one-shot timer. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Stopper
	// Emit receives events raised outside of an Action call. May be nil.
	Emit func(Event)
}

func (e Env) withDefaults() Env {
	e.Timing = e.Timing.withDefaults()
	if e.Sleep == nil {
		e.Sleep = time.Sleep
	}
	if e.AfterFunc == nil {
		e.AfterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	if e.Emit == nil {
		e.Emit = func(Event) {}
	}
	if e.Queue == nil {
		e.Queue = noopQueue{}
	}
	return e
}

// actuator is the hardware half of a device.
type actuator interface {
	// apply performs the hardware action for a and returns a short description.
	// The None state asks the actuator to release or reset its outputs.
	apply(a State) (string, error)
	close() error
}

// stepper is implemented by actuators with adjustable travel.
type stepper interface {
	steps() int
	setSteps(n int) error
}

type device struct {
	mu     sync.Mutex
	id     string
	spec   *Spec
	pins   []int
	params Params
	state  State
	act    actuator
}

func (d *device) ID() string        { return d.id }
func (d *device) Name() string      { return d.spec.Name }
func (d *device) RequiredPins() int { return d.spec.RequiredPins }
func (d *device) OnState() State    { return d.spec.On }
func (d *device) OffState() State   { return d.spec.Off }
func (d *device) Stateless() bool   { return d.spec.Stateless }

func (d *device) Pins() []int {
	out := make([]int, len(d.pins))
	copy(out, d.pins)
	return out
}

func (d *device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *device) String() string {
	return fmt.Sprintf("%s @ Pin : %s", d.spec.Name, PinString(d.pins))
}

// Action drives the device into state a.
func (d *device) Action(a State) error {
	if a != None && a != d.spec.On && a != d.spec.Off {
		return fmt.Errorf("%w %q for %s (want %q or %q)", ErrInvalidAction, a, d.spec.Name, d.spec.On, d.spec.Off)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.spec.Stateless {
		update, err := d.act.apply(a)
		if err != nil {
			return fmt.Errorf("%s: %w", d, err)
		}
		slog.Debug("device: action", "device", d.String(), "action", a, "update", update)
		return nil
	}

	if d.state == a {
		slog.Debug("device: action skipped", "device", d.String(), "state", d.state)
		return nil
	}

	initial := d.state
	update, err := d.act.apply(a)
	if err != nil {
		return fmt.Errorf("%s: %w", d, err)
	}
	d.state = a
	slog.Debug("device: action",
		"device", d.String(),
		"initial_state", initial,
		"action", a,
		"update", update,
	)
	return nil
}

// JSON returns the wire form of the device.
func (d *device) JSON() types.Device {
	out := types.Device{Pins: d.Pins(), Name: d.spec.Name}
	if s := d.State(); s != None {
		str := string(s)
		out.State = &str
	}
	if len(d.params) > 0 {
		out.Params = make(map[string]int, len(d.params))
		for k, v := range d.params {
			out.Params[k] = v
		}
	}
	return out
}

// Close releases the hardware.
func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.act.close(); err != nil {
		return fmt.Errorf("%s: close: %w", d, err)
	}
	slog.Debug("device: closed", "device", d.String())
	return nil
}

func (d *device) Steps() (int, error) {
	s, ok := d.act.(stepper)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSteps, d.spec.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return s.steps(), nil
}

func (d *device) SetSteps(n int) error {
	s, ok := d.act.(stepper)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSteps, d.spec.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return s.setSteps(n)
}

// Steps returns the travel of d when it has one.
func Steps(d Device) (int, error) {
	if s, ok := d.(interface{ Steps() (int, error) }); ok {
		return s.Steps()
	}
	return 0, fmt.Errorf("%w: %s", ErrNoSteps, d.Name())
}

// SetSteps adjusts the travel of d when it has one.
func SetSteps(d Device, n int) error {
	if s, ok := d.(interface{ SetSteps(int) error }); ok {
		return s.SetSteps(n)
	}
	return fmt.Errorf("%w: %s", ErrNoSteps, d.Name())
}

// PinString renders pins as "0,1".
func PinString(pins []int) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func newID() string { return uuid.NewString() }
