package device

import (
	"errors"
	"sync"
)

// Relay boards used on the layout are active-low; the Inverted variants are
// for active-high boards.

const (
	straight State = "straight"
	turn     State = "turn"
	on       State = "on"
	off      State = "off"
)

func init() {
	register(&Spec{Name: "EmptySwitch", RequiredPins: 2, build: buildEmpty})

	register(&Spec{Name: "RelayTrainSwitch", RequiredPins: 2, On: straight, Off: turn, build: buildRelaySwitch(false, false)})
	register(&Spec{Name: "InvertedRelayTrainSwitch", RequiredPins: 2, On: straight, Off: turn, build: buildRelaySwitch(true, false)})
	register(&Spec{Name: "SpurTrainSwitch", RequiredPins: 2, On: straight, Off: turn, build: buildRelaySwitch(false, true)})
	register(&Spec{Name: "InvertedSpurTrainSwitch", RequiredPins: 2, On: straight, Off: turn, build: buildRelaySwitch(true, true)})

	register(&Spec{Name: "SingleRelayTrainSwitch", RequiredPins: 1, On: straight, Off: turn, build: buildSingleRelay(false)})
	register(&Spec{Name: "InvertedSingleRelayTrainSwitch", RequiredPins: 1, On: straight, Off: turn, build: buildSingleRelay(true)})

	register(&Spec{Name: "OnOff", RequiredPins: 1, On: on, Off: off, build: buildOnOff(false)})
	register(&Spec{Name: "DoubleOnOff", RequiredPins: 2, On: on, Off: off, build: buildOnOff(false)})
	register(&Spec{Name: "Unloader", RequiredPins: 1, On: on, Off: off, build: buildOnOff(false)})
	register(&Spec{Name: "DoubleUnloader", RequiredPins: 2, On: on, Off: off, build: buildOnOff(false)})
	register(&Spec{Name: "InvertedUnloader", RequiredPins: 1, On: on, Off: off, build: buildOnOff(true)})

	register(&Spec{Name: "Disconnect", RequiredPins: 1, On: on, Off: off, build: buildDisconnect(false)})
	register(&Spec{Name: "DoubleDisconnect", RequiredPins: 2, On: on, Off: off, build: buildDisconnect(false)})
	register(&Spec{Name: "InvertedDisconnect", RequiredPins: 1, On: on, Off: off, build: buildDisconnect(true)})
}

// --- EmptySwitch ---

// empty reserves pins without touching them.
type empty struct{}

func buildEmpty(Env, *device) (actuator, error) { return empty{}, nil }

func (empty) apply(State) (string, error) { return "noop", nil }
func (empty) close() error                 { return nil }

// --- relay train switches ---

// relaySwitch drives a twin-coil switch machine through two relays: yg throws
// it straight, br throws it to turn. A spur switch holds the relay on instead
// of pulsing it so the dead leg of the track stays unpowered.
type relaySwitch struct {
	yg, br *digitalOutput
	spur   bool
	blink  func() error
	env    Env
}

func buildRelaySwitch(activeHigh, spur bool) func(Env, *device) (actuator, error) {
	return func(env Env, d *device) (actuator, error) {
		yg, err := newDigitalOutput(env.Backend, d.pins[0], activeHigh, false)
		if err != nil {
			return nil, err
		}
		br, err := newDigitalOutput(env.Backend, d.pins[1], activeHigh, false)
		if err != nil {
			return nil, errors.Join(err, yg.Close())
		}
		return &relaySwitch{yg: yg, br: br, spur: spur, env: env}, nil
	}
}

func (r *relaySwitch) apply(a State) (string, error) {
	switch {
	case a == None:
		return "reset", errors.Join(r.yg.Off(), r.br.Off())
	case r.spur && a == straight:
		return "yg", errors.Join(r.br.Off(), r.yg.On())
	case r.spur:
		return "br", errors.Join(r.yg.Off(), r.br.On())
	case a == straight:
		return "yg", r.yg.pulse(r.env.Timing.Blink, r.env.Sleep)
	default:
		return "br", r.br.pulse(r.env.Timing.Blink, r.env.Sleep)
	}
}

func (r *relaySwitch) close() error {
	return errors.Join(r.yg.Close(), r.br.Close())
}

// --- single relay devices ---

// onOff holds one relay on or off. Double variants take two pins but only
// drive the first, leaving the second reserved for the accessory's return.
type onOff struct {
	out *digitalOutput
	// keepOnReset leaves the relay as is when the state is cleared.
	keepOnReset bool
}

func buildOnOff(activeHigh bool) func(Env, *device) (actuator, error) {
	return func(env Env, d *device) (actuator, error) {
		out, err := newDigitalOutput(env.Backend, d.pins[0], activeHigh, false)
		if err != nil {
			return nil, err
		}
		return &onOff{out: out}, nil
	}
}

func buildSingleRelay(activeHigh bool) func(Env, *device) (actuator, error) {
	return func(env Env, d *device) (actuator, error) {
		out, err := newDigitalOutput(env.Backend, d.pins[0], activeHigh, false)
		if err != nil {
			return nil, err
		}
		return &onOff{out: out, keepOnReset: true}, nil
	}
}

func (o *onOff) apply(a State) (string, error) {
	switch a {
	case None:
		if o.keepOnReset {
			return "noop", nil
		}
		return "open", o.out.Off()
	case on, straight:
		return "close", o.out.On()
	default:
		return "open", o.out.Off()
	}
}

func (o *onOff) close() error { return o.out.Close() }

// --- track disconnects ---

// disconnect energises a track disconnect for at most SafeShutdown. While it
// is energised the background queue is paused so no light beam competes for
// the supply.
type disconnect struct {
	out *digitalOutput
	env Env
	dev *device

	mu    sync.Mutex
	timer Stopper
	armed bool
}

func buildDisconnect(activeHigh bool) func(Env, *device) (actuator, error) {
	return func(env Env, d *device) (actuator, error) {
		out, err := newDigitalOutput(env.Backend, d.pins[0], activeHigh, false)
		if err != nil {
			return nil, err
		}
		return &disconnect{out: out, env: env, dev: d}, nil
	}
}

// apply runs with dev.mu held.
func (c *disconnect) apply(a State) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a != on {
		c.disarm()
		return string(a), c.out.Off()
	}
	if !c.armed {
		c.env.Queue.Pause()
		c.armed = true
	} else if c.timer != nil {
		c.timer.Stop()
	}
	if err := c.out.On(); err != nil {
		c.disarm()
		return "", err
	}
	c.timer = c.env.AfterFunc(c.env.Timing.SafeShutdown, c.expire)
	return string(a), nil
}

// disarm cancels a pending shutdown and releases the queue. c.mu must be held.
func (c *disconnect) disarm() {
	if !c.armed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false
	c.env.Queue.Resume()
}

// expire is the safe shutdown timer callback. Lock order matches Action:
// device first, then actuator. The event is emitted with no lock held.
func (c *disconnect) expire() {
	c.dev.mu.Lock()
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		c.dev.mu.Unlock()
		return
	}
	c.timer = nil
	c.armed = false
	err := c.out.Off()
	if err == nil {
		c.dev.state = off
	}
	c.env.Queue.Resume()
	c.mu.Unlock()
	c.dev.mu.Unlock()

	detail := "safe shutdown"
	if err != nil {
		detail = err.Error()
	}
	c.env.Emit(Event{Kind: EventAutoOff, Device: c.dev.spec.Name, Pins: c.dev.Pins(), Detail: detail})
}

func (c *disconnect) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarm()
	return c.out.Close()
}
