package device

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/railyard/railyard/server/internal/gpio"
)

func init() {
	params := []Param{
		{Name: "n", Required: true},
		{Name: "r", Default: 10},
		{Name: "g", Default: 0},
		{Name: "b", Default: 0},
		{Name: "delay", Default: 10},
		{Name: "beam_length", Default: 3},
		{Name: "reverse_at_end", Default: 0},
	}
	register(&Spec{Name: "LightBeam", RequiredPins: 1, On: on, Off: off, Params: params, build: buildLightBeam, check: checkLightBeam})
	register(&Spec{Name: "DoubleLightBeam", RequiredPins: 2, On: on, Off: off, Params: params, build: buildLightBeam, check: checkLightBeam})
}

func checkLightBeam(p Params) error {
	switch {
	case p["n"] <= 0:
		return fmt.Errorf("%w: n must be positive, got %d", ErrInvalidParams, p["n"])
	case p["delay"] < 0:
		return fmt.Errorf("%w: delay must not be negative, got %d", ErrInvalidParams, p["delay"])
	case p["beam_length"] <= 0 || p["beam_length"] > p["n"]:
		return fmt.Errorf("%w: beam_length %d must be in [1, %d]", ErrInvalidParams, p["beam_length"], p["n"])
	case p["reverse_at_end"] != 0 && p["reverse_at_end"] != 1:
		return fmt.Errorf("%w: reverse_at_end must be 0 or 1, got %d", ErrInvalidParams, p["reverse_at_end"])
	}
	for _, c := range []string{"r", "g", "b"} {
		if p[c] < 0 || p[c] > 255 {
			return fmt.Errorf("%w: %s must be in [0, 255], got %d", ErrInvalidParams, c, p[c])
		}
	}
	return nil
}

var dark = color.NRGBA{A: 0xff}

// lightBeam runs a short beam of lit pixels along a WS2812 strip as a
// recurring job on the background queue.
type lightBeam struct {
	strip   gpio.Strip
	env     Env
	id      string
	name    string
	pins    []int
	color   color.NRGBA
	delay   time.Duration
	length  int
	reverse bool

	// draw serialises pixel writes between the queue goroutine and Action.
	draw   sync.Mutex
	active bool
}

func buildLightBeam(env Env, d *device) (actuator, error) {
	p := d.params
	strip, err := env.Backend.Strip(d.pins[0], p["n"])
	if err != nil {
		return nil, err
	}
	lb := &lightBeam{
		strip:   strip,
		env:     env,
		id:      d.id,
		name:    d.spec.Name,
		pins:    d.Pins(),
		color:   color.NRGBA{R: uint8(p["r"]), G: uint8(p["g"]), B: uint8(p["b"]), A: 0xff},
		delay:   time.Duration(p["delay"]) * time.Millisecond,
		length:  p["beam_length"],
		reverse: p["reverse_at_end"] == 1,
	}
	if err := lb.reset(); err != nil {
		return nil, errors.Join(err, strip.Halt())
	}
	return lb, nil
}

func (lb *lightBeam) apply(a State) (string, error) {
	if a == on {
		lb.draw.Lock()
		lb.active = true
		lb.draw.Unlock()
		lb.env.Queue.Enqueue(lb.id, lb.cost(), lb.run)
		return string(a), nil
	}
	lb.env.Queue.Dequeue(lb.id)
	lb.draw.Lock()
	lb.active = false
	err := lb.reset()
	lb.draw.Unlock()
	return string(a), err
}

// run is the queue job: one pass along the strip, and back when reverse is set.
// Errors are emitted after the draw lock is released.
func (lb *lightBeam) run(ctx context.Context) {
	if err := lb.pass(ctx); err != nil {
		lb.env.Emit(Event{Kind: EventBeamError, Device: lb.name, Pins: lb.pins, Detail: err.Error()})
	}
}

func (lb *lightBeam) pass(ctx context.Context) error {
	lb.draw.Lock()
	defer lb.draw.Unlock()
	if !lb.active {
		return nil
	}
	if err := lb.cycle(ctx, false); err != nil {
		return err
	}
	if lb.reverse {
		return lb.cycle(ctx, true)
	}
	return nil
}

// cost is how long one run takes.
func (lb *lightBeam) cost() time.Duration {
	one := lb.steps() * lb.delay
	if lb.reverse {
		return 2 * one
	}
	return one
}

// steps is the number of delays in one pass: two per pixel plus one per
// pixel still lit at the end.
func (lb *lightBeam) steps() time.Duration {
	n := lb.strip.Len()
	tail := lb.length - 1
	if tail > n {
		tail = n
	}
	return time.Duration(2*n + tail)
}

func (lb *lightBeam) cycle(ctx context.Context, reverse bool) error {
	n := lb.strip.Len()
	lit := make([]int, 0, lb.length)
	for k := 0; k < n; k++ {
		i := k
		if reverse {
			i = n - 1 - k
		}
		if ctx.Err() != nil {
			return lb.reset()
		}
		lit = append(lit, i)
		if err := lb.set(i, lb.color); err != nil {
			return err
		}
		lb.env.Sleep(lb.delay)
		if len(lit) >= lb.length {
			if err := lb.set(lit[0], dark); err != nil {
				return err
			}
			lit = lit[1:]
		}
		lb.env.Sleep(lb.delay)
	}
	for _, j := range lit {
		if err := lb.set(j, dark); err != nil {
			return err
		}
		lb.env.Sleep(lb.delay)
	}
	return nil
}

func (lb *lightBeam) set(i int, c color.NRGBA) error {
	lb.strip.Set(i, c)
	return lb.strip.Write()
}

func (lb *lightBeam) reset() error {
	lb.strip.Fill(dark)
	return lb.strip.Write()
}

func (lb *lightBeam) close() error {
	lb.env.Queue.Dequeue(lb.id)
	lb.draw.Lock()
	defer lb.draw.Unlock()
	lb.active = false
	return errors.Join(lb.reset(), lb.strip.Halt())
}
