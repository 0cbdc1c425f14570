package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Periph is a Backend on top of periph.io host drivers.
type Periph struct{}

// NewPeriph initialises the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: periph host init: %w", err)
	}
	return &Periph{}, nil
}

// Pin resolves GPIO<n> from the periph registry.
func (p *Periph) Pin(n int) (Pin, error) {
	name := fmt.Sprintf("GPIO%d", n)
	io := gpioreg.ByName(name)
	if io == nil {
		return nil, fmt.Errorf("gpio: pin %s not found", name)
	}
	return &periphPin{n: n, io: io}, nil
}

// Strip is not available: WS2812 timing cannot be bit-banged from userspace.
func (p *Periph) Strip(n, length int) (Strip, error) {
	return nil, fmt.Errorf("gpio: strip on GPIO%d: %w", n, ErrUnsupported)
}

func (p *Periph) Close() error { return nil }

type periphPin struct {
	n  int
	io gpio.PinIO
}

func (p *periphPin) Number() int { return p.n }

func (p *periphPin) Out(l gpio.Level) error {
	if err := p.io.Out(l); err != nil {
		return fmt.Errorf("gpio: GPIO%d out: %w", p.n, err)
	}
	return nil
}

func (p *periphPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if err := p.io.PWM(duty, f); err != nil {
		return fmt.Errorf("gpio: GPIO%d pwm: %w", p.n, err)
	}
	return nil
}

func (p *periphPin) Read() gpio.Level { return p.io.Read() }

func (p *periphPin) Halt() error {
	if err := p.io.Halt(); err != nil {
		return fmt.Errorf("gpio: GPIO%d halt: %w", p.n, err)
	}
	return nil
}
