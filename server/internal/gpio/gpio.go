package gpio

import (
	"errors"
	"fmt"
	"image/color"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrUnsupported is returned when a backend cannot provide a capability.
var ErrUnsupported = errors.New("gpio: unsupported by backend")

// Pin is a single output-capable GPIO line.
type Pin interface {
	// Number is the GPIO number the pin was opened with.
	Number() int
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
	Read() gpio.Level
	// Halt stops any PWM and leaves the line uncontrolled.
	Halt() error
}

// Strip is a chain of addressable RGB pixels (WS2812) hanging off one pin.
type Strip interface {
	Len() int
	Set(i int, c color.NRGBA)
	Fill(c color.NRGBA)
	// Write pushes the buffered pixels to the chain.
	Write() error
	Halt() error
}

// Backend hands out pins and strips.
type Backend interface {
	Pin(n int) (Pin, error)
	Strip(n, length int) (Strip, error)
	Close() error
}

// New returns the backend registered under name: "periph" or "sim".
func New(name string) (Backend, error) {
	switch name {
	case "periph":
		return NewPeriph()
	case "sim", "":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", name)
	}
}

// DutyFraction converts a 0..1 fraction into a gpio.Duty, clamping the input.
func DutyFraction(f float64) gpio.Duty {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return gpio.DutyMax
	}
	return gpio.Duty(f * float64(gpio.DutyMax))
}
