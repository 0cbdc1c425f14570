package device

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	pins "github.com/railyard/railyard/server/internal/gpio"
)

// digitalOutput is a logical on/off line. With activeHigh false, "on" drives
// the pin low, which is what the opto-isolated relay boards expect.
type digitalOutput struct {
	pin        pins.Pin
	activeHigh bool
	on         bool
}

func newDigitalOutput(b pins.Backend, n int, activeHigh, initial bool) (*digitalOutput, error) {
	p, err := b.Pin(n)
	if err != nil {
		return nil, err
	}
	o := &digitalOutput{pin: p, activeHigh: activeHigh}
	if err := o.set(initial); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *digitalOutput) set(on bool) error {
	level := gpio.Level(on)
	if !o.activeHigh {
		level = !level
	}
	if err := o.pin.Out(level); err != nil {
		return err
	}
	o.on = on
	return nil
}

func (o *digitalOutput) On() error  { return o.set(true) }
func (o *digitalOutput) Off() error { return o.set(false) }

// Value reports the logical state.
func (o *digitalOutput) Value() bool { return o.on }

// pulse turns the output on for d, then off again.
func (o *digitalOutput) pulse(d time.Duration, sleep func(time.Duration)) error {
	if err := o.Off(); err != nil {
		return err
	}
	if err := o.On(); err != nil {
		return err
	}
	sleep(d)
	return o.Off()
}

func (o *digitalOutput) Close() error {
	return errors.Join(o.Off(), o.pin.Halt())
}

// Servo pulse geometry for SG90-class hobby servos: a 20ms frame (50Hz) with
// pulses from 0.4ms to 2.4ms.
const (
	servoFrequency = 50 * physic.Hertz
	servoFrame     = 20 * time.Millisecond
	servoMinPulse  = 400 * time.Microsecond
	servoMaxPulse  = 2400 * time.Microsecond
)

// servo positions a PWM servo by value in [0, 1].
type servo struct {
	pin      pins.Pin
	attached bool
	value    float64
}

func newServo(b pins.Backend, n int) (*servo, error) {
	p, err := b.Pin(n)
	if err != nil {
		return nil, err
	}
	return &servo{pin: p}, nil
}

func (s *servo) set(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("servo value %v outside [0, 1]", value)
	}
	pulse := servoMinPulse + time.Duration(value*float64(servoMaxPulse-servoMinPulse))
	duty := pins.DutyFraction(float64(pulse) / float64(servoFrame))
	if err := s.pin.PWM(duty, servoFrequency); err != nil {
		return err
	}
	s.attached, s.value = true, value
	return nil
}

// detach stops the control signal so the horn can move freely.
func (s *servo) detach() error {
	s.attached = false
	return s.pin.Halt()
}

func (s *servo) Close() error { return s.detach() }

// angularServo maps angles in [minAngle, maxAngle] onto the pulse range.
type angularServo struct {
	*servo
	minAngle, maxAngle float64
}

func (a *angularServo) setAngle(angle float64) error {
	lo, hi := a.minAngle, a.maxAngle
	if lo > hi {
		lo, hi = hi, lo
	}
	if angle < lo || angle > hi {
		return fmt.Errorf("angle %v outside [%v, %v]", angle, a.minAngle, a.maxAngle)
	}
	return a.set((angle - a.minAngle) / (a.maxAngle - a.minAngle))
}

// motor is an H-bridge driven DC motor with a forward and a backward line.
type motor struct {
	forward, backward pins.Pin
}

func newMotor(b pins.Backend, fwd, back int) (*motor, error) {
	f, err := b.Pin(fwd)
	if err != nil {
		return nil, err
	}
	r, err := b.Pin(back)
	if err != nil {
		return nil, err
	}
	m := &motor{forward: f, backward: r}
	return m, m.stop()
}

// run turns at speed in [-1, 1] for d, then stops.
func (m *motor) run(speed float64, d time.Duration, sleep func(time.Duration)) error {
	var err error
	switch {
	case speed > 0:
		err = errors.Join(m.backward.Out(gpio.Low), m.forward.PWM(pins.DutyFraction(speed), 100*physic.Hertz))
	case speed < 0:
		err = errors.Join(m.forward.Out(gpio.Low), m.backward.PWM(pins.DutyFraction(-speed), 100*physic.Hertz))
	default:
		return m.stop()
	}
	if err != nil {
		return errors.Join(err, m.stop())
	}
	sleep(d)
	return m.stop()
}

func (m *motor) stop() error {
	return errors.Join(m.forward.Out(gpio.Low), m.backward.Out(gpio.Low))
}

func (m *motor) Close() error {
	return errors.Join(m.stop(), m.forward.Halt(), m.backward.Halt())
}

// stepMotor drives a stepper controller with a direction and a step input.
type stepMotor struct {
	direction, step *digitalOutput
	delay           time.Duration
}

func newStepMotor(b pins.Backend, direction, step int, delay time.Duration) (*stepMotor, error) {
	d, err := newDigitalOutput(b, direction, true, false)
	if err != nil {
		return nil, err
	}
	s, err := newDigitalOutput(b, step, true, false)
	if err != nil {
		return nil, err
	}
	return &stepMotor{direction: d, step: s, delay: delay}, nil
}

func (m *stepMotor) move(forward bool, steps int, sleep func(time.Duration)) error {
	if err := m.direction.set(forward); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := m.step.On(); err != nil {
			return err
		}
		sleep(m.delay)
		if err := m.step.Off(); err != nil {
			return err
		}
		sleep(m.delay)
	}
	return nil
}

func (m *stepMotor) Close() error {
	return errors.Join(m.direction.Close(), m.step.Close())
}
