package device

import (
	"fmt"
)

// DefaultStepperSteps is the travel of a new stepper motor.
const DefaultStepperSteps = 30

func init() {
	register(&Spec{Name: "DCMotor", RequiredPins: 2, On: next, Off: last, Stateless: true, build: buildDCMotor})
	register(&Spec{Name: "StepperMotor", RequiredPins: 2, On: next, Off: last, Stateless: true, build: buildStepper})
}

type dcMotor struct {
	m   *motor
	env Env
}

func buildDCMotor(env Env, d *device) (actuator, error) {
	m, err := newMotor(env.Backend, d.pins[0], d.pins[1])
	if err != nil {
		return nil, err
	}
	return &dcMotor{m: m, env: env}, nil
}

func (m *dcMotor) apply(a State) (string, error) {
	switch a {
	case None:
		return "stopped", m.m.stop()
	case next:
		return string(a), m.m.run(1, m.env.Timing.MotorRun, m.env.Sleep)
	default:
		return string(a), m.m.run(-1, m.env.Timing.MotorRun, m.env.Sleep)
	}
}

func (m *dcMotor) close() error { return m.m.Close() }

// stepperMotor moves a fixed number of steps per action: forward for next,
// backward for last. The first pin is direction, the second is step.
type stepperMotor struct {
	m   *stepMotor
	n   int
	env Env
}

func buildStepper(env Env, d *device) (actuator, error) {
	m, err := newStepMotor(env.Backend, d.pins[0], d.pins[1], env.Timing.StepDelay)
	if err != nil {
		return nil, err
	}
	return &stepperMotor{m: m, n: DefaultStepperSteps, env: env}, nil
}

func (s *stepperMotor) apply(a State) (string, error) {
	switch a {
	case None:
		return "idle", nil
	case next:
		return fmt.Sprintf("forward %d", s.n), s.m.move(true, s.n, s.env.Sleep)
	default:
		return fmt.Sprintf("backward %d", s.n), s.m.move(false, s.n, s.env.Sleep)
	}
}

func (s *stepperMotor) steps() int { return s.n }

func (s *stepperMotor) setSteps(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: stepper steps %d must be positive", ErrInvalidParams, n)
	}
	s.n = n
	return nil
}

func (s *stepperMotor) close() error { return s.m.Close() }
