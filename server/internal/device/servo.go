package device

import (
	"fmt"
	"strconv"
)

const (
	next State = "next"
	last State = "last"
)

// Calibrated travel of the servo switch machines, in degrees.
const (
	ServoMinAngle = 0
	ServoMaxAngle = 80
)

// Continuous servos stop at 0.5 and turn at 0.5 ∓ continuousSpeed.
const continuousSpeed = 0.45

func init() {
	register(&Spec{Name: "ServoTrainSwitch", RequiredPins: 1, On: straight, Off: turn, build: buildServoSwitch})
	register(&Spec{Name: "DoubleServoTrainSwitch", RequiredPins: 2, On: straight, Off: turn, build: buildServoSwitch})
	register(&Spec{Name: "ContinuousServoMotor", RequiredPins: 1, On: next, Off: last, Stateless: true, build: buildContinuousServo})
	register(&Spec{Name: "DoubleContinuousServoMotor", RequiredPins: 2, On: next, Off: last, Stateless: true, build: buildContinuousServo})
}

// servoSwitch throws a switch with a hobby servo: turn is the minimum angle,
// straight is the configurable maximum.
type servoSwitch struct {
	servo    *angularServo
	maxAngle int
}

func buildServoSwitch(env Env, d *device) (actuator, error) {
	s, err := newServo(env.Backend, d.pins[0])
	if err != nil {
		return nil, err
	}
	return &servoSwitch{
		servo:    &angularServo{servo: s, minAngle: ServoMinAngle, maxAngle: ServoMaxAngle},
		maxAngle: ServoMaxAngle,
	}, nil
}

func (s *servoSwitch) apply(a State) (string, error) {
	var angle int
	switch a {
	case None:
		return "detached", s.servo.detach()
	case turn:
		angle = ServoMinAngle
	default:
		angle = s.maxAngle
	}
	if err := s.servo.setAngle(float64(angle)); err != nil {
		return "", err
	}
	return strconv.Itoa(angle), nil
}

func (s *servoSwitch) steps() int { return s.maxAngle - ServoMinAngle }

func (s *servoSwitch) setSteps(n int) error {
	if n <= ServoMinAngle || n > ServoMaxAngle {
		return fmt.Errorf("%w: servo steps %d outside (%d, %d]", ErrInvalidParams, n, ServoMinAngle, ServoMaxAngle)
	}
	s.maxAngle = ServoMinAngle + n
	return nil
}

func (s *servoSwitch) close() error { return s.servo.Close() }

// continuousServo turns a continuous rotation servo for MotorRun per action.
type continuousServo struct {
	servo *servo
	env   Env
}

func buildContinuousServo(env Env, d *device) (actuator, error) {
	s, err := newServo(env.Backend, d.pins[0])
	if err != nil {
		return nil, err
	}
	return &continuousServo{servo: s, env: env}, nil
}

func (c *continuousServo) apply(a State) (string, error) {
	value := 0.5 - continuousSpeed
	switch a {
	case None:
		return "stopped", c.servo.detach()
	case last:
		value = 0.5 + continuousSpeed
	}
	if err := c.servo.set(value); err != nil {
		return "", err
	}
	c.env.Sleep(c.env.Timing.MotorRun)
	return string(a), c.servo.detach()
}

func (c *continuousServo) close() error { return c.servo.Close() }
