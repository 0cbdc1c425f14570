package gpio

import (
	"fmt"
	"image/color"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Write is one recorded operation on a simulated pin.
type Write struct {
	Pin   int
	Op    string // "out" | "pwm" | "halt"
	Level gpio.Level
	Duty  gpio.Duty
	Freq  physic.Frequency
}

// Sim is an in-memory Backend. It is safe for concurrent use.
type Sim struct {
	mu      sync.Mutex
	pins    map[int]*SimPin
	strips  map[int]*SimStrip
	history []Write
	fail    map[int]error
}

// NewSim returns an empty simulated backend.
func NewSim() *Sim {
	return &Sim{
		pins:   make(map[int]*SimPin),
		strips: make(map[int]*SimStrip),
		fail:   make(map[int]error),
	}
}

// FailPin makes every later Pin(n) call return err. Used to exercise error paths.
func (s *Sim) FailPin(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[n] = err
}

func (s *Sim) Pin(n int) (Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[n]; err != nil {
		return nil, fmt.Errorf("gpio: sim GPIO%d: %w", n, err)
	}
	p, ok := s.pins[n]
	if !ok {
		p = &SimPin{n: n, sim: s}
		s.pins[n] = p
	}
	return p, nil
}

func (s *Sim) Strip(n, length int) (Strip, error) {
	if length <= 0 {
		return nil, fmt.Errorf("gpio: sim strip on GPIO%d: length %d", n, length)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &SimStrip{n: n, buf: make([]color.NRGBA, length), shown: make([]color.NRGBA, length)}
	s.strips[n] = st
	return st, nil
}

func (s *Sim) Close() error { return nil }

// Level reports the last level driven on pin n (Low when never touched).
func (s *Sim) Level(n int) gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pins[n]; ok {
		return p.level
	}
	return gpio.Low
}

// Duty reports the last PWM duty on pin n and whether PWM is active.
func (s *Sim) Duty(n int) (gpio.Duty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pins[n]; ok {
		return p.duty, p.pwm
	}
	return 0, false
}

// History returns a copy of every write in order.
func (s *Sim) History() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryFor returns the writes recorded for pin n.
func (s *Sim) HistoryFor(n int) []Write {
	var out []Write
	for _, w := range s.History() {
		if w.Pin == n {
			out = append(out, w)
		}
	}
	return out
}

// StripOn returns the strip opened on pin n, if any.
func (s *Sim) StripOn(n int) (*SimStrip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strips[n]
	return st, ok
}

// SimPin is a Pin owned by a Sim backend.
type SimPin struct {
	n     int
	sim   *Sim
	level gpio.Level
	duty  gpio.Duty
	pwm   bool
}

func (p *SimPin) Number() int { return p.n }

func (p *SimPin) Out(l gpio.Level) error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.level, p.pwm, p.duty = l, false, 0
	p.sim.history = append(p.sim.history, Write{Pin: p.n, Op: "out", Level: l})
	return nil
}

func (p *SimPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.duty, p.pwm = duty, true
	p.sim.history = append(p.sim.history, Write{Pin: p.n, Op: "pwm", Duty: duty, Freq: f})
	return nil
}

func (p *SimPin) Read() gpio.Level {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.level
}

func (p *SimPin) Halt() error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.pwm, p.duty = false, 0
	p.sim.history = append(p.sim.history, Write{Pin: p.n, Op: "halt"})
	return nil
}

// SimStrip is a Strip owned by a Sim backend.
type SimStrip struct {
	mu     sync.Mutex
	n      int
	buf    []color.NRGBA
	shown  []color.NRGBA
	writes int
	halted bool
}

func (s *SimStrip) Len() int { return len(s.buf) }

func (s *SimStrip) Set(i int, c color.NRGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.buf) {
		s.buf[i] = c
	}
}

func (s *SimStrip) Fill(c color.NRGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buf {
		s.buf[i] = c
	}
}

func (s *SimStrip) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.shown, s.buf)
	s.writes++
	return nil
}

func (s *SimStrip) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	return nil
}

// Shown returns the pixels as of the last Write.
func (s *SimStrip) Shown() []color.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]color.NRGBA, len(s.shown))
	copy(out, s.shown)
	return out
}

// Writes counts Write calls.
func (s *SimStrip) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
