package gpio

import (
	"errors"
	"image/color"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

func TestSim_OutAndHistory(t *testing.T) {
	s := NewSim()
	p, err := s.Pin(4)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if err := p.Out(gpio.High); err != nil {
		t.Fatalf("Out: %v", err)
	}
	if got := s.Level(4); got != gpio.High {
		t.Errorf("Level: got %v, want High", got)
	}
	if got := p.Read(); got != gpio.High {
		t.Errorf("Read: got %v, want High", got)
	}
	h := s.HistoryFor(4)
	if len(h) != 1 || h[0].Op != "out" {
		t.Errorf("history: got %+v", h)
	}
}

func TestSim_SamePinSameHandle(t *testing.T) {
	s := NewSim()
	a, _ := s.Pin(7)
	b, _ := s.Pin(7)
	if a != b {
		t.Error("Pin(7) twice: expected the same handle")
	}
}

func TestSim_PWMThenHalt(t *testing.T) {
	s := NewSim()
	p, _ := s.Pin(2)
	if err := p.PWM(gpio.DutyHalf, 50*physic.Hertz); err != nil {
		t.Fatalf("PWM: %v", err)
	}
	d, on := s.Duty(2)
	if !on || d != gpio.DutyHalf {
		t.Errorf("Duty: got %v/%v, want DutyHalf/true", d, on)
	}
	_ = p.Halt()
	if _, on := s.Duty(2); on {
		t.Error("Duty after Halt: PWM still active")
	}
}

func TestSim_FailPin(t *testing.T) {
	s := NewSim()
	boom := errors.New("boom")
	s.FailPin(9, boom)
	if _, err := s.Pin(9); !errors.Is(err, boom) {
		t.Errorf("Pin(9): got %v, want wrapped boom", err)
	}
}

func TestSim_Strip(t *testing.T) {
	s := NewSim()
	st, err := s.Strip(0, 3)
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}
	red := color.NRGBA{R: 10, A: 255}
	st.Set(1, red)
	if got := st.(*SimStrip).Shown()[1]; got == red {
		t.Error("pixel shown before Write")
	}
	_ = st.Write()
	if got := st.(*SimStrip).Shown()[1]; got != red {
		t.Errorf("pixel 1: got %v, want %v", got, red)
	}
	if _, err := s.Strip(1, 0); err == nil {
		t.Error("Strip with zero length: expected error")
	}
}

func TestDutyFraction(t *testing.T) {
	tests := []struct {
		in   float64
		want gpio.Duty
	}{
		{-1, 0},
		{0, 0},
		{0.5, gpio.DutyHalf},
		{1, gpio.DutyMax},
		{2, gpio.DutyMax},
	}
	for _, tt := range tests {
		if got := DutyFraction(tt.in); got != tt.want {
			t.Errorf("DutyFraction(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New("bogus"); err == nil {
		t.Error("New(bogus): expected error")
	}
	b, err := New("sim")
	if err != nil {
		t.Fatalf("New(sim): %v", err)
	}
	if _, ok := b.(*Sim); !ok {
		t.Errorf("New(sim): got %T", b)
	}
}
