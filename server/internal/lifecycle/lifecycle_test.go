package lifecycle

import (
	"context"
	"testing"
)

func TestController_FirstReasonWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(cancel)

	if got := c.Reason(); got != None {
		t.Errorf("initial reason: got %q, want empty", got)
	}
	c.Update()
	c.Shutdown()

	if got := c.Reason(); got != Update {
		t.Errorf("reason: got %q, want %q", got, Update)
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("context not cancelled")
	}
	select {
	case <-c.Done():
	default:
		t.Error("done not closed")
	}
}

func TestReason_ExitCode(t *testing.T) {
	cases := []struct {
		r        Reason
		code     int
		restarts bool
	}{
		{None, 0, false},
		{Shutdown, 0, false},
		{Reset, RestartCode, true},
		{Update, RestartCode, true},
	}
	for _, tc := range cases {
		if got := tc.r.ExitCode(); got != tc.code {
			t.Errorf("%q exit code: got %d, want %d", tc.r, got, tc.code)
		}
		if got := tc.r.Restarts(); got != tc.restarts {
			t.Errorf("%q restarts: got %v, want %v", tc.r, got, tc.restarts)
		}
	}
}
