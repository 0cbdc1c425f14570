// Package lifecycle lets HTTP handlers ask the process to stop, restart or
// update itself once the current response has been written.
package lifecycle

import (
	"context"
	"sync"
)

// Reason says why the server is stopping.
type Reason string

const (
	None     Reason = ""
	Shutdown Reason = "shutdown"
	Reset    Reason = "reset"
	Update   Reason = "update"
)

// RestartCode is the exit status asking the supervisor to start the server
// again.
const RestartCode = 3

// ExitCode maps a reason to the process exit status.
func (r Reason) ExitCode() int {
	switch r {
	case Reset, Update:
		return RestartCode
	default:
		return 0
	}
}

// Restarts reports whether the process should come back after exiting.
func (r Reason) Restarts() bool { return r.ExitCode() == RestartCode }

// Controller records the first stop request and cancels the server context.
type Controller struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason Reason
	done   chan struct{}
}

// New returns a Controller that calls cancel when a stop is triggered.
func New(cancel context.CancelFunc) *Controller {
	return &Controller{cancel: cancel, done: make(chan struct{})}
}

func (c *Controller) Shutdown() { c.trigger(Shutdown) }
func (c *Controller) Reset()    { c.trigger(Reset) }
func (c *Controller) Update()   { c.trigger(Update) }

// Reason returns the recorded reason, None when nothing was requested.
func (c *Controller) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed on the first trigger.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) trigger(r Reason) {
	c.mu.Lock()
	if c.reason != None {
		c.mu.Unlock()
		return
	}
	c.reason = r
	close(c.done)
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
