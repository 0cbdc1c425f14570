// Package notify delivers noteworthy yard events to chat and HTTP webhooks.
//
// Delivery is asynchronous: Observe only queues the notice, and a single
// worker started with Run posts it to every configured target. Failures are
// logged and never reach the request that caused the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/railyard/railyard/pkg/types"
	"github.com/railyard/railyard/server/internal/config"
	"github.com/railyard/railyard/server/internal/device"
	"github.com/railyard/railyard/server/internal/yard"
)

// Notice kinds.
const (
	KindAutoOff       = "disconnect_auto_off"
	KindActionFailed  = "action_failed"
	KindProfileLoaded = "profile_loaded"
	KindBootFallback  = "boot_fallback"
	KindBeamError     = "light_beam_error"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const queueSize = 64

// Notice is one notification.
type Notice struct {
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Device   string    `json:"device,omitempty"`
	Pins     []int     `json:"pins,omitempty"`
	Action   string    `json:"action,omitempty"`
	Profile  string    `json:"profile,omitempty"`
	Time     time.Time `json:"time"`

	// Layout is the device list right after the event.
	Layout []types.Device `json:"devices"`
}

// Notifier is safe for concurrent use.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	queue    chan Notice
	now      func() time.Time
}

// New returns a Notifier for cfg. With no webhooks configured every notice is
// dropped at Observe.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		queue:    make(chan Notice, queueSize),
		now:      time.Now,
	}
}

// Observe converts a yard event into a notice and queues it. It is meant to
// be passed to yard.Observe and never blocks.
func (n *Notifier) Observe(e yard.Event) {
	if len(n.webhooks) == 0 {
		return
	}
	notice, ok := n.fromEvent(e)
	if !ok {
		return
	}
	select {
	case n.queue <- notice:
	default:
		slog.Warn("notify: queue full, dropping notice", "kind", notice.Kind)
	}
}

func (n *Notifier) fromEvent(e yard.Event) (Notice, bool) {
	out := Notice{
		Device:  e.Type,
		Pins:    e.Pins,
		Action:  e.Action,
		Profile: e.Profile,
		Time:    n.now().UTC(),
		Layout:  e.Devices,
	}
	if out.Layout == nil {
		out.Layout = []types.Device{}
	}
	where := fmt.Sprintf("%s @ %s", e.Type, device.PinString(e.Pins))
	switch {
	case e.Kind == yard.EventAutoOff:
		out.Kind, out.Severity = KindAutoOff, SeverityInfo
		out.Message = fmt.Sprintf("%s switched off by the safety timer", where)
	case e.Kind == yard.EventBeamError:
		out.Kind, out.Severity = KindBeamError, SeverityWarning
		out.Message = fmt.Sprintf("%s failed: %s", where, e.Detail)
	case e.Kind == yard.EventAction && e.Err != nil:
		out.Kind, out.Severity = KindActionFailed, SeverityWarning
		out.Message = fmt.Sprintf("%s action %q failed: %v", where, e.Action, e.Err)
	case e.Kind == yard.EventProfileLoaded:
		out.Kind, out.Severity = KindProfileLoaded, SeverityInfo
		out.Message = fmt.Sprintf("profile %q loaded with %d devices", e.Profile, len(e.Devices))
		if e.Err != nil {
			out.Severity = SeverityWarning
			out.Message += fmt.Sprintf(" (errors: %v)", e.Err)
		}
	case e.Kind == yard.EventBootFallback:
		out.Kind, out.Severity = KindBootFallback, SeverityCritical
		out.Message = fmt.Sprintf("favorite profile %q failed to load, default layout in use: %v", e.Profile, e.Err)
	default:
		return Notice{}, false
	}
	return out, true
}

// Run delivers queued notices until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notice := <-n.queue:
			n.deliver(ctx, notice)
		}
	}
}

