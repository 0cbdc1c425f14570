package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/railyard/railyard/server/internal/yard"
)

// ObserveYard records yard events that a user reading GET /log needs to see
// next to the request history. It is meant to be passed to yard.Observe.
func (l *Log) ObserveYard(e yard.Event) {
	var text string
	switch e.Kind {
	case yard.EventBootFallback:
		text = fmt.Sprintf("Could not load %s, %v", e.Profile, e.Err)
	case yard.EventProfileLoaded:
		if e.Err == nil {
			return
		}
		text = fmt.Sprintf("Profile %s loaded with errors, %v", e.Profile, e.Err)
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Record(ctx, text); err != nil {
		slog.Warn("eventlog: record yard event failed", "kind", e.Kind, "err", err)
	}
}
