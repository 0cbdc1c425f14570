package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/railyard/railyard/pkg/types"
)

// Watch follows /ws/stream and calls fn for every message until ctx is
// cancelled or the server closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(types.StreamMessage)) error {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/stream"

	hdr := http.Header{}
	if c.target.Auth.Mode == "apikey" {
		hdr.Set(c.target.Auth.EffectiveHeader(), c.target.Auth.Key())
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return readError(resp)
		}
		return fmt.Errorf("watch %q: dial: %w", c.target.Name, err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg types.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if ctx.Err() != nil || errors.As(err, &closeErr) {
				return nil
			}
			return fmt.Errorf("watch %q: read: %w", c.target.Name, err)
		}
		fn(msg)
	}
}
