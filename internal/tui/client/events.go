package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fasthttp/websocket"
)

// Event is a daemon bus event received over the websocket stream.
type Event struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Events dials the daemon's event stream and delivers events on the
// returned channel until the context is cancelled or the socket drops.
// The channel is closed on exit.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
