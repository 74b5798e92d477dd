package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/datapowersync/counters/internal/changefeed"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// maxEventSize is the largest server-sent-event the client accepts.
const maxEventSize = 1 << 20

// Watch subscribes to change events over server-sent-events. The returned
// channel is closed when ctx is canceled or the stream ends. A stream that
// fails after connecting is logged.
func (c *Client) Watch(ctx context.Context) (<-chan changefeed.ChangeEvent, error) {
	u, err := c.URL("api/counters/events")
	if err != nil {
		return nil, err
	}

	connected := make(chan struct{})
	client := sse.NewClient(u.String(), sse.ClientMaxBufferSize(maxEventSize))
	// streams are long-lived so bypass retries
	client.Connection = c.HTTPClient()
	// Disable reconnects, they are the responsibility of the caller
	client.ReconnectStrategy = new(backoff.StopBackOff)
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if err := countershttp.CheckResponseCode(resp); err != nil {
			resp.Body.Close()
			return err
		}
		close(connected)
		return nil
	}

	events := make(chan changefeed.ChangeEvent)
	errch := make(chan error, 1)
	go func() {
		defer close(events)

		errch <- client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			var event changefeed.ChangeEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error(err, "skipping undecodable change event", "event", string(msg.Event))
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
			}
		})
	}()

	select {
	case <-connected:
	case err := <-errch:
		if err == nil {
			err = errors.New("event stream ended before connecting")
		}
		return nil, err
	}

	go func() {
		if err := <-errch; err != nil && ctx.Err() == nil {
			c.logger.Error(err, "event stream failed")
		}
	}()
	return events, nil
}

// WatchWS subscribes to change events over a websocket. The returned channel
// is closed when ctx is canceled or the connection ends.
func (c *Client) WatchWS(ctx context.Context) (<-chan changefeed.ChangeEvent, error) {
	u, err := c.URL("api/counters/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to websocket: %w", err)
	}

	events := make(chan changefeed.ChangeEvent)
	go func() {
		defer close(events)
		defer conn.CloseNow()

		for {
			_, b, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var event changefeed.ChangeEvent
			if err := json.Unmarshal(b, &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}()
	return events, nil
}
