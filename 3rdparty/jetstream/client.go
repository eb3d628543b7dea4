// Package jetstream subscribes to the Bluesky jetstream firehose.
package jetstream

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var Endpoint = "wss://jetstream2.us-east.bsky.network/subscribe"

type Client struct {
	Endpoint   string
	Dialer     *websocket.Dialer
	Clock      clock.Clock
	Collection string
	DIDs       []string
	// MinDelay and MaxDelay bound the reconnection backoff.
	MinDelay time.Duration
	MaxDelay time.Duration

	cursor int64
}

func NewClient(collection string, dids ...string) *Client {
	return &Client{
		Endpoint:   Endpoint,
		Dialer:     websocket.DefaultDialer,
		Clock:      clock.WallClock,
		Collection: collection,
		DIDs:       dids,
		MinDelay:   time.Second,
		MaxDelay:   time.Minute,
	}
}

// Subscribe calls handle for each matching event until ctx is cancelled.
// Dropped connections are re-established with exponential backoff,
// resuming from the last seen event.
func (c *Client) Subscribe(ctx context.Context, handle func(ctx context.Context, event *Event)) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return c.session(ctx, handle)
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			logrus.WithContext(ctx).Warnf("jetstream: connection lost (attempt %d): %v", attempt, err)
		},
		Attempts:    -1,
		Delay:       c.MinDelay,
		MaxDelay:    c.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.Clock,
		Stop:        ctx.Done(),
	})

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

func (c *Client) URL() string {
	query := url.Values{"wantedCollections": {c.Collection}}
	for _, did := range c.DIDs {
		query.Add("wantedDids", did)
	}

	if c.cursor > 0 {
		query.Set("cursor", strconv.FormatInt(c.cursor, 10))
	}

	return c.Endpoint + "?" + query.Encode()
}

func (c *Client) session(ctx context.Context, handle func(ctx context.Context, event *Event)) error {
	conn, _, err := c.Dialer.DialContext(ctx, c.URL(), nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		case <-done:
		}

		_ = conn.Close()
	}()

	logrus.WithContext(ctx).WithField("dids", c.DIDs).Infof("jetstream: subscribed")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		event, err := Decode(data, c.Collection)
		if event != nil && event.TimeUS > c.cursor {
			c.cursor = event.TimeUS
		}

		switch {
		case errors.Is(err, errSkip):
			continue
		case err != nil:
			logrus.WithContext(ctx).Warnf("jetstream: %v", err)
			continue
		}

		handle(ctx, event)
	}
}
