package sources

import (
	"context"

	"hfbot/3rdparty/jetstream"
	"hfbot/core/poll"
)

// Jetstream turns firehose post creations into poll events.
type Jetstream struct {
	Client *jetstream.Client
}

func (j Jetstream) Subscribe(ctx context.Context, handle func(ctx context.Context, event poll.Event)) error {
	return j.Client.Subscribe(ctx, func(ctx context.Context, event *jetstream.Event) {
		handle(ctx, poll.Event{
			ID:     event.Commit.RKey,
			Author: event.DID,
			Text:   event.PostText(),
		})
	})
}
