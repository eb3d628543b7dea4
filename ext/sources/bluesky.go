package sources

import (
	"context"

	"hfbot/3rdparty/bluesky"
	"hfbot/core/poll"
)

// BlueskyPosts checks the current state of posts seen on the firehose.
type BlueskyPosts struct {
	Client *bluesky.Client
}

func (p BlueskyPosts) CheckPost(ctx context.Context, author, id string) (*poll.Post, error) {
	record, err := p.Client.GetPost(ctx, author, id)
	if err != nil {
		return nil, err
	}

	return &poll.Post{
		Text:  record.Value.Text,
		Reply: record.Value.Reply != nil,
		Embed: record.Value.Embed != nil,
		Ref:   record.Ref().String(),
	}, nil
}
