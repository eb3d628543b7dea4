package channels

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"hfbot/3rdparty/bluesky"
	"hfbot/core/notify"
)

// Bluesky posts announcements. Repeats quote the first announcement
// and announcements of streamed posts reply to them.
type Bluesky struct {
	Client *bluesky.Client
}

func (b *Bluesky) Name() string { return "bluesky" }

func (b *Bluesky) Dispatch(ctx context.Context, message *notify.Message) (string, error) {
	var reply *bluesky.ReplyRef
	if message.ReplyRef != "" {
		if parent, err := bluesky.ParseRef(message.ReplyRef); err == nil {
			reply = &bluesky.ReplyRef{Root: parent, Parent: parent}
		} else {
			logrus.WithContext(ctx).Warnf("bluesky: ignoring reply: %v", err)
		}
	}

	var quote *bluesky.StrongRef
	if message.QuoteRef != "" {
		if ref, err := b.ownRef(ctx, message.QuoteRef); err == nil {
			quote = ref
		} else {
			logrus.WithContext(ctx).Warnf("bluesky: ignoring quote: %v", err)
		}
	}

	ref, err := b.Client.CreatePost(ctx, message.Text, reply, quote)
	if err != nil {
		return "", err
	}

	return ref.String(), nil
}

// ownRef parses a ref to one of our posts.
// Legacy ledgers store these as "rkey|cid".
func (b *Bluesky) ownRef(ctx context.Context, value string) (*bluesky.StrongRef, error) {
	ref, err := bluesky.ParseRef(value)
	if err == nil {
		return &ref, nil
	}

	rkey, cid, ok := strings.Cut(value, "|")
	if !ok || rkey == "" || cid == "" || strings.Contains(rkey, "/") {
		return nil, err
	}

	did := b.Client.DID()
	if did == "" {
		if err := b.Client.Login(ctx); err != nil {
			return nil, err
		}

		did = b.Client.DID()
	}

	return &bluesky.StrongRef{URI: "at://" + did + "/" + bluesky.PostCollection + "/" + rkey, CID: cid}, nil
}

func (b *Bluesky) Verify(ctx context.Context) error {
	if err := b.Client.Login(ctx); err != nil {
		return err
	}

	logrus.WithField("did", b.Client.DID()).Infof("bluesky: posting as")
	return nil
}
