package channels

import (
	"context"

	"github.com/mattn/go-mastodon"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hfbot/core/notify"
)

type MastodonConfig struct {
	Server      string `yaml:"server"`
	AccessToken string `yaml:"accesstoken"`
	Visibility  string `yaml:"visibility,omitempty"`
}

type Mastodon struct {
	Client     *mastodon.Client
	Visibility string
}

func NewMastodon(config MastodonConfig) *Mastodon {
	return &Mastodon{
		Client: mastodon.NewClient(&mastodon.Config{
			Server:      config.Server,
			AccessToken: config.AccessToken,
		}),
		Visibility: config.Visibility,
	}
}

func (m *Mastodon) Name() string { return "mastodon" }

// Dispatch posts a status. Replies and quotes are not carried over.
func (m *Mastodon) Dispatch(ctx context.Context, message *notify.Message) (string, error) {
	status, err := m.Client.PostStatus(ctx, &mastodon.Toot{
		Status:     message.Text,
		Visibility: m.Visibility,
	})

	if err != nil {
		return "", errors.Wrap(err, "post status")
	}

	return string(status.ID), nil
}

func (m *Mastodon) Verify(ctx context.Context) error {
	account, err := m.Client.GetAccountCurrentUser(ctx)
	if err != nil {
		return errors.Wrap(err, "get current account")
	}

	logrus.WithField("account", account.Acct).Infof("mastodon: authorized")
	return nil
}
