package poll

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hfbot/core/ledger"
	"hfbot/core/notify"
	"hfbot/metrics"
)

// DefaultSettle gives the author time to delete or edit a post before it is announced.
const DefaultSettle = 10 * time.Second

// Event is a post creation pushed by the event source.
type Event struct {
	ID     string
	Author string
	Text   string
}

type EventSource interface {
	// Subscribe calls handle for every event in order until ctx is cancelled
	// or the subscription fails.
	Subscribe(ctx context.Context, handle func(ctx context.Context, event Event)) error
}

// Post is the current state of a post.
type Post struct {
	Text  string
	Reply bool
	Embed bool
	// Ref is the destination-specific reference used to reply to the post.
	Ref string
}

type PostChecker interface {
	// CheckPost returns an error if the post no longer exists.
	CheckPost(ctx context.Context, author, id string) (*Post, error)
}

var datePrefix = regexp.MustCompile(`^\d+/\d+/\d+`)

// ExtractTitle returns the song title announced by a post.
// Posts starting with a date are informational and yield no title.
// For "Set 1: > Tweezer" the title is the text between the first and the second colon
// with leading quote markers removed.
func ExtractTitle(text string) (string, bool) {
	if datePrefix.MatchString(text) {
		return "", false
	}

	title := text
	if strings.Contains(text, ":") {
		title = strings.Split(text, ":")[1]
	}

	title = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(title), "> "))
	return title, title != ""
}

// Stream announces songs posted by a watched account.
type Stream struct {
	Clock    clock.Clock
	Events   EventSource
	Posts    PostChecker
	Notifier Notifier
	Settle   time.Duration
	// ReplyDestination is the name of the destination on which announcements
	// reply to the source post.
	ReplyDestination string
	Metrics          metrics.Registry

	journal journal
}

func NewStream(clock clock.Clock, events EventSource, posts PostChecker, ledgers ledger.Store, notifier Notifier, offset time.Duration) *Stream {
	return &Stream{
		Clock:    clock,
		Events:   events,
		Posts:    posts,
		Notifier: notifier,
		Settle:   DefaultSettle,
		journal:  journal{store: ledgers, offset: offset},
	}
}

// Run consumes events until ctx is cancelled or the subscription fails.
func (s *Stream) Run(ctx context.Context) error {
	err := s.Events.Subscribe(ctx, func(ctx context.Context, event Event) {
		if err := s.Handle(ctx, event); err != nil {
			logrus.WithContext(ctx).WithField("event", event.ID).Warnf("handle event: %v", err)
		}
	})

	if err != nil && ctx.Err() == nil {
		return &UpstreamError{Source: "events", Err: err}
	}

	return ctx.Err()
}

// Handle processes a single event. Events which do not announce a song are skipped silently.
func (s *Stream) Handle(ctx context.Context, event Event) error {
	log := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"cycle":  newCycleID(),
		"event":  event.ID,
		"author": event.Author,
	})

	registry := metrics.OrDummy(s.Metrics)
	log.Debugf("received %q", event.Text)
	if err := sleep(ctx, s.Clock, s.Settle); err != nil {
		return err
	}

	post, err := s.Posts.CheckPost(ctx, event.Author, event.ID)
	if err != nil {
		registry.Counter("events", metrics.Labels{"result": "gone"}).Inc()
		log.Infof("post unavailable, maybe deleted: %v", err)
		return nil
	}

	if post.Reply || post.Embed {
		registry.Counter("events", metrics.Labels{"result": "skipped"}).Inc()
		log.Debugf("skipping reply or embedding post")
		return nil
	}

	title, ok := ExtractTitle(post.Text)
	if !ok {
		registry.Counter("events", metrics.Labels{"result": "skipped"}).Inc()
		log.Debugf("no title in %q", post.Text)
		return nil
	}

	current, _, err := s.journal.sync(s.Clock.Now())
	if err != nil {
		return errors.Wrap(err, "sync ledger")
	}

	item := notify.Item{Title: title}
	if s.ReplyDestination != "" && post.Ref != "" {
		item.ReplyTo = map[string]string{s.ReplyDestination: post.Ref}
	}

	registry.Counter("events", metrics.Labels{"result": "announced"}).Inc()
	if _, err := s.Notifier.Notify(context.WithoutCancel(ctx), current, item); err != nil {
		s.journal.dirty = true
		return errors.Wrapf(err, "notify %s", title)
	}

	registry.Counter("songs", nil).Inc()
	return nil
}
