package poll

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hfbot/core/cache"
	"hfbot/core/detect"
	"hfbot/core/ledger"
	"hfbot/core/notify"
	"hfbot/metrics"
)

// DefaultMaxDeferrals is how many cycles a song may wait for the catalog
// before it is announced with the fallback text.
const DefaultMaxDeferrals = 3

// Loop periodically fetches the observed sequence and announces new songs.
// It is the only writer of the current period ledger.
type Loop struct {
	Clock        clock.Clock
	Source       SequenceSource
	Notifier     Notifier
	Detector     detect.Detector
	Policy       detect.Policy
	MaxDeferrals int
	Metrics      metrics.Registry

	journal   journal
	deferrals map[string]int
}

func NewLoop(clock clock.Clock, source SequenceSource, ledgers ledger.Store, notifier Notifier, offset time.Duration) *Loop {
	return &Loop{
		Clock:        clock,
		Source:       source,
		Notifier:     notifier,
		Policy:       detect.DefaultPolicy,
		MaxDeferrals: DefaultMaxDeferrals,
		journal:      journal{store: ledgers, offset: offset},
		deferrals:    make(map[string]int),
	}
}

// Run calls Tick until ctx is cancelled, sleeping for the returned delay in between.
func (l *Loop) Run(ctx context.Context) error {
	for {
		delay, err := l.Tick(ctx)
		if err != nil {
			logrus.WithContext(ctx).Warnf("poll cycle failed, retrying in %s: %v", delay, err)
		}

		if err := sleep(ctx, l.Clock, delay); err != nil {
			return err
		}
	}
}

// Tick performs a single observation cycle and returns the delay before the next one.
func (l *Loop) Tick(ctx context.Context) (time.Duration, error) {
	log := logrus.WithContext(ctx).WithField("cycle", newCycleID())
	registry := metrics.OrDummy(l.Metrics)

	current, rolled, err := l.journal.sync(l.Clock.Now())
	if err != nil {
		return l.Policy.Error, errors.Wrap(err, "sync ledger")
	}

	defer func() { registry.Gauge("known", nil).Set(float64(l.journal.current.Len())) }()

	if rolled {
		l.Detector.Reset()
		l.deferrals = make(map[string]int)
		log.Infof("observing period %s (%d known)", current.Period, current.Len())
	}

	log = log.WithField("period", current.Period)
	observed, err := l.Source.FetchSequence(ctx)
	if err != nil {
		registry.Counter("cycles", metrics.Labels{"class": "error"}).Inc()
		return l.Policy.Error, &UpstreamError{Source: "sequence", Err: err}
	}

	delta := l.Detector.Detect(current.Titles(), observed)
	registry.Counter("cycles", metrics.Labels{"class": delta.Class.String()}).Inc()
	delay := l.Policy.Delay(delta.Class)
	switch delta.Class {
	case detect.NotStarted:
		log.Debugf("not started, observed %q", observed)
	case detect.Unchanged:
		log.Debugf("no new songs")
	case detect.Shrunk, detect.Diverged:
		log.Warnf("%s: known %q, observed %q, replacing", delta.Class, current.Titles(), observed)
		current.Replace(observed)
		if err := l.journal.save(); err != nil {
			return l.Policy.Error, errors.Wrap(err, "save replaced ledger")
		}
	case detect.Grown:
		return l.announce(ctx, log, delta.New, delay)
	}

	return delay, nil
}

func (l *Loop) announce(ctx context.Context, log *logrus.Entry, titles []string, delay time.Duration) (time.Duration, error) {
	registry := metrics.OrDummy(l.Metrics)
	for _, title := range titles {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		item := notify.Item{
			Title: title,
			Defer: l.deferrals[title] < l.MaxDeferrals,
		}

		// An announcement which has started is allowed to complete.
		_, err := l.Notifier.Notify(context.WithoutCancel(ctx), l.journal.current, item)
		switch {
		case err == nil:
			delete(l.deferrals, title)
			registry.Counter("songs", nil).Inc()
		case item.Defer && cache.IsTransient(err):
			l.deferrals[title]++
			log.WithField("title", title).
				Warnf("catalog unavailable, deferring announcement (%d/%d): %v", l.deferrals[title], l.MaxDeferrals, err)
			return l.Policy.Anomaly, nil
		default:
			l.journal.dirty = true
			return l.Policy.Error, errors.Wrapf(err, "notify %s", title)
		}
	}

	return delay, nil
}
