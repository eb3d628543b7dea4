package notify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hfbot/core/cache"
	"hfbot/core/ledger"
	"hfbot/metrics"
)

const defaultConcurrency = 4

func RepeatText(title string) string {
	return title + " again!"
}

func FallbackText(title string) string {
	return fmt.Sprintf(`I think this one's called "%s", but I don't know anything about it. Maybe a debut?`, title)
}

// Fanout announces songs.
// It is not safe for concurrent use: the caller owns the ledger.
type Fanout struct {
	Composer    Composer
	Broadcast   []Destination
	Private     Destination
	Subscribers []Subscriber
	Ledgers     ledger.Store
	Concurrency int
	Metrics     metrics.Registry
}

// Notify announces item on every destination, appends it to l and persists l.
// Dispatch failures are collected in the report and never abort the other destinations.
// The returned error is non-nil only when the ledger could not be saved
// or when the item was deferred (see Item.Defer).
func (f *Fanout) Notify(ctx context.Context, l *ledger.Ledger, item Item) (*Report, error) {
	log := logrus.WithContext(ctx).WithFields(logrus.Fields{"title": item.Title, "period": l.Period})
	registry := metrics.OrDummy(f.Metrics)

	prior, repeat := l.Find(item.Title)
	report := &Report{
		Title:  item.Title,
		Repeat: repeat,
		Record: make(map[string]string),
	}

	if repeat {
		report.Text = RepeatText(item.Title)
	} else {
		text, err := f.Composer.Compose(ctx, item.Title, "")
		switch {
		case err == nil:
			report.Text = text
		case cache.IsTransient(err) && item.Defer:
			return nil, err
		default:
			log.Warnf("compose: %v", err)
			report.Text = FallbackText(item.Title)
		}
	}

	for _, destination := range f.Broadcast {
		name := destination.Name()
		message := &Message{
			Text:     report.Text,
			ReplyRef: item.ReplyTo[name],
		}

		if repeat {
			message.QuoteRef = prior.Refs[name]
		}

		ref, err := destination.Dispatch(ctx, message)
		if err != nil {
			log.WithField("destination", name).Warnf("dispatch: %v", err)
			registry.Counter("dispatch", metrics.Labels{"destination": name, "result": "error"}).Inc()
			report.fail(name, "", err)
			continue
		}

		registry.Counter("dispatch", metrics.Labels{"destination": name, "result": "ok"}).Inc()
		report.Sent++
		if ref != "" {
			report.Record[name] = ref
		}
	}

	if f.Private != nil && len(f.Subscribers) > 0 {
		texts := f.personalize(ctx, item.Title, repeat, report.Text)
		name := f.Private.Name()
		for i, subscriber := range f.Subscribers {
			message := &Message{Text: texts[i], Recipient: subscriber.Address}
			if _, err := f.Private.Dispatch(ctx, message); err != nil {
				log.WithFields(logrus.Fields{"destination": name, "subscriber": subscriber.ID}).
					Warnf("dispatch: %v", err)
				registry.Counter("dispatch", metrics.Labels{"destination": name, "result": "error"}).Inc()
				report.fail(name, subscriber.ID, err)
				continue
			}

			registry.Counter("dispatch", metrics.Labels{"destination": name, "result": "ok"}).Inc()
			report.Sent++
		}
	}

	record := ledger.ItemRecord{Title: item.Title}
	if len(report.Record) > 0 {
		record.Refs = report.Record
	}

	l.Append(record)
	if err := f.Ledgers.Save(l); err != nil {
		return report, errors.Wrap(err, "save ledger")
	}

	log.WithFields(logrus.Fields{
		"repeat": repeat,
		"sent":   report.Sent,
		"failed": len(report.Errors),
	}).Infof("announced")

	return report, nil
}

// personalize composes a text per subscriber, falling back to broadcast.
func (f *Fanout) personalize(ctx context.Context, title string, repeat bool, broadcast string) []string {
	texts := make([]string, len(f.Subscribers))
	if repeat {
		for i := range texts {
			texts[i] = broadcast
		}

		return texts
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, subscriber := range f.Subscribers {
		i, subscriber := i, subscriber
		group.Go(func() error {
			texts[i] = broadcast
			if !subscriber.Username.Valid {
				return nil
			}

			text, err := f.Composer.Compose(ctx, title, subscriber.Username.String)
			if err != nil {
				logrus.WithContext(ctx).
					WithFields(logrus.Fields{"title": title, "subscriber": subscriber.ID}).
					Debugf("personalize: %v", err)
				return nil
			}

			texts[i] = text
			return nil
		})
	}

	_ = group.Wait()
	return texts
}
