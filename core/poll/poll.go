// Package poll drives change detection: Loop polls a sequence source,
// Stream reacts to posts pushed by an event source.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/juju/clock"

	"hfbot/core/ledger"
	"hfbot/core/notify"
)

// DefaultOffset keeps a show running past midnight in the period it started in.
const DefaultOffset = -6 * time.Hour

type SequenceSource interface {
	FetchSequence(ctx context.Context) ([]string, error)
}

type Notifier interface {
	Notify(ctx context.Context, l *ledger.Ledger, item notify.Item) (*notify.Report, error)
}

// UpstreamError is returned when the observed sequence or event could not be fetched.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// journal holds the ledger of the current period.
type journal struct {
	store   ledger.Store
	offset  time.Duration
	current *ledger.Ledger
	dirty   bool
}

// sync returns the ledger of the period containing now.
// rolled is true when the period changed (or on the first call).
// A previously failed save is retried before anything else.
func (j *journal) sync(now time.Time) (l *ledger.Ledger, rolled bool, err error) {
	period := ledger.Period(now, j.offset)
	if j.current == nil || j.current.Period != period {
		l, err := j.store.Load(period)
		if err != nil {
			return nil, false, err
		}

		j.current = l
		j.dirty = false
		rolled = true
	}

	if j.dirty {
		if err := j.store.Save(j.current); err != nil {
			return nil, rolled, err
		}

		j.dirty = false
	}

	return j.current, rolled, nil
}

func (j *journal) save() error {
	if err := j.store.Save(j.current); err != nil {
		j.dirty = true
		return err
	}

	j.dirty = false
	return nil
}

func newCycleID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}

	return id.String()
}

func sleep(ctx context.Context, clock clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
