// Package channels implements notification destinations.
package channels

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"hfbot/core/notify"
)

// Verifier is implemented by destinations which can check their credentials at startup.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Verify checks every destination which supports it.
func Verify(ctx context.Context, destinations ...notify.Destination) error {
	for _, destination := range destinations {
		if destination == nil {
			continue
		}

		if verifier, ok := destination.(Verifier); ok {
			if err := verifier.Verify(ctx); err != nil {
				return errors.Wrapf(err, "verify %s", destination.Name())
			}
		}
	}

	return nil
}

// Throttled limits the dispatch rate of a destination.
type Throttled struct {
	notify.Destination
	Limiter *rate.Limiter
}

func (t Throttled) Dispatch(ctx context.Context, message *notify.Message) (string, error) {
	if err := t.Limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "throttle")
	}

	return t.Destination.Dispatch(ctx, message)
}

func (t Throttled) Verify(ctx context.Context) error {
	if verifier, ok := t.Destination.(Verifier); ok {
		return verifier.Verify(ctx)
	}

	return nil
}
