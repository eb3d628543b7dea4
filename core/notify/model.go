// Package notify fans a newly observed song out to broadcast channels and subscribers.
package notify

import (
	"context"
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// Message is a single outgoing notification.
type Message struct {
	Text string
	// Recipient is the address on private destinations, empty for broadcasts.
	Recipient string
	// QuoteRef is the ref this destination returned for the first announcement
	// of a repeated song.
	QuoteRef string
	// ReplyRef is the destination-specific ref of a post to reply to.
	ReplyRef string
}

// Destination is a single outbound channel.
type Destination interface {
	Name() string
	// Dispatch sends the message and returns a reference to the sent post
	// (may be empty if the channel has none).
	Dispatch(ctx context.Context, message *Message) (string, error)
}

// Composer writes the enrichment text for a song.
// Username is empty for the broadcast text.
type Composer interface {
	Compose(ctx context.Context, title, username string) (string, error)
}

// Subscriber receives personal notifications on the private destination.
// Username is the catalog account used for personal history.
type Subscriber struct {
	ID       string      `yaml:"id"`
	Address  string      `yaml:"address"`
	Username null.String `yaml:"username"`
}

// Item is a song to announce.
type Item struct {
	Title string
	// ReplyTo maps destination names to refs of posts which the announcement should reply to.
	ReplyTo map[string]string
	// Defer allows Notify to give up without sending anything when the catalog is
	// temporarily unavailable, so that the caller may retry later.
	Defer bool
}

type DispatchError struct {
	Destination string
	Recipient   string
	Err         error
}

func (e DispatchError) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("dispatch to %s (%s): %v", e.Destination, e.Recipient, e.Err)
	}

	return fmt.Sprintf("dispatch to %s: %v", e.Destination, e.Err)
}

func (e DispatchError) Unwrap() error { return e.Err }

// Report describes the outcome of a single Notify call.
type Report struct {
	Title  string
	Repeat bool
	Text   string
	Sent   int
	Errors []DispatchError
	Record map[string]string
}

func (r *Report) fail(destination, recipient string, err error) {
	r.Errors = append(r.Errors, DispatchError{
		Destination: destination,
		Recipient:   recipient,
		Err:         err,
	})
}
