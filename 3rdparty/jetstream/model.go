package jetstream

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	KindCommit      = "commit"
	OperationCreate = "create"
)

type Commit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	CID        string          `json:"cid"`
	Record     json.RawMessage `json:"record"`
}

type Event struct {
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Kind   string  `json:"kind"`
	Commit *Commit `json:"commit"`
}

// PostText returns the text of a created post, if any.
func (e *Event) PostText() string {
	if e.Commit == nil || len(e.Commit.Record) == 0 {
		return ""
	}

	var record struct {
		Text string `json:"text"`
	}

	_ = json.Unmarshal(e.Commit.Record, &record)
	return record.Text
}

var errSkip = errors.New("skip")

// Decode parses a message and keeps only record creations in the collection.
// The event is returned along with validation errors so that its time can still be used as a cursor.
func Decode(data []byte, collection string) (*Event, error) {
	event := new(Event)
	if err := json.Unmarshal(data, event); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}

	if event.Kind != KindCommit || event.Commit == nil ||
		event.Commit.Operation != OperationCreate ||
		event.Commit.Collection != collection {
		return event, errSkip
	}

	if event.DID == "" || event.Commit.RKey == "" {
		return event, errors.Errorf("invalid commit event: did %q, rkey %q", event.DID, event.Commit.RKey)
	}

	return event, nil
}
