// Package ledger keeps the per-period record of songs which were already announced.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PeriodLayout is the layout of period identifiers (and ledger file names).
const PeriodLayout = "2006-01-02"

// Period returns the identifier of the observation period containing now.
// The offset shifts the day boundary, e.g. -6h makes a show running past
// midnight stay in the same period.
func Period(now time.Time, offset time.Duration) string {
	return now.Add(offset).Format(PeriodLayout)
}

// ItemRecord is an announced song and the references returned by each destination.
type ItemRecord struct {
	Title string            `json:"title"`
	Refs  map[string]string `json:"refs,omitempty"`
}

// ParseError is returned when a persisted record is malformed.
type ParseError struct {
	Index int
	Data  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ledger record %d (%s): %v", e.Index, e.Data, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingTitle = errors.New("missing title")

// legacyDestination owns the post references of legacy records.
const legacyDestination = "bluesky"

// UnmarshalJSON also reads the legacy formats: a bare title,
// or an object with the record key and CID of the bluesky post.
// Legacy references are stored as "rkey|cid".
func (r *ItemRecord) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errMissingTitle
	}

	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		if strings.TrimSpace(title) == "" {
			return errMissingTitle
		}

		*r = ItemRecord{Title: title}
		return nil
	}

	var value struct {
		Title string            `json:"title"`
		Refs  map[string]string `json:"refs"`
		RKey  *string           `json:"rkey"`
		CID   *string           `json:"cid"`
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	if strings.TrimSpace(value.Title) == "" {
		return errMissingTitle
	}

	if value.RKey != nil && value.CID != nil && *value.RKey != "" && *value.CID != "" {
		if _, ok := value.Refs[legacyDestination]; !ok {
			if value.Refs == nil {
				value.Refs = make(map[string]string, 1)
			}

			value.Refs[legacyDestination] = *value.RKey + "|" + *value.CID
		}
	}

	*r = ItemRecord{Title: value.Title, Refs: value.Refs}
	return nil
}

type Ledger struct {
	Period string
	Items  []ItemRecord
}

func New(period string) *Ledger {
	return &Ledger{Period: period}
}

func (l *Ledger) Len() int {
	return len(l.Items)
}

func (l *Ledger) Titles() []string {
	titles := make([]string, len(l.Items))
	for i, item := range l.Items {
		titles[i] = item.Title
	}

	return titles
}

func (l *Ledger) Contains(title string) bool {
	_, ok := l.Find(title)
	return ok
}

// Find returns the first record with the title.
func (l *Ledger) Find(title string) (*ItemRecord, bool) {
	for i := range l.Items {
		if l.Items[i].Title == title {
			return &l.Items[i], true
		}
	}

	return nil, false
}

func (l *Ledger) Append(record ItemRecord) {
	l.Items = append(l.Items, record)
}

// Replace makes titles the known sequence.
// Records which keep their title at the same position keep their refs.
func (l *Ledger) Replace(titles []string) {
	items := make([]ItemRecord, len(titles))
	for i, title := range titles {
		items[i] = ItemRecord{Title: title}
		if i < len(l.Items) && l.Items[i].Title == title {
			items[i].Refs = l.Items[i].Refs
		}
	}

	l.Items = items
}

func (l *Ledger) MarshalJSON() ([]byte, error) {
	items := l.Items
	if items == nil {
		items = []ItemRecord{}
	}

	return json.Marshal(items)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	raw := make([]json.RawMessage, 0)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	items := make([]ItemRecord, len(raw))
	for i, data := range raw {
		if err := json.Unmarshal(data, &items[i]); err != nil {
			return &ParseError{Index: i, Data: string(data), Err: err}
		}
	}

	l.Items = items
	return nil
}
