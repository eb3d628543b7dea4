package bluesky

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	PostCollection = "app.bsky.feed.post"
	postType       = "app.bsky.feed.post"
	embedType      = "app.bsky.embed.record"
)

// StrongRef points to a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// String encodes the ref as "uri|cid" for storage in ledgers.
func (r StrongRef) String() string {
	return r.URI + "|" + r.CID
}

// RKey returns the record key (the last segment of the URI).
func (r StrongRef) RKey() string {
	return r.URI[strings.LastIndex(r.URI, "/")+1:]
}

func ParseRef(value string) (StrongRef, error) {
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "at://") || parts[1] == "" {
		return StrongRef{}, errors.Errorf("invalid ref: %q", value)
	}

	return StrongRef{URI: parts[0], CID: parts[1]}, nil
}

type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

type Embed struct {
	Type   string     `json:"$type"`
	Record *StrongRef `json:"record,omitempty"`
}

type Post struct {
	Type      string    `json:"$type,omitempty"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
}

// Record is a fetched post with its ref.
type Record struct {
	URI   string `json:"uri"`
	CID   string `json:"cid"`
	Value Post   `json:"value"`
}

func (r *Record) Ref() StrongRef {
	return StrongRef{URI: r.URI, CID: r.CID}
}

type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

// Error is an XRPC error response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("xrpc %d %s: %s", e.Status, e.Code, e.Message)
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
