package channels_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"hfbot/3rdparty/bluesky"
	"hfbot/core/notify"
	"hfbot/ext/channels"
)

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"This is", "Tweezer.", "A", "bust-out!"}, channels.Wrap("This is Tweezer. A  bust-out!", 8))
	assert.Equal(t, []string{"Supercalifragilistic", "x"}, channels.Wrap("Supercalifragilistic x", 5))
	assert.Empty(t, channels.Wrap("   ", 10))
}

func TestConsole(t *testing.T) {
	buf := new(bytes.Buffer)
	console := &channels.Console{Writer: buf, Width: 20}

	ref, err := console.Dispatch(context.Background(), &notify.Message{Text: "This is Harry Hood, last played 2023-04-21."})
	require.Nil(t, err)
	assert.Empty(t, ref)
	assert.Equal(t, "This is Harry Hood,\nlast played\n2023-04-21.\n---\n", buf.String())
}

func TestMastodon(t *testing.T) {
	ctx := context.Background()
	var statuses []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"The access token is invalid"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/statuses":
			_ = r.ParseForm()
			statuses = append(statuses, r.PostForm.Get("status"))
			_, _ = w.Write([]byte(`{"id":"109","content":"<p>Tweezer again!</p>"}`))
		case "/api/v1/accounts/verify_credentials":
			_, _ = w.Write([]byte(`{"id":"1","acct":"hfbot"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	defer server.Close()

	destination := channels.NewMastodon(channels.MastodonConfig{Server: server.URL, AccessToken: "token"})
	require.Nil(t, destination.Verify(ctx))
	ref, err := destination.Dispatch(ctx, &notify.Message{Text: "Tweezer again!", QuoteRef: "108"})
	require.Nil(t, err)
	assert.Equal(t, "109", ref)
	assert.Equal(t, []string{"Tweezer again!"}, statuses)

	unauthorized := channels.NewMastodon(channels.MastodonConfig{Server: server.URL, AccessToken: "wrong"})
	assert.NotNil(t, channels.Verify(ctx, unauthorized))
}

func TestBluesky(t *testing.T) {
	ctx := context.Background()
	var records []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			_, _ = w.Write([]byte(`{"accessJwt":"token","did":"did:plc:hfbot","handle":"hfbot"}`))
		case "/xrpc/com.atproto.repo.createRecord":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			records = append(records, body["record"].(map[string]interface{}))
			_, _ = w.Write([]byte(`{"uri":"at://did:plc:hfbot/app.bsky.feed.post/2","cid":"c2"}`))
		}
	}))

	defer server.Close()

	destination := &channels.Bluesky{Client: bluesky.NewClient(server.Client(), bluesky.Config{Host: server.URL})}
	require.Nil(t, destination.Verify(ctx))
	ref, err := destination.Dispatch(ctx, &notify.Message{
		Text:     "Tweezer again!",
		QuoteRef: "at://did:plc:hfbot/app.bsky.feed.post/1|c1",
		ReplyRef: "garbage",
	})

	require.Nil(t, err)
	assert.Equal(t, "at://did:plc:hfbot/app.bsky.feed.post/2|c2", ref)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0], "reply")
	embed := records[0]["embed"].(map[string]interface{})
	assert.Equal(t, "c1", embed["record"].(map[string]interface{})["cid"])
}

func TestBluesky_LegacyQuoteRef(t *testing.T) {
	ctx := context.Background()
	var records []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			_, _ = w.Write([]byte(`{"accessJwt":"token","did":"did:plc:hfbot","handle":"hfbot"}`))
		case "/xrpc/com.atproto.repo.createRecord":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			records = append(records, body["record"].(map[string]interface{}))
			_, _ = w.Write([]byte(`{"uri":"at://did:plc:hfbot/app.bsky.feed.post/3k4","cid":"bafy4"}`))
		}
	}))

	defer server.Close()

	destination := &channels.Bluesky{Client: bluesky.NewClient(server.Client(), bluesky.Config{Host: server.URL})}
	_, err := destination.Dispatch(ctx, &notify.Message{Text: "Tweezer again!", QuoteRef: "3k1|bafy1"})
	require.Nil(t, err)
	require.Len(t, records, 1)
	quote := records[0]["embed"].(map[string]interface{})["record"].(map[string]interface{})
	assert.Equal(t, "at://did:plc:hfbot/app.bsky.feed.post/3k1", quote["uri"])
	assert.Equal(t, "bafy1", quote["cid"])
}

func TestSignal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a posix shell")
	}

	ctx := context.Background()
	dir := t.TempDir()
	output := filepath.Join(dir, "args")
	script := filepath.Join(dir, "signal-cli")
	require.Nil(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf '%s\\n' \"$@\" > "+output+"\n"), 0o755))

	destination := channels.NewSignal(channels.SignalConfig{Binary: script, Sender: "+1000"})
	require.Nil(t, destination.Verify(ctx))
	_, err := destination.Dispatch(ctx, &notify.Message{Text: "Ghost again!", Recipient: "+2000"})
	require.Nil(t, err)

	args, err := os.ReadFile(output)
	require.Nil(t, err)
	assert.Equal(t, []string{"-a", "+1000", "--trust-new-identities=always", "send", "-m", "Ghost again!", "+2000"},
		strings.Split(strings.TrimSpace(string(args)), "\n"))

	_, err = destination.Dispatch(ctx, &notify.Message{Text: "no recipient"})
	assert.NotNil(t, err)

	failing := channels.NewSignal(channels.SignalConfig{Binary: filepath.Join(dir, "missing"), Sender: "+1000"})
	assert.NotNil(t, failing.Verify(ctx))
}

func TestThrottled(t *testing.T) {
	buf := new(bytes.Buffer)
	throttled := channels.Throttled{
		Destination: &channels.Console{Writer: buf},
		Limiter:     rate.NewLimiter(rate.Every(time.Hour), 1),
	}

	assert.Equal(t, "console", throttled.Name())
	_, err := throttled.Dispatch(context.Background(), &notify.Message{Text: "first"})
	require.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = throttled.Dispatch(ctx, &notify.Message{Text: "second"})
	assert.NotNil(t, err)
	assert.Equal(t, "first\n---\n", buf.String())
}

type failingVerifier struct{ notify.Destination }

func (failingVerifier) Verify(ctx context.Context) error { return errors.New("unauthorized") }

func TestVerify(t *testing.T) {
	console := &channels.Console{Writer: new(bytes.Buffer)}
	assert.Nil(t, channels.Verify(context.Background(), console, nil))
	err := channels.Verify(context.Background(), console, failingVerifier{console})
	assert.EqualError(t, err, "verify console: unauthorized")
}
