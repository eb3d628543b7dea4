// Package bluesky is a minimal AT protocol client for posting to and reading from Bluesky.
package bluesky

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/httpf"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var Host = "https://bsky.social"

type Config struct {
	Host       string `yaml:"host,omitempty"`
	Identifier string `yaml:"identifier"`
	Password   string `yaml:"password"`
}

type Client struct {
	HttpClient *http.Client
	Clock      clock.Clock
	config     Config
	session    *Session
	mu         sync.RWMutex
}

func NewClient(httpClient *http.Client, config Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if config.Host == "" {
		config.Host = Host
	}

	return &Client{
		HttpClient: httpClient,
		Clock:      clock.WallClock,
		config:     config,
	}
}

// Login creates a new session.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]string{
		"identifier": c.config.Identifier,
		"password":   c.config.Password,
	}

	session := new(Session)
	if err := c.exchange(ctx, httpf.POST(c.xrpc("com.atproto.server.createSession"), flu.JSON(body)), session); err != nil {
		return errors.Wrap(err, "create session")
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	logrus.WithField("handle", session.Handle).Debugf("bluesky: logged in")
	return nil
}

func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}

	return c.session.DID
}

// CreatePost publishes a post, optionally replying to or quoting other posts.
func (c *Client) CreatePost(ctx context.Context, text string, reply *ReplyRef, quote *StrongRef) (*StrongRef, error) {
	post := Post{
		Type:      postType,
		Text:      text,
		CreatedAt: timestamp(c.Clock.Now()),
		Reply:     reply,
	}

	if quote != nil {
		post.Embed = &Embed{Type: embedType, Record: quote}
	}

	ref := new(StrongRef)
	err := c.authorized(ctx, func(session *Session) error {
		body := map[string]interface{}{
			"repo":       session.DID,
			"collection": PostCollection,
			"record":     post,
		}

		return c.exchange(ctx, httpf.POST(c.xrpc("com.atproto.repo.createRecord"), flu.JSON(body)).
			Auth(httpf.Bearer(session.AccessJwt)), ref)
	})

	if err != nil {
		return nil, errors.Wrap(err, "create record")
	}

	return ref, nil
}

// GetPost fetches a post by its author (DID or handle) and record key.
func (c *Client) GetPost(ctx context.Context, repo, rkey string) (*Record, error) {
	record := new(Record)
	if err := c.exchange(ctx, httpf.GET(c.xrpc("com.atproto.repo.getRecord")).
		Query("repo", repo).
		Query("collection", PostCollection).
		Query("rkey", rkey), record); err != nil {
		return nil, errors.Wrap(err, "get record")
	}

	return record, nil
}

func (c *Client) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	profile := new(Profile)
	err := c.authorized(ctx, func(session *Session) error {
		return c.exchange(ctx, httpf.GET(c.xrpc("app.bsky.actor.getProfile")).
			Query("actor", actor).
			Auth(httpf.Bearer(session.AccessJwt)), profile)
	})

	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}

	return profile, nil
}

// authorized runs fn with the current session, logging in again once if the token expired.
func (c *Client) authorized(ctx context.Context, fn func(session *Session) error) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		if err := c.Login(ctx); err != nil {
			return err
		}

		return c.authorized(ctx, fn)
	}

	err := fn(session)
	var xrpcErr *Error
	if errors.As(err, &xrpcErr) && (xrpcErr.Code == "ExpiredToken" || xrpcErr.Code == "InvalidToken") {
		logrus.Debugf("bluesky: %s, logging in again", xrpcErr.Code)
		if err := c.Login(ctx); err != nil {
			return err
		}

		c.mu.RLock()
		session = c.session
		c.mu.RUnlock()
		return fn(session)
	}

	return err
}

func (c *Client) xrpc(nsid string) string {
	return strings.TrimRight(c.config.Host, "/") + "/xrpc/" + nsid
}

func (c *Client) exchange(ctx context.Context, req *httpf.RequestBuilder, out interface{}) error {
	return req.Exchange(ctx, c.HttpClient).
		HandleFunc(checkResponse).
		DecodeBody(flu.JSON(out)).
		Error()
}

// checkResponse converts a failed XRPC response to *Error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	xrpcErr := &Error{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return errors.Wrap(err, "read error response")
	}

	if err := flu.DecodeFrom(flu.Bytes(data), flu.JSON(xrpcErr)); err != nil {
		xrpcErr.Message = string(data)
	}

	return xrpcErr
}
