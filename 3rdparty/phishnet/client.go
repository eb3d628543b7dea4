// Package phishnet is a client for the phish.net v5 API.
package phishnet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/httpf"
	"github.com/pkg/errors"
)

var BaseURL = "https://api.phish.net/v5"

var ErrNotFound = errors.New("not found")

// Error is returned when the API reports a failure in the response envelope.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "phish.net: " + e.Message
}

// response unwraps the data payload from the API envelope.
type response struct {
	data *json.RawMessage
}

func (r *response) DecodeFrom(body io.Reader) error {
	var env envelope
	if err := flu.JSON(&env).DecodeFrom(body); err != nil {
		return errors.Wrap(err, "decode envelope")
	}

	if env.Error {
		return &Error{Message: env.ErrorMessage}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		*r.data = json.RawMessage("[]")
		return nil
	}

	*r.data = env.Data
	return nil
}

func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return httpf.StatusCodeError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

type Client struct {
	HttpClient *http.Client
	APIKey     string
	BaseURL    string
}

func NewClient(httpClient *http.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		HttpClient: httpClient,
		APIKey:     apiKey,
		BaseURL:    BaseURL,
	}
}

// Data returns the raw data payload of a method, e.g. "songs/slug/tweezer".
func (c *Client) Data(ctx context.Context, method string) (json.RawMessage, error) {
	var data json.RawMessage
	if err := httpf.GET(strings.TrimRight(c.BaseURL, "/")+"/"+method+".json").
		Query("apikey", c.APIKey).
		Exchange(ctx, c.HttpClient).
		HandleFunc(checkStatus).
		DecodeBody(&response{data: &data}).
		Error(); err != nil {
		return nil, errors.Wrapf(err, "get %s", method)
	}

	return data, nil
}

func (c *Client) Songs(ctx context.Context) ([]Song, error) {
	data, err := c.Data(ctx, "songs")
	if err != nil {
		return nil, err
	}

	return DecodeSongs(data)
}

// SongBySlug returns ErrNotFound if there is no such song.
func (c *Client) SongBySlug(ctx context.Context, slug string) (*Song, error) {
	data, err := c.Data(ctx, "songs/slug/"+url.PathEscape(slug))
	if err != nil {
		return nil, err
	}

	songs, err := DecodeSongs(data)
	if err != nil {
		return nil, err
	}

	if len(songs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "song %s", slug)
	}

	return &songs[0], nil
}

func (c *Client) SetlistsBySlug(ctx context.Context, slug string) ([]Performance, error) {
	data, err := c.Data(ctx, "setlists/slug/"+url.PathEscape(slug))
	if err != nil {
		return nil, err
	}

	return DecodePerformances(data)
}

func (c *Client) AttendanceByUsername(ctx context.Context, username string) ([]Attendance, error) {
	data, err := c.Data(ctx, "attendance/username/"+url.PathEscape(username))
	if err != nil {
		return nil, err
	}

	return DecodeAttendance(data)
}
