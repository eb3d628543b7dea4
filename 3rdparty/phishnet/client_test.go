package phishnet_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfbot/3rdparty/phishnet"
)

func newServer(t *testing.T, responses map[string]string) *phishnet.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte(body))
	}))

	t.Cleanup(server.Close)
	client := phishnet.NewClient(server.Client(), "secret")
	client.BaseURL = server.URL + "/v5"
	return client
}

func TestClient_SongBySlug(t *testing.T) {
	ctx := context.Background()
	client := newServer(t, map[string]string{
		"/v5/songs/slug/tweezer.json": `{"error":false,"error_message":"","data":[
			{"songid":"627","song":"Tweezer","slug":"tweezer","abbr":"","artist":"Phish",
			 "debut":"1990-12-28","last_played":"2023-04-21","times_played":"419","gap":12}]}`,
		"/v5/songs/slug/fuego.json": `{"error":false,"error_message":"","data":[]}`,
	})

	song, err := client.SongBySlug(ctx, "tweezer")
	require.Nil(t, err)
	assert.Equal(t, phishnet.Song{
		ID:          627,
		Song:        "Tweezer",
		Slug:        "tweezer",
		Artist:      "Phish",
		Debut:       "1990-12-28",
		LastPlayed:  "2023-04-21",
		TimesPlayed: 419,
		Gap:         12,
	}, *song)

	_, err = client.SongBySlug(ctx, "fuego")
	assert.True(t, errors.Is(err, phishnet.ErrNotFound))
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	client := newServer(t, map[string]string{
		"/v5/songs.json": `{"error":true,"error_message":"invalid method","data":null}`,
	})

	_, err := client.Songs(ctx)
	var apiErr *phishnet.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid method", apiErr.Message)

	_, err = client.SetlistsBySlug(ctx, "nothing")
	assert.True(t, errors.Is(err, phishnet.ErrNotFound))

	client.APIKey = "wrong"
	_, err = client.AttendanceByUsername(ctx, "alice")
	assert.NotNil(t, err)
	assert.False(t, errors.Is(err, phishnet.ErrNotFound))
}

func TestDecodeSongs_SkipsInvalid(t *testing.T) {
	songs, err := phishnet.DecodeSongs([]byte(`[{"song":"Ghost","slug":"ghost","gap":""},{"song":"","slug":"x"}]`))
	require.Nil(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Ghost", songs[0].Song)
	assert.Equal(t, phishnet.Int(0), songs[0].Gap)
}

func TestClient_Attendance(t *testing.T) {
	ctx := context.Background()
	client := newServer(t, map[string]string{
		"/v5/attendance/username/alice.json": `{"error":false,"data":[
			{"showid":1,"showdate":"2019-12-31","artist_name":"Phish","venue":"Madison Square Garden","city":"New York","state":"NY"}]}`,
	})

	attendance, err := client.AttendanceByUsername(ctx, "alice")
	require.Nil(t, err)
	require.Len(t, attendance, 1)
	assert.Equal(t, "Madison Square Garden", attendance[0].Venue)
	assert.Equal(t, phishnet.Int(1), attendance[0].ShowID)
}
