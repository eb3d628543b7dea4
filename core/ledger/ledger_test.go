package ledger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfbot/core/ledger"
)

func TestPeriod(t *testing.T) {
	loc := time.FixedZone("EDT", -4*3600)
	offset := -6 * time.Hour

	assert.Equal(t, "2023-07-14", ledger.Period(time.Date(2023, 7, 14, 20, 30, 0, 0, loc), offset))
	// encore after midnight still belongs to the show day
	assert.Equal(t, "2023-07-14", ledger.Period(time.Date(2023, 7, 15, 0, 45, 0, 0, loc), offset))
	assert.Equal(t, "2023-07-15", ledger.Period(time.Date(2023, 7, 15, 6, 0, 0, 0, loc), offset))
}

func TestLedger_FindAndReplace(t *testing.T) {
	l := ledger.New("2023-07-14")
	l.Append(ledger.ItemRecord{Title: "Tweezer", Refs: map[string]string{"bluesky": "at://a|1"}})
	l.Append(ledger.ItemRecord{Title: "Harry Hood"})
	l.Append(ledger.ItemRecord{Title: "Tweezer", Refs: map[string]string{"bluesky": "at://b|2"}})

	assert.True(t, l.Contains("Tweezer"))
	assert.False(t, l.Contains("Bathtub Gin"))

	record, ok := l.Find("Tweezer")
	require.True(t, ok)
	assert.Equal(t, "at://a|1", record.Refs["bluesky"])

	l.Replace([]string{"Tweezer", "Chalk Dust Torture"})
	assert.Equal(t, []string{"Tweezer", "Chalk Dust Torture"}, l.Titles())
	assert.Equal(t, "at://a|1", l.Items[0].Refs["bluesky"])
	assert.Nil(t, l.Items[1].Refs)
}

func TestFileStore(t *testing.T) {
	store := ledger.FileStore{Dir: filepath.Join(t.TempDir(), "setlists")}

	l, err := store.Load("2023-07-14")
	require.Nil(t, err)
	assert.Equal(t, "2023-07-14", l.Period)
	assert.Equal(t, 0, l.Len())

	l.Append(ledger.ItemRecord{Title: "Tweezer", Refs: map[string]string{"mastodon": "110"}})
	l.Append(ledger.ItemRecord{Title: "Harry Hood"})
	require.Nil(t, store.Save(l))

	loaded, err := store.Load("2023-07-14")
	require.Nil(t, err)
	assert.Equal(t, l, loaded)

	other, err := store.Load("2023-07-15")
	require.Nil(t, err)
	assert.Equal(t, 0, other.Len())

	data, err := os.ReadFile(filepath.Join(store.Dir, "2023-07-14.json"))
	require.Nil(t, err)
	assert.Contains(t, string(data), "\n    {\n")
}

func TestFileStore_Legacy(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "2019-12-31.json"),
		[]byte(`["Runaway Jim", "Wilson", "Lawn Boy"]`), 0o644))

	l, err := ledger.FileStore{Dir: dir}.Load("2019-12-31")
	require.Nil(t, err)
	assert.Equal(t, []string{"Runaway Jim", "Wilson", "Lawn Boy"}, l.Titles())
}

func TestFileStore_LegacyPostRefs(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "2023-07-14.json"), []byte(`[
		{"title": "Tweezer", "rkey": "3k1", "cid": "bafy1"},
		{"title": "Ghost", "rkey": null, "cid": null},
		{"title": "Harry Hood", "rkey": "3k3", "cid": "bafy3", "refs": {"bluesky": "at://did:plc:hfbot/app.bsky.feed.post/3k3|bafy3"}}
	]`), 0o644))

	l, err := ledger.FileStore{Dir: dir}.Load("2023-07-14")
	require.Nil(t, err)
	assert.Equal(t, []ledger.ItemRecord{
		{Title: "Tweezer", Refs: map[string]string{"bluesky": "3k1|bafy1"}},
		{Title: "Ghost"},
		{Title: "Harry Hood", Refs: map[string]string{"bluesky": "at://did:plc:hfbot/app.bsky.feed.post/3k3|bafy3"}},
	}, l.Items)
}

func TestFileStore_Malformed(t *testing.T) {
	for _, tc := range []struct {
		name  string
		data  string
		index int
	}{
		{"object without title", `[{"title": "Tweezer"}, {"refs": {"mastodon": "1"}}]`, 1},
		{"blank object title", `[{"title": " "}]`, 0},
		{"null", `["Tweezer", null]`, 1},
		{"empty title", `["Tweezer", "Ghost", ""]`, 2},
		{"blank title", `["  "]`, 0},
		{"number", `["Tweezer", 42]`, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.Nil(t, os.WriteFile(filepath.Join(dir, "2023-07-14.json"), []byte(tc.data), 0o644))

			_, err := ledger.FileStore{Dir: dir}.Load("2023-07-14")
			var storageErr *ledger.StorageError
			require.True(t, errors.As(err, &storageErr))
			assert.Equal(t, "decode", storageErr.Op)

			var parseErr *ledger.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tc.index, parseErr.Index)
		})
	}
}

func TestItemRecord_JSON(t *testing.T) {
	data, err := json.Marshal(ledger.ItemRecord{Title: "Fluffhead"})
	require.Nil(t, err)
	assert.JSONEq(t, `{"title": "Fluffhead"}`, string(data))
}
