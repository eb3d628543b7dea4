// Package catalog composes announcement texts from the phish.net catalog.
// Every upstream payload goes through the cache.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hfbot/3rdparty/phishnet"
	"hfbot/core/cache"
	"hfbot/core/ledger"
	gormutil "hfbot/util/gorm"
)

// Cache buckets.
const (
	SongsBucket      = "songs"
	IndexBucket      = "index"
	SetlistsBucket   = "setlists"
	AttendanceBucket = "attendance"
)

const indexKey = "songs"

// Upstream is implemented by *phishnet.Client.
type Upstream interface {
	Songs(ctx context.Context) ([]phishnet.Song, error)
	SongBySlug(ctx context.Context, slug string) (*phishnet.Song, error)
	SetlistsBySlug(ctx context.Context, slug string) ([]phishnet.Performance, error)
	AttendanceByUsername(ctx context.Context, username string) ([]phishnet.Attendance, error)
}

// TTL configures the freshness of each bucket.
type TTL struct {
	Songs      time.Duration `yaml:"songs"`
	Index      time.Duration `yaml:"index"`
	Setlists   time.Duration `yaml:"setlists"`
	Attendance time.Duration `yaml:"attendance"`
}

var DefaultTTL = TTL{
	Songs:      999979200 * time.Second,
	Index:      24 * time.Hour,
	Setlists:   22 * time.Hour,
	Attendance: 4 * time.Hour,
}

// Catalog implements notify.Composer.
type Catalog struct {
	Cache    *cache.Cache
	Upstream Upstream
	Clock    clock.Clock
	TTL      TTL
	// Artist is the band whose performances are counted.
	Artist string
	// Offset is the period offset used to recognize today's show in attendance records.
	Offset time.Duration
}

func (c *Catalog) Compose(ctx context.Context, title, username string) (string, error) {
	slug := c.Resolve(ctx, title)
	song, err := c.Song(ctx, slug)
	if err != nil {
		return "", err
	}

	performances, err := c.Performances(ctx, slug)
	if err != nil {
		return "", err
	}

	text := describeSong(song, performances, c.Artist)
	if username == "" {
		return text, nil
	}

	attendance, err := c.Attendance(ctx, username)
	if err != nil {
		return "", err
	}

	today := ledger.Period(c.Clock.Now(), c.Offset)
	return text + " " + describeHistory(seenAt(performances, attendance, today)), nil
}

// Resolve returns the slug for a title as it appears on the live setlist.
// If the song index is unavailable the slug is derived from the title.
func (c *Catalog) Resolve(ctx context.Context, title string) string {
	index, err := c.Index(ctx, c.TTL.Index)
	if err != nil {
		logrus.WithContext(ctx).WithField("title", title).Warnf("song index unavailable: %v", err)
		return Slugify(title)
	}

	return index.Resolve(title)
}

func (c *Catalog) Index(ctx context.Context, ttl time.Duration) (Index, error) {
	value, err := c.Cache.GetOrRefresh(ctx, IndexBucket, indexKey, ttl, c.fetchIndex)
	if err != nil {
		return nil, err
	}

	index := make(Index)
	if err := value.Unmarshal(&index); err != nil {
		return nil, errors.Wrap(err, "decode song index")
	}

	return index, nil
}

func (c *Catalog) Song(ctx context.Context, slug string) (*phishnet.Song, error) {
	return c.song(ctx, slug, c.TTL.Songs)
}

func (c *Catalog) song(ctx context.Context, slug string, ttl time.Duration) (*phishnet.Song, error) {
	value, err := c.Cache.GetOrRefresh(ctx, SongsBucket, slug, ttl, c.fetchSong)
	if err != nil {
		return nil, err
	}

	song := new(phishnet.Song)
	if err := value.Unmarshal(song); err != nil {
		return nil, errors.Wrapf(err, "decode song %s", slug)
	}

	return song, nil
}

// Performances returns the shows of Artist where the song was played, oldest first.
func (c *Catalog) Performances(ctx context.Context, slug string) ([]phishnet.Performance, error) {
	value, err := c.Cache.GetOrRefresh(ctx, SetlistsBucket, slug, c.TTL.Setlists, c.fetchSetlists)
	if err != nil {
		return nil, err
	}

	all := make([]phishnet.Performance, 0)
	if err := value.Unmarshal(&all); err != nil {
		return nil, errors.Wrapf(err, "decode setlists %s", slug)
	}

	performances := make([]phishnet.Performance, 0, len(all))
	for _, performance := range all {
		if performance.ArtistName == c.Artist {
			performances = append(performances, performance)
		}
	}

	sort.SliceStable(performances, func(i, j int) bool {
		return performances[i].ShowDate < performances[j].ShowDate
	})

	return performances, nil
}

// Attendance returns the shows of Artist attended by the user, oldest first.
func (c *Catalog) Attendance(ctx context.Context, username string) ([]phishnet.Attendance, error) {
	value, err := c.Cache.GetOrRefresh(ctx, AttendanceBucket, username, c.TTL.Attendance, c.fetchAttendance)
	if err != nil {
		return nil, err
	}

	all := make([]phishnet.Attendance, 0)
	if err := value.Unmarshal(&all); err != nil {
		return nil, errors.Wrapf(err, "decode attendance %s", username)
	}

	attendance := make([]phishnet.Attendance, 0, len(all))
	for _, show := range all {
		if show.ArtistName == c.Artist {
			attendance = append(attendance, show)
		}
	}

	sort.SliceStable(attendance, func(i, j int) bool {
		return attendance[i].ShowDate < attendance[j].ShowDate
	})

	return attendance, nil
}

func (c *Catalog) fetchIndex(ctx context.Context, _ string) (gormutil.Jsonb, error) {
	songs, err := c.Upstream.Songs(ctx)
	if err != nil {
		return nil, upstreamError(err)
	}

	index := make(Index, 2*len(songs))
	for _, song := range songs {
		index[song.Song] = song.Slug
	}

	for _, song := range songs {
		if song.Abbr != "" {
			index[song.Abbr] = song.Slug
		}
	}

	return gormutil.ToJsonb(index)
}

func (c *Catalog) fetchSong(ctx context.Context, slug string) (gormutil.Jsonb, error) {
	song, err := c.Upstream.SongBySlug(ctx, slug)
	if err != nil {
		return nil, upstreamError(err)
	}

	return gormutil.ToJsonb(song)
}

func (c *Catalog) fetchSetlists(ctx context.Context, slug string) (gormutil.Jsonb, error) {
	performances, err := c.Upstream.SetlistsBySlug(ctx, slug)
	if err != nil {
		return nil, upstreamError(err)
	}

	return gormutil.ToJsonb(performances)
}

func (c *Catalog) fetchAttendance(ctx context.Context, username string) (gormutil.Jsonb, error) {
	attendance, err := c.Upstream.AttendanceByUsername(ctx, username)
	if err != nil {
		return nil, upstreamError(err)
	}

	return gormutil.ToJsonb(attendance)
}

func upstreamError(err error) error {
	if errors.Is(err, phishnet.ErrNotFound) {
		return cache.NotFoundError(err)
	}

	return err
}
