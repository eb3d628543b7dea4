package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sirupsen/logrus"

	"hfbot/core/cache"
	gormutil "hfbot/util/gorm"
)

type WarmReport struct {
	Songs     int
	Refreshed int
	Failed    int
}

// Warm refreshes the song index and every song record older than ttl.
// Upstream calls are spaced by at least pace.
func (c *Catalog) Warm(ctx context.Context, ttl, pace time.Duration) (*WarmReport, error) {
	index, err := c.Index(ctx, 0)
	if err != nil {
		return nil, err
	}

	slugs := make(map[string]bool, len(index))
	for _, slug := range index {
		slugs[slug] = true
	}

	ordered := make([]string, 0, len(slugs))
	for slug := range slugs {
		ordered = append(ordered, slug)
	}

	sort.Strings(ordered)

	var bucket *ratelimit.Bucket
	if pace > 0 {
		bucket = ratelimit.NewBucket(pace, 1)
	}

	report := &WarmReport{Songs: len(ordered)}
	fetch := func(ctx context.Context, slug string) (gormutil.Jsonb, error) {
		if bucket != nil {
			if err := c.wait(ctx, bucket.Take(1)); err != nil {
				return nil, err
			}
		}

		report.Refreshed++
		return c.fetchSong(ctx, slug)
	}

	log := logrus.WithContext(ctx)
	for i, slug := range ordered {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if _, err := c.Cache.GetOrRefresh(ctx, SongsBucket, slug, ttl, fetch); err != nil {
			report.Failed++
			if !cache.IsNotFound(err) {
				log.WithField("slug", slug).Warnf("warm: %v", err)
			}
		}

		if (i+1)%100 == 0 {
			log.Infof("warmed %d/%d songs", i+1, len(ordered))
		}
	}

	return report, nil
}

func (c *Catalog) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.Clock.After(d):
		return nil
	}
}
