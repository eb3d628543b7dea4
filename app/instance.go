package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"hfbot/3rdparty/bluesky"
	"hfbot/3rdparty/jetstream"
	"hfbot/3rdparty/phishnet"
	"hfbot/core/cache"
	"hfbot/core/catalog"
	"hfbot/core/ledger"
	"hfbot/core/notify"
	"hfbot/core/poll"
	"hfbot/ext/channels"
	"hfbot/ext/sources"
	"hfbot/metrics"
	gormutil "hfbot/util/gorm"
)

// Instance wires components from the configuration.
// Getters create each component once.
type Instance struct {
	Config     *Config
	Clock      clock.Clock
	HttpClient *http.Client

	db        *gorm.DB
	metrics   *metrics.Prometheus
	catalog   *catalog.Catalog
	bluesky   *bluesky.Client
	broadcast []notify.Destination
	private   notify.Destination
}

func NewInstance(config *Config, clock clock.Clock) *Instance {
	return &Instance{
		Config:     config,
		Clock:      clock,
		HttpClient: &http.Client{Timeout: time.Minute},
		metrics:    metrics.NewPrometheus("hfbot"),
	}
}

func (app *Instance) GetDatabase() (*gorm.DB, error) {
	if app.db != nil {
		return app.db, nil
	}

	db, err := gormutil.Open(app.Config.Database.Driver, app.Config.Database.DSN)
	if err != nil {
		return nil, err
	}

	app.db = db
	return db, nil
}

func (app *Instance) GetMetricsRegistry() metrics.Registry {
	return app.metrics
}

// ServeMetrics exposes metrics in the background if an address is configured.
func (app *Instance) ServeMetrics(ctx context.Context) {
	address := app.Config.Prometheus.Address
	if address == "" {
		return
	}

	go func() {
		if err := app.metrics.Serve(ctx, address); err != nil {
			logrus.Errorf("serve metrics: %v", err)
		}
	}()
}

func (app *Instance) GetCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if app.catalog != nil {
		return app.catalog, nil
	}

	config := app.Config.Catalog
	if config.APIKey == "" {
		return nil, errors.New("catalog.apikey is not configured")
	}

	db, err := app.GetDatabase()
	if err != nil {
		return nil, errors.Wrap(err, "get database")
	}

	store := (*cache.SQLStore)(db)
	if err := store.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "init cache store")
	}

	upstream := phishnet.NewClient(app.HttpClient, config.APIKey)
	if config.URL != "" {
		upstream.BaseURL = config.URL
	}

	app.catalog = &catalog.Catalog{
		Cache:    cache.New(store, app.Clock, app.metrics.WithPrefix("cache")),
		Upstream: upstream,
		Clock:    app.Clock,
		TTL:      config.TTL,
		Artist:   config.Artist,
		Offset:   app.Config.Ledger.Offset,
	}

	return app.catalog, nil
}

func (app *Instance) GetBluesky() *bluesky.Client {
	if app.bluesky == nil {
		app.bluesky = bluesky.NewClient(app.HttpClient, app.Config.Bluesky.Config)
		app.bluesky.Clock = app.Clock
	}

	return app.bluesky
}

// GetDestinations creates the enabled destinations and verifies their credentials.
func (app *Instance) GetDestinations(ctx context.Context) ([]notify.Destination, notify.Destination, error) {
	if app.broadcast != nil {
		return app.broadcast, app.private, nil
	}

	config := app.Config
	broadcast := make([]notify.Destination, 0)
	if config.Mastodon.Enabled {
		broadcast = append(broadcast, channels.NewMastodon(config.Mastodon.MastodonConfig))
	}

	if config.Bluesky.Enabled {
		broadcast = append(broadcast, &channels.Bluesky{Client: app.GetBluesky()})
	}

	if config.Console.Enabled {
		broadcast = append(broadcast, &channels.Console{Writer: os.Stdout, Width: config.Console.Width})
	}

	var private notify.Destination
	if config.Signal.Enabled {
		private = channels.NewSignal(config.Signal.SignalConfig)
		if interval := config.Signal.Interval; interval > 0 {
			private = channels.Throttled{
				Destination: private,
				Limiter:     rate.NewLimiter(rate.Every(interval), 1),
			}
		}
	}

	if len(broadcast) == 0 && private == nil {
		return nil, nil, errors.New("no destinations enabled")
	}

	if err := channels.Verify(ctx, append(broadcast, private)...); err != nil {
		return nil, nil, err
	}

	for _, destination := range broadcast {
		logrus.WithField("destination", destination.Name()).Infof("broadcast enabled")
	}

	app.broadcast, app.private = broadcast, private
	return broadcast, private, nil
}

func (app *Instance) GetLedgers() ledger.Store {
	return ledger.FileStore{Dir: app.Config.Ledger.Dir}
}

func (app *Instance) GetFanout(ctx context.Context) (*notify.Fanout, error) {
	composer, err := app.GetCatalog(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get catalog")
	}

	broadcast, private, err := app.GetDestinations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get destinations")
	}

	subscribers := app.Config.Subscribers
	if private == nil && len(subscribers) > 0 {
		logrus.Warnf("%d subscribers configured, but no private destination is enabled", len(subscribers))
	}

	return &notify.Fanout{
		Composer:    composer,
		Broadcast:   broadcast,
		Private:     private,
		Subscribers: subscribers,
		Ledgers:     app.GetLedgers(),
		Concurrency: app.Config.Fanout.Concurrency,
		Metrics:     app.metrics.WithPrefix("fanout"),
	}, nil
}

// RunPoll polls the live page until ctx is cancelled.
func (app *Instance) RunPoll(ctx context.Context) error {
	fanout, err := app.GetFanout(ctx)
	if err != nil {
		return err
	}

	config := app.Config.Poll
	source := sources.NewLivePage(app.HttpClient, config.URL)
	loop := poll.NewLoop(app.Clock, source, app.GetLedgers(), fanout, app.Config.Ledger.Offset)
	loop.Policy = config.Policy
	loop.Detector.Placeholders = config.Placeholders
	loop.Detector.TrustLength = config.TrustLength
	loop.MaxDeferrals = config.MaxDeferrals
	loop.Metrics = app.metrics.WithPrefix("poll")

	app.ServeMetrics(ctx)
	logrus.WithField("url", source.URL).Infof("polling")
	return loop.Run(ctx)
}

// RunStream follows the configured account until ctx is cancelled.
func (app *Instance) RunStream(ctx context.Context) error {
	config := app.Config.Stream
	if config.DID == "" {
		return errors.New("stream.did is not configured")
	}

	fanout, err := app.GetFanout(ctx)
	if err != nil {
		return err
	}

	client := app.GetBluesky()
	profile, err := client.GetProfile(ctx, config.DID)
	if err != nil {
		return errors.Wrapf(err, "look up account %s", config.DID)
	}

	events := jetstream.NewClient(bluesky.PostCollection, config.DID)
	if config.Endpoint != "" {
		events.Endpoint = config.Endpoint
	}

	events.Clock = app.Clock
	stream := poll.NewStream(app.Clock, sources.Jetstream{Client: events}, sources.BlueskyPosts{Client: client},
		app.GetLedgers(), fanout, app.Config.Ledger.Offset)
	stream.Settle = config.Settle
	stream.Metrics = app.metrics.WithPrefix("stream")
	if app.Config.Bluesky.Enabled {
		stream.ReplyDestination = (&channels.Bluesky{}).Name()
	}

	app.ServeMetrics(ctx)
	logrus.WithField("handle", profile.Handle).Infof("streaming posts")
	return stream.Run(ctx)
}

// Lookup returns the announcement text for a title.
func (app *Instance) Lookup(ctx context.Context, title, username string) (string, error) {
	composer, err := app.GetCatalog(ctx)
	if err != nil {
		return "", err
	}

	text, err := composer.Compose(ctx, title, username)
	if cache.IsNotFound(err) {
		return notify.FallbackText(title), nil
	}

	return text, err
}

func (app *Instance) Warm(ctx context.Context) (*catalog.WarmReport, error) {
	composer, err := app.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}

	config := app.Config.Catalog
	return composer.Warm(ctx, config.WarmTTL, config.WarmPace)
}

func (app *Instance) Close() error {
	if app.db != nil {
		return gormutil.Close(app.db)
	}

	return nil
}
