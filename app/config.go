package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"hfbot/3rdparty/bluesky"
	"hfbot/core/catalog"
	"hfbot/core/detect"
	"hfbot/core/notify"
	"hfbot/core/poll"
	"hfbot/ext/channels"
)

// EnvironPrefix marks environment variables which override configuration keys,
// e.g. HFBOT_CATALOG_APIKEY sets catalog.apikey.
const EnvironPrefix = "HFBOT_"

// Keys are lowercase so that every key can be overridden from the environment.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Ledger struct {
		Dir    string        `yaml:"dir"`
		Offset time.Duration `yaml:"offset"`
	} `yaml:"ledger"`

	Poll struct {
		URL          string        `yaml:"url"`
		Policy       detect.Policy `yaml:"policy"`
		Placeholders []string      `yaml:"placeholders"`
		TrustLength  bool          `yaml:"trustlength"`
		MaxDeferrals int           `yaml:"maxdeferrals"`
	} `yaml:"poll"`

	Stream struct {
		Endpoint string        `yaml:"endpoint"`
		DID      string        `yaml:"did"`
		Settle   time.Duration `yaml:"settle"`
	} `yaml:"stream"`

	Catalog struct {
		URL      string        `yaml:"url"`
		APIKey   string        `yaml:"apikey"`
		Artist   string        `yaml:"artist"`
		TTL      catalog.TTL   `yaml:"ttl"`
		WarmTTL  time.Duration `yaml:"warmttl"`
		WarmPace time.Duration `yaml:"warmpace"`
	} `yaml:"catalog"`

	Fanout struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"fanout"`

	Mastodon struct {
		Enabled                 bool `yaml:"enabled"`
		channels.MastodonConfig `yaml:",inline"`
	} `yaml:"mastodon"`

	Bluesky struct {
		Enabled        bool `yaml:"enabled"`
		bluesky.Config `yaml:",inline"`
	} `yaml:"bluesky"`

	Signal struct {
		Enabled               bool `yaml:"enabled"`
		channels.SignalConfig `yaml:",inline"`
		// Interval is the minimum time between two messages.
		Interval time.Duration `yaml:"interval"`
	} `yaml:"signal"`

	Console struct {
		Enabled bool `yaml:"enabled"`
		Width   int  `yaml:"width"`
	} `yaml:"console"`

	Subscribers []notify.Subscriber `yaml:"subscribers"`

	Logging LoggingConfig `yaml:"logging"`

	Prometheus struct {
		Address string `yaml:"address"`
	} `yaml:"prometheus"`
}

func DefaultConfig() *Config {
	config := new(Config)
	config.Database.Driver = "sqlite"
	config.Database.DSN = "hfbot.db"
	config.Ledger.Dir = "setlists"
	config.Ledger.Offset = poll.DefaultOffset
	config.Poll.Policy = detect.DefaultPolicy
	config.Poll.Placeholders = []string{"Tell"}
	config.Poll.MaxDeferrals = poll.DefaultMaxDeferrals
	config.Stream.Settle = poll.DefaultSettle
	config.Catalog.Artist = "Phish"
	config.Catalog.TTL = catalog.DefaultTTL
	config.Catalog.WarmTTL = 2 * time.Hour
	config.Catalog.WarmPace = 2 * time.Second
	config.Fanout.Concurrency = 4
	config.Signal.Binary = "signal-cli"
	config.Console.Width = channels.DefaultWidth
	config.Logging.Level = "info"
	config.Logging.Format = "text"
	return config
}

// LoadConfig collects the configuration files and environment on top of DefaultConfig.
func LoadConfig(files ...string) (*Config, error) {
	data, err := CollectConfig(EnvironPrefix, files...)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	return config, nil
}

// CollectConfig merges YAML files (with ${VAR} expansion) in order,
// then applies environment overrides, and returns the result as YAML.
func CollectConfig(environPrefix string, files ...string) ([]byte, error) {
	global := make(map[string]interface{})
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}

		config := make(map[string]interface{})
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
			return nil, errors.Wrapf(err, "read expanded config %s", file)
		}

		if global, err = merge(global, config); err != nil {
			return nil, errors.Wrapf(err, "merge config %s", file)
		}
	}

	global, err := merge(global, environ(environPrefix))
	if err != nil {
		return nil, errors.Wrap(err, "merge environment")
	}

	data, err := yaml.Marshal(global)
	if err != nil {
		return nil, errors.Wrap(err, "encode global config")
	}

	return data, nil
}

// environ turns HFBOT_SECTION_KEY=value variables into {"section": {"key": value}}.
func environ(prefix string) map[string]interface{} {
	overrides := make(map[string]interface{})
	for _, variable := range os.Environ() {
		name, value, ok := strings.Cut(variable, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, prefix)), "_")
		if err := setPath(overrides, path, scalar(value)); err != nil {
			logrus.Warnf("ignoring %s: %v", name, err)
		}
	}

	return overrides
}

func setPath(root map[string]interface{}, path []string, value interface{}) error {
	for _, key := range path {
		if key == "" {
			return errors.New("empty key")
		}
	}

	node := root
	for _, key := range path[:len(path)-1] {
		child, ok := node[key].(map[string]interface{})
		if !ok {
			if _, set := node[key]; set {
				return errors.Errorf("%s is a value", key)
			}

			child = make(map[string]interface{})
			node[key] = child
		}

		node = child
	}

	key := path[len(path)-1]
	if _, ok := node[key].(map[string]interface{}); ok {
		return errors.Errorf("%s is a section", key)
	}

	node[key] = value
	return nil
}

// scalar keeps values like "+15550100" as strings since they would not survive a round trip.
func scalar(value string) interface{} {
	if v, err := strconv.ParseInt(value, 10, 64); err == nil && strconv.FormatInt(v, 10) == value {
		return v
	} else if v, err := strconv.ParseFloat(value, 64); err == nil && strconv.FormatFloat(v, 'f', -1, 64) == value {
		return v
	} else if v, err := strconv.ParseBool(value); err == nil {
		return v
	}

	return value
}

func merge(a, b map[string]interface{}) (map[string]interface{}, error) {
	for k, v := range b {
		if av, ok := a[k]; !ok {
			a[k] = v
			continue
		} else if mav, ok := av.(map[string]interface{}); ok {
			if mv, ok := v.(map[string]interface{}); ok {
				merged, err := merge(mav, mv)
				if err != nil {
					return nil, errors.Wrap(err, k)
				}

				a[k] = merged
				continue
			}
		} else if _, ok := v.(map[string]interface{}); !ok {
			a[k] = v
			continue
		}

		return nil, errors.Errorf("configuration keys %s must have the same type", k)
	}

	return a, nil
}
