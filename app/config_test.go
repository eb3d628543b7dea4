package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"hfbot/app"
	"hfbot/core/detect"
)

func writeFile(t *testing.T, name, data string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	base := writeFile(t, "base.yml", `
database:
  driver: postgres
  dsn: postgresql://hfbot@localhost/hfbot
poll:
  policy:
    grown: 90s
catalog:
  apikey: ${TEST_HFBOT_APIKEY}
  ttl:
    attendance: 1h
bluesky:
  enabled: true
  identifier: hfbot.bsky.social
subscribers:
  - id: alice
    address: "+15550100"
    username: alice
  - id: bob
    address: "+15550101"
`)

	override := writeFile(t, "override.yml", `
database:
  dsn: postgresql://hfbot@db/hfbot
`)

	t.Setenv("TEST_HFBOT_APIKEY", "secret")
	t.Setenv("HFBOT_SIGNAL_SENDER", "+15550199")
	t.Setenv("HFBOT_SIGNAL_ENABLED", "true")
	t.Setenv("HFBOT_POLL_POLICY_ANOMALY", "5s")
	t.Setenv("HFBOT_FANOUT_CONCURRENCY", "8")

	config, err := app.LoadConfig(base, override)
	require.Nil(t, err)

	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "postgresql://hfbot@db/hfbot", config.Database.DSN)
	assert.Equal(t, "secret", config.Catalog.APIKey)
	assert.Equal(t, "Phish", config.Catalog.Artist)
	assert.Equal(t, time.Hour, config.Catalog.TTL.Attendance)
	assert.Equal(t, 22*time.Hour, config.Catalog.TTL.Setlists)
	assert.Equal(t, detect.Policy{
		NotStarted: time.Minute,
		Unchanged:  30 * time.Second,
		Grown:      90 * time.Second,
		Anomaly:    5 * time.Second,
		Error:      30 * time.Second,
	}, config.Poll.Policy)

	assert.True(t, config.Bluesky.Enabled)
	assert.Equal(t, "hfbot.bsky.social", config.Bluesky.Identifier)
	assert.True(t, config.Signal.Enabled)
	assert.Equal(t, "+15550199", config.Signal.Sender)
	assert.Equal(t, "signal-cli", config.Signal.Binary)
	assert.Equal(t, 8, config.Fanout.Concurrency)
	assert.Equal(t, -6*time.Hour, config.Ledger.Offset)

	require.Len(t, config.Subscribers, 2)
	assert.Equal(t, "+15550100", config.Subscribers[0].Address)
	assert.Equal(t, "alice", config.Subscribers[0].Username.String)
	assert.True(t, config.Subscribers[0].Username.Valid)
	assert.False(t, config.Subscribers[1].Username.Valid)
}

func TestCollectConfig_TypeMismatch(t *testing.T) {
	a := writeFile(t, "a.yml", "poll:\n  url: https://live.phish.net\n")
	b := writeFile(t, "b.yml", "poll: disabled\n")

	_, err := app.CollectConfig("TEST_HFBOT_NONE_", a, b)
	assert.NotNil(t, err)
}

func TestCollectConfig_Environ(t *testing.T) {
	t.Setenv("TEST_HFBOT_ENV_POLL_URL", "http://localhost:8080")
	t.Setenv("TEST_HFBOT_ENV_POLL__URL", "ignored")
	t.Setenv("TEST_HFBOT_ENV_SIGNAL_SENDER", "+15550100")
	t.Setenv("TEST_HFBOT_ENV_FANOUT_CONCURRENCY", "2")

	data, err := app.CollectConfig("TEST_HFBOT_ENV_")
	require.Nil(t, err)

	var config map[string]map[string]interface{}
	require.Nil(t, yaml.Unmarshal(data, &config))
	assert.Equal(t, map[string]interface{}{"url": "http://localhost:8080"}, config["poll"])
	assert.Equal(t, "+15550100", config["signal"]["sender"])
	assert.Equal(t, 2, config["fanout"]["concurrency"])
}

func TestSetupLogging(t *testing.T) {
	assert.Nil(t, app.SetupLogging(app.LoggingConfig{Level: "debug", Format: "json"}))
	assert.NotNil(t, app.SetupLogging(app.LoggingConfig{Level: "loud"}))
	assert.NotNil(t, app.SetupLogging(app.LoggingConfig{Level: "info", Format: "xml"}))
	assert.Nil(t, app.SetupLogging(app.LoggingConfig{Level: "info"}))
}
