package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("CWB_SECRET", "s3cr3t")

	path := writeConfig(t, `
slack:
  signing_secret: ${CWB_SECRET}
  webhook_url: https://hooks.example.test/T000
scheduler:
  timezone: Europe/Berlin
redis:
  enabled: true
  cache_ttl: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", cfg.Slack.SigningSecret)
	assert.Equal(t, 5*time.Minute, cfg.Slack.Tolerance)
	assert.Equal(t, 3000, cfg.Slack.EphemeralLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(5*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, StateDriverFile, cfg.State.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Logging.Console)
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "complete", mutate: func(c *Config) {}, ok: true},
		{name: "missing secret", mutate: func(c *Config) { c.Slack.SigningSecret = " " }},
		{name: "missing webhook", mutate: func(c *Config) { c.Slack.WebhookURL = "" }},
		{name: "unknown driver", mutate: func(c *Config) { c.State.Driver = "etcd" }},
		{name: "postgres driver without postgres", mutate: func(c *Config) { c.State.Driver = StateDriverPostgres }},
		{name: "postgres driver with postgres", mutate: func(c *Config) {
			c.State.Driver = StateDriverPostgres
			c.Postgres.Enabled = true
		}, ok: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.Slack.SigningSecret = "secret"
			cfg.Slack.WebhookURL = "https://hooks.example.test/T000"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	t.Parallel()
	c := PostgresConfig{Host: "db", Port: 5432, User: "bot", Password: "pw", Database: "codewars"}
	assert.Equal(t, "postgres://bot:pw@db:5432/codewars?sslmode=disable", c.ConnectionString())
}
