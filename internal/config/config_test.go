package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/contentsync/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  username: sync
  database: contentsync
remote:
  connections:
    - url: https://network.example
      token: secret
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5334, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 60*time.Second, config.Duration(cfg.Queue.ItemTimeout))
	assert.Equal(t, 5*time.Minute, config.Duration(cfg.Queue.LeaseDuration))
	assert.Equal(t, 500, cfg.Queue.StuckLimit)
	assert.Equal(t, 90*24*time.Hour, config.Duration(cfg.Queue.Retention))
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "/wp-json/contentsync/v1/import", cfg.Remote.ImportPath)
	require.NotNil(t, cfg.Remote.MaxRetries)
	assert.Equal(t, 3, *cfg.Remote.MaxRetries)
	assert.Equal(t, "secret", cfg.Remote.Token("https://network.example"))
	assert.Equal(t, "", cfg.Remote.Token("https://other.example"))
	assert.Equal(t, "contentsync:queue", cfg.Redis.Channel)
}

func TestLoadConfigKeepsZeroRetries(t *testing.T) {
	path := writeConfig(t, `
remote:
  max_retries: 0
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Remote.MaxRetries)
	assert.Equal(t, 0, *cfg.Remote.MaxRetries)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "bad item timeout",
			mutate:  func(c *config.Config) { c.Queue.ItemTimeout = "soon" },
			wantErr: true,
		},
		{
			name:    "negative lease",
			mutate:  func(c *config.Config) { c.Queue.LeaseDuration = "-1m" },
			wantErr: true,
		},
		{
			name:    "redis enabled without addr",
			mutate:  func(c *config.Config) { c.Redis.Enabled = true },
			wantErr: true,
		},
		{
			name:    "connection without url",
			mutate:  func(c *config.Config) { c.Remote.Connections = []config.RemoteConnection{{Token: "x"}} },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *config.Config) { c.Remote.RateLimit = -1 },
			wantErr: true,
		},
		{
			name: "too many retries",
			mutate: func(c *config.Config) {
				retries := 11
				c.Remote.MaxRetries = &retries
			},
			wantErr: true,
		},
		{
			name:    "unknown server mode",
			mutate:  func(c *config.Config) { c.Server.Mode = "turbo" },
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			tc.mutate(cfg)

			err := config.Validate(cfg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
