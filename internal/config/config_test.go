package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Sync.RemoteURL = "https://sync.example.com"
	cfg.Security.StorageSecret = "terminal-secret"
	return cfg
}

func TestDefaultRequiresSecrets(t *testing.T) {
	err := Default().validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage_secret")
	assert.Contains(t, err.Error(), "remote_url")

	assert.NoError(t, validConfig().validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store path"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "interval must be positive"},
		{"backoff below interval", func(c *Config) { c.Sync.MaxBackoff = time.Second }, "max_backoff"},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }, "batch_size"},
		{"sync disabled needs no url", func(c *Config) { c.Sync.Enabled = false; c.Sync.RemoteURL = "" }, ""},
		{"short developer digest", func(c *Config) { c.License.DeveloperSecretSHA256 = "abc" }, "developer_secret_sha256"},
		{"scrypt not power of two", func(c *Config) { c.Security.ScryptN = 1000 }, "scrypt_n"},
		{"tax rate as percent", func(c *Config) { c.Sales.TaxRate = 15 }, "tax_rate"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posd.yaml")
	yamlDoc := `
store:
  path: /srv/pos.db
sync:
  remote_url: https://file.example.com
  interval: 45s
security:
  storage_secret: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("POS_SYNC_REMOTE_URL", "https://env.example.com")
	t.Setenv("POS_SERVER_PORT", "9001")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/pos.db", cfg.Store.Path)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "https://env.example.com", cfg.Sync.RemoteURL)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Security.StorageSecret)
	assert.Equal(t, 15*time.Second, cfg.Sync.DeliveryTimeout, "defaults survive partial files")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("POS_SYNC_ENABLED", "false")
	t.Setenv("POS_SECURITY_STORAGE_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, "127.0.0.1:8377", cfg.Server.Addr())
}
