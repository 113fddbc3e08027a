package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Knowledge.Source)
	assert.Equal(t, 0.75, cfg.Extraction.MinSimilarity)
	assert.Equal(t, 20000, cfg.Extraction.MaxInputRunes)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "/tmp/listing-parser.db", cfg.DatabaseDSN())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: postgres
  postgres:
    dsn: postgres://u:p@localhost/db
cache:
  driver: redis
  ttl: 2m
knowledge:
  source: file
  path: kb.yaml
  watch: true
extraction:
  min_similarity: 0.8
  max_input_runes: 5000
  weights:
    price: 1.5
  price_bands:
    Vehicles: {min: 2000, max: 500000}
  category_labels:
    Vehicles: Cars
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.DatabaseDSN())
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, filepath.Join(dir, "kb.yaml"), cfg.Knowledge.Path)
	assert.True(t, cfg.Knowledge.Watch)
	assert.Equal(t, 0.8, cfg.Extraction.MinSimilarity)
	assert.Equal(t, 5000, cfg.Extraction.MaxInputRunes)
	assert.Equal(t, 1.5, cfg.Extraction.Weights["price"])
	assert.Equal(t, BandConfig{Min: 2000, Max: 500000}, cfg.Extraction.PriceBands["Vehicles"])
	assert.Equal(t, "Cars", cfg.Extraction.CategoryLabels["Vehicles"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DATABASE_URL", "sqlite:/var/lib/lp.db")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("KNOWLEDGE_FILE", "/etc/lp/kb.json")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/var/log/lp.log")
	t.Setenv("API_KEYS", "k1, k2,,")
	t.Setenv("MIN_SIMILARITY", "0.9")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/lp.db", cfg.DatabaseDSN())
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://cache:6379/1", cfg.Cache.Redis.URL)
	assert.Equal(t, "file", cfg.Knowledge.Source)
	assert.Equal(t, "/etc/lp/kb.json", cfg.Knowledge.Path)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "/var/log/lp.log", cfg.LogConfig().File.Path)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	assert.Equal(t, 0.9, cfg.Extraction.MinSimilarity)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "LP_TEST_DOTENV=from-file\n")

	t.Setenv("LP_TEST_DOTENV", "")
	os.Unsetenv("LP_TEST_DOTENV")
	LoadDotEnv(envPath, filepath.Join(dir, "missing.env"))
	assert.Equal(t, "from-file", os.Getenv("LP_TEST_DOTENV"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, t.TempDir(), "bad.yaml", "server: [")
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
		{"bad batch size", func(c *Config) { c.Server.MaxBatchSize = 0 }, false},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, false},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"no database", func(c *Config) { c.Database.Driver = "none" }, true},
		{"bad cache", func(c *Config) { c.Cache.Driver = "memcached" }, false},
		{"file source without path", func(c *Config) { c.Knowledge.Source = "file" }, false},
		{"database source without database", func(c *Config) {
			c.Knowledge.Source = "database"
			c.Database.Driver = "none"
		}, false},
		{"watch needs file", func(c *Config) { c.Knowledge.Watch = true }, false},
		{"bad source", func(c *Config) { c.Knowledge.Source = "s3" }, false},
		{"similarity zero", func(c *Config) { c.Extraction.MinSimilarity = 0 }, false},
		{"similarity above one", func(c *Config) { c.Extraction.MinSimilarity = 1.2 }, false},
		{"negative input limit", func(c *Config) { c.Extraction.MaxInputRunes = -1 }, false},
		{"zero input limit keeps default", func(c *Config) { c.Extraction.MaxInputRunes = 0 }, true},
		{"inverted band", func(c *Config) {
			c.Extraction.PriceBands = map[string]BandConfig{"General": {Min: 10, Max: 5}}
		}, false},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, false},
		{"auth with keys", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.APIKeys = []string{"k"}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/etc/kb.yaml", ResolveRelativePath("/srv/config.yaml", "/etc/kb.yaml"))
	assert.Equal(t, "/srv/kb.yaml", ResolveRelativePath("/srv/config.yaml", "kb.yaml"))
}
