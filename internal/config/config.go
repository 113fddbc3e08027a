// Package config provides unified configuration loading for the listing parser.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
)

// Config holds all configuration for the listing parser.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Knowledge     KnowledgeConfig     `yaml:"knowledge"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
	MaxBatchSize     int           `yaml:"max_batch_size"`
	BatchWorkers     int           `yaml:"batch_workers"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"` // sqlite, postgres or none
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	Postgres       PostgresConfig `yaml:"postgres"`
	AutoMigrate    bool           `yaml:"auto_migrate"`
	RecordAnalyses bool           `yaml:"record_analyses"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds caching settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// KnowledgeConfig selects where the knowledge base comes from and how it is kept fresh.
type KnowledgeConfig struct {
	Source          string        `yaml:"source"` // file, database or none
	Path            string        `yaml:"path"`
	Watch           bool          `yaml:"watch"`
	WatchDebounce   time.Duration `yaml:"watch_debounce"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Follow          bool          `yaml:"follow"`
}

// ExtractionConfig tunes the analyzer.
type ExtractionConfig struct {
	MinSimilarity   float64               `yaml:"min_similarity"`
	Weights         map[string]float64    `yaml:"weights"`
	ContextBonus    float64               `yaml:"context_bonus"`
	Checklists      map[string][]string   `yaml:"checklists"`
	PriceBands      map[string]BandConfig `yaml:"price_bands"`
	CategoryLabels  map[string]string     `yaml:"category_labels"`
	ConditionLabels map[string]string     `yaml:"condition_labels"`
	MaxInputRunes   int                   `yaml:"max_input_runes"`
}

// BandConfig is a plausible price range.
type BandConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	ServiceName string        `yaml:"service_name"`
	File        LogFileConfig `yaml:"file"`
}

// LogFileConfig enables rotated log files.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig holds API-key authentication settings.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	APIKeys   []string `yaml:"api_keys"`
	AdminKeys []string `yaml:"admin_keys"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Knowledge.Path != "" {
			cfg.Knowledge.Path = ResolveRelativePath(path, cfg.Knowledge.Path)
		}
	}

	LoadDotEnv()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env files into the environment. Missing files are ignored
// and variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxBodyBytes:     1 << 20,
			MaxBatchSize:     100,
			BatchWorkers:     4,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: "/tmp/listing-parser.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			AutoMigrate:    true,
			RecordAnalyses: true,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "lp:",
			},
		},
		Knowledge: KnowledgeConfig{
			Source:        "none",
			WatchDebounce: 500 * time.Millisecond,
			CacheTTL:      time.Hour,
		},
		Extraction: ExtractionConfig{
			MinSimilarity: 0.75,
			MaxInputRunes: normalize.MaxInputRunes,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "listing-parser",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Auth: AuthConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be positive")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Knowledge.Source {
	case "none":
	case "file":
		if c.Knowledge.Path == "" {
			return fmt.Errorf("knowledge source file requires knowledge.path")
		}
	case "database":
		if c.Database.Driver == "none" {
			return fmt.Errorf("knowledge source database requires a database driver")
		}
	default:
		return fmt.Errorf("invalid knowledge source: %s", c.Knowledge.Source)
	}
	if c.Knowledge.Watch && c.Knowledge.Source != "file" {
		return fmt.Errorf("knowledge.watch requires the file source")
	}

	if s := c.Extraction.MinSimilarity; s <= 0 || s > 1 {
		return fmt.Errorf("min_similarity must be in (0, 1]: %v", s)
	}
	if c.Extraction.MaxInputRunes < 0 {
		return fmt.Errorf("max_input_runes must not be negative: %d", c.Extraction.MaxInputRunes)
	}
	for cat, band := range c.Extraction.PriceBands {
		if band.Min < 0 || (band.Max > 0 && band.Max < band.Min) {
			return fmt.Errorf("invalid price band for %s: %v..%v", cat, band.Min, band.Max)
		}
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && len(c.Auth.AdminKeys) == 0 {
		return fmt.Errorf("auth enabled but no api keys configured")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" || !c.Auth.Enabled
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// LogConfig converts the observability section into logger settings.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:       c.Observability.LogLevel,
		Format:      c.Observability.LogFormat,
		ServiceName: c.Observability.ServiceName,
		File: observability.FileConfig{
			Path:       c.Observability.File.Path,
			MaxSizeMB:  c.Observability.File.MaxSizeMB,
			MaxBackups: c.Observability.File.MaxBackups,
			MaxAgeDays: c.Observability.File.MaxAgeDays,
			Compress:   c.Observability.File.Compress,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		switch {
		case v == "none":
			cfg.Database.Driver = "none"
		case strings.HasPrefix(v, "sqlite:"):
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		case strings.HasPrefix(v, "postgres"):
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := os.Getenv("KNOWLEDGE_SOURCE"); v != "" {
		cfg.Knowledge.Source = v
	}

	if v := os.Getenv("KNOWLEDGE_FILE"); v != "" {
		cfg.Knowledge.Source = "file"
		cfg.Knowledge.Path = v
	}

	if v := os.Getenv("MIN_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Extraction.MinSimilarity = f
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Observability.File.Path = v
	}

	if v := os.Getenv("AUTH_ENABLED"); v == "true" {
		cfg.Auth.Enabled = true
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitList(v)
		cfg.Auth.Enabled = true
	}

	if v := os.Getenv("ADMIN_API_KEYS"); v != "" {
		cfg.Auth.AdminKeys = splitList(v)
		cfg.Auth.Enabled = true
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
