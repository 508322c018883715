// Package config loads popmap settings from config.yaml, .env, and POPMAP_*
// environment variables, and builds the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Log    LogConfig    `mapstructure:"log"`
}

// DataConfig lists the census datasets to serve.
type DataConfig struct {
	Sources           []SourceConfig `mapstructure:"sources"`
	Paths             []string       `mapstructure:"paths"` // shorthand: auto-detected sources
	CurrentYear       int            `mapstructure:"current_year"`
	WatchIntervalSecs int            `mapstructure:"watch_interval_secs"` // 0 disables watching
	CacheDir          string         `mapstructure:"cache_dir"`
}

// SourceConfig is one dataset: a local path or an http(s) URL.
type SourceConfig struct {
	Path     string `mapstructure:"path"`
	Layout   string `mapstructure:"layout"` // combined, census, upload; auto when empty
	Format   string `mapstructure:"format"` // xlsx, csv, geojson, shapefile, parquet; from extension when empty
	Sheet    string `mapstructure:"sheet"`
	SkipRows int    `mapstructure:"skip_rows"`
	Charset  string `mapstructure:"charset"`
}

// AllSources returns Sources followed by one auto-detected source per Paths entry.
func (d DataConfig) AllSources() []SourceConfig {
	out := append([]SourceConfig{}, d.Sources...)
	for _, p := range d.Paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, SourceConfig{Path: p})
		}
	}
	return out
}

// WatchInterval returns the source polling interval; zero when disabled.
func (d DataConfig) WatchInterval() time.Duration {
	return time.Duration(d.WatchIntervalSecs) * time.Second
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // none, sqlite, postgres
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	Keep        int    `mapstructure:"keep"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   float64  `mapstructure:"rate_limit"` // requests per second; 0 disables
	RateBurst   int      `mapstructure:"rate_burst"`
	MaxUploadMB int      `mapstructure:"max_upload_mb"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"` // 0 disables the cache
	TTLSecs    int `mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// FetchConfig configures downloads of remote sources.
type FetchConfig struct {
	UserAgent   string  `mapstructure:"user_agent"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
	MaxRetries  int     `mapstructure:"max_retries"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml, and the environment.
// Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.paths", []string{})
	v.SetDefault("data.current_year", 0)
	v.SetDefault("data.watch_interval_secs", 0)
	v.SetDefault("data.cache_dir", "")
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.keep", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("fetch.user_agent", "popmap/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Modes: "serve", "load", "query".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for driver "+c.Store.Driver)
		}
	default:
		problems = append(problems, "store.driver must be none, sqlite or postgres")
	}
	if c.Store.Keep < 0 {
		problems = append(problems, "store.keep must be >= 0")
	}

	for i, s := range c.Data.AllSources() {
		if strings.TrimSpace(s.Path) == "" {
			problems = append(problems, fmt.Sprintf("data.sources[%d].path is required", i))
		}
		switch s.Layout {
		case "", "combined", "census", "upload":
		default:
			problems = append(problems, fmt.Sprintf("data.sources[%d].layout must be combined, census or upload", i))
		}
		if s.SkipRows < 0 {
			problems = append(problems, fmt.Sprintf("data.sources[%d].skip_rows must be >= 0", i))
		}
	}
	if c.Data.CurrentYear < 0 {
		problems = append(problems, "data.current_year must be >= 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit < 0 {
			problems = append(problems, "server.rate_limit must be >= 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			problems = append(problems, "server.max_upload_mb must be > 0")
		}
	case "load":
		if len(c.Data.AllSources()) == 0 {
			problems = append(problems, "data.sources or data.paths is required")
		}
	case "query":
		if len(c.Data.AllSources()) == 0 && (c.Store.Driver == "" || c.Store.Driver == "none") {
			problems = append(problems, "data.sources or a snapshot store is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
