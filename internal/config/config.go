// Package config loads ParashaDeck configuration from YAML or TOML files,
// applies PARASHA_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
)

// Config holds all ParashaDeck configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Sefaria SefariaConfig `yaml:"sefaria" toml:"sefaria"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Resolve ResolveConfig `yaml:"resolve" toml:"resolve"`
	Deck    DeckConfig    `yaml:"deck" toml:"deck"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int      `yaml:"port" toml:"port"`
	RateLimitRequests int      `yaml:"rate_limit_requests" toml:"rate_limit_requests"` // per minute, 0 = disabled
	RateLimitBurst    int      `yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	AllowedOrigins    []string `yaml:"allowed_origins" toml:"allowed_origins"` // empty = same origin only
	WriteTimeout      string   `yaml:"write_timeout" toml:"write_timeout"`
	// APIKey protects every endpoint except "/" and "/health"; empty disables auth.
	APIKey string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
}

// SefariaConfig configures the upstream text client.
type SefariaConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	VersionTitle      string  `yaml:"version_title" toml:"version_title"`
	Diaspora          bool    `yaml:"diaspora" toml:"diaspora"`
	Timeout           string  `yaml:"timeout" toml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// CacheConfig configures the in-memory and persistent response caches.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries" toml:"max_entries"`
	MaxBytes   int64  `yaml:"max_bytes" toml:"max_bytes"`
	TTL        string `yaml:"ttl" toml:"ttl"`
	// DBPath is the SQLite response cache; empty disables it.
	DBPath        string `yaml:"db_path" toml:"db_path"`
	PersistentTTL string `yaml:"persistent_ttl" toml:"persistent_ttl"`
}

// ResolveConfig configures range resolution.
type ResolveConfig struct {
	Concurrency int  `yaml:"concurrency" toml:"concurrency"`
	Split       bool `yaml:"split" toml:"split"`
}

// DeckConfig configures slide layout and fonts.
type DeckConfig struct {
	MaxPerSlide   int     `yaml:"max_per_slide" toml:"max_per_slide"`
	PreviewVerses int     `yaml:"preview_verses" toml:"preview_verses"`
	Cover         bool    `yaml:"cover" toml:"cover"` // title slide first
	TitleFont     string  `yaml:"title_font" toml:"title_font"`
	TitleSize     float64 `yaml:"title_size" toml:"title_size"`
	SourceFont    string  `yaml:"source_font" toml:"source_font"`
	SourceSize    float64 `yaml:"source_size" toml:"source_size"`
	TargetFont    string  `yaml:"target_font" toml:"target_font"`
	TargetSize    float64 `yaml:"target_size" toml:"target_size"`
}

// StoreConfig configures generated deck storage and background jobs.
type StoreConfig struct {
	Dir    string `yaml:"dir" toml:"dir"`
	JobTTL string `yaml:"job_ttl" toml:"job_ttl"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			RateLimitRequests: 60,
			RateLimitBurst:    10,
			WriteTimeout:      "120s",
		},
		Sefaria: SefariaConfig{
			BaseURL:           "https://www.sefaria.org",
			VersionTitle:      "The_Contemporary_Torah,_JPS,_2006",
			Diaspora:          true,
			Timeout:           "30s",
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Cache: CacheConfig{
			MaxEntries:    256,
			MaxBytes:      32 << 20,
			TTL:           "6h",
			DBPath:        filepath.Join("data", "textcache.db"),
			PersistentTTL: "168h",
		},
		Resolve: ResolveConfig{
			Concurrency: 4,
			Split:       true,
		},
		Deck: DeckConfig{
			MaxPerSlide:   5,
			PreviewVerses: 3,
			TitleFont:     "Sylfaen",
			TitleSize:     28,
			SourceFont:    "Sylfaen",
			SourceSize:    20,
			TargetFont:    "Times New Roman",
			TargetSize:    30,
		},
		Store: StoreConfig{
			Dir:    filepath.Join("data", "decks"),
			JobTTL: "1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, choosing the decoder by extension.
// A missing file yields the defaults. Environment overrides are applied
// in both cases. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("config file not found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return perrors.NewParse("yaml", path, err.Error())
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return perrors.NewParse("toml", path, err.Error())
		}
	default:
		return perrors.NewUnsupported("config format", fmt.Sprintf("unknown extension %q", ext))
	}
	return nil
}

// Save writes the configuration to path in the format implied by its
// extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		data, err = toml.Marshal(c)
	default:
		return perrors.NewUnsupported("config format", fmt.Sprintf("unknown extension %q", ext))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies PARASHA_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"PARASHA_API_KEY":       &c.Server.APIKey,
		"PARASHA_SEFARIA_URL":   &c.Sefaria.BaseURL,
		"PARASHA_VERSION_TITLE": &c.Sefaria.VersionTitle,
		"PARASHA_CACHE_DB":      &c.Cache.DBPath,
		"PARASHA_STORE_DIR":     &c.Store.Dir,
		"PARASHA_LOG_LEVEL":     &c.Logging.Level,
		"PARASHA_LOG_FORMAT":    &c.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PARASHA_PORT":          &c.Server.Port,
		"PARASHA_MAX_PER_SLIDE": &c.Deck.MaxPerSlide,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return perrors.NewValidation(key, fmt.Sprintf("not an integer: %q", v))
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("PARASHA_DIASPORA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return perrors.NewValidation("PARASHA_DIASPORA", fmt.Sprintf("not a boolean: %q", v))
		}
		c.Sefaria.Diaspora = b
	}
	return nil
}

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, perrors.NewValidation(field, msg))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port", "must be between 0 and 65535")
	}
	if c.Server.RateLimitRequests < 0 || c.Server.RateLimitBurst < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.APIKey != "" && len(c.Server.APIKey) < 16 {
		add("server.api_key", "must be at least 16 characters")
	}

	if u, err := url.Parse(c.Sefaria.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("sefaria.base_url", "must be an absolute URL")
	}
	if c.Sefaria.RequestsPerSecond < 0 {
		add("sefaria.requests_per_second", "must not be negative")
	}

	if c.Cache.MaxEntries < 0 || c.Cache.MaxBytes < 0 {
		add("cache", "limits must not be negative")
	}
	if c.Resolve.Concurrency < 1 {
		add("resolve.concurrency", "must be at least 1")
	}
	if c.Deck.MaxPerSlide < 1 {
		add("deck.max_per_slide", "must be at least 1")
	}
	if c.Deck.TitleSize <= 0 || c.Deck.SourceSize <= 0 || c.Deck.TargetSize <= 0 {
		add("deck", "font sizes must be positive")
	}
	if c.Store.Dir == "" {
		add("store.dir", "must not be empty")
	}

	durations := map[string]string{
		"server.write_timeout": c.Server.WriteTimeout,
		"sefaria.timeout":      c.Sefaria.Timeout,
		"cache.ttl":            c.Cache.TTL,
		"cache.persistent_ttl": c.Cache.PersistentTTL,
		"store.job_ttl":        c.Store.JobTTL,
	}
	for field, v := range durations {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			add(field, fmt.Sprintf("invalid duration %q", v))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		add("logging.format", err.Error())
	}

	return errors.Join(errs...)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SefariaTimeout returns the per-request upstream timeout.
func (c *Config) SefariaTimeout() time.Duration {
	return duration(c.Sefaria.Timeout, 30*time.Second)
}

// CacheTTL returns the in-memory cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return duration(c.Cache.TTL, 6*time.Hour)
}

// PersistentTTL returns the persistent response cache TTL.
func (c *Config) PersistentTTL() time.Duration {
	return duration(c.Cache.PersistentTTL, 7*24*time.Hour)
}

// JobTTL returns how long finished jobs are kept.
func (c *Config) JobTTL() time.Duration {
	return duration(c.Store.JobTTL, time.Hour)
}

// WriteTimeout returns the HTTP server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 120*time.Second)
}
