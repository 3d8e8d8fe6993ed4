package api

import "time"

// Config holds API server configuration.
type Config struct {
	Port              int
	Version           string
	RateLimitRequests int // per minute, 0 = disabled
	RateLimitBurst    int
	AllowedOrigins    []string
	Auth              AuthConfig
	WriteTimeout      time.Duration
	JobTTL            time.Duration
	PreviewVerses     int
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	return c
}
