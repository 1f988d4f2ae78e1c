// Package config holds the process-wide options enumerated in the
// platform's operations surface. It is deliberately a plain struct with a
// constructor and environment overrides, not a file/flag-based loader.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config collects every recognized runtime option. Built once at process
// start and threaded explicitly into constructors — never read from a
// package-level global.
type Config struct {
	HTTPHost string
	HTTPPort int

	MetadataDSN   string
	AnalyticsDSN  string
	AnalyticsAddr []string

	// AnalyticsPartitionStrategy selects the ClickHouse PARTITION BY
	// expression for the observations table: "year", "territory", or
	// "hybrid" (year/territory combined).
	AnalyticsPartitionStrategy string

	JWTSecretKey                string
	JWTAccessTokenExpireMinutes int

	RateLimitDefault int

	UpstreamBaseURL          string
	UpstreamTimeoutSeconds   int
	CircuitBreakerThreshold  int
	CircuitBreakerCooldownS  int
	RetryMaxAttempts         int
	UpstreamRatePerSecond    float64
	UpstreamBurst            int
	UpstreamMaxConcurrent    int

	CacheDefaultTTLSeconds int
	CacheMaxSize           int

	CORSAllowedOrigins []string

	RequestBudget time.Duration
}

// Default returns the documented defaults from §6.5, with a process-wide
// JWT secret generated at startup if none is supplied by the environment.
func Default() *Config {
	cfg := &Config{
		HTTPHost: "0.0.0.0",
		HTTPPort: 8080,

		MetadataDSN:  "postgres://localhost:5432/osservatorio?sslmode=disable",
		AnalyticsDSN: "clickhouse://localhost:9000/istat",

		AnalyticsPartitionStrategy: "hybrid",

		JWTAccessTokenExpireMinutes: 60,

		RateLimitDefault: 100,

		UpstreamBaseURL:         "https://esploradati.istat.it/SDMXWS/rest",
		UpstreamTimeoutSeconds:  10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldownS: 60,
		RetryMaxAttempts:        3,
		UpstreamRatePerSecond:   2,
		UpstreamBurst:           5,
		UpstreamMaxConcurrent:   5,

		CacheDefaultTTLSeconds: 300,
		CacheMaxSize:           1000,

		CORSAllowedOrigins: []string{"*"},

		RequestBudget: 30 * time.Second,
	}
	cfg.applyEnv()
	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = randomSecret()
		log.Warn().Msg("config: JWT_SECRET_KEY not set, generated an ephemeral one for this process; tokens won't survive a restart")
	}
	return cfg
}

// randomSecret generates a 32-byte hex-encoded fallback secret, used only
// when JWT_SECRET_KEY is absent from the environment.
func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("config: failed to generate fallback JWT secret: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// applyEnv overlays environment variables onto defaults, following
// DefaultServerConfig's HTTP_PORT lookup precedent.
func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_HOST"); v != "" {
		c.HTTPHost = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = p
		}
	}
	if v := os.Getenv("METADATA_DSN"); v != "" {
		c.MetadataDSN = v
	}
	if v := os.Getenv("ANALYTICS_DSN"); v != "" {
		c.AnalyticsDSN = v
		c.AnalyticsAddr = strings.Split(v, ",")
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		c.JWTSecretKey = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.UpstreamBaseURL = v
	}
	if v := os.Getenv("ANALYTICS_PARTITION_STRATEGY"); v != "" {
		c.AnalyticsPartitionStrategy = v
	}
}

// CacheDefaultTTL returns the default TTL as a time.Duration.
func (c *Config) CacheDefaultTTL() time.Duration {
	return time.Duration(c.CacheDefaultTTLSeconds) * time.Second
}

// UpstreamTimeout returns the per-request upstream timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// CircuitBreakerCooldown returns the breaker's open-state cooldown.
func (c *Config) CircuitBreakerCooldown() time.Duration {
	return time.Duration(c.CircuitBreakerCooldownS) * time.Second
}

// JWTAccessTokenTTL returns the bearer-token lifetime.
func (c *Config) JWTAccessTokenTTL() time.Duration {
	return time.Duration(c.JWTAccessTokenExpireMinutes) * time.Minute
}
