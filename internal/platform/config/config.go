package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultVerifierServer is the public AVETMISS verification service.
const DefaultVerifierServer = "https://adts.avetmissfree.com"

// Config is the complete runtime configuration.
type Config struct {
	Server   Server
	Verifier Verifier
	Redis    RedisConfig
	Postgres PostgresConfig
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Verifier configures the remote USI verification client.
// An empty Token disables remote verification; local checks still run.
type Verifier struct {
	Server           string
	Token            string
	Timeout          time.Duration
	CacheTTL         time.Duration
	CacheKeySecret   string
	BreakerFailures  int
	BreakerSuccesses int
	BreakerCooldown  time.Duration
	// AllowedServers bounds the servers a token check may contact.
	// Defaults to Server.
	AllowedServers []string
}

// Enabled reports whether remote verification is configured.
func (v Verifier) Enabled() bool {
	return strings.TrimSpace(v.Token) != ""
}

// RedisConfig configures the outcome cache. Empty URL selects the in-memory cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the USI store. Empty URL selects the in-memory store.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Log selects slog level and handler.
type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed numeric or duration values are reported together rather than silently defaulted.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		Server: Server{
			Addr:           getEnv("USIVERIFY_ADDR", ":8080"),
			JWTSigningKey:  getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:      getEnv("JWT_ISSUER", "usiverify"),
			JWTAudience:    getEnv("JWT_AUDIENCE", "usiverify-api"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			RateLimitRPS:   p.float("RATE_LIMIT_RPS", 10),
			RateLimitBurst: p.int("RATE_LIMIT_BURST", 20),
		},
		Verifier: Verifier{
			Server:           strings.TrimRight(getEnv("USI_VERIFY_SERVER", DefaultVerifierServer), "/"),
			Token:            os.Getenv("USI_VERIFY_TOKEN"),
			Timeout:          p.duration("USI_VERIFY_TIMEOUT", 30*time.Second),
			CacheTTL:         p.duration("USI_CACHE_TTL", 5*time.Minute),
			CacheKeySecret:   getEnv("USI_CACHE_KEY_SECRET", "dev-cache-key-change-in-production"),
			BreakerFailures:  p.int("USI_BREAKER_FAILURES", 5),
			BreakerSuccesses: p.int("USI_BREAKER_SUCCESSES", 1),
			BreakerCooldown:  p.duration("USI_BREAKER_COOLDOWN", 30*time.Second),
			AllowedServers:   splitList(os.Getenv("USI_VERIFY_ALLOWED_SERVERS")),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: p.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: p.int("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	for i, server := range cfg.Verifier.AllowedServers {
		cfg.Verifier.AllowedServers[i] = strings.TrimRight(server, "/")
	}
	if len(cfg.Verifier.AllowedServers) == 0 {
		cfg.Verifier.AllowedServers = []string{cfg.Verifier.Server}
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Server.RateLimitRPS <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
	}
	if c.Server.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be at least 1"))
	}
	if c.Verifier.Timeout <= 0 {
		errs = append(errs, errors.New("USI_VERIFY_TIMEOUT must be positive"))
	}
	if c.Verifier.CacheTTL < 0 {
		errs = append(errs, errors.New("USI_CACHE_TTL must not be negative"))
	}
	if c.Verifier.BreakerFailures < 1 || c.Verifier.BreakerSuccesses < 1 {
		errs = append(errs, errors.New("circuit breaker thresholds must be at least 1"))
	}
	if !strings.HasPrefix(c.Verifier.Server, "http://") && !strings.HasPrefix(c.Verifier.Server, "https://") {
		errs = append(errs, fmt.Errorf("USI_VERIFY_SERVER %q must be an http(s) URL", c.Verifier.Server))
	}
	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
