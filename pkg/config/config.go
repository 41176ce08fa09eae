package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional: empty URL keeps the series in memory only)
	Database DatabaseConfig

	// Redis result cache and shared rate limit
	Redis RedisConfig

	// Source refresh
	Source SourceConfig

	// Dataset profile (YAML), empty for built-in defaults
	ProfilePath string

	// Logging
	LogLevel  string
	LogFormat string // json, console

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether persistence is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// SourceConfig describes where periodic refreshes fetch data from
type SourceConfig struct {
	URL             string
	Format          string // csv, html
	RefreshSchedule string // cron spec, empty disables the refresh job
	RateLimit       int    // requests per minute
	Timeout         time.Duration
}

// Enabled reports whether a remote source is configured
func (s SourceConfig) Enabled() bool {
	return s.URL != ""
}

// Load reads configuration from the environment, after an optional .env file.
// Malformed numbers, booleans and durations are errors, not silent defaults.
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	var e env
	cfg := &Config{
		Port:        e.str("PORT", "8089"),
		Env:         strings.ToLower(e.str("ENV", "development")),
		ProfilePath: e.str("PROFILE_PATH", ""),

		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxConns:        e.int("DB_MAX_CONNS", 10),
			MinConns:        e.int("DB_MIN_CONNS", 2),
			MaxConnLifetime: e.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: e.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     e.str("REDIS_HOST", "localhost"),
			Port:     e.str("REDIS_PORT", "6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
			Enabled:  e.bool("REDIS_ENABLED", false),
			CacheTTL: e.duration("CACHE_TTL", 10*time.Minute),
		},

		Source: SourceConfig{
			URL:             e.str("SOURCE_URL", ""),
			Format:          strings.ToLower(e.str("SOURCE_FORMAT", "csv")),
			RefreshSchedule: e.str("SOURCE_REFRESH_SCHEDULE", "0 */6 * * *"),
			RateLimit:       e.int("SOURCE_RATE_LIMIT", 30),
			Timeout:         e.duration("SOURCE_TIMEOUT", 30*time.Second),
		},

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(e.str("LOG_FORMAT", "json")),

		MetricsEnabled: e.bool("METRICS_ENABLED", true),
		MetricsPort:    e.str("METRICS_PORT", "9090"),
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads an explicit env file, then reads the environment as Load does.
// Variables already set in the process environment take precedence.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// validate reports every inconsistent value at once
func (c *Config) validate() []error {
	var errs []error

	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production (got %q)", c.Env))
	}

	if c.Source.Format != "csv" && c.Source.Format != "html" {
		errs = append(errs, fmt.Errorf("SOURCE_FORMAT must be one of: csv, html (got %q)", c.Source.Format))
	}
	if c.Source.RateLimit <= 0 {
		errs = append(errs, errors.New("SOURCE_RATE_LIMIT must be positive"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("SOURCE_TIMEOUT must be positive"))
	}

	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns))
	}

	if c.Redis.Enabled && c.Redis.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive when REDIS_ENABLED"))
	}

	return errs
}

// loadEnvFile loads the first .env found in the working directory or next to the binary
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// env reads typed variables and collects parse failures
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	return parse(e, key, def, strconv.Atoi)
}

func (e *env) bool(key string, def bool) bool {
	return parse(e, key, def, strconv.ParseBool)
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	return parse(e, key, def, time.ParseDuration)
}

func parse[T any](e *env, key string, def T, fn func(string) (T, error)) T {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := fn(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid value %q", key, raw))
		return def
	}
	return v
}
