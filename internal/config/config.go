package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL        string
	JWTSecret          string
	Port               string
	SearxngURL         string
	OracleURL          string
	OracleToken        string
	MapsWorkerURL      string
	RateLimitJobs      RateLimitConfig
	TokenTTL           time.Duration
	ContactsPerCompany int
	MaxSearchPages     int
	CompanyDelay       time.Duration
	OracleConcurrency  int
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		Port:               getEnv("PORT", "8080"),
		SearxngURL:         getEnv("SEARXNG_URL", "http://localhost:8888"),
		OracleURL:          getEnv("ORACLE_URL", ""),
		OracleToken:        getEnv("ORACLE_TOKEN", ""),
		MapsWorkerURL:      getEnv("MAPS_WORKER_URL", "http://worker:9000"),
		TokenTTL:           parseDuration(getEnv("JWT_TTL", "24h"), 24*time.Hour),
		ContactsPerCompany: parsePositiveInt(getEnv("CONTACTS_PER_COMPANY", "20"), 20),
		MaxSearchPages:     parsePositiveInt(getEnv("MAX_SEARCH_PAGES", "3"), 3),
		CompanyDelay:       parseDuration(getEnv("COMPANY_DELAY", "10s"), 10*time.Second),
		OracleConcurrency:  parsePositiveInt(getEnv("ORACLE_CONCURRENCY", "10"), 10),
	}

	rl, err := parseRateLimit(getEnv("RATE_LIMIT_JOBS", "5/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_JOBS value: %w", err)
	}
	cfg.RateLimitJobs = rl

	return cfg, nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseDuration(input string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(input)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parsePositiveInt(input string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
