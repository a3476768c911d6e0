package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	BackendBaseURL     string
	RedisURL           string
	CORSAllowedOrigins []string

	BackendTimeout        time.Duration
	BackendMaxAttempts    int
	BackendBackoff        time.Duration
	BreakerMinRequests    int
	BreakerFailureRatio   float64
	BreakerOpenFor        time.Duration
	BreakerWindow         time.Duration
	CartSessionTTL        time.Duration
	IdempotencyTTL        time.Duration
	OrderRateLimitMax     int
	OrderRateLimitWindow  time.Duration
	BodyLimitBytes        int64
	SecurityHeaders       bool
	ShippingPoliciesLocal bool
	CatalogCacheTTL       time.Duration
	APIRateLimit          string
	DefaultDeliveryFee    int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:                valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                  valueOrDefault(k.String("PORT"), "8080"),
		BackendBaseURL:        strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		RedisURL:              k.String("REDIS_URL"),
		CORSAllowedOrigins:    splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BackendTimeout:        parseDuration(k.String("BACKEND_TIMEOUT"), "5s"),
		BackendMaxAttempts:    parseInt(k.String("BACKEND_MAX_ATTEMPTS"), 2),
		BackendBackoff:        parseDuration(k.String("BACKEND_BACKOFF"), "150ms"),
		BreakerMinRequests:    parseInt(k.String("BACKEND_BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio:   parseFloat(k.String("BACKEND_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:        parseDuration(k.String("BACKEND_BREAKER_OPEN_FOR"), "30s"),
		BreakerWindow:         parseDuration(k.String("BACKEND_BREAKER_WINDOW"), "1m"),
		CartSessionTTL:        parseDuration(k.String("CART_SESSION_TTL"), "24h"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		OrderRateLimitMax:     parseInt(k.String("ORDER_RATE_LIMIT_MAX"), 5),
		OrderRateLimitWindow:  parseDuration(k.String("ORDER_RATE_LIMIT_WINDOW"), "1m"),
		BodyLimitBytes:        int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders:       parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		ShippingPoliciesLocal: parseBoolDefault(k.String("SHIPPING_POLICIES_LOCAL"), true),
		CatalogCacheTTL:       parseDuration(k.String("CATALOG_CACHE_TTL"), "0s"),
		APIRateLimit:          strings.TrimSpace(k.String("API_RATE_LIMIT")),
		DefaultDeliveryFee:    int64(parseInt(k.String("DEFAULT_DELIVERY_FEE"), 3000)),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.BackendMaxAttempts < 1 {
		cfg.BackendMaxAttempts = 1
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
