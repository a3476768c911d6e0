package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL":     "https://bakery.example/api/v1/",
		"REDIS_URL":            "redis://localhost:6379/0",
		"CART_SESSION_TTL":     "",
		"BACKEND_MAX_ATTEMPTS": "",
		"PORT":                 "",
		"CATALOG_CACHE_TTL":    "",
		"API_RATE_LIMIT":       "",
	})
	require.NoError(t, err)
	require.Equal(t, "https://bakery.example/api/v1", cfg.BackendBaseURL)
	require.Equal(t, 24*time.Hour, cfg.CartSessionTTL)
	require.Equal(t, 2, cfg.BackendMaxAttempts)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.True(t, cfg.SecurityHeaders)
	require.Zero(t, cfg.CatalogCacheTTL)
	require.Empty(t, cfg.APIRateLimit)
	require.Equal(t, int64(3000), cfg.DefaultDeliveryFee)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL":              "http://backend:9000",
		"REDIS_URL":                     "redis://localhost:6379/0",
		"BACKEND_MAX_ATTEMPTS":          "0",
		"BACKEND_BREAKER_FAILURE_RATIO": "0.25",
		"ORDER_RATE_LIMIT_WINDOW":       "30s",
		"CORS_ALLOWED_ORIGINS":          "https://shop.example, ,https://admin.example",
		"SECURITY_HEADERS_ENABLED":      "off",
		"PORT":                          ":9090",
		"CATALOG_CACHE_TTL":             "15s",
		"API_RATE_LIMIT":                " 300-M ",
	})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.BackendMaxAttempts)
	require.InDelta(t, 0.25, cfg.BreakerFailureRatio, 1e-9)
	require.Equal(t, 30*time.Second, cfg.OrderRateLimitWindow)
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.SecurityHeaders)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 15*time.Second, cfg.CatalogCacheTTL)
	require.Equal(t, "300-M", cfg.APIRateLimit)
}

func TestLoadRequiresBackend(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL": "",
		"REDIS_URL":        "redis://localhost:6379/0",
	})
	require.ErrorContains(t, err, "BACKEND_BASE_URL")
}
