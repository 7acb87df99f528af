package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_ENV":       "",
		"PORT":          "",
		"API_BASE_URL":  "",
		"CHECKOUT_URL":  "",
		"POLL_INTERVAL": "",
	})
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":4000", cfg.HTTPAddr())
	require.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	require.Equal(t, "http://localhost:3001/checkout", cfg.CheckoutURL)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, 30, cfg.PollMaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.TokenTTL)
	require.Equal(t, 24*time.Hour, cfg.ReplayTTL)
	require.Equal(t, "checkout", cfg.MetricsNamespace)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":              "9090",
		"POLL_INTERVAL":     "250ms",
		"POLL_MAX_ATTEMPTS": "5",
		"ALLOWED_ORIGINS":   "https://a.test, https://b.test,,",
		"CHECKOUT_URL":      "https://pay.example.com/checkout",
	})
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, 5, cfg.PollMaxAttempts)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	require.Equal(t, "https://pay.example.com", cfg.CheckoutOrigin())
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{"POLL_INTERVAL": "soon"})
	require.NoError(t, err)
	require.Equal(t, time.Second, cfg.PollInterval)
}

func TestOriginOf(t *testing.T) {
	require.Equal(t, "https://pay.example.com", OriginOf("https://pay.example.com/checkout?x=1"))
	require.Empty(t, OriginOf("not a url"))
	require.Empty(t, OriginOf("/relative"))
}
