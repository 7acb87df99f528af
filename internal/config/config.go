package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv    string
	Port      string
	LogFormat string
	LogLevel  string

	APIBaseURL     string
	APIKey         string
	CheckoutToken  string
	CheckoutURL    string
	AllowedOrigins []string

	PollInterval    time.Duration
	PollMaxAttempts int
	HTTPTimeout     time.Duration

	TokenSecret string
	TokenTTL    time.Duration

	WebhookSecret   string
	RedisURL        string
	ReplayTTL       time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int

	MetricsNamespace string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:    valueOrDefault(k.String("APP_ENV"), "development"),
		Port:      valueOrDefault(k.String("PORT"), "4000"),
		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		APIBaseURL:     valueOrDefault(k.String("API_BASE_URL"), "http://localhost:8000"),
		APIKey:         strings.TrimSpace(k.String("API_KEY")),
		CheckoutToken:  strings.TrimSpace(k.String("CHECKOUT_TOKEN")),
		CheckoutURL:    valueOrDefault(k.String("CHECKOUT_URL"), "http://localhost:3001/checkout"),
		AllowedOrigins: splitAndTrim(k.String("ALLOWED_ORIGINS")),

		PollInterval:    parseDuration(k.String("POLL_INTERVAL"), "1s"),
		PollMaxAttempts: intOrDefault(k.Int("POLL_MAX_ATTEMPTS"), 30),
		HTTPTimeout:     parseDuration(k.String("HTTP_TIMEOUT"), "5s"),

		TokenSecret: strings.TrimSpace(k.String("CHECKOUT_TOKEN_SECRET")),
		TokenTTL:    parseDuration(k.String("CHECKOUT_TOKEN_TTL"), "15m"),

		WebhookSecret:   strings.TrimSpace(k.String("WEBHOOK_SECRET")),
		RedisURL:        strings.TrimSpace(k.String("REDIS_URL")),
		ReplayTTL:       parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    intOrDefault(k.Int("RATE_LIMIT_MAX"), 120),

		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "checkout"),
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "4000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// CheckoutOrigin derives the origin of the configured checkout endpoint. The
// widget only dispatches inbound messages whose sender matches this origin
// (plus any extra ALLOWED_ORIGINS entries).
func (c *Config) CheckoutOrigin() string {
	return OriginOf(c.CheckoutURL)
}

// OriginOf reduces a URL to its scheme://host origin form.
func OriginOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
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

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
