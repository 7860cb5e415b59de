package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the consultation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	ModelAdapterMode string
	ModelHTTPURL     string

	EmbedHTTPURL string
	IndexTopK    int

	// DefaultKeyDurationMinutes is the usage window granted to newly issued
	// access keys when the request does not name one.
	DefaultKeyDurationMinutes int
	// DefaultKeyCredits is the starting credit balance for issued keys.
	DefaultKeyCredits int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                  envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:          envOrDefault("APP_METRICS_NAMESPACE", "myeongshim"),
		AllowAnyOrigin:            false,
		DatabaseURL:               stringsTrimSpace("DATABASE_URL"),
		ModelAdapterMode:          envOrDefault("MODEL_ADAPTER_MODE", "auto"),
		ModelHTTPURL:              stringsTrimSpace("MODEL_HTTP_URL"),
		EmbedHTTPURL:              stringsTrimSpace("EMBED_HTTP_URL"),
		IndexTopK:                 3,
		DefaultKeyDurationMinutes: 30,
		DefaultKeyCredits:         10,
		ShutdownTimeout:           15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.IndexTopK, err = intFromEnv("INDEX_TOP_K", cfg.IndexTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultKeyDurationMinutes, err = intFromEnv("KEY_DEFAULT_DURATION_MINUTES", cfg.DefaultKeyDurationMinutes)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultKeyCredits, err = intFromEnv("KEY_DEFAULT_CREDITS", cfg.DefaultKeyCredits)
	if err != nil {
		return Config{}, err
	}

	if cfg.IndexTopK <= 0 {
		return Config{}, fmt.Errorf("INDEX_TOP_K must be positive")
	}
	if cfg.DefaultKeyDurationMinutes <= 0 {
		return Config{}, fmt.Errorf("KEY_DEFAULT_DURATION_MINUTES must be positive")
	}
	if cfg.DefaultKeyCredits <= 0 {
		return Config{}, fmt.Errorf("KEY_DEFAULT_CREDITS must be positive")
	}
	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
