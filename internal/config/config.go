package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	BaseURL     string
	CreateURL   string
	HTTPTimeout time.Duration

	Port           string
	SessionSecret  string
	CacheStaleTime time.Duration
	ImageHosts     []string

	DatabasePath string
	OTelEnabled  bool

	// Telegram notifications are sent only when both are set.
	TelegramBotToken string
	TelegramChatID   int64
}

var defaults = map[string]any{
	"RECIPES_BASE_URL": "https://dummyjson.com",
	"PORT":             "8080",
	"CACHE_STALE_TIME": "30s",
	"HTTP_TIMEOUT":     "0s",
	"DATABASE_PATH":    "data/dapur.db",
	"IMAGE_HOSTS":      "cdn.dummyjson.com",
	"OTEL_ENABLED":     false,
}

// NewFromEnv creates a new Config object from environment variables. When
// DAPUR_CONFIG names a YAML file its keys act as a fallback for unset
// variables.
func NewFromEnv() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := os.Getenv("DAPUR_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	baseURL := strings.TrimRight(v.GetString("RECIPES_BASE_URL"), "/")
	if err := checkURL("RECIPES_BASE_URL", baseURL); err != nil {
		return nil, err
	}

	createURL := v.GetString("RECIPES_CREATE_URL")
	if createURL == "" {
		createURL = baseURL + "/recipes/add"
	}
	if err := checkURL("RECIPES_CREATE_URL", createURL); err != nil {
		return nil, err
	}

	staleTime := v.GetDuration("CACHE_STALE_TIME")
	if staleTime < 0 {
		return nil, fmt.Errorf("CACHE_STALE_TIME must not be negative")
	}

	var imageHosts []string
	for _, h := range strings.Split(v.GetString("IMAGE_HOSTS"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			imageHosts = append(imageHosts, h)
		}
	}

	return &Config{
		BaseURL:          baseURL,
		CreateURL:        createURL,
		HTTPTimeout:      v.GetDuration("HTTP_TIMEOUT"),
		Port:             v.GetString("PORT"),
		SessionSecret:    v.GetString("SESSION_SECRET"),
		CacheStaleTime:   staleTime,
		ImageHosts:       imageHosts,
		DatabasePath:     v.GetString("DATABASE_PATH"),
		OTelEnabled:      v.GetBool("OTEL_ENABLED"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   v.GetInt64("TELEGRAM_CHAT_ID"),
	}, nil
}

// ValidateWeb reports settings the web server cannot run without.
func (c *Config) ValidateWeb() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET environment variable not set")
	}
	return nil
}

// TelegramEnabled reports whether creation notifications should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	return nil
}
