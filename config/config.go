// Package config loads environment variables and provides a typed Config used across the relay.
// Optional settings get defaults so the binary runs with only credentials, a channel and an
// account list. Use Validate before starting anything that talks to the outside world.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Notification backends.
const (
	BackendDiscord  = "discord"
	BackendTelegram = "telegram"
)

const (
	DefaultFeedURL              = "wss://ws.eulerstream.com"
	DefaultMaxReconnectAttempts = 4
	DefaultReconnectDelay       = 10 * time.Second
	DailyRequestLimit           = 1000
	RequestWarningThreshold     = 900
)

type Config struct {
	// Telemetry feed
	FeedURL    string
	FeedAPIKey string

	// Chat platform
	Backend          string
	DiscordToken     string
	TelegramBotToken string
	AlertChannelID   string
	OwnerID          string

	// Tracking
	Accounts             []string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// Quota
	DailyRequestLimit int
	WarningThreshold  int

	// Storage
	StateDir string

	// HTTP status server
	HTTPAddr string
}

// StatePath is the session state file.
func (c *Config) StatePath() string { return filepath.Join(c.StateDir, "state.json") }

// QuotaPath is the daily request counter file.
func (c *Config) QuotaPath() string { return filepath.Join(c.StateDir, "quota.json") }

// Load reads environment variables and applies defaults. It only fails on values that are
// present but malformed; missing required values are reported by Validate.
func Load() (*Config, error) {
	cfg := &Config{
		DailyRequestLimit: DailyRequestLimit,
		WarningThreshold:  RequestWarningThreshold,
	}

	cfg.FeedURL = os.Getenv("FEED_URL")
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	cfg.FeedAPIKey = os.Getenv("FEED_API_KEY")

	cfg.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFY_BACKEND")))
	if cfg.Backend == "" {
		cfg.Backend = BackendDiscord
	}
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.AlertChannelID = strings.TrimSpace(os.Getenv("ALERT_CHANNEL_ID"))
	cfg.OwnerID = strings.TrimSpace(os.Getenv("OWNER_ID"))

	cfg.Accounts = ParseAccounts(os.Getenv("TRACKED_ACCOUNTS"))

	cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	if v := os.Getenv("MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_RECONNECT_ATTEMPTS %q: must be a positive integer", v)
		}
		cfg.MaxReconnectAttempts = n
	}

	cfg.ReconnectDelay = DefaultReconnectDelay
	if v := os.Getenv("RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RECONNECT_DELAY %q: must be a positive duration", v)
		}
		cfg.ReconnectDelay = d
	}

	cfg.StateDir = os.Getenv("STATE_DIR")
	if cfg.StateDir == "" {
		cfg.StateDir = "data"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ParseAccounts splits a comma-separated list, trimming entries and dropping empty ones.
func ParseAccounts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if a := strings.TrimSpace(part); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks the settings required to run. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.FeedAPIKey == "" {
		errs = append(errs, errors.New("FEED_API_KEY is required"))
	}
	if c.AlertChannelID == "" {
		errs = append(errs, errors.New("ALERT_CHANNEL_ID is required"))
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("TRACKED_ACCOUNTS must list at least one account"))
	}
	switch c.Backend {
	case BackendDiscord:
		if c.DiscordToken == "" {
			errs = append(errs, errors.New("DISCORD_TOKEN is required for the discord backend"))
		}
	case BackendTelegram:
		if c.TelegramBotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram backend"))
		}
		if _, err := strconv.ParseInt(c.AlertChannelID, 10, 64); c.AlertChannelID != "" && err != nil {
			errs = append(errs, fmt.Errorf("ALERT_CHANNEL_ID must be a numeric chat id for the telegram backend: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_BACKEND %q", c.Backend))
	}
	return errors.Join(errs...)
}
