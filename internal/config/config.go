// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"freegames_bot/internal/classifier"
)

// DefaultFeedURLs are the GamerPower feeds polled when FEED_URLS is unset.
var DefaultFeedURLs = []string{
	"https://www.gamerpower.com/rss",
	"https://www.gamerpower.com/rss/giveaways",
	"https://www.gamerpower.com/rss/steam",
	"https://www.gamerpower.com/rss/pc",
}

const minEntriesPerSource = 50

// DefaultDatabasePath is used when DATABASE_PATH is unset.
const DefaultDatabasePath = "./data/bot.db"

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	FeedURLs         []string
	PollInterval     time.Duration
	DefaultSources   []string
	ViewLimit        int
	EntriesPerSource int
	SendRate         float64
	Sources          []classifier.RuleSpec
	MetricsAddr      string
	LockPath         string
	FeedSafeClient   bool
}

type sourcesFile struct {
	Sources []classifier.RuleSpec `yaml:"sources"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := DatabasePath()

	var allowedUsers []int64
	for _, s := range splitList(os.Getenv("ALLOWED_USERS")) {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		allowedUsers = append(allowedUsers, uid)
	}

	feedURLs := splitList(os.Getenv("FEED_URLS"))
	if len(feedURLs) == 0 {
		feedURLs = append([]string(nil), DefaultFeedURLs...)
	}

	pollSeconds, err := intEnv("POLL_SECONDS", 900)
	if err != nil {
		return nil, err
	}
	if pollSeconds <= 0 {
		return nil, fmt.Errorf("POLL_SECONDS must be positive, got %d", pollSeconds)
	}

	viewLimit, err := intEnv("VIEW_LIMIT", 15)
	if err != nil {
		return nil, err
	}
	if viewLimit <= 0 {
		return nil, fmt.Errorf("VIEW_LIMIT must be positive, got %d", viewLimit)
	}

	entries, err := intEnv("ENTRIES_PER_SOURCE", minEntriesPerSource)
	if err != nil {
		return nil, err
	}
	if entries < minEntriesPerSource {
		return nil, fmt.Errorf("ENTRIES_PER_SOURCE must be at least %d, got %d", minEntriesPerSource, entries)
	}

	sendRate := 20.0
	if raw := os.Getenv("SEND_RATE"); raw != "" {
		sendRate, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE %q: %w", raw, err)
		}
		if sendRate <= 0 {
			return nil, fmt.Errorf("SEND_RATE must be positive, got %v", sendRate)
		}
	}

	defaults := splitList(strings.ToLower(os.Getenv("DEFAULT_SOURCES")))
	if len(defaults) == 0 {
		defaults = []string{"epic", "steam"}
	}

	var sources []classifier.RuleSpec
	if path := os.Getenv("SOURCES_FILE"); path != "" {
		sources, err = loadSources(path)
		if err != nil {
			return nil, err
		}
	}

	safe := true
	if raw := os.Getenv("FEED_SAFE_CLIENT"); raw != "" {
		safe, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_SAFE_CLIENT %q: %w", raw, err)
		}
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         envOr("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		FeedURLs:         feedURLs,
		PollInterval:     time.Duration(pollSeconds) * time.Second,
		DefaultSources:   defaults,
		ViewLimit:        viewLimit,
		EntriesPerSource: entries,
		SendRate:         sendRate,
		Sources:          sources,
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		LockPath:         envOr("LOCK_PATH", dbPath+".lock"),
		FeedSafeClient:   safe,
	}, nil
}

// DatabasePath returns DATABASE_PATH or DefaultDatabasePath. The bot and the
// migrate tool resolve the database the same way.
func DatabasePath() string {
	return envOr("DATABASE_PATH", DefaultDatabasePath)
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func loadSources(path string) ([]classifier.RuleSpec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read SOURCES_FILE: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse SOURCES_FILE %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("SOURCES_FILE %s defines no sources", path)
	}
	return f.Sources, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
