package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"freegames_bot/internal/classifier"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"FEED_URLS", "POLL_SECONDS", "DEFAULT_SOURCES", "VIEW_LIMIT",
	"ENTRIES_PER_SOURCE", "SEND_RATE", "SOURCES_FILE", "METRICS_ADDR",
	"LOCK_PATH", "FEED_SAFE_CLIENT",
}

// defaults returns the config produced by a token-only environment.
func defaults(token string) *Config {
	return &Config{
		TelegramBotToken: token,
		DatabasePath:     "./data/bot.db",
		LogLevel:         "info",
		FeedURLs:         DefaultFeedURLs,
		PollInterval:     900 * time.Second,
		DefaultSources:   []string{"epic", "steam"},
		ViewLimit:        15,
		EntriesPerSource: 50,
		SendRate:         20,
		LockPath:         "./data/bot.db.lock",
		FeedSafeClient:   true,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: func() *Config { return defaults("test-token") },
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/tmp/bot.db",
				"LOG_LEVEL":          "debug",
				"ALLOWED_USERS":      "111,222,333",
				"FEED_URLS":          "https://a.example/rss, https://b.example/rss",
				"POLL_SECONDS":       "60",
				"DEFAULT_SOURCES":    "GOG,prime",
				"VIEW_LIMIT":         "5",
				"ENTRIES_PER_SOURCE": "80",
				"SEND_RATE":          "2.5",
				"METRICS_ADDR":       ":9090",
				"LOCK_PATH":          "/run/bot.lock",
				"FEED_SAFE_CLIENT":   "false",
			},
			want: func() *Config {
				return &Config{
					TelegramBotToken: "tok",
					DatabasePath:     "/tmp/bot.db",
					LogLevel:         "debug",
					AllowedUsers:     []int64{111, 222, 333},
					FeedURLs:         []string{"https://a.example/rss", "https://b.example/rss"},
					PollInterval:     time.Minute,
					DefaultSources:   []string{"gog", "prime"},
					ViewLimit:        5,
					EntriesPerSource: 80,
					SendRate:         2.5,
					MetricsAddr:      ":9090",
					LockPath:         "/run/bot.lock",
				}
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name: "lock path follows database path",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/var/lib/bot/free.db",
			},
			want: func() *Config {
				c := defaults("tok")
				c.DatabasePath = "/var/lib/bot/free.db"
				c.LockPath = "/var/lib/bot/free.db.lock"
				return c
			},
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "POLL_SECONDS": "0"},
			wantErr: true,
		},
		{
			name:    "non numeric poll interval",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "POLL_SECONDS": "15m"},
			wantErr: true,
		},
		{
			name:    "entry cap below minimum",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "ENTRIES_PER_SOURCE": "10"},
			wantErr: true,
		},
		{
			name:    "negative view limit",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "VIEW_LIMIT": "-1"},
			wantErr: true,
		},
		{
			name:    "zero send rate",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "SEND_RATE": "0"},
			wantErr: true,
		},
		{
			name:    "invalid safe client flag",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "FEED_SAFE_CLIENT": "maybe"},
			wantErr: true,
		},
		{
			name:    "missing sources file",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "SOURCES_FILE": "/nonexistent/sources.yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadSourcesFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []classifier.RuleSpec
		wantErr bool
	}{
		{
			name: "ordered rules",
			content: `sources:
  - tag: steam
    patterns: ['\bsteam\b']
  - tag: itch
    patterns: ['itch\.io', '\bitch\b']
`,
			want: []classifier.RuleSpec{
				{Tag: "steam", Patterns: []string{`\bsteam\b`}},
				{Tag: "itch", Patterns: []string{`itch\.io`, `\bitch\b`}},
			},
		},
		{
			name:    "no sources",
			content: "sources: []\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: "sources: [tag: {\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			path := filepath.Join(t.TempDir(), "sources.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write sources file: %v", err)
			}
			t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
			t.Setenv("SOURCES_FILE", path)

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Sources); diff != "" {
				t.Errorf("Sources mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	t.Run("default matches Load", func(t *testing.T) {
		for _, key := range envKeys {
			t.Setenv(key, "")
		}
		t.Setenv("TELEGRAM_BOT_TOKEN", "tok")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if diff := cmp.Diff(DefaultDatabasePath, DatabasePath()); diff != "" {
			t.Errorf("database path mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(cfg.DatabasePath, DatabasePath()); diff != "" {
			t.Errorf("bot and tools disagree (-want +got):\n%s", diff)
		}
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv("DATABASE_PATH", "/var/lib/freegames/bot.db")
		if diff := cmp.Diff("/var/lib/freegames/bot.db", DatabasePath()); diff != "" {
			t.Errorf("database path mismatch (-want +got):\n%s", diff)
		}
	})
}
