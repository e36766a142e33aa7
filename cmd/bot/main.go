package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"freegames_bot/internal/bot"
	"freegames_bot/internal/classifier"
	"freegames_bot/internal/config"
	"freegames_bot/internal/delivery"
	"freegames_bot/internal/fetcher"
	"freegames_bot/internal/metrics"
	"freegames_bot/internal/scheduler"
	"freegames_bot/internal/storage"
)

const fetchTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("bot failed", "error", err)
		os.Exit(1)
	}
}

// run wires the bot and blocks until SIGINT or SIGTERM.
func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	lock := flock.New(cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockPath, err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", cfg.LockPath)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	cls, err := classifier.New(cfg.Sources)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}
	defaults, unknown := cls.ParseTags(cfg.DefaultSources)
	if len(unknown) > 0 {
		return fmt.Errorf("unknown default sources: %v", unknown)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	agg := fetcher.NewAggregator(
		fetcher.New(fetcher.NewHTTPClient(cfg.FeedSafeClient, fetchTimeout)),
		cls, cfg.EntriesPerSource, log)
	agg.SetRecorder(collector)

	b, err := bot.New(cfg.TelegramBotToken, store, cls, defaults, cfg, log)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	engine := delivery.New(store, b, delivery.Options{
		Defaults:  defaults,
		ViewLimit: cfg.ViewLimit,
		SendRate:  cfg.SendRate,
	}, log)
	b.SetDelivery(agg, engine)

	sched := scheduler.New(agg, engine, cfg.FeedURLs, cfg.PollInterval, log)
	sched.SetRecorder(collector)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Router(reg, sched),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("starting bot",
		"feeds", len(cfg.FeedURLs),
		"interval", cfg.PollInterval,
		"sources", len(cls.Tags()))

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
