package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewatch/internal/admin"
	"pricewatch/internal/catalog"
	"pricewatch/internal/config"
	"pricewatch/internal/detect"
	"pricewatch/internal/lifecycle"
	"pricewatch/internal/pipeline"
	"pricewatch/internal/publish"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/settings"
	"pricewatch/internal/source"
	"pricewatch/internal/storage"
	"pricewatch/internal/telemetry"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "pricewatch")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("database ready")

	cat := catalog.NewService(db)
	engine := detect.NewEngine(db)
	settingsMgr := settings.NewManager(db, cfg.Defaults)

	window := publish.NewWindow(cfg.Defaults.PublishRatePerHour, time.Hour)
	delivery := publish.NewTelegram(cfg.BotToken, cfg.Channel, window, log)

	wb := source.NewWildberries(log)

	runner := pipeline.NewRunner(pipeline.Options{
		Engine:     engine,
		Catalog:    cat,
		Settings:   settingsMgr,
		Delivery:   delivery,
		Lifecycle:  lifecycle.NewManager(cat, log),
		Window:     window,
		Filter:     cfg.Filter,
		BatchSize:  cfg.BatchSize,
		BatchPause: cfg.BatchPause,
		Logger:     log,
	}, wb)

	adminHandler := admin.NewHandler(runner, cat, settingsMgr,
		cfg.AdminTokenHash, cfg.AdminTokenSalt, log)
	adminServer := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           adminHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("admin API listening", "addr", cfg.AdminAddr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "error", err)
		}
	}()

	// First cycle stores baselines without publishing anything new-item
	// shaped; running it before the scheduler keeps startup deterministic.
	for _, platform := range runner.Platforms() {
		log.Info("initial sync", "platform", platform)
		if err := runner.RunPlatform(ctx, platform); err != nil && !errors.Is(err, pipeline.ErrRunInFlight) {
			log.Warn("initial sync failed", "platform", platform, "error", err)
		}
	}

	sched := scheduler.New(log)
	sched.Add("wb", cfg.WBInterval, func(ctx context.Context) error {
		return runner.RunPlatform(ctx, "wb")
	})
	sched.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return adminServer.Shutdown(shutdownCtx)
}
