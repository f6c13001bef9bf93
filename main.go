package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vidtok/cache"
	"vidtok/db"
	"vidtok/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("reading .env", "err", err)
	}
	cfg := loadConfig()

	logger, logFile := logging.Setup(logging.Options{
		File:        cfg.LogFile,
		DedupWindow: cfg.LogDedupWindow,
		Deny:        cfg.LogDeny,
		Level:       cfg.LogLevel,
	})
	defer logFile.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBDriver, cfg.dsn())
	if err != nil {
		return err
	}
	defer database.Close()

	app, err := newApp(ctx, cfg, logger, database, newResolver(cfg))
	if err != nil {
		return err
	}

	var bg sync.WaitGroup
	background := func(fn func(context.Context)) {
		bg.Add(1)
		go func() {
			defer bg.Done()
			fn(ctx)
		}()
	}
	background(func(ctx context.Context) { app.limiter.Run(ctx, time.Minute) })
	background(app.pruneViewed)
	if cfg.CacheEvictTTL > 0 || cfg.CacheMaxBytes > 0 {
		background(func(ctx context.Context) {
			app.cache.RunJanitor(ctx, cache.JanitorConfig{TTL: cfg.CacheEvictTTL, MaxBytes: cfg.CacheMaxBytes})
		})
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("vidtok listening", "addr", srv.Addr, "cache", cfg.CacheDir, "resolver", cfg.Resolver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		stop()
		bg.Wait()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "err", err)
	}
	bg.Wait()
	if err := app.cache.Purge(); err != nil {
		logger.Warn("cache purge", "err", err)
	}
	logger.Info("server shut down")
	return nil
}
