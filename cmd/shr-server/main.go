// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Command shr-server is the HTTP relay shr uploads bundles to and
// downloads them from. Settings come from the server section of the
// shrlink config file; flags override individual values.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/lib/bundleserver"
	"github.com/shrlink/shrlink/lib/bundlestore"
	"github.com/shrlink/shrlink/lib/clock"
	"github.com/shrlink/shrlink/lib/config"
	"github.com/shrlink/shrlink/lib/service"
	"github.com/shrlink/shrlink/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion     bool
		configPath      string
		listen          string
		storageDir      string
		maxUploadBytes  int64
		cacheBytes      int64
		logLevel        string
		cleanupInterval time.Duration
	)
	flagSet := pflag.NewFlagSet("shr-server", pflag.ExitOnError)
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.StringVarP(&configPath, "config", "c", "", "config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&listen, "listen", "", "TCP listen address (overrides server.listen)")
	flagSet.StringVar(&storageDir, "storage-dir", "", "bundle directory (overrides server.storage_dir)")
	flagSet.Int64Var(&maxUploadBytes, "max-upload-bytes", 0, "largest accepted upload (overrides server.max_upload_bytes)")
	flagSet.Int64Var(&cacheBytes, "cache-bytes", -1, "download cache budget, 0 disables (overrides server.cache_bytes)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	flagSet.DurationVar(&cleanupInterval, "cleanup-interval", 0, "delete bundles older than fallback.expiry_secs this often (0 disables)")
	flagSet.Parse(os.Args[1:])

	if showVersion {
		fmt.Printf("shr-server %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := service.NewLogger(level)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if storageDir != "" {
		cfg.Server.StorageDir = storageDir
	}
	if maxUploadBytes > 0 {
		cfg.Server.MaxUploadBytes = maxUploadBytes
	}
	if cacheBytes >= 0 {
		cfg.Server.CacheBytes = cacheBytes
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bundlestore.New(cfg.Server.StorageDir, clock.Real(), logger)
	if err != nil {
		return fmt.Errorf("opening bundle store: %w", err)
	}
	server, err := bundleserver.New(bundleserver.Config{
		Store:          store,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CacheBytes:     cfg.Server.CacheBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer server.Close()

	// An expiry of zero would delete every bundle on each tick.
	if cleanupInterval > 0 && cfg.Fallback.Expiry() > 0 {
		go runPeriodicCleanup(ctx, server, clock.Real(), cleanupInterval, cfg.Fallback.Expiry(), logger)
	}

	logger.Info("shr-server starting",
		"version", version.Info(),
		"storage_dir", store.Dir(),
		"max_upload_bytes", cfg.Server.MaxUploadBytes,
		"cache_bytes", cfg.Server.CacheBytes,
	)

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Server.Listen,
		Handler: server.Handler(),
		Logger:  logger,
	})
	return httpServer.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// cleaner deletes bundles older than maxAge. [bundleserver.Server]
// implements it, evicting its download cache along with the files.
type cleaner interface {
	Cleanup(maxAge time.Duration) (int, error)
}

// runPeriodicCleanup deletes expired bundles every interval until ctx
// is cancelled.
func runPeriodicCleanup(ctx context.Context, target cleaner, clk clock.Clock, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := target.Cleanup(maxAge)
			if err != nil {
				logger.Error("periodic cleanup failed", "deleted", deleted, "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("periodic cleanup", "deleted", deleted, "max_age", maxAge)
			}
		}
	}
}
