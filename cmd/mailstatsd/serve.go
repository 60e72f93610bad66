package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infodancer/mailstatsd/internal/agent"
	"github.com/infodancer/mailstatsd/internal/config"
	"github.com/infodancer/mailstatsd/internal/logging"
	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/infodancer/mailstatsd/internal/metrics"
	"github.com/infodancer/mailstatsd/internal/publish"
	"github.com/infodancer/mailstatsd/internal/server"
	"github.com/redis/go-redis/v9"
)

func runServe() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	resolver := mailstats.NewResolver(cfg.StatsFormat())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// The exporter shares the registry with the agent's own metrics, so a
	// single scrape covers both.
	exporter := metrics.NewStatsExporter(resolver, cfg.StatisticsFile, cfg.Metrics.MailerNames, logger)
	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	}, exporter)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		publisher := publish.New(publish.Options{
			Client:    client,
			Loader:    resolver,
			Path:      cfg.StatisticsFile,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Interval:  cfg.Redis.PublishInterval(),
			TTL:       cfg.Redis.Expiry(),
			Collector: collector,
			Logger:    logger,
		})
		go func() {
			if err := publisher.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("snapshot publisher error", "error", err)
			}
		}()
	}

	srv, err := server.New(&cfg, logger, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating server: %v\n", err)
		os.Exit(1)
	}

	handler := agent.NewHandler(agent.Config{
		Resolver:       resolver,
		KeyPrefix:      cfg.Agent.GetKeyPrefix(),
		StatisticsFile: cfg.StatisticsFile,
		Collector:      collector,
	})
	srv.SetHandler(handler.Serve)

	logger.Info("starting mailstatsd",
		"statistics_file", cfg.StatisticsFile,
		"listeners", len(cfg.Listeners),
		"key_prefix", cfg.Agent.GetKeyPrefix())

	runErr := srv.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}

	if runErr != nil && runErr != context.Canceled {
		fmt.Fprintf(os.Stderr, "server error: %v\n", runErr)
		os.Exit(1)
	}
}
