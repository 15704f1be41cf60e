package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otcdesk/audit"
	"otcdesk/config"
	"otcdesk/core/events"
	"otcdesk/core/pricing"
	"otcdesk/observability"
	"otcdesk/observability/logging"
	telemetry "otcdesk/observability/otel"
	"otcdesk/rpc"
	"otcdesk/storage"
)

func main() {
	configFile := flag.String("config", "./otcdeskd.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Setup("otcdeskd", "info").Error("load config", "path", *configFile, "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("otcdeskd", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Otel.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Otel.ServiceName,
			Endpoint:    cfg.Otel.Endpoint,
			Insecure:    cfg.Otel.Insecure,
		})
		if err != nil {
			logger.Error("init telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	journal, err := audit.Open(cfg.AuditDatabasePath, logger)
	if err != nil {
		logger.Error("open audit journal", "path", cfg.AuditDatabasePath, "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	feeds := pricing.NewStaticFeeds()
	for _, source := range cfg.Feeds {
		feedID, err := source.DecodedFeedID()
		if err != nil {
			logger.Error("configure feed", "feed", source.Name, "error", err)
			os.Exit(1)
		}
		poller := pricing.NewHTTPSource(source.Endpoint, feedID,
			time.Duration(source.IntervalSecs)*time.Second, feeds, logger.With("feed", source.Name))
		go poller.Run(ctx)
		logger.Info("feed poller started", "feed", source.Name, "endpoint", source.Endpoint)
	}

	emitter := events.MultiEmitter{journal, observability.NewEventRecorder()}

	server := rpc.NewServer(rpc.ServerConfig{
		Store:      store,
		Feeds:      feeds,
		Emitter:    emitter,
		Journal:    journal,
		Logger:     logger,
		AdminToken: cfg.Auth.AdminToken,
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve rpc", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}
