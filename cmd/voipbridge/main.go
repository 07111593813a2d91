package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voipbridge/voipbridge/internal/api"
	"github.com/voipbridge/voipbridge/internal/archive"
	"github.com/voipbridge/voipbridge/internal/call"
	"github.com/voipbridge/voipbridge/internal/config"
	"github.com/voipbridge/voipbridge/internal/database"
	"github.com/voipbridge/voipbridge/internal/metrics"
	"github.com/voipbridge/voipbridge/internal/pbx"
	"github.com/voipbridge/voipbridge/internal/presence"
	"github.com/voipbridge/voipbridge/internal/recording"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voipbridge",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Repositories.
	servers := database.NewServerRepository(db)
	users := database.NewVoIPUserRepository(db)
	contacts := database.NewContactRepository(db)
	calls := database.NewCallRepository(db)
	recordings := database.NewRecordingRepository(db)
	events := database.NewEventRepository(db)
	holdMusic := database.NewHoldMusicRepository(db)

	// Domain services.
	reconciler := call.NewService(calls, contacts)
	recorder := recording.NewService(recordings, users, contacts, reconciler)
	presenceEngine := presence.NewEngine(users)

	// Optional PostgreSQL event archive.
	var eventArchive api.EventArchiver
	if cfg.ArchiveDSN != "" {
		store, err := archive.New(cfg.ArchiveDSN)
		if err != nil {
			slog.Error("failed to open event archive", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		eventArchive = store
	}

	// Recording retention.
	if cfg.RecordingMaxDays > 0 {
		recording.StartRetentionTicker(appCtx, recordings, cfg.RecordingMaxDays, time.Hour)
	}

	// Prometheus metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(calls, users, recordings, events, startTime))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	// JWT signing secret for softphone tokens.
	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// HTTP server using the api package.
	handler := api.NewServer(api.Deps{
		Cfg:        cfg,
		JWTSecret:  jwtSecret,
		Servers:    servers,
		Users:      users,
		Contacts:   contacts,
		Calls:      calls,
		Recordings: recordings,
		Events:     events,
		HoldMusic:  holdMusic,
		Reconciler: reconciler,
		Recorder:   recorder,
		Presence:   presenceEngine,
		Probe:      pbx.NewClient(cfg.AMIUsername, cfg.AMIPassword, 10*time.Second),
		Archive:    eventArchive,
		Metrics:    metricsHandler,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voipbridge stopped")
}
