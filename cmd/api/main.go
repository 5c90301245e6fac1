// Command api is the medminder API server.
//
// Usage:
//
//	medminder-api
//	API_PORT=8080 STORE_DRIVER=sqlite medminder-api

// @title medminder API
// @version 1.0.0
// @description Medication tracking, supply forecasting, dose reminders, and low-stock alerts to family contacts.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @license.name MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/medminder/internal/api"
	"github.com/albapepper/medminder/internal/api/handler"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/cache"
	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/listener"
	"github.com/albapepper/medminder/internal/llm"
	"github.com/albapepper/medminder/internal/logging"
	"github.com/albapepper/medminder/internal/maintenance"
	"github.com/albapepper/medminder/internal/reminder"
	"github.com/albapepper/medminder/internal/store/backend"
	"github.com/albapepper/medminder/internal/voice"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to storage
	logger.Info("Connecting to store...", "driver", cfg.StoreDriver)
	st, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Optional model-backed services
	voiceSvc := voice.NewService(nil, cfg.VoiceMaxBytes, logger)
	if gemini, err := voice.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); err == nil {
		voiceSvc = voice.NewService(gemini, cfg.VoiceMaxBytes, logger)
		logger.Info("Speech-to-text enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Speech-to-text disabled", "reason", err)
	}

	parser := llm.NewParser(nil, appCache)
	if claude, err := llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel); err == nil {
		parser = llm.NewParser(claude, appCache)
		logger.Info("Medication text parsing enabled", "model", cfg.AnthropicModel)
	} else {
		logger.Info("Medication text parsing disabled", "reason", err)
	}

	authn := auth.NewAuthenticator(auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL), st, logger, cfg.IsProduction())
	h := handler.New(handler.Deps{
		Store:   st,
		Cache:   appCache,
		Config:  cfg,
		Auth:    authn,
		Sender:  email.NewSMTPSender(),
		Voice:   voiceSvc,
		Parser:  parser,
		Logger:  logger,
		Matcher: reminder.NewMatcher(cfg.ReminderWindow),
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(h, authn, cfg, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Reminder worker (in-app reminder notifications)
	if cfg.ReminderWorkerEnabled {
		worker := reminder.NewWorker(st, cfg.ReminderWindow, cfg.Location, logger)
		g.Go(func() error {
			worker.Start(gctx, cfg.ReminderInterval)
			return nil
		})
	} else {
		logger.Info("Reminder worker disabled (REMINDER_WORKER_ENABLED=false)")
	}

	// Cross-instance cache invalidation via LISTEN/NOTIFY
	if cfg.StoreDriver == config.DriverPostgres && cfg.CacheEnabled {
		g.Go(func() error {
			listener.Start(gctx, cfg.DatabaseURL, appCache, logger)
			return nil
		})
	}

	// Maintenance tickers (notification cleanup)
	g.Go(func() error {
		maintenance.Start(gctx, st, maintenance.Config{
			CleanupInterval:       cfg.CleanupInterval,
			NotificationRetention: cfg.NotificationRetention,
		}, logger)
		return nil
	})

	// HTTP server
	g.Go(func() error {
		logger.Info("Starting medminder API",
			"addr", addr,
			"environment", cfg.Environment,
			"timezone", cfg.Location.String(),
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Graceful shutdown once a signal arrives or any task fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}
