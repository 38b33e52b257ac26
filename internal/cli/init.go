// Package cli wires configuration, logging, storage and the HTTP shell
// together for cmd/billbuddy.
package cli

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

	"golang.org/x/sync/errgroup"

	"billbuddy/internal/config"
	apphttp "billbuddy/internal/http"
	applog "billbuddy/internal/log"
	"billbuddy/internal/services"
	"billbuddy/internal/storage"
)

// SetupLogger builds the process logger at the given level and installs it
// as the slog default. An unknown level falls back to info.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig(logger *applog.Logger) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithComponent(applog.ComponentConfig).ErrorContext(context.Background(),
			"Configuration validation failed", applog.NewFields().WithError(err).ToSlice()...)
		return nil, err
	}
	return cfg, nil
}

// InitStore opens the expense database, creating and migrating it if needed.
func InitStore(ctx context.Context, logger *applog.Logger, dbPath string) (*storage.SQLiteStore, error) {
	store, err := storage.Open(ctx, dbPath, storage.WithLogger(logger))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to open expense store", applog.FieldError, err, "path", dbPath)
		return nil, err
	}
	logger.InfoContext(ctx, "Expense store ready", "path", dbPath)
	return store, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run loads everything from cfg and serves until ctx is cancelled, then
// drains the server within the configured timeout and closes the store.
func Run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	store, err := InitStore(ctx, logger, cfg.DBPath)
	if err != nil {
		return err
	}
	svc := services.NewExpenseService(store, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close expense store", applog.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(cfg.Addr(), svc, logger,
		apphttp.WithDefaultCurrency(cfg.DefaultCurrency),
		apphttp.WithPinger(store),
		apphttp.WithRateLimit(120, time.Minute),
	)
	return Serve(ctx, srv, cfg.ShutdownTimeout, logger)
}

// Serve runs srv until ctx is done or the listener fails.
func Serve(ctx context.Context, srv *apphttp.Server, timeout time.Duration, logger *applog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting billbuddy server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.LogContext(ctx, slog.LevelError, "Server stopped with error", applog.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
