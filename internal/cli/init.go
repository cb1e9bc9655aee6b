// Package cli provides common CLI initialization utilities shared by the
// commands under cmd/.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hdbdash/internal/config"
	"hdbdash/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// NewLogger builds the application logger from the configured level and format.
func NewLogger(cfg *config.Config, out io.Writer) *log.Logger {
	return log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    out,
	})
}

// SetupLogger initializes structured logging from the config.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := NewLogger(cfg, os.Stdout)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Logging is not configured yet; use the bootstrap logger.
		log.Default(log.ComponentApp).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// shutdown runs with a context bounded by timeout once SIGINT or SIGTERM
// arrives. The returned channel closes when shutdown has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, shutdown func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if shutdown != nil {
			if err := shutdown(ctx); err != nil {
				logger.Error("Shutdown error", log.FieldError, err)
				return
			}
		}
		logger.Info("Shutdown complete")
	}()

	return done
}
