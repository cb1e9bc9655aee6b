package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"hdbdash/internal/backend"
	"hdbdash/internal/cli"
	apphttp "hdbdash/internal/http"
	"hdbdash/internal/log"
	"hdbdash/internal/observability"
	"hdbdash/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics("hdbdash")
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger, metrics).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	dashboard := services.NewDashboardService(result.Fetcher,
		services.WithFetchLimit(cfg.ResaleFetchLimit),
		services.WithConcurrency(cfg.FetchConcurrency),
		services.WithDashboardLogger(logger),
		services.WithDashboardMetrics(metrics),
	)

	srv := apphttp.NewServer(cfg.Addr(), dashboard,
		apphttp.WithLogger(logger),
		apphttp.WithMetrics(metrics),
	)

	// Upstream fetches can take up to the fetch timeout; leave room to render.
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.ResaleFetchTimeout + 15*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		if result.Cleanup != nil {
			if cerr := result.Cleanup(); cerr != nil {
				logger.Error("Backend cleanup error", log.FieldError, cerr)
			}
		}
		return err
	})

	logger.Info("Starting hdbdash server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"metrics", cfg.MetricsEnabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
