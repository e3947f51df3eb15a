package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"caixa/internal/backend"
	"caixa/internal/cli"
	apphttp "caixa/internal/http"
	applog "caixa/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	opts := apphttp.Options{
		Logger:                 applog.New(applog.Config{Handler: logger.Handler(), Component: applog.ComponentHTTP}),
		SitePassword:           cfg.SitePassword,
		SessionTTL:             cfg.SessionTTL,
		LoginAttemptsPerMinute: cfg.LoginAttemptsPerMinute,
		Location:               loc,
	}
	if p, ok := res.Ledger.Store().(interface{ Ping(context.Context) error }); ok {
		opts.Ready = p.Ping
	}
	srv := apphttp.NewServer(":"+cfg.Port, res.Ledger, opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting caixa server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone,
		"password_gate", cfg.SitePassword != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
