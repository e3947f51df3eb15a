package main

import (
	"context"
	"errors"
	"os"
	"time"

	"caixa/internal/amqp"
	"caixa/internal/backend"
	"caixa/internal/cli"
	"caixa/internal/core"
	"caixa/internal/scheduler"
	"caixa/internal/services"
	"caixa/internal/worker"

	"golang.org/x/sync/errgroup"
)

// startupWindowDays is how far back the spreadsheet is re-exported on start.
const startupWindowDays = 31

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting caixa-worker")

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
	factory := backend.NewFactory(logger)
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	sched := scheduler.New(context.Background(), loc)
	auditor := services.NewCacheAuditor(res.Ledger, cfg.AuditorConfig())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		sched.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := auditor.Stop(stopCtx); err != nil {
			logger.Warn("Cache auditor stop", "error", err)
		}
	})

	rollover := scheduler.RolloverJob{Processor: services.NewRolloverProcessor(res.Ledger, loc)}
	if err := sched.AddJob(cfg.RolloverSchedule, rollover); err != nil {
		logger.Error("Failed to schedule rollover", "error", err)
		os.Exit(1)
	}

	// open today right away so a worker started mid-day does not wait for midnight
	if err := sched.RunNow(rollover); err != nil {
		logger.Error("Startup rollover failed", "error", err)
	}
	sched.Start()
	if next, ok := sched.Next(); ok {
		logger.Info("Next rollover scheduled", "at", next.Format(time.RFC3339))
	}

	if err := auditor.Start(ctx); err != nil {
		logger.Error("Failed to start cache auditor", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if res.AMQP != nil {
		exporter, err := factory.CreateExporter(ctx, backendCfg)
		if err != nil {
			logger.Error("Failed to initialize exporter", "error", err)
			os.Exit(1)
		}
		syncWorker := worker.NewSyncWorker(res.Ledger, exporter)

		g.Go(func() error {
			today := core.DateOf(time.Now().In(loc))
			logger.Info("Performing startup sync check...")
			if err := syncWorker.StartupSyncCheck(gctx, today.AddDays(-startupWindowDays), today); err != nil {
				logger.Error("Failed startup sync check", "error", err)
			}
			return consume(gctx, res.AMQP, syncWorker)
		})
	} else {
		logger.Info("Skipping spreadsheet sync - no AMQP broker available")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", "error", err)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

func consume(ctx context.Context, client *amqp.Client, w *worker.SyncWorker) error {
	err := client.ConsumeDayUpdated(ctx, w.HandleDayUpdated)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
