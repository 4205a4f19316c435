package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visa_broker_backend/internal/adapters"
	agentsrepo "visa_broker_backend/internal/agents/repository"
	agentservice "visa_broker_backend/internal/agents/service"
	"visa_broker_backend/internal/events"
	"visa_broker_backend/internal/scheduler"
	visasrepo "visa_broker_backend/internal/visas/repository"
	visaservice "visa_broker_backend/internal/visas/service"
	"visa_broker_backend/platform/config"
	"visa_broker_backend/platform/db"
	"visa_broker_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// Worker-side visa lifecycle wiring (no HTTP handlers required).
	agentsService := agentservice.NewService(agentsrepo.New(pool))
	agentDirectory := adapters.NewAgentDirectoryAdapter(agentsService)
	visasService := visaservice.NewService(visasrepo.New(pool), agentDirectory, eventBus, cfg, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	sweep := scheduler.NewDeadlineSweep(pool, client, log, cfg.GetDeadlineSweepInterval(), cfg.GetDeadlineSweepBatchSize())
	go sweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, visasService, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
