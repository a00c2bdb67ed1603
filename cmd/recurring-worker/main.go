package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"finledger/internal/amqp"
	"finledger/internal/config"
	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/services"
	"finledger/internal/storage"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(log.ParseLevel(cfg.LogLevel), log.ComponentWorker)

	logger.Info("Starting recurring-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Event publishing is optional: without a broker the worker still
	// materializes transactions, it just emits nothing downstream.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			events = nil
		} else {
			defer events.Close()
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - no ledger events will be published")
	}

	engine := services.NewCatchUpEngine(repo, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Catch-up worker configured",
		"interval", cfg.CatchUpInterval,
		"concurrency", cfg.CatchUpConcurrency,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.CatchUpInterval)
	defer ticker.Stop()

	// Initial run on startup, then one run per tick.
	runCatchUp(ctx, logger, repo, engine, cfg.CatchUpConcurrency)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCatchUp(ctx, logger, repo, engine, cfg.CatchUpConcurrency)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	logger.Info("Recurring-worker shutdown complete")
}

// runCatchUp fans catch-up out across every user with active schedules.
// Users are independent; per-user ordering is enforced inside the engine.
func runCatchUp(ctx context.Context, logger *slog.Logger, repo *storage.Repository, engine *services.CatchUpEngine, concurrency int) {
	today := core.DateOf(time.Now())

	userIDs, err := repo.Queries().ListActiveUserIDs(ctx)
	if err != nil {
		logger.Error("Failed to list users with active schedules", log.FieldError, err)
		return
	}
	if len(userIDs) == 0 {
		logger.Debug("No active schedules to process")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	total := 0
	results := make(chan int, len(userIDs))
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			count, err := engine.CatchUp(gctx, userID, today)
			if err != nil {
				logger.Error("Catch-up run failed for user", log.FieldUserID, userID, log.FieldError, err)
				return nil // one user's failure must not stop the others
			}
			results <- count
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for count := range results {
		total += count
	}

	logger.Info("Catch-up run complete",
		"users", len(userIDs),
		log.FieldProcessed, total,
		"date", today.String())
}
