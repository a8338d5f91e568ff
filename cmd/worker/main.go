package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/relayd-dev/relayd/internal/breaker"
	"github.com/relayd-dev/relayd/internal/config"
	"github.com/relayd-dev/relayd/internal/events"
	"github.com/relayd-dev/relayd/internal/logger"
	"github.com/relayd-dev/relayd/internal/models"
	"github.com/relayd-dev/relayd/internal/orchestrator"
	"github.com/relayd-dev/relayd/internal/server"
	"github.com/relayd-dev/relayd/internal/tasks"
	"github.com/relayd-dev/relayd/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	log.Info().Str("version", version).Msg("Starting Relayd Asynq worker")

	// Initialize database (reuse server's database initialization)
	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server (needed for DB)")
	}
	db := srv.GetDB()

	// Initialize Asynq client (for the rollup scheduler)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})
	defer asynqClient.Close()

	// Breaker tuning comes from the stored configuration; before first
	// setup there is no row yet, so fall back to model defaults
	appConfig := models.Config{BreakerFailureThreshold: 5, BreakerCooldownSeconds: 30}
	if err := db.First(&appConfig).Error; err != nil {
		log.Warn().Err(err).Msg("No application config found, using default breaker tuning")
	}
	breakers := breaker.NewRegistry(
		appConfig.BreakerFailureThreshold,
		time.Duration(appConfig.BreakerCooldownSeconds)*time.Second,
		log,
	)

	// Event bus carries run progress to the API process
	eventBus := events.NewBus(cfg.Redis.Address, log)
	defer eventBus.Close()

	orch := orchestrator.NewDefault(db, breakers, eventBus, log)

	// Initialize Asynq server
	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		},
		asynq.Config{
			Concurrency: 10, // Number of concurrent workers
			Queues: map[string]int{
				"critical": 6, // 60% of workers for pipeline runs
				"default":  3, // 30% of workers for the default queue
				"low":      1, // 10% of workers for rollups and pruning
			},
			// Logging
			Logger: &asynqLogger{log: log},
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()

	mux.HandleFunc(tasks.TypeExecuteRun, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleExecuteRun(ctx, t, orch, log)
	})
	mux.HandleFunc(tasks.TypeCostRollup, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleCostRollup(ctx, t, db, log)
	})

	// Start rollup scheduler goroutine (checks every minute for due rollups)
	go workers.StartRollupScheduler(asynqClient, db, log)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	// Shutdown Asynq server gracefully
	log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish...")
	asynqServer.Shutdown()

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
