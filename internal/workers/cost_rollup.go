package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/costs"
	"github.com/relayd-dev/relayd/internal/models"
	"github.com/relayd-dev/relayd/internal/tasks"
)

// HandleCostRollup aggregates one day of step costs and prunes old runs
func HandleCostRollup(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseRollupPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	day, err := time.Parse("2006-01-02", payload.Day)
	if err != nil {
		return fmt.Errorf("invalid rollup day %q: %w", payload.Day, err)
	}

	service := costs.NewService(db, logger)
	if _, err := service.RollupDay(ctx, day); err != nil {
		return fmt.Errorf("failed to roll up costs: %w", err)
	}

	// Update rollup timestamps on the config singleton
	var config models.Config
	if err := db.First(&config).Error; err == nil {
		now := time.Now()
		updates := map[string]interface{}{
			"last_rollup_at": now,
		}
		if next := calculateNextRollup(config.CostRollupSchedule, now); next != nil {
			updates["next_rollup_at"] = next
		}
		if err := db.Model(&config).Updates(updates).Error; err != nil {
			logger.Error().Err(err).Msg("Failed to update rollup timestamps")
		}
	}

	// Prune finished runs past the retention window (non-fatal)
	if err := pruneOldRuns(db, logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune old runs (non-fatal)")
	}

	return nil
}

// pruneOldRuns deletes finished runs older than the configured retention
func pruneOldRuns(db *gorm.DB, logger zerolog.Logger) error {
	var config models.Config
	if err := db.First(&config).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	if config.MaxRunAgeDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -config.MaxRunAgeDays)
	terminal := []string{models.RunCompleted, models.RunFailed, models.RunCanceled}

	var stale []models.AgentRun
	if err := db.Where("status IN ? AND created_at < ?", terminal, cutoff).Find(&stale).Error; err != nil {
		return fmt.Errorf("failed to find stale runs: %w", err)
	}
	if len(stale) == 0 {
		logger.Debug().Msg("No stale runs to prune")
		return nil
	}

	logger.Info().
		Int("count", len(stale)).
		Time("cutoff", cutoff).
		Msg("Pruning stale runs")

	for _, run := range stale {
		// Steps first, then the run; each run independently so one
		// failure doesn't block the rest
		if err := db.Where("run_id = ?", run.ID).Delete(&models.AgentStep{}).Error; err != nil {
			logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to delete run steps")
			continue
		}
		if err := db.Delete(&run).Error; err != nil {
			logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to delete stale run")
		}
	}

	return nil
}

// StartRollupScheduler runs a periodic check (every minute) for due rollups
func StartRollupScheduler(client *asynq.Client, db *gorm.DB, logger zerolog.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Run immediately on startup, then every minute
	checkAndEnqueueRollup(client, db, logger)

	for range ticker.C {
		checkAndEnqueueRollup(client, db, logger)
	}
}

func checkAndEnqueueRollup(client *asynq.Client, db *gorm.DB, logger zerolog.Logger) {
	// Load the singleton config
	var config models.Config
	err := db.First(&config).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			logger.Debug().Msg("No config found - skipping rollup check")
			return
		}
		logger.Error().Err(err).Msg("Failed to query config for rollup")
		return
	}

	if config.CostRollupSchedule == "" {
		logger.Debug().Msg("No cost rollup schedule configured")
		return
	}

	now := time.Now()
	if config.NextRollupAt == nil {
		// First scheduler pass after the schedule was configured
		next := calculateNextRollup(config.CostRollupSchedule, now)
		if next == nil {
			logger.Error().Str("schedule", config.CostRollupSchedule).Msg("Invalid rollup cron expression")
			return
		}
		if err := db.Model(&config).Update("next_rollup_at", next).Error; err != nil {
			logger.Error().Err(err).Msg("Failed to seed next rollup time")
		}
		return
	}

	if config.NextRollupAt.After(now) {
		logger.Debug().
			Time("next_rollup_at", *config.NextRollupAt).
			Msg("Rollup not due yet")
		return
	}

	// Roll up the previous UTC day
	day := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	task, err := tasks.NewCostRollupTask(day)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create rollup task")
		return
	}

	if _, err := client.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(3)); err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue rollup task")
		return
	}

	// Advance the schedule so the next tick doesn't re-enqueue
	if next := calculateNextRollup(config.CostRollupSchedule, now); next != nil {
		if err := db.Model(&config).Update("next_rollup_at", next).Error; err != nil {
			logger.Error().Err(err).Msg("Failed to advance next rollup time")
		}
	}

	logger.Info().Str("day", day).Msg("Cost rollup enqueued")
}

// calculateNextRollup calculates the next run time from a cron schedule
func calculateNextRollup(cronExpr string, from time.Time) *time.Time {
	if cronExpr == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil
	}

	next := schedule.Next(from)
	return &next
}
