package workers

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/relayd-dev/relayd/internal/orchestrator"
	"github.com/relayd-dev/relayd/internal/tasks"
)

// HandleExecuteRun executes an agent pipeline run
// This is a thin adapter that delegates to the orchestrator; the breaker
// registry inside the orchestrator is shared across tasks so failure
// history carries between runs.
func HandleExecuteRun(ctx context.Context, t *asynq.Task, orch *orchestrator.Orchestrator, logger zerolog.Logger) error {
	payload, err := tasks.ParseRunPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.Info().Str("run_id", payload.RunID).Msg("Executing agent run")

	if err := orch.Execute(ctx, payload.RunID); err != nil {
		// Business failures are already persisted on the run record;
		// retrying the task cannot change the outcome. Only
		// infrastructure errors should reach asynq's retry machinery.
		if orchestrator.IsPipelineError(err) {
			logger.Warn().Err(err).Str("run_id", payload.RunID).Msg("Run finished in failed state")
			return nil
		}
		return fmt.Errorf("failed to execute run: %w", err)
	}

	return nil
}
