package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// Agent pipeline tasks
	TypeExecuteRun = "agent_run:execute"

	// Cost accounting tasks
	TypeCostRollup = "costs:rollup"
)

// RunPayload is the payload for agent run tasks
type RunPayload struct {
	RunID string `json:"run_id"`
}

// RollupPayload is the payload for cost rollup tasks
type RollupPayload struct {
	Day string `json:"day"` // YYYY-MM-DD (UTC)
}

// NewExecuteRunTask creates a task to execute an agent pipeline run
func NewExecuteRunTask(runID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RunPayload{
		RunID: runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeExecuteRun, payload), nil
}

// NewCostRollupTask creates a task to aggregate one day of step costs
func NewCostRollupTask(day string) (*asynq.Task, error) {
	payload, err := json.Marshal(RollupPayload{
		Day: day,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeCostRollup, payload), nil
}

// ParseRunPayload parses an agent run payload from an Asynq task
func ParseRunPayload(task *asynq.Task) (RunPayload, error) {
	var payload RunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

// ParseRollupPayload parses a cost rollup payload from an Asynq task
func ParseRollupPayload(task *asynq.Task) (RollupPayload, error) {
	var payload RollupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
