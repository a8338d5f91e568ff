package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/breaker"
	"github.com/relayd-dev/relayd/internal/costs"
	"github.com/relayd-dev/relayd/internal/events"
	"github.com/relayd-dev/relayd/internal/models"
)

// SupervisorName identifies the built-in supervisor
const SupervisorName = "supervisor"

// ErrRunCanceled is returned when a run was canceled mid-pipeline
var ErrRunCanceled = errors.New("run canceled")

// ErrRunFailed marks errors whose run already reached a persisted
// terminal state; retrying the task cannot change the outcome
var ErrRunFailed = errors.New("run failed")

// IsPipelineError reports whether the run behind err is terminally failed
func IsPipelineError(err error) bool {
	return errors.Is(err, ErrRunFailed)
}

// Orchestrator drives supervisor pipelines
// It manages the lifecycle of agent runs: plan, execute sub-agents in
// order, accumulate context, validate handoffs, and persist the outcome.
type Orchestrator struct {
	db        *gorm.DB
	registry  *Registry
	contracts *ContractBook
	breakers  *breaker.Registry
	pricing   costs.Pricing
	publisher events.Publisher
	logger    zerolog.Logger
}

// New creates an orchestrator with explicit components
func New(db *gorm.DB, registry *Registry, contracts *ContractBook, breakers *breaker.Registry, publisher events.Publisher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		db:        db,
		registry:  registry,
		contracts: contracts,
		breakers:  breakers,
		pricing:   costs.DefaultPricing(),
		publisher: publisher,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// NewDefault wires the built-in agents, contracts, and local completer
// The breaker registry is shared across runs so failure history survives
// between pipeline executions.
func NewDefault(db *gorm.DB, breakers *breaker.Registry, publisher events.Publisher, logger zerolog.Logger) *Orchestrator {
	return New(db, DefaultRegistry(LocalCompleter{}), DefaultContracts(), breakers, publisher, logger)
}

// PlanSequence decides which sub-agents handle a message
// Questions and longer requests get the research step; short statements
// go straight from planning to the reply.
func PlanSequence(input string) []string {
	if strings.Contains(input, "?") || len(strings.Fields(input)) > 12 {
		return []string{"planner", "researcher", "summarizer"}
	}
	return []string{"planner", "summarizer"}
}

// Execute runs the pipeline for an agent run record
// The run must be in pending state; terminal failures are persisted on
// the run before the error is returned.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	var run models.AgentRun
	if err := o.db.Where("id = ?", runID).First(&run).Error; err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if run.Finished() {
		o.logger.Info().Str("run_id", run.ID).Str("status", run.Status).Msg("Run already finished, skipping")
		return nil
	}

	var cfg models.Config
	if err := o.db.First(&cfg).Error; err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var message models.Message
	if err := o.db.Where("id = ?", run.MessageID).First(&message).Error; err != nil {
		return fmt.Errorf("failed to load triggering message: %w", err)
	}

	now := time.Now()
	if err := o.db.Model(&run).Updates(map[string]interface{}{
		"status":     models.RunRunning,
		"started_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	o.publishStatus(ctx, &run, models.RunRunning, "")

	rc := NewRunContext(run.ID, run.ConversationID, message.Content)
	plan := PlanSequence(message.Content)

	o.logger.Info().
		Str("run_id", run.ID).
		Str("conversation_id", run.ConversationID).
		Strs("plan", plan).
		Msg("Starting pipeline run")

	for i, agentName := range plan {
		if err := o.checkCanceled(ctx, &run); err != nil {
			if errors.Is(err, ErrRunCanceled) {
				return o.finishCanceled(ctx, &run, rc)
			}
			// Infra interruption: leave the run unfinalized for retry
			return err
		}

		step, err := o.executeStep(ctx, &run, &cfg, rc, agentName, i)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("run interrupted: %w", ctx.Err())
			}
			return o.failRun(ctx, &run, rc, err)
		}

		if err := rc.Merge(agentName, step.outputs); err != nil {
			return o.failRun(ctx, &run, rc, err)
		}
		if err := o.persistSnapshot(&run, rc); err != nil {
			o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist context snapshot")
		}
	}

	reply := rc.StringValue("summary")
	replyMsg, err := o.storeReply(&run, rc, reply)
	if err != nil {
		return o.failRun(ctx, &run, rc, err)
	}

	finished := time.Now()
	if err := o.db.Model(&run).Updates(map[string]interface{}{
		"status":      models.RunCompleted,
		"finished_at": finished,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}

	o.publishEvent(ctx, events.RunEvent{
		Type:           events.TypeMessage,
		RunID:          run.ID,
		ConversationID: run.ConversationID,
		MessageID:      replyMsg.ID,
	})
	o.publishStatus(ctx, &run, models.RunCompleted, "")

	o.logger.Info().
		Str("run_id", run.ID).
		Int("steps", len(plan)).
		Msg("Pipeline run completed")

	return nil
}

// stepOutcome carries a finished step's merge payload
type stepOutcome struct {
	outputs map[string]any
}

// executeStep runs one sub-agent with breaker routing and contract validation
func (o *Orchestrator) executeStep(ctx context.Context, run *models.AgentRun, cfg *models.Config, rc *RunContext, agentName string, sequence int) (*stepOutcome, error) {
	agent, err := o.registry.Lookup(agentName)
	if err != nil {
		return nil, err
	}

	model := cfg.DefaultModel
	fallbackUsed := false

	br := o.breakers.For(agentName)
	if allowErr := br.Allow(); allowErr != nil {
		if !errors.Is(allowErr, breaker.ErrOpen) {
			return nil, allowErr
		}
		// Breaker open: route to the cheaper fallback model instead of
		// failing the whole run
		model = cfg.FallbackModel
		fallbackUsed = true
		o.logger.Warn().
			Str("run_id", run.ID).
			Str("agent", agentName).
			Str("fallback_model", model).
			Msg("Breaker open, routing to fallback model")
	}

	started := time.Now()
	step := models.AgentStep{
		RunID:     run.ID,
		Sequence:  sequence,
		AgentName: agentName,
		Model:     model,
		Status:    models.RunRunning,
		Fallback:  fallbackUsed,
		StartedAt: &started,
	}
	if err := o.db.Create(&step).Error; err != nil {
		return nil, fmt.Errorf("failed to create step record: %w", err)
	}

	o.publishEvent(ctx, events.RunEvent{
		Type:           events.TypeRunStep,
		RunID:          run.ID,
		ConversationID: run.ConversationID,
		AgentName:      agentName,
		Sequence:       sequence,
		Status:         models.RunRunning,
		Fallback:       fallbackUsed,
	})

	result, execErr := agent.Execute(ctx, Request{Model: model, Context: rc})
	elapsed := time.Since(started)

	if execErr == nil {
		execErr = o.contracts.Validate(agentName, result, elapsed)
	}

	finished := time.Now()
	if execErr != nil {
		if !fallbackUsed {
			br.RecordFailure()
		}
		if err := o.db.Model(&step).Updates(map[string]interface{}{
			"status":      models.RunFailed,
			"error":       execErr.Error(),
			"finished_at": finished,
		}).Error; err != nil {
			o.logger.Error().Err(err).Str("step_id", step.ID).Msg("Failed to persist failed step")
		}
		o.publishEvent(ctx, events.RunEvent{
			Type:           events.TypeRunStep,
			RunID:          run.ID,
			ConversationID: run.ConversationID,
			AgentName:      agentName,
			Sequence:       sequence,
			Status:         models.RunFailed,
			Fallback:       fallbackUsed,
			Error:          execErr.Error(),
		})
		return nil, fmt.Errorf("agent %q step failed: %w", agentName, execErr)
	}

	if !fallbackUsed {
		br.RecordSuccess()
	}

	cost := o.pricing.StepCost(model, result.TokensIn, result.TokensOut)
	savings := 0.0
	if fallbackUsed {
		savings = o.pricing.Savings(cfg.DefaultModel, model, result.TokensIn, result.TokensOut)
	}

	if err := o.db.Model(&step).Updates(map[string]interface{}{
		"status":      models.RunCompleted,
		"output":      result.Output,
		"tokens_in":   result.TokensIn,
		"tokens_out":  result.TokensOut,
		"cost_usd":    cost,
		"savings_usd": savings,
		"finished_at": finished,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to persist completed step: %w", err)
	}

	o.publishEvent(ctx, events.RunEvent{
		Type:           events.TypeRunStep,
		RunID:          run.ID,
		ConversationID: run.ConversationID,
		AgentName:      agentName,
		Sequence:       sequence,
		Status:         models.RunCompleted,
		Fallback:       fallbackUsed,
	})

	return &stepOutcome{outputs: result.Outputs}, nil
}

// checkCanceled reloads the run and reports user cancellation as
// ErrRunCanceled. Context expiry (worker shutdown) and reload failures
// come back as plain errors so the task stays retryable.
func (o *Orchestrator) checkCanceled(ctx context.Context, run *models.AgentRun) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	var current models.AgentRun
	if err := o.db.Select("status").Where("id = ?", run.ID).First(&current).Error; err != nil {
		return fmt.Errorf("failed to reload run status: %w", err)
	}
	if current.Status == models.RunCanceled {
		return ErrRunCanceled
	}
	return nil
}

// finishCanceled persists terminal cancellation state
func (o *Orchestrator) finishCanceled(ctx context.Context, run *models.AgentRun, rc *RunContext) error {
	finished := time.Now()
	updates := map[string]interface{}{
		"status":      models.RunCanceled,
		"finished_at": finished,
	}
	if snapshot, err := rc.SnapshotJSON(); err == nil {
		updates["context"] = snapshot
	}
	if err := o.db.Model(run).Updates(updates).Error; err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist canceled run")
	}
	o.publishStatus(ctx, run, models.RunCanceled, "")

	o.logger.Info().Str("run_id", run.ID).Msg("Run canceled")
	return nil
}

// failRun persists terminal failure state, keeping the context snapshot
// for debugging, and returns the original error
func (o *Orchestrator) failRun(ctx context.Context, run *models.AgentRun, rc *RunContext, cause error) error {
	finished := time.Now()
	updates := map[string]interface{}{
		"status":      models.RunFailed,
		"error":       cause.Error(),
		"finished_at": finished,
	}
	if snapshot, err := rc.SnapshotJSON(); err == nil {
		updates["context"] = snapshot
	}
	if err := o.db.Model(run).Updates(updates).Error; err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist failed run")
	}
	o.publishStatus(ctx, run, models.RunFailed, cause.Error())

	o.logger.Error().Err(cause).Str("run_id", run.ID).Msg("Pipeline run failed")
	return errors.Join(ErrRunFailed, cause)
}

// persistSnapshot stores the accumulated context on the run record
func (o *Orchestrator) persistSnapshot(run *models.AgentRun, rc *RunContext) error {
	snapshot, err := rc.SnapshotJSON()
	if err != nil {
		return err
	}
	return o.db.Model(run).Update("context", snapshot).Error
}

// storeReply persists the final assistant message with run-level cost totals
func (o *Orchestrator) storeReply(run *models.AgentRun, rc *RunContext, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("pipeline produced no summary")
	}

	type totals struct {
		TokensIn  int
		TokensOut int
		CostUSD   float64
	}
	var t totals
	err := o.db.Model(&models.AgentStep{}).
		Where("run_id = ?", run.ID).
		Select("COALESCE(SUM(tokens_in),0) as tokens_in, COALESCE(SUM(tokens_out),0) as tokens_out, COALESCE(SUM(cost_usd),0) as cost_usd").
		Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("failed to total step costs: %w", err)
	}

	msg := models.Message{
		ConversationID: run.ConversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		AgentName:      SupervisorName,
		TokensIn:       t.TokensIn,
		TokensOut:      t.TokensOut,
		CostUSD:        t.CostUSD,
	}
	if err := o.db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to store assistant reply: %w", err)
	}
	return &msg, nil
}

// publishStatus emits a run-level status event
func (o *Orchestrator) publishStatus(ctx context.Context, run *models.AgentRun, status, errMsg string) {
	o.publishEvent(ctx, events.RunEvent{
		Type:           events.TypeRunStatus,
		RunID:          run.ID,
		ConversationID: run.ConversationID,
		Status:         status,
		Error:          errMsg,
	})
}

// publishEvent sends an event, logging publish failures (non-fatal)
func (o *Orchestrator) publishEvent(ctx context.Context, event events.RunEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishRunEvent(ctx, event); err != nil {
		o.logger.Warn().Err(err).Str("run_id", event.RunID).Msg("Failed to publish run event")
	}
}
