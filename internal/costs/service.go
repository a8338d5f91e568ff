package costs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/models"
)

// Service aggregates per-step costs into daily rollups and reports
type Service struct {
	db      *gorm.DB
	pricing Pricing
	logger  zerolog.Logger
}

// NewService creates a cost service
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		pricing: DefaultPricing(),
		logger:  logger.With().Str("component", "costs_service").Logger(),
	}
}

// Pricing returns the active pricing table
func (s *Service) Pricing() Pricing {
	return s.pricing
}

// Report is the aggregate cost view served by the API
type Report struct {
	TotalRuns       int64            `json:"total_runs"`
	TotalSteps      int64            `json:"total_steps"`
	TotalTokensIn   int64            `json:"total_tokens_in"`
	TotalTokensOut  int64            `json:"total_tokens_out"`
	TotalCostUSD    float64          `json:"total_cost_usd"`
	TotalSavingsUSD float64          `json:"total_savings_usd"`
	FallbackSteps   int64            `json:"fallback_steps"`
	ByAgent         []AgentBreakdown `json:"by_agent"`
}

// AgentBreakdown is the per-agent slice of the report
type AgentBreakdown struct {
	AgentName  string  `json:"agent_name"`
	Steps      int64   `json:"steps"`
	TokensIn   int64   `json:"tokens_in"`
	TokensOut  int64   `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
	SavingsUSD float64 `json:"savings_usd"`
}

// BuildReport aggregates all recorded steps into a report
func (s *Service) BuildReport(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := s.db.WithContext(ctx).Model(&models.AgentRun{}).Count(&report.TotalRuns).Error; err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	type totals struct {
		Steps      int64
		TokensIn   int64
		TokensOut  int64
		CostUSD    float64
		SavingsUSD float64
	}
	var t totals
	err := s.db.WithContext(ctx).Model(&models.AgentStep{}).
		Select("COUNT(*) as steps, COALESCE(SUM(tokens_in),0) as tokens_in, COALESCE(SUM(tokens_out),0) as tokens_out, COALESCE(SUM(cost_usd),0) as cost_usd, COALESCE(SUM(savings_usd),0) as savings_usd").
		Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate steps: %w", err)
	}
	report.TotalSteps = t.Steps
	report.TotalTokensIn = t.TokensIn
	report.TotalTokensOut = t.TokensOut
	report.TotalCostUSD = t.CostUSD
	report.TotalSavingsUSD = t.SavingsUSD

	if err := s.db.WithContext(ctx).Model(&models.AgentStep{}).
		Where("fallback = ?", true).
		Count(&report.FallbackSteps).Error; err != nil {
		return nil, fmt.Errorf("failed to count fallback steps: %w", err)
	}

	type agentRow struct {
		AgentName  string
		Steps      int64
		TokensIn   int64
		TokensOut  int64
		CostUSD    float64
		SavingsUSD float64
	}
	var rows []agentRow
	err = s.db.WithContext(ctx).Model(&models.AgentStep{}).
		Select("agent_name, COUNT(*) as steps, COALESCE(SUM(tokens_in),0) as tokens_in, COALESCE(SUM(tokens_out),0) as tokens_out, COALESCE(SUM(cost_usd),0) as cost_usd, COALESCE(SUM(savings_usd),0) as savings_usd").
		Group("agent_name").
		Order("agent_name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate per-agent costs: %w", err)
	}

	for _, row := range rows {
		report.ByAgent = append(report.ByAgent, AgentBreakdown{
			AgentName:  row.AgentName,
			Steps:      row.Steps,
			TokensIn:   row.TokensIn,
			TokensOut:  row.TokensOut,
			CostUSD:    row.CostUSD,
			SavingsUSD: row.SavingsUSD,
		})
	}

	return report, nil
}

// RollupDay aggregates one UTC day of steps into a CostRollup row
// Re-running the rollup for the same day replaces the previous aggregate,
// so the scheduler can safely retry.
func (s *Service) RollupDay(ctx context.Context, day time.Time) (*models.CostRollup, error) {
	dayKey := day.UTC().Format("2006-01-02")
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	type totals struct {
		Steps      int64
		TokensIn   int64
		TokensOut  int64
		CostUSD    float64
		SavingsUSD float64
	}
	var t totals
	err := s.db.WithContext(ctx).Model(&models.AgentStep{}).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Select("COUNT(*) as steps, COALESCE(SUM(tokens_in),0) as tokens_in, COALESCE(SUM(tokens_out),0) as tokens_out, COALESCE(SUM(cost_usd),0) as cost_usd, COALESCE(SUM(savings_usd),0) as savings_usd").
		Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate steps for %s: %w", dayKey, err)
	}

	var runs int64
	err = s.db.WithContext(ctx).Model(&models.AgentRun{}).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count runs for %s: %w", dayKey, err)
	}

	rollup := &models.CostRollup{
		Day:        dayKey,
		Runs:       int(runs),
		Steps:      int(t.Steps),
		TokensIn:   int(t.TokensIn),
		TokensOut:  int(t.TokensOut),
		CostUSD:    t.CostUSD,
		SavingsUSD: t.SavingsUSD,
	}

	// Replace any existing rollup for the day
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("day = ?", dayKey).Delete(&models.CostRollup{}).Error; err != nil {
			return err
		}
		return tx.Create(rollup).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store rollup for %s: %w", dayKey, err)
	}

	s.logger.Info().
		Str("day", dayKey).
		Int("steps", rollup.Steps).
		Float64("cost_usd", rollup.CostUSD).
		Float64("savings_usd", rollup.SavingsUSD).
		Msg("Cost rollup stored")

	return rollup, nil
}

// ListRollups returns stored daily rollups, newest first
func (s *Service) ListRollups(ctx context.Context, limit int) ([]models.CostRollup, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var rollups []models.CostRollup
	if err := s.db.WithContext(ctx).Order("day DESC").Limit(limit).Find(&rollups).Error; err != nil {
		return nil, fmt.Errorf("failed to list rollups: %w", err)
	}
	return rollups, nil
}
