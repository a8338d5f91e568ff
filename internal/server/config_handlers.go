package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/relayd-dev/relayd/internal/models"
)

// UpdateConfigRequest holds the mutable configuration fields
// Pointer fields distinguish "not provided" from zero values.
type UpdateConfigRequest struct {
	DefaultModel            *string `json:"default_model" validate:"omitempty,min=1,max=100"`
	FallbackModel           *string `json:"fallback_model" validate:"omitempty,min=1,max=100"`
	BreakerFailureThreshold *int    `json:"breaker_failure_threshold" validate:"omitempty,min=1,max=100"`
	BreakerCooldownSeconds  *int    `json:"breaker_cooldown_seconds" validate:"omitempty,min=1,max=3600"`
	CostRollupSchedule      *string `json:"cost_rollup_schedule" validate:"omitempty,cronexpr"`
	MaxRunAgeDays           *int    `json:"max_run_age_days" validate:"omitempty,min=1,max=3650"`
}

// validCronExpr reports whether expr parses as a standard 5-field cron
// expression
func validCronExpr(expr string) bool {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err == nil
}

// @Summary Get configuration
// @Tags config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Config
// @Router /api/config [get]
func (s *Server) getConfig(c *gin.Context) {
	var config models.Config
	if err := s.db.First(&config).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, config)
}

// @Summary Update configuration
// @Description Partially updates routing, breaker, and rollup settings (admin only)
// @Tags config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateConfigRequest true "Config update request"
// @Success 200 {object} models.Config
// @Router /api/config [patch]
func (s *Server) updateConfig(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists || !sessionData.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	var config models.Config
	if err := s.db.First(&config).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	updates := map[string]interface{}{}
	if req.DefaultModel != nil {
		updates["default_model"] = *req.DefaultModel
	}
	if req.FallbackModel != nil {
		updates["fallback_model"] = *req.FallbackModel
	}
	if req.BreakerFailureThreshold != nil {
		updates["breaker_failure_threshold"] = *req.BreakerFailureThreshold
	}
	if req.BreakerCooldownSeconds != nil {
		updates["breaker_cooldown_seconds"] = *req.BreakerCooldownSeconds
	}
	if req.MaxRunAgeDays != nil {
		updates["max_run_age_days"] = *req.MaxRunAgeDays
	}
	if req.CostRollupSchedule != nil {
		updates["cost_rollup_schedule"] = *req.CostRollupSchedule
		// Schedule changed: the scheduler recomputes the next slot
		updates["next_rollup_at"] = (*time.Time)(nil)
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, config)
		return
	}

	if err := s.db.Model(&config).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update config"})
		return
	}

	if err := s.db.First(&config).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to reload config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Msg("Configuration updated")
	c.JSON(http.StatusOK, config)
}
