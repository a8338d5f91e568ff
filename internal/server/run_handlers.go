package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/events"
	"github.com/relayd-dev/relayd/internal/models"
)

// loadVisibleRun loads a run and enforces conversation ownership
func (s *Server) loadVisibleRun(c *gin.Context, preloads ...string) (*models.AgentRun, bool) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	var run models.AgentRun
	if err := models.FindByIDWithPreload(s.db, c.Param("id"), &run, preloads...); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Msg("Failed to load run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}

	var conv models.Conversation
	if err := models.FindByID(s.db, run.ConversationID, &conv); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load run conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	if conv.OwnerID != sessionData.UserID && !sessionData.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return nil, false
	}

	return &run, true
}

// @Summary List runs
// @Description Lists pipeline runs, optionally filtered by conversation or status
// @Tags runs
// @Produce json
// @Security BearerAuth
// @Param conversation_id query string false "Filter by conversation"
// @Param status query string false "Filter by status"
// @Param limit query int false "Max results (default 50)"
// @Success 200 {array} models.AgentRun
// @Router /api/runs [get]
func (s *Server) listRuns(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	query := s.db.Order("created_at DESC").Limit(limit)
	if !sessionData.IsAdmin {
		query = query.Where("conversation_id IN (?)",
			s.db.Model(&models.Conversation{}).Select("id").Where("owner_id = ?", sessionData.UserID))
	}
	if convID := c.Query("conversation_id"); convID != "" {
		query = query.Where("conversation_id = ?", convID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var runs []models.AgentRun
	if err := query.Find(&runs).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// @Summary Get run
// @Description Returns a run with its sub-agent steps
// @Tags runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} models.AgentRun
// @Router /api/runs/:id [get]
func (s *Server) getRun(c *gin.Context) {
	run, ok := s.loadVisibleRun(c, "Steps")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Cancel run
// @Description Requests cancellation of a pending or running pipeline
// @Tags runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} models.AgentRun
// @Router /api/runs/:id/cancel [post]
func (s *Server) cancelRun(c *gin.Context) {
	run, ok := s.loadVisibleRun(c)
	if !ok {
		return
	}

	if run.Finished() {
		c.JSON(http.StatusConflict, gin.H{"error": "Run already finished", "status": run.Status})
		return
	}

	// The pipeline checks status between steps and stops on canceled.
	// For runs still pending, finished_at is stamped here since no
	// worker will finalize them.
	updates := map[string]interface{}{"status": models.RunCanceled}
	if run.Status == models.RunPending {
		now := time.Now()
		updates["finished_at"] = now
		run.FinishedAt = &now
	}
	if err := s.db.Model(run).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to cancel run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel run"})
		return
	}
	run.Status = models.RunCanceled

	if run.FinishedAt != nil && s.eventBus != nil {
		event := events.RunEvent{
			Type:           events.TypeRunStatus,
			RunID:          run.ID,
			ConversationID: run.ConversationID,
			Status:         models.RunCanceled,
		}
		if err := s.eventBus.PublishRunEvent(c.Request.Context(), event); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to publish cancel event")
		}
	}

	s.logger.Info().Str("run_id", run.ID).Msg("Run cancellation requested")
	c.JSON(http.StatusOK, run)
}
