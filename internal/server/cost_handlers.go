package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// @Summary Cost report
// @Description Aggregated token and cost totals with per-agent breakdown
// @Tags costs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} costs.Report
// @Router /api/costs/report [get]
func (s *Server) getCostReport(c *gin.Context) {
	report, err := s.costsService.BuildReport(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build cost report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// @Summary List cost rollups
// @Description Daily cost aggregates, most recent first
// @Tags costs
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results (default 30, max 365)"
// @Success 200 {array} models.CostRollup
// @Router /api/costs/rollups [get]
func (s *Server) listCostRollups(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	rollups, err := s.costsService.ListRollups(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list cost rollups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, rollups)
}
