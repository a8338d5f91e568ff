package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/models"
	"github.com/relayd-dev/relayd/internal/orchestrator"
	"github.com/relayd-dev/relayd/internal/tasks"
)

// CreateConversationRequest represents a new conversation request
type CreateConversationRequest struct {
	Title string `json:"title" binding:"required,min=1,max=200"`
}

// PostMessageRequest represents an inbound chat message
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=32768"`
}

// PostMessageResponse returns the stored message and the triggered run
type PostMessageResponse struct {
	Message *models.Message `json:"message"`
	RunID   string          `json:"run_id"`
}

// loadOwnedConversation loads a conversation and enforces ownership
// Admins may access any conversation.
func (s *Server) loadOwnedConversation(c *gin.Context) (*models.Conversation, bool) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	var conv models.Conversation
	if err := models.FindByID(s.db, c.Param("id"), &conv); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Msg("Failed to load conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}

	if conv.OwnerID != sessionData.UserID && !sessionData.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return nil, false
	}

	return &conv, true
}

// @Summary List conversations
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Conversation
// @Router /api/conversations [get]
func (s *Server) listConversations(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	query := s.db.Order("updated_at DESC")
	if !sessionData.IsAdmin {
		query = query.Where("owner_id = ?", sessionData.UserID)
	}

	var conversations []models.Conversation
	if err := query.Find(&conversations).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// @Summary Create conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateConversationRequest true "Conversation request"
// @Success 201 {object} models.Conversation
// @Router /api/conversations [post]
func (s *Server) createConversation(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	conv := models.Conversation{
		Title:   strings.TrimSpace(req.Title),
		OwnerID: sessionData.UserID,
		Status:  models.ConversationActive,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// @Summary Get conversation
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Router /api/conversations/:id [get]
func (s *Server) getConversation(c *gin.Context) {
	conv, ok := s.loadOwnedConversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, conv)
}

// @Summary Delete conversation
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/conversations/:id [delete]
func (s *Server) deleteConversation(c *gin.Context) {
	conv, ok := s.loadOwnedConversation(c)
	if !ok {
		return
	}

	// Messages and runs first so SQLite without cascades stays consistent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		var runs []models.AgentRun
		if err := tx.Where("conversation_id = ?", conv.ID).Find(&runs).Error; err != nil {
			return err
		}
		for _, run := range runs {
			if err := tx.Where("run_id = ?", run.ID).Delete(&models.AgentStep{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.AgentRun{}).Error; err != nil {
			return err
		}
		return tx.Delete(conv).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to delete conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}

	s.logger.Info().Str("conversation_id", conv.ID).Msg("Conversation deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

// @Summary List messages
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {array} models.Message
// @Router /api/conversations/:id/messages [get]
func (s *Server) listMessages(c *gin.Context) {
	conv, ok := s.loadOwnedConversation(c)
	if !ok {
		return
	}

	var messages []models.Message
	if err := s.db.Where("conversation_id = ?", conv.ID).Order("created_at ASC").Find(&messages).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// @Summary Post message
// @Description Stores a user message and triggers an agent pipeline run
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param request body PostMessageRequest true "Message request"
// @Success 202 {object} PostMessageResponse
// @Router /api/conversations/:id/messages [post]
func (s *Server) postMessage(c *gin.Context) {
	conv, ok := s.loadOwnedConversation(c)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	message, runID, err := s.acceptMessage(conv, req.Content)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to accept message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept message"})
		return
	}

	c.JSON(http.StatusAccepted, PostMessageResponse{Message: message, RunID: runID})
}

// acceptMessage stores a user message, creates the run record, and
// enqueues pipeline execution. Shared by the HTTP handler and the
// WebSocket post_message frame.
func (s *Server) acceptMessage(conv *models.Conversation, content string) (*models.Message, string, error) {
	message := models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
	}

	run := models.AgentRun{
		ConversationID: conv.ID,
		Supervisor:     orchestrator.SupervisorName,
		Status:         models.RunPending,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		run.MessageID = message.ID
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		// Bump the thread so it sorts to the top of listings
		return tx.Model(conv).Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		return nil, "", err
	}

	task, err := tasks.NewExecuteRunTask(run.ID)
	if err != nil {
		return nil, "", err
	}
	taskInfo, err := s.asynqClient.Enqueue(task, asynq.Queue("critical"), asynq.MaxRetry(3))
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Str("message_id", message.ID).
		Str("run_id", run.ID).
		Str("task_id", taskInfo.ID).
		Msg("Agent run enqueued")

	return &message, run.ID, nil
}
