package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/relayd-dev/relayd/internal/auth"
	"github.com/relayd-dev/relayd/internal/events"
	"github.com/relayd-dev/relayd/internal/models"
	"github.com/relayd-dev/relayd/internal/ws"
)

// newUpgrader builds the WebSocket upgrader with the configured origin policy
func (s *Server) newUpgrader() websocket.Upgrader {
	allowed := make(map[string]struct{}, len(s.config.Server.AllowedOrigins))
	allowAll := false
	for _, origin := range s.config.Server.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// @Summary Chat WebSocket
// @Description Upgrades to a WebSocket for live chat delivery. Auth via ?token= query parameter.
// @Tags websocket
// @Param token query string true "JWT token"
// @Success 101
// @Router /ws [get]
func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing token query parameter"})
		return
	}

	sessionData, err := authenticate(s.db, token, "query")
	if err != nil {
		respondWithError(c, s.logger, http.StatusUnauthorized, err, "Invalid or expired token")
		return
	}

	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	authorize := func(_ *ws.Client, conversationID string) error {
		return s.authorizeConversationAccess(sessionData, conversationID)
	}
	client := ws.NewClient(s.hub, conn, sessionData.UserID, s.handleInboundMessage, authorize, s.logger)
	if err := client.Accept(); err != nil {
		s.logger.Error().Err(err).Msg("WebSocket handshake state error")
		conn.Close()
		return
	}

	s.logger.Info().
		Str("client_id", client.ID).
		Str("user_id", sessionData.UserID).
		Msg("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}

// ErrConversationForbidden rejects access to another user's conversation
var ErrConversationForbidden = errors.New("conversation access denied")

// authorizeConversationAccess enforces the owner-or-admin rule for
// WebSocket subscriptions, matching the HTTP conversation handlers
func (s *Server) authorizeConversationAccess(session *auth.SessionData, conversationID string) error {
	var conv models.Conversation
	if err := models.FindByID(s.db, conversationID, &conv); err != nil {
		return err
	}
	if conv.OwnerID != session.UserID && !session.IsAdmin {
		return ErrConversationForbidden
	}
	return nil
}

// handleInboundMessage processes a post_message frame from a chat client
// Mirrors the HTTP postMessage handler: ownership check, persist, enqueue.
func (s *Server) handleInboundMessage(client *ws.Client, conversationID string, payload ws.PostMessagePayload) {
	var conv models.Conversation
	if err := models.FindByID(s.db, conversationID, &conv); err != nil {
		if err == gorm.ErrRecordNotFound {
			client.SendError(conversationID, "not_found", "Conversation not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load conversation for inbound frame")
		client.SendError(conversationID, "internal", "Internal server error")
		return
	}

	if conv.OwnerID != client.UserID {
		client.SendError(conversationID, "forbidden", "Access denied")
		return
	}

	message, runID, err := s.acceptMessage(&conv, payload.Content)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to accept inbound frame")
		client.SendError(conversationID, "internal", "Failed to accept message")
		return
	}

	// Echo the persisted message to all subscribers, sender included
	frame, err := ws.EncodeEnvelope(ws.FrameMessage, conversationID, message)
	if err == nil {
		s.hub.BroadcastToConversation(conversationID, frame)
	}

	s.logger.Debug().
		Str("conversation_id", conversationID).
		Str("run_id", runID).
		Msg("Inbound frame accepted")
}

// forwardRunEvent bridges worker-emitted run events onto the chat hub
func (s *Server) forwardRunEvent(event events.RunEvent) {
	frameType := ws.FrameRunEvent
	if event.Type == events.TypeMessage {
		frameType = ws.FrameMessage
	}

	var payload interface{} = event
	if frameType == ws.FrameMessage && event.MessageID != "" {
		// Deliver the full message body, not just the event
		var message models.Message
		if err := models.FindByID(s.db, event.MessageID, &message); err == nil {
			payload = &message
		}
	}

	frame, err := ws.EncodeEnvelope(frameType, event.ConversationID, payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode run event frame")
		return
	}
	s.hub.BroadcastToConversation(event.ConversationID, frame)
}
