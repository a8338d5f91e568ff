package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks open connections and their conversation subscriptions
// One hub serves the whole API process; workers reach it indirectly via
// the Redis event stream.
type Hub struct {
	logger zerolog.Logger

	mu sync.RWMutex
	// clients by client ID
	clients map[string]*Client
	// subscriptions: conversation ID -> set of clients
	subscriptions map[string]map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:        logger.With().Str("component", "ws_hub").Logger(),
		clients:       make(map[string]*Client),
		subscriptions: make(map[string]map[*Client]struct{}),
	}
}

// register adds an accepted client; called from Client.Accept
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", c.UserID).
		Int("total_clients", total).
		Msg("Client connected")
}

// unregister drops a client and all its subscriptions; called from Client.Close
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for convID, subs := range h.subscriptions {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, convID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.ID).
		Int("total_clients", total).
		Msg("Client disconnected")
}

// subscribe attaches a client to a conversation's event stream
func (h *Hub) subscribe(c *Client, conversationID string) {
	h.mu.Lock()
	subs, ok := h.subscriptions[conversationID]
	if !ok {
		subs = make(map[*Client]struct{})
		h.subscriptions[conversationID] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().
		Str("client_id", c.ID).
		Str("conversation_id", conversationID).
		Msg("Client subscribed")
}

// unsubscribe detaches a client from a conversation
func (h *Hub) unsubscribe(c *Client, conversationID string) {
	h.mu.Lock()
	if subs, ok := h.subscriptions[conversationID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, conversationID)
		}
	}
	h.mu.Unlock()
}

// SubscriberCount returns how many clients follow a conversation
func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[conversationID])
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToConversation sends a frame to every subscriber of a conversation
// Slow or dead clients are dropped by Client.Send; the broadcast itself
// never blocks.
func (h *Hub) BroadcastToConversation(conversationID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subscriptions[conversationID]))
	for c := range h.subscriptions[conversationID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			h.logger.Debug().
				Err(err).
				Str("client_id", c.ID).
				Str("conversation_id", conversationID).
				Msg("Dropped frame during broadcast")
		}
	}
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.logger.Info().Int("clients", len(targets)).Msg("Shutting down hub")
	for _, c := range targets {
		c.Close()
	}
}
