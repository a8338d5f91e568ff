package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait is the deadline for a single write to the peer
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the peer
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames
	maxMessageSize = 64 * 1024

	// sendBufferSize bounds the per-client outbound queue; a full buffer
	// means the client is too slow and gets dropped
	sendBufferSize = 64
)

// InboundHandler receives validated post_message frames from a client
type InboundHandler func(client *Client, conversationID string, payload PostMessagePayload)

// SubscribeAuthorizer decides whether a client may subscribe to a
// conversation. A non-nil error rejects the subscription.
type SubscribeAuthorizer func(client *Client, conversationID string) error

// Client is one authenticated WebSocket connection
type Client struct {
	ID     string
	UserID string

	hub        *Hub
	conn       *websocket.Conn
	state      *ConnStateMachine
	sendMu     sync.RWMutex // guards send against close during Send
	send       chan []byte
	handler    InboundHandler
	authorizer SubscribeAuthorizer
	logger     zerolog.Logger
}

// NewClient wraps an upgraded connection
// The connection is in Connecting state until Accept is called.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, handler InboundHandler, authorizer SubscribeAuthorizer, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:         id,
		UserID:     userID,
		hub:        hub,
		conn:       conn,
		state:      NewConnStateMachine(),
		send:       make(chan []byte, sendBufferSize),
		handler:    handler,
		authorizer: authorizer,
		logger:     logger.With().Str("component", "ws_client").Str("client_id", id).Str("user_id", userID).Logger(),
	}
}

// Accept completes the lifecycle handshake and registers with the hub
// Transitions Connecting -> Accepted -> Open; a second Accept fails with
// ErrInvalidTransition.
func (c *Client) Accept() error {
	if err := c.state.Transition(StateAccepted); err != nil {
		return err
	}
	if err := c.state.Transition(StateOpen); err != nil {
		return err
	}
	c.hub.register(c)
	return nil
}

// State returns the connection lifecycle state
func (c *Client) State() ConnState {
	return c.state.State()
}

// Send queues an outbound frame
// Returns ErrNotOpen when the connection is not Open, and drops the
// connection when the send buffer is full (slow client).
func (c *Client) Send(frame []byte) error {
	c.sendMu.RLock()
	if err := c.state.RequireOpen(); err != nil {
		c.sendMu.RUnlock()
		return err
	}

	select {
	case c.send <- frame:
		c.sendMu.RUnlock()
		return nil
	default:
		c.sendMu.RUnlock()
		c.logger.Warn().Msg("Send buffer full, dropping slow client")
		c.Close()
		return ErrNotOpen
	}
}

// SendError queues an error frame, ignoring failures on dead connections
func (c *Client) SendError(conversationID, code, message string) {
	frame, err := EncodeEnvelope(FrameError, conversationID, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = c.Send(frame)
}

// Close tears the connection down and unregisters from the hub
// Safe to call multiple times.
func (c *Client) Close() {
	c.sendMu.Lock()
	if err := c.state.Transition(StateClosing); err != nil {
		// Already closing or closed
		c.sendMu.Unlock()
		return
	}
	close(c.send)
	c.sendMu.Unlock()

	c.hub.unregister(c)
}

// ReadPump reads inbound frames until the connection dies
// Must be run in its own goroutine; it owns all reads on the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Rejected inbound frame")
			c.SendError("", "bad_frame", err.Error())
			continue
		}

		c.dispatch(env)
	}
}

// dispatch routes one validated inbound frame
func (c *Client) dispatch(env *Envelope) {
	switch env.Type {
	case FrameSubscribe:
		if c.authorizer != nil {
			if err := c.authorizer(c, env.ConversationID); err != nil {
				c.logger.Debug().Err(err).Str("conversation_id", env.ConversationID).Msg("Subscription rejected")
				c.SendError(env.ConversationID, "forbidden", "Access denied")
				return
			}
		}
		c.hub.subscribe(c, env.ConversationID)
	case FrameUnsubscribe:
		c.hub.unsubscribe(c, env.ConversationID)
	case FramePing:
		frame, err := EncodeEnvelope(FramePong, "", nil)
		if err == nil {
			_ = c.Send(frame)
		}
	case FramePostMessage:
		var payload PostMessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Content == "" {
			c.SendError(env.ConversationID, "bad_payload", "post_message requires non-empty content")
			return
		}
		if c.handler != nil {
			c.handler(c, env.ConversationID, payload)
		}
	}
}

// WritePump writes queued frames and keepalive pings
// Must be run in its own goroutine; it owns all writes on the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		_ = c.state.Transition(StateClosed)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close() drained us: send the close frame
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
