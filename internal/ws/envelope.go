package ws

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types (client -> server)
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePostMessage = "post_message"
	FramePing        = "ping"
)

// Outbound frame types (server -> client)
const (
	FrameMessage  = "message"
	FrameRunEvent = "run_event"
	FrameError    = "error"
	FramePong     = "pong"
)

// Envelope is the JSON frame exchanged over the chat socket
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// PostMessagePayload is the payload of a post_message frame
type PostMessagePayload struct {
	Content string `json:"content"`
}

// ErrorPayload is the payload of an error frame
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeEnvelope parses and validates one inbound frame
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case FrameSubscribe, FrameUnsubscribe, FramePostMessage:
		if env.ConversationID == "" {
			return nil, fmt.Errorf("frame %q requires conversation_id", env.Type)
		}
	case FramePing:
		// No payload required
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type %q", env.Type)
	}

	return &env, nil
}

// EncodeEnvelope builds an outbound frame with a JSON payload
func EncodeEnvelope(frameType, conversationID string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		raw = data
	}

	return json.Marshal(Envelope{
		Type:           frameType,
		ConversationID: conversationID,
		Payload:        raw,
	})
}
