package ws

import (
	"errors"
	"fmt"
	"sync"
)

// ConnState models the lifecycle of a chat WebSocket connection
// Every transition goes through Transition so illegal lifecycle moves
// (send before accept, double accept, send after close) surface as
// typed errors instead of writes on a dead connection.
type ConnState int

const (
	// StateConnecting: upgrade request received, handshake not finished
	StateConnecting ConnState = iota
	// StateAccepted: handshake done, client not yet registered with the hub
	StateAccepted
	// StateOpen: registered, sends and receives are legal
	StateOpen
	// StateClosing: close frame sent, draining
	StateClosing
	// StateClosed: terminal
	StateClosed
)

// String returns the state name
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAccepted:
		return "accepted"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("invalid connection state transition")
	ErrNotOpen           = errors.New("connection is not open")
)

// validTransitions is the explicit transition table
// Closing and any earlier state may move to Closed (abnormal teardown
// skips the Closing handshake).
var validTransitions = map[ConnState][]ConnState{
	StateConnecting: {StateAccepted, StateClosed},
	StateAccepted:   {StateOpen, StateClosed},
	StateOpen:       {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
	StateClosed:     {},
}

// ConnStateMachine is a thread-safe connection lifecycle tracker
type ConnStateMachine struct {
	mu    sync.Mutex
	state ConnState
}

// NewConnStateMachine starts in Connecting
func NewConnStateMachine() *ConnStateMachine {
	return &ConnStateMachine{state: StateConnecting}
}

// Transition moves the machine to the target state
// Returns ErrInvalidTransition (wrapped with both state names) when the
// move is not in the transition table.
func (m *ConnStateMachine) Transition(to ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
}

// State returns the current state
func (m *ConnStateMachine) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RequireOpen returns ErrNotOpen (with the current state) unless the
// connection is Open
func (m *ConnStateMachine) RequireOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen {
		return fmt.Errorf("%w: state is %s", ErrNotOpen, m.state)
	}
	return nil
}
