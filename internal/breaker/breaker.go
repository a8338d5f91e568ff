package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the breaker is open and the cooldown
// has not elapsed
var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a per-agent circuit breaker
// After FailureThreshold consecutive failures it opens for Cooldown, then
// allows a single half-open probe. A successful probe closes the breaker,
// a failed probe re-opens it with a fresh cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	// now is swappable for tests
	now func() time.Time
}

// New creates a circuit breaker for the named agent
func New(name string, threshold int, cooldown time.Duration, logger zerolog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.With().Str("component", "breaker").Str("agent", name).Logger(),
		state:     StateClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed
// Returns ErrOpen while the breaker is open. When the cooldown has elapsed
// it transitions to half-open and admits exactly one probe call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess records a successful call
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure records a failed call and opens the breaker when the
// failure threshold is reached or a half-open probe fails
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if b.state == StateHalfOpen {
		// Failed probe: full cooldown again
		b.openedAt = b.now()
		b.transition(StateOpen)
		return
	}

	b.failures++
	if b.failures >= b.threshold && b.state == StateClosed {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition updates state and logs the change; caller holds b.mu
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.logger.Warn().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("failures", b.failures).
		Msg("Circuit breaker state change")
}

// Registry holds one breaker per agent name
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger
}

// NewRegistry creates a breaker registry with shared tuning
func NewRegistry(threshold int, cooldown time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
	}
}

// For returns the breaker for the named agent, creating it on first use
func (r *Registry) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.threshold, r.cooldown, r.logger)
	r.breakers[name] = b
	return b
}
