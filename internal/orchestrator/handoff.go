package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrHandoffViolation marks a sub-agent output that failed its contract
// A violation fails the run; the context snapshot up to the failing
// step is preserved on the run record.
var ErrHandoffViolation = errors.New("handoff contract violation")

// Contract defines what a sub-agent must deliver before the pipeline
// may hand off to the next agent
type Contract struct {
	// RequiredKeys must all be present in the step's Outputs
	RequiredKeys []string
	// MaxDuration bounds the step's wall-clock time; zero means unbounded
	MaxDuration time.Duration
}

// ContractBook stores handoff contracts by agent name
type ContractBook struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewContractBook creates an empty contract book
func NewContractBook() *ContractBook {
	return &ContractBook{contracts: make(map[string]Contract)}
}

// Register sets the contract for an agent
func (b *ContractBook) Register(agentName string, contract Contract) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts[agentName] = contract
}

// Validate checks a step result against the agent's contract
// Agents without a registered contract pass unconditionally.
func (b *ContractBook) Validate(agentName string, result StepResult, elapsed time.Duration) error {
	b.mu.RLock()
	contract, ok := b.contracts[agentName]
	b.mu.RUnlock()

	if !ok {
		return nil
	}

	for _, key := range contract.RequiredKeys {
		if _, present := result.Outputs[key]; !present {
			return fmt.Errorf("%w: agent %q output missing required key %q", ErrHandoffViolation, agentName, key)
		}
	}

	if contract.MaxDuration > 0 && elapsed > contract.MaxDuration {
		return fmt.Errorf("%w: agent %q took %s, contract allows %s", ErrHandoffViolation, agentName, elapsed, contract.MaxDuration)
	}

	return nil
}

// DefaultContracts returns the contracts for the built-in agents
func DefaultContracts() *ContractBook {
	book := NewContractBook()
	book.Register("planner", Contract{RequiredKeys: []string{"plan"}, MaxDuration: 2 * time.Minute})
	book.Register("researcher", Contract{RequiredKeys: []string{"findings"}, MaxDuration: 5 * time.Minute})
	book.Register("summarizer", Contract{RequiredKeys: []string{"summary"}, MaxDuration: 2 * time.Minute})
	return book
}
