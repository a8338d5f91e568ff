package orchestrator

import (
	"encoding/json"
	"fmt"
	"sync"
)

// RunContext is the state accumulated across a pipeline run
// The supervisor merges each sub-agent's outputs into it before handing
// off to the next agent; agents only ever see keys written by earlier
// steps. Merge never deletes or rewrites history, so a persisted
// snapshot always reflects every step that ran.
type RunContext struct {
	RunID          string
	ConversationID string
	Input          string // Triggering user message content

	mu     sync.RWMutex
	values map[string]any
	steps  []string // Agent names in merge order
}

// NewRunContext creates an empty context for a run
func NewRunContext(runID, conversationID, input string) *RunContext {
	return &RunContext{
		RunID:          runID,
		ConversationID: conversationID,
		Input:          input,
		values:         make(map[string]any),
	}
}

// Value returns an accumulated value by key
func (rc *RunContext) Value(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

// StringValue returns an accumulated string value, or "" when absent
func (rc *RunContext) StringValue(key string) string {
	v, ok := rc.Value(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Merge accumulates one agent's outputs
// Overwriting a key written by an earlier agent is rejected: the
// accumulation is append-only, which keeps every handoff auditable.
func (rc *RunContext) Merge(agentName string, outputs map[string]any) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for key := range outputs {
		if _, exists := rc.values[key]; exists {
			return fmt.Errorf("agent %q attempted to overwrite context key %q", agentName, key)
		}
	}
	for key, value := range outputs {
		rc.values[key] = value
	}
	rc.steps = append(rc.steps, agentName)
	return nil
}

// Steps returns the agent names that have merged outputs, in order
func (rc *RunContext) Steps() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, len(rc.steps))
	copy(out, rc.steps)
	return out
}

// Snapshot returns a copy of the accumulated values
func (rc *RunContext) Snapshot() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}

// SnapshotJSON serializes the accumulated values for persistence
func (rc *RunContext) SnapshotJSON() (string, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	data, err := json.Marshal(map[string]any{
		"input":  rc.Input,
		"steps":  rc.steps,
		"values": rc.values,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal context snapshot: %w", err)
	}
	return string(data), nil
}
