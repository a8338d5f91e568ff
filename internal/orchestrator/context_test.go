package orchestrator

import (
	"encoding/json"
	"testing"
)

func TestRunContext_MergeAccumulates(t *testing.T) {
	rc := NewRunContext("run-1", "conv-1", "What is WAL mode?")

	if err := rc.Merge("planner", map[string]any{"plan": "1. look it up"}); err != nil {
		t.Fatalf("Merge(planner) error: %v", err)
	}
	if err := rc.Merge("researcher", map[string]any{"findings": "WAL is write-ahead logging"}); err != nil {
		t.Fatalf("Merge(researcher) error: %v", err)
	}

	if got := rc.StringValue("plan"); got != "1. look it up" {
		t.Errorf("plan = %q", got)
	}
	if got := rc.StringValue("findings"); got != "WAL is write-ahead logging" {
		t.Errorf("findings = %q", got)
	}

	steps := rc.Steps()
	if len(steps) != 2 || steps[0] != "planner" || steps[1] != "researcher" {
		t.Errorf("Steps() = %v, want [planner researcher]", steps)
	}
}

func TestRunContext_MergeRejectsOverwrite(t *testing.T) {
	rc := NewRunContext("run-1", "conv-1", "hello")

	if err := rc.Merge("planner", map[string]any{"plan": "a"}); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if err := rc.Merge("rogue", map[string]any{"plan": "b"}); err == nil {
		t.Fatal("Merge() overwriting an existing key succeeded, want error")
	}

	// Rejected merge must not be recorded
	if got := rc.StringValue("plan"); got != "a" {
		t.Errorf("plan = %q, want %q (original value)", got, "a")
	}
	if steps := rc.Steps(); len(steps) != 1 {
		t.Errorf("Steps() = %v, want only planner", steps)
	}
}

func TestRunContext_SnapshotIsCopy(t *testing.T) {
	rc := NewRunContext("run-1", "conv-1", "hello")
	_ = rc.Merge("planner", map[string]any{"plan": "a"})

	snap := rc.Snapshot()
	snap["plan"] = "mutated"

	if got := rc.StringValue("plan"); got != "a" {
		t.Errorf("mutating a snapshot changed the context: plan = %q", got)
	}
}

func TestRunContext_SnapshotJSON(t *testing.T) {
	rc := NewRunContext("run-1", "conv-1", "What is WAL?")
	_ = rc.Merge("planner", map[string]any{"plan": "look it up"})

	raw, err := rc.SnapshotJSON()
	if err != nil {
		t.Fatalf("SnapshotJSON() error: %v", err)
	}

	var decoded struct {
		Input  string         `json:"input"`
		Steps  []string       `json:"steps"`
		Values map[string]any `json:"values"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if decoded.Input != "What is WAL?" {
		t.Errorf("input = %q", decoded.Input)
	}
	if len(decoded.Steps) != 1 || decoded.Steps[0] != "planner" {
		t.Errorf("steps = %v", decoded.Steps)
	}
	if decoded.Values["plan"] != "look it up" {
		t.Errorf("values = %v", decoded.Values)
	}
}
