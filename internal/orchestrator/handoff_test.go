package orchestrator

import (
	"errors"
	"testing"
	"time"
)

func TestContractBook_Validate(t *testing.T) {
	book := NewContractBook()
	book.Register("researcher", Contract{
		RequiredKeys: []string{"findings"},
		MaxDuration:  time.Second,
	})

	tests := []struct {
		name    string
		agent   string
		result  StepResult
		elapsed time.Duration
		wantErr bool
	}{
		{
			name:    "satisfied contract",
			agent:   "researcher",
			result:  StepResult{Outputs: map[string]any{"findings": "x"}},
			elapsed: 100 * time.Millisecond,
			wantErr: false,
		},
		{
			name:    "missing required key",
			agent:   "researcher",
			result:  StepResult{Outputs: map[string]any{"notes": "x"}},
			elapsed: 100 * time.Millisecond,
			wantErr: true,
		},
		{
			name:    "nil outputs",
			agent:   "researcher",
			result:  StepResult{},
			elapsed: 100 * time.Millisecond,
			wantErr: true,
		},
		{
			name:    "over time budget",
			agent:   "researcher",
			result:  StepResult{Outputs: map[string]any{"findings": "x"}},
			elapsed: 2 * time.Second,
			wantErr: true,
		},
		{
			name:    "unregistered agent passes",
			agent:   "freelancer",
			result:  StepResult{},
			elapsed: time.Hour,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := book.Validate(tt.agent, tt.result, tt.elapsed)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrHandoffViolation) {
				t.Errorf("Validate() error = %v, want ErrHandoffViolation", err)
			}
		})
	}
}

func TestDefaultContracts_CoverBuiltinAgents(t *testing.T) {
	book := DefaultContracts()

	for agent, key := range map[string]string{
		"planner":    "plan",
		"researcher": "findings",
		"summarizer": "summary",
	} {
		if err := book.Validate(agent, StepResult{Outputs: map[string]any{key: "x"}}, time.Millisecond); err != nil {
			t.Errorf("Validate(%s with %s) = %v, want nil", agent, key, err)
		}
		if err := book.Validate(agent, StepResult{}, time.Millisecond); err == nil {
			t.Errorf("Validate(%s without outputs) = nil, want violation", agent)
		}
	}
}

func TestPlanSequence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "question gets research step", input: "What is WAL mode?", want: 3},
		{name: "long request gets research step", input: "please compare the tradeoffs of sqlite wal mode against rollback journal mode for us", want: 3},
		{name: "short statement skips research", input: "summarize this thread", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanSequence(tt.input)
			if len(plan) != tt.want {
				t.Errorf("PlanSequence(%q) = %v, want %d steps", tt.input, plan, tt.want)
			}
			if plan[0] != "planner" || plan[len(plan)-1] != "summarizer" {
				t.Errorf("plan must start with planner and end with summarizer, got %v", plan)
			}
		})
	}
}
