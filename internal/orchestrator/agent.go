package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// Completion is the result of one model call
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Completer is the model transport used by sub-agents
// Tests and the default deployment use LocalCompleter; a real LLM
// gateway satisfies the same interface.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (Completion, error)
}

// Request is what the supervisor hands a sub-agent for one step
type Request struct {
	Model   string
	Context *RunContext
}

// StepResult is what a sub-agent hands back
// Outputs are merged into the run context before the next handoff.
type StepResult struct {
	Output    string
	Outputs   map[string]any
	TokensIn  int
	TokensOut int
}

// Agent is a single sub-agent in a pipeline
type Agent interface {
	Name() string
	Execute(ctx context.Context, req Request) (StepResult, error)
}

// PlannerAgent decomposes the user message into a work plan
type PlannerAgent struct {
	completer Completer
}

// NewPlannerAgent creates the planner
func NewPlannerAgent(completer Completer) *PlannerAgent {
	return &PlannerAgent{completer: completer}
}

func (a *PlannerAgent) Name() string { return "planner" }

func (a *PlannerAgent) Execute(ctx context.Context, req Request) (StepResult, error) {
	prompt := fmt.Sprintf("Plan the steps needed to answer: %s", req.Context.Input)
	completion, err := a.completer.Complete(ctx, req.Model, prompt)
	if err != nil {
		return StepResult{}, fmt.Errorf("planner completion failed: %w", err)
	}

	return StepResult{
		Output:    completion.Text,
		Outputs:   map[string]any{"plan": completion.Text},
		TokensIn:  completion.TokensIn,
		TokensOut: completion.TokensOut,
	}, nil
}

// ResearcherAgent gathers material following the planner's plan
type ResearcherAgent struct {
	completer Completer
}

// NewResearcherAgent creates the researcher
func NewResearcherAgent(completer Completer) *ResearcherAgent {
	return &ResearcherAgent{completer: completer}
}

func (a *ResearcherAgent) Name() string { return "researcher" }

func (a *ResearcherAgent) Execute(ctx context.Context, req Request) (StepResult, error) {
	plan := req.Context.StringValue("plan")
	if plan == "" {
		return StepResult{}, fmt.Errorf("researcher requires a plan in context")
	}

	prompt := fmt.Sprintf("Research the following plan:\n%s\nQuestion: %s", plan, req.Context.Input)
	completion, err := a.completer.Complete(ctx, req.Model, prompt)
	if err != nil {
		return StepResult{}, fmt.Errorf("researcher completion failed: %w", err)
	}

	return StepResult{
		Output:    completion.Text,
		Outputs:   map[string]any{"findings": completion.Text},
		TokensIn:  completion.TokensIn,
		TokensOut: completion.TokensOut,
	}, nil
}

// SummarizerAgent produces the final assistant reply from accumulated context
type SummarizerAgent struct {
	completer Completer
}

// NewSummarizerAgent creates the summarizer
func NewSummarizerAgent(completer Completer) *SummarizerAgent {
	return &SummarizerAgent{completer: completer}
}

func (a *SummarizerAgent) Name() string { return "summarizer" }

func (a *SummarizerAgent) Execute(ctx context.Context, req Request) (StepResult, error) {
	findings := req.Context.StringValue("findings")
	source := findings
	if source == "" {
		// Direct replies skip the researcher; summarize the input itself
		source = req.Context.Input
	}

	prompt := fmt.Sprintf("Write a concise reply based on:\n%s", source)
	completion, err := a.completer.Complete(ctx, req.Model, prompt)
	if err != nil {
		return StepResult{}, fmt.Errorf("summarizer completion failed: %w", err)
	}

	return StepResult{
		Output:    completion.Text,
		Outputs:   map[string]any{"summary": completion.Text},
		TokensIn:  completion.TokensIn,
		TokensOut: completion.TokensOut,
	}, nil
}

// LocalCompleter is a deterministic in-process model transport
// It stands in for a remote LLM gateway in the default deployment and
// in tests: token counts are word counts, replies are derived from the
// prompt tail.
type LocalCompleter struct{}

func (LocalCompleter) Complete(_ context.Context, model, prompt string) (Completion, error) {
	words := strings.Fields(prompt)
	tail := words
	if len(tail) > 24 {
		tail = tail[len(tail)-24:]
	}
	text := fmt.Sprintf("[%s] %s", model, strings.Join(tail, " "))

	return Completion{
		Text:      text,
		TokensIn:  len(words),
		TokensOut: len(tail) + 1,
	}, nil
}
