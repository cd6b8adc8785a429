package agent

import (
	"context"
	"fmt"
)

// MixedRunner composes a read-only plan phase with a mutating build phase
// over one shared LLM adapter, ContextManager, shutdown controller, step
// timer, and cost tracker, so token accounting is continuous across both.
type MixedRunner struct {
	LLM      LLMProvider
	Registry *ToolRegistry
	Context  *ContextManager
	Shutdown *ShutdownController
	Timer    *StepTimer
	Cost     CostTracker
	Model    string
	DryRun   bool

	// PlanTools restricts the plan phase to read-only + search tools.
	PlanTools []string
	// BuildTools is the full tool set, including edits and shell commands.
	BuildTools []string

	SystemPrompt string
	MaxSteps     int
}

// Run executes the plan phase, then (unless it failed or shutdown was
// requested) the build phase with an enriched prompt built from the plan's
// output, returning the build phase's AgentState.
func (r *MixedRunner) Run(ctx context.Context, prompt string, stream bool, onChunk func(string)) *AgentState {
	planConfirm := NewConfirmationPolicy(ConfirmAll)
	planPipeline := NewPipeline(r.Registry, planConfirm, nil, r.DryRun)
	planLoop := &AgentLoop{
		Config: AgentConfig{
			SystemPrompt: r.SystemPrompt,
			AllowedTools: r.PlanTools,
			ConfirmMode:  ConfirmAll,
			MaxSteps:     r.MaxSteps,
		},
		Model:    r.Model,
		Registry: r.Registry,
		Pipeline: planPipeline,
		Context:  r.Context,
		LLM:      r.LLM,
		Shutdown: r.Shutdown,
		Timer:    r.Timer,
		Cost:     r.Cost,
		Logger:   defaultLogger(),
		Tracer:   defaultTracer(),
		Metrics:  GlobalMetrics(),
	}

	planState := planLoop.Run(ctx, prompt, false, nil)
	if planState.Status == StatusFailed {
		return planState
	}
	if r.Shutdown != nil && r.Shutdown.Requested() {
		return planState
	}

	buildPrompt := fmt.Sprintf(
		"The user asked: %s\n\nPlanning agent produced:\n---\n%s\n---\nExecute this plan step by step and report the final result.",
		prompt, planState.FinalOutput,
	)

	buildConfirm := NewConfirmationPolicy(ConfirmSensitive)
	buildPipeline := NewPipeline(r.Registry, buildConfirm, nil, r.DryRun)
	buildLoop := &AgentLoop{
		Config: AgentConfig{
			SystemPrompt: r.SystemPrompt,
			AllowedTools: r.BuildTools,
			ConfirmMode:  ConfirmSensitive,
			MaxSteps:     r.MaxSteps,
		},
		Model:    r.Model,
		Registry: r.Registry,
		Pipeline: buildPipeline,
		Context:  r.Context,
		LLM:      r.LLM,
		Shutdown: r.Shutdown,
		Timer:    r.Timer,
		Cost:     r.Cost,
		Logger:   defaultLogger(),
		Tracer:   defaultTracer(),
		Metrics:  GlobalMetrics(),
	}

	return buildLoop.Run(ctx, buildPrompt, stream, onChunk)
}
