package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AgentLoop drives turns until the LLM stops asking for tools or a watchdog
// fires. It is synchronous and single-threaded; only the tool pipeline may
// fan out within a turn.
type AgentLoop struct {
	Config   AgentConfig
	Model    string
	Registry *ToolRegistry
	Pipeline *Pipeline
	Context  *ContextManager
	LLM      LLMProvider
	Shutdown *ShutdownController
	Timer    *StepTimer
	Cost     CostTracker

	// MaxDuration is the overall wall-clock budget for one run, checked as
	// part of the safety-net at the top of every iteration. Zero disables it.
	MaxDuration time.Duration

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewAgentLoop builds a loop ready to run one agent configuration.
func NewAgentLoop(cfg AgentConfig, model string, llm LLMProvider, registry *ToolRegistry, pipeline *Pipeline, ctxMgr *ContextManager, shutdown *ShutdownController, timer *StepTimer, cost CostTracker) *AgentLoop {
	logger := slog.Default()
	return &AgentLoop{
		Config:   cfg,
		Model:    model,
		Registry: registry,
		Pipeline: pipeline,
		Context:  ctxMgr,
		LLM:      llm,
		Shutdown: shutdown,
		Timer:    timer,
		Cost:     cost,
		Logger:   logger,
		Tracer:   otel.Tracer("nexus/agent"),
		Metrics:  GlobalMetrics(),
	}
}

// Run drives the loop to completion: one or more turns against the LLM,
// executing any requested tool calls in between, until the model stops
// requesting tools or a watchdog returns a StopReason.
func (l *AgentLoop) Run(ctx context.Context, prompt string, stream bool, onChunk func(string)) *AgentState {
	ctx, span := l.Tracer.Start(ctx, "agent.run")
	defer span.End()

	state := &AgentState{
		Messages: []Message{
			{Role: RoleSystem, Content: l.Config.SystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Model:     l.Model,
	}

	tools, err := l.resolveTools()
	if err != nil {
		state.Status = StatusFailed
		state.StopReason = StopLLMError
		state.FinalOutput = err.Error()
		return state
	}

	for {
		if reason, stop := l.checkSafetyNets(state); stop {
			l.Logger.Info("agent loop stopping", "reason", reason, "steps", len(state.Steps))
			return l.gracefulClose(ctx, state, reason)
		}

		if l.Context != nil {
			state.Messages = l.Context.Manage(ctx, state.Messages, l.LLM)
		}

		stepCtx, cancel := l.Timer.WithDeadline(ctx)
		resp, err := l.callLLM(stepCtx, state.Messages, tools, stream, onChunk)
		timedOut := l.Timer.Expired(stepCtx)
		cancel()

		if err != nil {
			if timedOut {
				return l.gracefulClose(ctx, state, StopTimeout)
			}
			state.Status = StatusFailed
			state.StopReason = StopLLMError
			state.FinalOutput = err.Error()
			l.Logger.Error("llm call failed", "error", err)
			return state
		}

		if l.Cost != nil {
			if resp.Usage != nil {
				l.Cost.RecordUsage(*resp.Usage)
			}
			if l.Cost.BudgetExceeded() {
				return l.gracefulClose(ctx, state, StopBudgetExceeded)
			}
		}

		if len(resp.ToolCalls) == 0 {
			state.Status = StatusSuccess
			state.StopReason = StopLLMDone
			state.FinalOutput = resp.Content
			if l.Metrics != nil {
				l.Metrics.ObserveStopReason(state.StopReason)
			}
			return state
		}

		parallel := l.Context != nil && l.Context.cfg.ParallelTools
		outcomes := l.Pipeline.ExecuteBatch(ctx, resp.ToolCalls, parallel)
		if l.Metrics != nil {
			l.Metrics.ObserveToolCalls(len(outcomes))
		}

		state.Messages = append(state.Messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, outcome := range outcomes {
			output := ""
			if outcome.Result != nil {
				output = outcome.Result.Output
			}
			if l.Context != nil {
				output = l.Context.TruncateToolOutput(output)
			}
			state.Messages = append(state.Messages, Message{
				Role:       RoleTool,
				Content:    output,
				ToolCallID: outcome.Call.ID,
			})
		}

		state.Steps = append(state.Steps, StepResult{
			StepNumber: len(state.Steps) + 1,
			Response:   *resp,
			Outcomes:   outcomes,
		})
	}
}

func (l *AgentLoop) checkSafetyNets(state *AgentState) (StopReason, bool) {
	if l.Shutdown != nil && l.Shutdown.Requested() {
		return StopUserInterrupt, true
	}
	if len(state.Steps) >= l.Config.MaxSteps {
		return StopMaxSteps, true
	}
	if l.MaxDuration > 0 && time.Since(state.StartedAt) > l.MaxDuration {
		return StopTimeout, true
	}
	if l.Context != nil && l.Context.IsCriticallyFull(state.Messages) {
		return StopContextFull, true
	}
	return "", false
}

// gracefulClose appends a reason-specific closing instruction and makes one
// additional LLM call with no tools offered, taking its text as the final
// output. USER_INTERRUPT skips that call entirely. If the closing call
// itself fails, a canned message is used instead. Status is always partial.
func (l *AgentLoop) gracefulClose(ctx context.Context, state *AgentState, reason StopReason) *AgentState {
	state.Status = StatusPartial
	state.StopReason = reason

	if reason == StopUserInterrupt {
		state.FinalOutput = "interrupted by user"
		return state
	}

	if l.Metrics != nil {
		l.Metrics.ObserveStopReason(reason)
	}

	state.Messages = append(state.Messages, Message{Role: RoleUser, Content: closingInstruction(reason)})
	resp, err := l.LLM.Complete(ctx, state.Messages, l.Config.SystemPrompt, nil)
	if err != nil {
		state.FinalOutput = fmt.Sprintf("agent stopped (%s)", reason)
		return state
	}
	state.FinalOutput = resp.Content
	return state
}

func closingInstruction(reason StopReason) string {
	switch reason {
	case StopMaxSteps:
		return "You have reached the maximum number of steps for this run. Summarize what you did and what remains."
	case StopBudgetExceeded:
		return "The cost budget for this run has been exhausted. Summarize what you did and what remains."
	case StopContextFull:
		return "The conversation context is full. Summarize what you did and what remains."
	case StopTimeout:
		return "This step timed out. Summarize what you did and what remains."
	default:
		return "Summarize what you did and what remains."
	}
}

// callLLM dispatches either a blocking completion or, in streaming mode, a
// stream that delivers content chunks synchronously to onChunk while
// accumulating tool-call information internally, surfaced only in the
// terminal consolidated response.
func (l *AgentLoop) callLLM(ctx context.Context, messages []Message, tools []Tool, stream bool, onChunk func(string)) (*LLMResponse, error) {
	if !stream || onChunk == nil {
		return l.LLM.Complete(ctx, messages, l.Config.SystemPrompt, tools)
	}
	chunks, err := l.LLM.CompleteStream(ctx, messages, l.Config.SystemPrompt, tools)
	if err != nil {
		return nil, err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Content != "" {
			onChunk(chunk.Content)
		}
		if chunk.Done {
			if chunk.Final != nil {
				return chunk.Final, nil
			}
			return nil, fmt.Errorf("stream ended without a final response")
		}
	}
	return nil, fmt.Errorf("stream closed without a done signal")
}

// resolveTools expands the agent's allow-list into concrete Tool instances.
// An empty allow-list means every registered tool.
func (l *AgentLoop) resolveTools() ([]Tool, error) {
	names := l.Config.AllowedTools
	if len(names) == 0 {
		names = l.Registry.ListAll()
	}
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, err := l.Registry.Get(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}
