// Package agent implements the iterative LLM tool-use loop that drives the
// assistant against a local workspace: the agent loop, the tool pipeline,
// context-window management, confirmation policy, and the supporting
// registry and evaluator types.
package agent

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation history. Messages are value-like
// snapshots; once appended to an AgentState they are never mutated in place.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single tool invocation requested by the LLM. ID is assigned
// by the LLM and echoed back on the matching tool message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// FinishReason tags why an LLMResponse stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// Usage carries token accounting for a single LLM call, when the provider
// reports it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMResponse is the consolidated result of one completion call, whether it
// arrived in one shot or was assembled from a stream of chunks.
type LLMResponse struct {
	Content      string       `json:"content,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// StreamChunk is one piece of a streaming completion. Only Content-bearing
// chunks are meant to reach a caller's onChunk callback; tool-call
// information is accumulated internally by the provider and surfaced only
// in the terminal LLMResponse.
type StreamChunk struct {
	Content string
	Done    bool
	Final   *LLMResponse
	Err     error
}

// ToolResult is the outcome of a single tool execution. Tools never fail by
// raising: every failure becomes a ToolResult with Success=false, and Output
// always carries a human-readable explanation the LLM can act on.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

func successResult(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

func failureResult(output string) *ToolResult {
	return &ToolResult{Success: false, Output: output, Error: output}
}

// Tool is the capability set every concrete tool implements. Sensitive is
// dynamic so a tool like the shell runner can classify per invocation.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Sensitive(args json.RawMessage) bool
	Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// ToolCallOutcome pairs a requested ToolCall with the ToolResult the
// pipeline produced for it.
type ToolCallOutcome struct {
	Call         ToolCall    `json:"call"`
	Result       *ToolResult `json:"result"`
	WasConfirmed bool        `json:"was_confirmed"`
	WasDryRun    bool        `json:"was_dry_run"`
}

// StepResult is an immutable record of one loop turn: the response that
// triggered it and the outcomes of any tool calls it requested.
type StepResult struct {
	StepNumber int               `json:"step_number"`
	Response   LLMResponse       `json:"response"`
	Outcomes   []ToolCallOutcome `json:"outcomes,omitempty"`
}

// StopReason is the closed set of reasons an AgentLoop run can terminate.
type StopReason string

const (
	StopLLMDone        StopReason = "LLM_DONE"
	StopMaxSteps       StopReason = "MAX_STEPS"
	StopBudgetExceeded StopReason = "BUDGET_EXCEEDED"
	StopContextFull    StopReason = "CONTEXT_FULL"
	StopTimeout        StopReason = "TIMEOUT"
	StopUserInterrupt  StopReason = "USER_INTERRUPT"
	StopLLMError       StopReason = "LLM_ERROR"
)

// Status is the run-level status of an AgentState.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// AgentState is the mutable record of one run. Once Status leaves "running"
// it is terminal. Messages never shrinks except through ContextManager
// operations, which always preserve indices 0 and 1.
type AgentState struct {
	Messages    []Message    `json:"messages"`
	Steps       []StepResult `json:"steps"`
	Status      Status       `json:"status"`
	StopReason  StopReason   `json:"stop_reason,omitempty"`
	FinalOutput string       `json:"final_output"`
	StartedAt   time.Time    `json:"started_at"`
	Model       string       `json:"model"`
}

// ConfirmMode selects how the ConfirmationPolicy treats tool calls.
type ConfirmMode string

const (
	ConfirmYolo       ConfirmMode = "yolo"
	ConfirmSensitive  ConfirmMode = "confirm-sensitive"
	ConfirmAll        ConfirmMode = "confirm-all"
)

// AgentConfig configures one persona: its system prompt, tool allow-list,
// confirmation behaviour, and step budget.
type AgentConfig struct {
	SystemPrompt string      `json:"system_prompt"`
	AllowedTools []string    `json:"allowed_tools,omitempty"`
	ConfirmMode  ConfirmMode `json:"confirm_mode"`
	MaxSteps     int         `json:"max_steps"`
}

// ContextConfig tunes the three ContextManager levels. A zero value for any
// field disables the level it governs.
type ContextConfig struct {
	MaxToolResultTokens int  `json:"max_tool_result_tokens"`
	SummarizeAfterSteps int  `json:"summarize_after_steps"`
	KeepRecentSteps     int  `json:"keep_recent_steps"`
	MaxContextTokens    int  `json:"max_context_tokens"`
	ParallelTools       bool `json:"parallel_tools"`
}

// LLMProvider is the external LLM transport contract the loop drives.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message, system string, tools []Tool) (*LLMResponse, error)
	CompleteStream(ctx context.Context, messages []Message, system string, tools []Tool) (<-chan StreamChunk, error)
}

// CostTracker reports whether the configured budget for a run has been
// exhausted. It is an optional collaborator; a nil tracker never trips.
type CostTracker interface {
	RecordUsage(usage Usage)
	BudgetExceeded() bool
}

// IndexProvider returns a textual workspace tree to splice into a system
// prompt. The loop does not care how it was built.
type IndexProvider interface {
	Tree(ctx context.Context) (string, error)
}

// ToolsUsedSummary is one entry of the `tools_used` field in the JSON
// AgentState serialization (see ToJSON).
type ToolsUsedSummary struct {
	Name       string `json:"name"`
	ArgsSummary string `json:"args_summary"`
	Success    bool   `json:"success"`
}

type agentStateJSON struct {
	Status          Status             `json:"status"`
	Output          string             `json:"output"`
	Steps           int                `json:"steps"`
	ToolsUsed       []ToolsUsedSummary `json:"tools_used"`
	DurationSeconds float64            `json:"duration_seconds"`
	Model           string             `json:"model"`
	StopReason      StopReason         `json:"stop_reason,omitempty"`
}

// ToJSON serializes the state into the reporting shape consumed by the CLI
// boundary: status, output, step count, a tools_used digest, wall-clock
// duration, model, and stop reason.
func (s *AgentState) ToJSON() ([]byte, error) {
	used := make([]ToolsUsedSummary, 0)
	for _, step := range s.Steps {
		for _, outcome := range step.Outcomes {
			summary := ToolsUsedSummary{Name: outcome.Call.Name}
			if len(outcome.Call.Arguments) > 0 {
				summary.ArgsSummary = summarizeArgs(outcome.Call.Arguments)
			}
			if outcome.Result != nil {
				summary.Success = outcome.Result.Success
			}
			used = append(used, summary)
		}
	}
	out := agentStateJSON{
		Status:          s.Status,
		Output:          s.FinalOutput,
		Steps:           len(s.Steps),
		ToolsUsed:       used,
		DurationSeconds: time.Since(s.StartedAt).Seconds(),
		Model:           s.Model,
		StopReason:      s.StopReason,
	}
	return json.Marshal(out)
}

func summarizeArgs(raw json.RawMessage) string {
	const maxLen = 120
	s := string(raw)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
