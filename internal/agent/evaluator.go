package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// EvalResult is the verdict produced by SelfEvaluator.EvaluateBasic.
type EvalResult struct {
	Completed  bool     `json:"completed"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// RunFunc re-invokes the agent loop with a correction prompt. It is
// injected rather than imported directly so the evaluator never depends on
// the loop package, avoiding a cycle between the two.
type RunFunc func(ctx context.Context, prompt string) (*AgentState, error)

// SelfEvaluator re-scores a completed run and, in Full mode, drives
// correction retries. It is only invoked by the runner after a success run.
type SelfEvaluator struct {
	LLM        LLMProvider
	Threshold  float64
	MaxRetries int
}

// NewSelfEvaluator builds an evaluator with a default confidence threshold
// of 0.7 if none is given.
func NewSelfEvaluator(llm LLMProvider, threshold float64, maxRetries int) *SelfEvaluator {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &SelfEvaluator{LLM: llm, Threshold: threshold, MaxRetries: maxRetries}
}

const evalSystemPrompt = `You evaluate whether an agent's run completed the user's request.
Reply with JSON only, no prose, no code fences: {"completed": bool, "confidence": number between 0 and 1, "issues": [string], "suggestion": string}.`

// EvaluateBasic builds a two-message evaluation conversation, calls the LLM
// with no tools offered, and parses the reply. Any parse failure yields a
// fixed unparseable verdict rather than raising.
func (e *SelfEvaluator) EvaluateBasic(ctx context.Context, prompt string, state *AgentState) EvalResult {
	userPayload := buildEvalPayload(prompt, state)
	resp, err := e.LLM.Complete(ctx, []Message{{Role: RoleUser, Content: userPayload}}, evalSystemPrompt, nil)
	if err != nil {
		return EvalResult{Completed: false, Confidence: 0, Issues: []string{"unparseable"}}
	}
	result, ok := parseEvalReply(resp.Content)
	if !ok {
		return EvalResult{Completed: false, Confidence: 0, Issues: []string{"unparseable"}}
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result
}

func buildEvalPayload(prompt string, state *AgentState) string {
	output := state.FinalOutput
	if len(output) > 500 {
		output = output[:500]
	}
	var steps strings.Builder
	for _, step := range state.Steps {
		for _, outcome := range step.Outcomes {
			fmt.Fprintf(&steps, "- %s(%s)\n", outcome.Call.Name, summarizeArgs(outcome.Call.Arguments))
		}
	}
	return fmt.Sprintf("Original prompt: %s\n\nFinal output (first 500 chars): %s\n\nSteps taken:\n%s", prompt, output, steps.String())
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
var braceSubstringPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseEvalReply tries, in order: a direct JSON parse, a fenced code block
// containing JSON, then the first {...} substring.
func parseEvalReply(reply string) (EvalResult, bool) {
	trimmed := strings.TrimSpace(reply)

	var result EvalResult
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return result, true
	}

	if match := fencedJSONPattern.FindStringSubmatch(trimmed); match != nil {
		if err := json.Unmarshal([]byte(match[1]), &result); err == nil {
			return result, true
		}
	}

	if match := braceSubstringPattern.FindString(trimmed); match != "" {
		if err := json.Unmarshal([]byte(match), &result); err == nil {
			return result, true
		}
	}

	return EvalResult{}, false
}

// Passes reports whether a verdict clears the confidence threshold.
func (e *SelfEvaluator) Passes(result EvalResult) bool {
	return result.Completed && result.Confidence >= e.Threshold
}

// EvaluateFull iterates up to MaxRetries: evaluate, and if the verdict
// fails, build a correction prompt from its issues and suggestion and
// re-invoke run. An error from run terminates the loop early; the most
// recent state is returned regardless of pass/fail.
func (e *SelfEvaluator) EvaluateFull(ctx context.Context, prompt string, state *AgentState, run RunFunc) *AgentState {
	current := state
	for attempt := 0; attempt < e.MaxRetries; attempt++ {
		verdict := e.EvaluateBasic(ctx, prompt, current)
		if e.Passes(verdict) {
			return current
		}
		correction := buildCorrectionPrompt(verdict)
		next, err := run(ctx, correction)
		if err != nil {
			return current
		}
		current = next
	}
	return current
}

func buildCorrectionPrompt(verdict EvalResult) string {
	var b strings.Builder
	b.WriteString("The previous attempt did not fully complete the request. Issues found:\n")
	for _, issue := range verdict.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	if verdict.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s\n", verdict.Suggestion)
	}
	b.WriteString("\nPlease address these issues and complete the task.")
	return b.String()
}
