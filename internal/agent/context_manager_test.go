package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeLLM struct {
	response *LLMResponse
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []Message, system string, tools []Tool) (*LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, messages []Message, system string, tools []Tool) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true, Final: f.response}
	close(ch)
	return ch, nil
}

func TestTruncateToolOutputPassesThroughShortOutput(t *testing.T) {
	m := NewContextManager(ContextConfig{MaxToolResultTokens: 1000})
	short := "a few lines of output"
	if got := m.TruncateToolOutput(short); got != short {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestTruncateToolOutputDisabledWhenZero(t *testing.T) {
	m := NewContextManager(ContextConfig{})
	long := strings.Repeat("line\n", 1000)
	if got := m.TruncateToolOutput(long); got != long {
		t.Error("expected output unchanged when MaxToolResultTokens is 0")
	}
}

func TestTruncateToolOutputKeepsHeadAndTail(t *testing.T) {
	m := NewContextManager(ContextConfig{MaxToolResultTokens: 10})
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "line")
	}
	long := strings.Join(lines, "\n")

	got := m.TruncateToolOutput(long)
	if !strings.Contains(got, "omitted") {
		t.Errorf("expected an omission marker, got:\n%s", got)
	}
	gotLines := strings.Split(got, "\n")
	if gotLines[0] != "line" || gotLines[len(gotLines)-1] != "line" {
		t.Errorf("expected head/tail preserved, got first=%q last=%q", gotLines[0], gotLines[len(gotLines)-1])
	}
}

func TestEstimateTokens(t *testing.T) {
	m := NewContextManager(ContextConfig{})
	messages := []Message{{Role: RoleUser, Content: strings.Repeat("x", 40)}}
	if got := m.EstimateTokens(messages); got != 14 {
		t.Errorf("EstimateTokens() = %d, want 14", got)
	}
}

func TestIsCriticallyFull(t *testing.T) {
	m := NewContextManager(ContextConfig{MaxContextTokens: 100})
	messages := []Message{{Role: RoleUser, Content: strings.Repeat("x", 1000)}}
	if !m.IsCriticallyFull(messages) {
		t.Error("expected critically full at 1000 chars against a 100-token budget")
	}
}

func TestIsCriticallyFullDisabledWhenZero(t *testing.T) {
	m := NewContextManager(ContextConfig{})
	messages := []Message{{Role: RoleUser, Content: strings.Repeat("x", 1_000_000)}}
	if m.IsCriticallyFull(messages) {
		t.Error("expected never critically full when MaxContextTokens is 0")
	}
}

func TestManagePreservesFixedPrefix(t *testing.T) {
	m := NewContextManager(ContextConfig{MaxContextTokens: 20})
	messages := []Message{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: RoleUser, Content: "initial request"},
		{Role: RoleAssistant, Content: strings.Repeat("a", 200)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 200)},
	}
	out := m.Manage(context.Background(), messages, nil)
	if out[0].Content != "system prompt" || out[1].Content != "initial request" {
		t.Errorf("Manage() dropped the fixed prefix: %+v", out[:2])
	}
}

func TestSlideWindowDropsOldestPair(t *testing.T) {
	m := NewContextManager(ContextConfig{MaxContextTokens: 1})
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "initial"},
		{Role: RoleAssistant, Content: "old-1"},
		{Role: RoleTool, Content: "old-2"},
		{Role: RoleAssistant, Content: "recent"},
	}
	out := m.slideWindow(messages)
	for _, msg := range out {
		if msg.Content == "old-1" || msg.Content == "old-2" {
			t.Errorf("expected old-1/old-2 dropped, got %+v", out)
		}
	}
	if out[0].Content != "sys" || out[1].Content != "initial" {
		t.Errorf("expected prefix preserved, got %+v", out[:2])
	}
}

func TestCompressFallsBackToMechanicalSummaryOnLLMError(t *testing.T) {
	m := NewContextManager(ContextConfig{SummarizeAfterSteps: 1, KeepRecentSteps: 0})
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "initial"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "write_file", Arguments: args}}},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "write_file", Arguments: args}}},
	}

	llm := &fakeLLM{err: errors.New("provider unavailable")}
	out := m.compress(context.Background(), messages, llm)

	if len(out) != 3 {
		t.Fatalf("expected prefix + summary, got %d messages: %+v", len(out), out)
	}
	if !strings.Contains(out[2].Content, "mechanical summary") {
		t.Errorf("expected mechanical summary fallback, got %q", out[2].Content)
	}
	if !strings.Contains(out[2].Content, "write_file called 2 time(s)") {
		t.Errorf("expected tool count in summary, got %q", out[2].Content)
	}
}

func TestCompressUsesLLMSummaryOnSuccess(t *testing.T) {
	m := NewContextManager(ContextConfig{SummarizeAfterSteps: 1, KeepRecentSteps: 0})
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "initial"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "read_file"}}},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "read_file"}}},
	}
	llm := &fakeLLM{response: &LLMResponse{Content: "read two files"}}
	out := m.compress(context.Background(), messages, llm)

	if !strings.Contains(out[2].Content, "read two files") {
		t.Errorf("expected LLM summary content, got %q", out[2].Content)
	}
}
