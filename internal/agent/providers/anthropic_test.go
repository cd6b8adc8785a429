package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
)

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider(AnthropicConfig{})
	if err == nil {
		t.Fatal("expected an error when no API key is given")
	}
}

func TestNewAnthropicProviderDefaultsModel(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error: %v", err)
	}
	if p.getModel("") != "claude-sonnet-4-20250514" {
		t.Errorf("getModel(\"\") = %q", p.getModel(""))
	}
	if p.getModel("claude-opus-4") != "claude-opus-4" {
		t.Errorf("getModel() should pass through an explicit request")
	}
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	messages := []agent.Message{
		{Role: agent.RoleSystem, Content: "you are an assistant"},
		{Role: agent.RoleUser, Content: "hello"},
	}
	out, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages() error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the system message dropped, got %d messages", len(out))
	}
}

func TestConvertMessagesBatchesToolResults(t *testing.T) {
	messages := []agent.Message{
		{Role: agent.RoleUser, Content: "run two tools"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{
			{ID: "1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a"}`)},
			{ID: "2", Name: "read_file", Arguments: json.RawMessage(`{"path":"b"}`)},
		}},
		{Role: agent.RoleTool, Content: "contents of a", ToolCallID: "1"},
		{Role: agent.RoleTool, Content: "contents of b", ToolCallID: "2"},
	}
	out, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages() error: %v", err)
	}
	// user, assistant(tool_use x2), user(tool_result x2 batched into one message)
	if len(out) != 3 {
		t.Fatalf("expected 3 converted messages, got %d", len(out))
	}
}

func TestConvertMessagesInvalidToolArgumentsErrors(t *testing.T) {
	messages := []agent.Message{
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{
			{ID: "1", Name: "read_file", Arguments: json.RawMessage(`not json`)},
		}},
	}
	if _, err := convertMessages(messages); err == nil {
		t.Error("expected an error for unparsable tool call arguments")
	}
}

func TestConvertToolsTranslatesSchema(t *testing.T) {
	tool := fakeSchemaTool{
		name:        "read_file",
		description: "reads a file",
		schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}
	out, err := convertTools([]agent.Tool{tool})
	if err != nil {
		t.Fatalf("convertTools() error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 converted tool, got %d", len(out))
	}
	if out[0].OfTool == nil {
		t.Fatal("expected OfTool to be populated")
	}
	if out[0].OfTool.Name != "read_file" {
		t.Errorf("Name = %q", out[0].OfTool.Name)
	}
}

func TestConvertToolsInvalidSchemaErrors(t *testing.T) {
	tool := fakeSchemaTool{name: "t", schema: json.RawMessage(`not json`)}
	if _, err := convertTools([]agent.Tool{tool}); err == nil {
		t.Error("expected an error for an unparsable tool schema")
	}
}

func TestFinalResponseNoToolCallsIsStop(t *testing.T) {
	state := streamState{}
	state.text.WriteString("hello there")
	resp := finalResponse(state)
	if resp.FinishReason != agent.FinishStop {
		t.Errorf("FinishReason = %v, want stop", resp.FinishReason)
	}
	if resp.Content != "hello there" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestFinalResponseWithToolCallsIsToolCalls(t *testing.T) {
	state := streamState{toolCalls: []agent.ToolCall{{ID: "1", Name: "read_file"}}}
	state.inputTokens = 10
	state.outputTokens = 5
	resp := finalResponse(state)
	if resp.FinishReason != agent.FinishToolCalls {
		t.Errorf("FinishReason = %v, want tool_calls", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

type fakeSchemaTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (f fakeSchemaTool) Name() string                   { return f.name }
func (f fakeSchemaTool) Description() string            { return f.description }
func (f fakeSchemaTool) Schema() json.RawMessage        { return f.schema }
func (f fakeSchemaTool) Sensitive(json.RawMessage) bool { return false }
func (f fakeSchemaTool) Execute(ctx context.Context, args json.RawMessage) (*agent.ToolResult, error) {
	return nil, nil
}
