// Package providers implements concrete LLMProvider adapters.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/nexus/internal/agent"
)

// AnthropicProvider implements agent.LLMProvider against Anthropic's Claude
// API. It is the sole concrete LLM transport wired into this core; the
// multi-provider failover machinery of the wider assistant is out of scope
// here (see DESIGN.md).
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures a provider instance.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config, applies defaults, and builds the
// underlying SDK client.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

// Complete runs the non-streaming path by draining CompleteStream and
// returning its terminal response.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []agent.Message, system string, tools []agent.Tool) (*agent.LLMResponse, error) {
	chunks, err := p.CompleteStream(ctx, messages, system, tools)
	if err != nil {
		return nil, err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Done {
			if chunk.Final != nil {
				return chunk.Final, nil
			}
			return nil, errors.New("anthropic: stream ended without a final response")
		}
	}
	return nil, errors.New("anthropic: stream closed without a done signal")
}

// CompleteStream opens a streaming completion and translates Anthropic's
// SSE event stream into agent.StreamChunk values, retrying the initial
// request on transient failures.
func (p *AnthropicProvider) CompleteStream(ctx context.Context, messages []agent.Message, system string, tools []agent.Tool) (<-chan agent.StreamChunk, error) {
	params, err := p.buildParams(messages, system, tools)
	if err != nil {
		return nil, err
	}

	out := make(chan agent.StreamChunk)
	go func() {
		defer close(out)

		var lastErr error
		err := p.Retry(ctx, p.isRetryableErr, func() error {
			stream := p.client.Messages.NewStreaming(ctx, params)
			lastErr = p.drainStream(stream, out)
			return lastErr
		})
		if err != nil && lastErr == nil {
			out <- agent.StreamChunk{Err: p.wrapError(err)}
		}
	}()
	return out, nil
}

func (p *AnthropicProvider) buildParams(messages []agent.Message, system string, tools []agent.Tool) (anthropic.MessageNewParams, error) {
	converted, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel("")),
		Messages:  converted,
		MaxTokens: 4096,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(tools) > 0 {
		toolParams, err := convertTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = toolParams
	}
	return params, nil
}

// streamState accumulates the content blocks of one streamed message.
type streamState struct {
	text             strings.Builder
	toolCalls        []agent.ToolCall
	currentToolID    string
	currentToolName  string
	currentToolInput strings.Builder
	inToolBlock      bool
	inputTokens      int
	outputTokens     int
}

func (p *AnthropicProvider) drainStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- agent.StreamChunk) error {
	var state streamState

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			state.inputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				state.inToolBlock = true
				state.currentToolID = toolUse.ID
				state.currentToolName = toolUse.Name
				state.currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					state.text.WriteString(delta.Text)
					out <- agent.StreamChunk{Content: delta.Text}
				}
			case "input_json_delta":
				state.currentToolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if state.inToolBlock {
				state.toolCalls = append(state.toolCalls, agent.ToolCall{
					ID:        state.currentToolID,
					Name:      state.currentToolName,
					Arguments: json.RawMessage(state.currentToolInput.String()),
				})
				state.inToolBlock = false
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				state.outputTokens = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			out <- agent.StreamChunk{Done: true, Final: finalResponse(state)}
			return nil

		case "error":
			return errors.New("anthropic stream error")
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return nil
}

func finalResponse(state streamState) *agent.LLMResponse {
	reason := agent.FinishStop
	if len(state.toolCalls) > 0 {
		reason = agent.FinishToolCalls
	}
	return &agent.LLMResponse{
		Content:      state.text.String(),
		ToolCalls:    state.toolCalls,
		FinishReason: reason,
		Usage: &agent.Usage{
			InputTokens:  state.inputTokens,
			OutputTokens: state.outputTokens,
			TotalTokens:  state.inputTokens + state.outputTokens,
		},
	}
}

// convertMessages translates the internal message list into Anthropic's
// content-block form. An assistant message with tool calls becomes a
// tool_use content block per call; the run of tool-role messages that
// follows it is batched into a single user message of tool_result blocks,
// matching how the Anthropic API expects a tool round-trip to be shaped.
func convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	i := 0
	for i < len(messages) {
		msg := messages[i]
		switch msg.Role {
		case agent.RoleSystem:
			i++

		case agent.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			i++

		case agent.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]interface{}
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call arguments for %s: %w", call.Name, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))
			i++

		case agent.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == agent.RoleTool {
				content = append(content, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
				i++
			}
			result = append(result, anthropic.NewUserMessage(content...))

		default:
			i++
		}
	}
	return result, nil
}

// convertTools translates each tool's declarative JSON schema into
// Anthropic's tool-input schema form.
func convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}

func (p *AnthropicProvider) getModel(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) isRetryableErr(err error) bool {
	return IsRetryable(err)
}

func (p *AnthropicProvider) wrapError(err error) error {
	return NewProviderError("anthropic", p.defaultModel, err)
}
