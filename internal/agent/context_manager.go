package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ContextManager keeps the message list within an LLM's window while always
// preserving indices 0 (system) and 1 (initial user). It is a stateless
// value parameterised by ContextConfig; all state lives in the message
// slice it is handed, which is what lets a MixedRunner share one manager
// across a plan phase and a build phase.
type ContextManager struct {
	cfg ContextConfig
}

// NewContextManager builds a manager for the given config. Each of the
// three levels is disabled when its corresponding config field is zero.
func NewContextManager(cfg ContextConfig) *ContextManager {
	return &ContextManager{cfg: cfg}
}

// TruncateToolOutput is L1: applied at message-append time by the loop's
// message assembler. If output exceeds max_tool_result_tokens*4 characters,
// it keeps the first 40 lines, an omission marker, then the last 20 lines.
// Output that already fits is returned unchanged.
func (m *ContextManager) TruncateToolOutput(output string) string {
	if m.cfg.MaxToolResultTokens <= 0 {
		return output
	}
	limit := m.cfg.MaxToolResultTokens * 4
	if len(output) <= limit {
		return output
	}
	lines := strings.Split(output, "\n")
	const head, tail = 40, 20
	if len(lines) <= head+tail {
		return output
	}
	omitted := len(lines) - head - tail
	out := make([]string, 0, head+1+tail)
	out = append(out, lines[:head]...)
	out = append(out, fmt.Sprintf("[... %d lines omitted ...]", omitted))
	out = append(out, lines[len(lines)-tail:]...)
	return strings.Join(out, "\n")
}

// EstimateTokens sums len(content) plus, per tool call, len(name)+len(arguments),
// plus 16 per message, then divides by 4. It never serializes the whole
// message as JSON, which would over-count relative to what the transport
// actually sends.
func (m *ContextManager) EstimateTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
		for _, call := range msg.ToolCalls {
			total += len(call.Name) + len(call.Arguments)
		}
		total += 16
	}
	return total / 4
}

// IsCriticallyFull reports whether the estimate exceeds 95% of
// max_context_tokens. A zero max_context_tokens disables this check forever.
func (m *ContextManager) IsCriticallyFull(messages []Message) bool {
	if m.cfg.MaxContextTokens == 0 {
		return false
	}
	return float64(m.EstimateTokens(messages)) > 0.95*float64(m.cfg.MaxContextTokens)
}

// Manage composes L2 then L3: if the estimate exceeds 75% of max and an LLM
// is available, compress; then always enforce the hard sliding window. It
// never touches messages[0] or messages[1].
func (m *ContextManager) Manage(ctx context.Context, messages []Message, llm LLMProvider) []Message {
	if m.cfg.MaxContextTokens > 0 && llm != nil {
		if float64(m.EstimateTokens(messages)) > 0.75*float64(m.cfg.MaxContextTokens) {
			messages = m.compress(ctx, messages, llm)
		}
	}
	return m.slideWindow(messages)
}

func (m *ContextManager) completedToolSteps(messages []Message) int {
	count := 0
	for _, msg := range messages {
		if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
			count++
		}
	}
	return count
}

// compress is L2: split the dialog after the fixed prefix into old/recent,
// summarize old via the LLM (falling back mechanically on failure), and
// replace the old block with a single summary message.
func (m *ContextManager) compress(ctx context.Context, messages []Message, llm LLMProvider) []Message {
	if m.cfg.SummarizeAfterSteps <= 0 {
		return messages
	}
	if m.completedToolSteps(messages) <= m.cfg.SummarizeAfterSteps {
		return messages
	}
	if len(messages) <= 2 {
		return messages
	}

	keepRecent := m.cfg.KeepRecentSteps * 3
	if keepRecent < 0 {
		keepRecent = 0
	}
	recentStart := len(messages) - keepRecent
	if recentStart < 2 {
		recentStart = 2
	}
	old := messages[2:recentStart]
	if len(old) == 0 {
		return messages
	}
	recent := messages[recentStart:]

	summary, err := m.summarizeOld(ctx, old, llm)
	if err != nil {
		summary = mechanicalSummary(old)
	}

	out := make([]Message, 0, 3+len(recent))
	out = append(out, messages[0], messages[1])
	out = append(out, Message{
		Role:    RoleAssistant,
		Content: "[Summary of earlier steps]\n" + summary,
	})
	out = append(out, recent...)
	return out
}

func (m *ContextManager) summarizeOld(ctx context.Context, old []Message, llm LLMProvider) (string, error) {
	system := "Summarize the following earlier portion of an agent's tool-use transcript in about 200 words. Focus on what was done and what was learned; omit pleasantries."
	resp, err := llm.Complete(ctx, []Message{{Role: RoleUser, Content: transcriptFor(old)}}, system, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func transcriptFor(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "  tool_call %s(%s)\n", call.Name, string(call.Arguments))
		}
	}
	return b.String()
}

// mechanicalSummary is the L2 fallback when the summarization call itself
// fails: a bulleted list of tool names invoked and paths edited.
func mechanicalSummary(old []Message) string {
	counts := map[string]int{}
	var edited []string
	for _, msg := range old {
		for _, call := range msg.ToolCalls {
			counts[call.Name]++
			if editToolNames[call.Name] {
				var args struct {
					Path string `json:"path"`
				}
				if json.Unmarshal(call.Arguments, &args) == nil && args.Path != "" {
					edited = append(edited, args.Path)
				}
			}
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Earlier steps (mechanical summary):\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s called %d time(s)\n", name, counts[name])
	}
	for _, path := range edited {
		fmt.Fprintf(&b, "- edited %s\n", path)
	}
	return b.String()
}

// slideWindow is L3: while the message count exceeds 4 and the estimate
// exceeds max_context_tokens, drop the pair at indices 2,3.
func (m *ContextManager) slideWindow(messages []Message) []Message {
	if m.cfg.MaxContextTokens <= 0 {
		return messages
	}
	for len(messages) > 4 && m.EstimateTokens(messages) > m.cfg.MaxContextTokens {
		if len(messages) < 4 {
			break
		}
		out := make([]Message, 0, len(messages)-2)
		out = append(out, messages[:2]...)
		out = append(out, messages[4:]...)
		messages = out
	}
	return messages
}
