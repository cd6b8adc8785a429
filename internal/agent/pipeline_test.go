package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/nexus/internal/tools/security"
)

type scriptedTool struct {
	stubTool
	result *ToolResult
	err    error
	panics bool
}

func (s scriptedTool) Execute(context.Context, json.RawMessage) (*ToolResult, error) {
	if s.panics {
		panic("boom")
	}
	return s.result, s.err
}

func newPipeline(t *testing.T, tool Tool, confirm *ConfirmationPolicy, dryRun bool) *Pipeline {
	t.Helper()
	r := NewToolRegistry()
	if err := r.Register(tool, false); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	return NewPipeline(r, confirm, &PostEditHookSet{}, dryRun)
}

func TestPipelineExecuteUnknownTool(t *testing.T) {
	p := newPipeline(t, stubTool{name: "read_file"}, nil, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "missing"})
	if outcome.Result.Success {
		t.Error("expected failure for an unknown tool")
	}
}

func TestPipelineExecuteInvalidArguments(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}}
	tool.stubTool.description = "strict schema tool"
	r := NewToolRegistry()
	// Override schema via a wrapper so Schema() returns a schema requiring "path".
	strict := strictSchemaTool{scriptedTool: tool}
	_ = r.Register(strict, false)
	p := NewPipeline(r, nil, &PostEditHookSet{}, false)

	outcome := p.Execute(context.Background(), ToolCall{Name: "t", Arguments: json.RawMessage(`{}`)})
	if outcome.Result.Success {
		t.Error("expected a validation failure for missing required argument")
	}
}

type strictSchemaTool struct {
	scriptedTool
}

func (s strictSchemaTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","required":["path"]}`)
}

func TestPipelineExecuteSuccess(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "read_file"}, result: successResult("file contents")}
	p := newPipeline(t, tool, nil, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "read_file"})
	if !outcome.Result.Success || outcome.Result.Output != "file contents" {
		t.Errorf("got %+v", outcome.Result)
	}
}

func TestPipelineExecuteToolReturnsError(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}, err: errors.New("disk full")}
	p := newPipeline(t, tool, nil, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "t"})
	if outcome.Result.Success {
		t.Error("expected failure when tool.Execute returns an error")
	}
}

func TestPipelineExecuteToolReturnsNilResult(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}, result: nil}
	p := newPipeline(t, tool, nil, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "t"})
	if outcome.Result.Success {
		t.Error("expected failure when tool.Execute returns a nil result")
	}
}

func TestPipelineExecutePanicIsRecovered(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}, panics: true}
	p := newPipeline(t, tool, nil, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "t"})
	if outcome.Result.Success {
		t.Error("expected a failure result, not a crashed test, when the tool panics")
	}
}

func TestPipelineExecuteDryRunShortCircuits(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "write_file"}, result: successResult("should not run")}
	p := newPipeline(t, tool, nil, true)
	outcome := p.Execute(context.Background(), ToolCall{Name: "write_file", Arguments: json.RawMessage(`{"path":"a"}`)})
	if !outcome.WasDryRun {
		t.Error("expected WasDryRun=true")
	}
	if outcome.Result.Output == "should not run" {
		t.Error("expected the tool to never actually execute under dry-run")
	}
}

func TestPipelineExecuteConfirmationDenied(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "write_file", sensitive: true}, result: successResult("ran")}
	confirm := &ConfirmationPolicy{Mode: ConfirmSensitive, Prompter: stubPrompter{tty: true, answer: ConfirmNo}}
	p := newPipeline(t, tool, confirm, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "write_file"})
	if outcome.Result.Success {
		t.Error("expected failure when the user declines confirmation")
	}
}

func TestPipelineExecuteConfirmationApproved(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "write_file", sensitive: true}, result: successResult("ran")}
	confirm := &ConfirmationPolicy{Mode: ConfirmSensitive, Prompter: stubPrompter{tty: true, answer: ConfirmYes}}
	p := newPipeline(t, tool, confirm, false)
	outcome := p.Execute(context.Background(), ToolCall{Name: "write_file"})
	if !outcome.WasConfirmed {
		t.Error("expected WasConfirmed=true")
	}
	if !outcome.Result.Success || outcome.Result.Output != "ran" {
		t.Errorf("got %+v", outcome.Result)
	}
}

func TestPipelineExecutePostEditHookAppendsOutput(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "write_file"}, result: successResult("wrote file")}
	r := NewToolRegistry()
	_ = r.Register(tool, false)
	hooks := &PostEditHookSet{Hooks: []PostEditHook{{Name: "fmt", Command: "echo formatted", Enabled: true, Patterns: []string{"*"}}}}
	p := NewPipeline(r, nil, hooks, false)

	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	outcome := p.Execute(context.Background(), ToolCall{Name: "write_file", Arguments: args})
	if outcome.Result.Output == "wrote file" {
		t.Error("expected hook output appended to the tool output")
	}
}

func TestPipelineExecuteBatchSequentialWhenNotParallel(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}, result: successResult("ok")}
	p := newPipeline(t, tool, nil, false)
	calls := []ToolCall{{Name: "t"}, {Name: "t"}}
	outcomes := p.ExecuteBatch(context.Background(), calls, false)
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
}

func TestPipelineExecuteBatchParallelPreservesOrder(t *testing.T) {
	tool := scriptedTool{stubTool: stubTool{name: "t"}, result: successResult("ok")}
	confirm := &ConfirmationPolicy{Mode: ConfirmYolo}
	p := newPipeline(t, tool, confirm, false)
	calls := []ToolCall{{Name: "t", ID: "1"}, {Name: "t", ID: "2"}, {Name: "t", ID: "3"}}
	outcomes := p.ExecuteBatch(context.Background(), calls, true)
	for i, o := range outcomes {
		if o.Call.ID != calls[i].ID {
			t.Errorf("outcome[%d] ID = %q, want %q (order must match call order)", i, o.Call.ID, calls[i].ID)
		}
	}
}

func TestCanParallelizeYoloAlwaysTrue(t *testing.T) {
	tool := stubTool{name: "t"}
	r := NewToolRegistry()
	_ = r.Register(tool, false)
	p := NewPipeline(r, &ConfirmationPolicy{Mode: ConfirmYolo}, nil, false)
	if !p.canParallelize([]ToolCall{{Name: "t"}}) {
		t.Error("expected yolo mode to always allow parallel execution")
	}
}

func TestCanParallelizeConfirmAllIsFalse(t *testing.T) {
	tool := stubTool{name: "t"}
	r := NewToolRegistry()
	_ = r.Register(tool, false)
	p := NewPipeline(r, &ConfirmationPolicy{Mode: ConfirmAll}, nil, false)
	if p.canParallelize([]ToolCall{{Name: "t"}}) {
		t.Error("expected confirm-all mode to never parallelize")
	}
}

func TestCanParallelizeSensitiveBlocksOnSensitiveCall(t *testing.T) {
	tool := stubTool{name: "exec"}
	r := NewToolRegistry()
	_ = r.Register(tool, false)
	p := NewPipeline(r, &ConfirmationPolicy{Mode: ConfirmSensitive, ClassifyCmd: fixedRisk(security.RiskDangerous)}, nil, false)
	args := json.RawMessage(`{"command":"rm -rf /"}`)
	if p.canParallelize([]ToolCall{{Name: "exec", Arguments: args}}) {
		t.Error("expected a dangerous shell call to block parallelization under confirm-sensitive")
	}
}

func TestCanParallelizeNoConfirmPolicyIsFalse(t *testing.T) {
	tool := stubTool{name: "t"}
	r := NewToolRegistry()
	_ = r.Register(tool, false)
	p := NewPipeline(r, nil, nil, false)
	if p.canParallelize([]ToolCall{{Name: "t"}}) {
		t.Error("expected a nil confirmation policy to never parallelize")
	}
}
