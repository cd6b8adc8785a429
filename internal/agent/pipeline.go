package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Pipeline is the single entry point for running one tool call through the
// eight ordered stages in §4.2: lookup, validate, confirm-decision,
// confirm-prompt, dry-run short-circuit, execute, post-edit hooks, return.
// None of the stages ever raise to the caller; every path yields a
// well-formed ToolResult.
type Pipeline struct {
	Registry *ToolRegistry
	Confirm  *ConfirmationPolicy
	Hooks    *PostEditHookSet
	DryRun   bool

	schemas sync.Map // tool name -> *jsonschema.Schema
}

// NewPipeline builds a pipeline over a registry and confirmation policy.
func NewPipeline(registry *ToolRegistry, confirm *ConfirmationPolicy, hooks *PostEditHookSet, dryRun bool) *Pipeline {
	return &Pipeline{Registry: registry, Confirm: confirm, Hooks: hooks, DryRun: dryRun}
}

// Execute runs the full eight-stage sequence for one tool call.
func (p *Pipeline) Execute(ctx context.Context, call ToolCall) ToolCallOutcome {
	outcome := ToolCallOutcome{Call: call}

	// 1. Lookup.
	tool, err := p.Registry.Get(call.Name)
	if err != nil {
		outcome.Result = failureResult(fmt.Sprintf("tool not found: %s", call.Name))
		return outcome
	}

	// 2. Argument validation.
	if err := p.validateArgs(tool, call.Arguments); err != nil {
		outcome.Result = failureResult(fmt.Sprintf("invalid arguments: %v", err))
		return outcome
	}

	// 3. Confirmation decision.
	needsConfirm := p.Confirm != nil && p.Confirm.ShouldConfirm(tool, call.Arguments)

	// 4. Confirmation prompt.
	if needsConfirm {
		if err := p.Confirm.RequestConfirmation(call.Name, call.Arguments, p.DryRun); err != nil {
			if _, aborted := err.(AbortError); aborted {
				fmt.Fprintln(os.Stderr, "aborted by user")
				os.Exit(130)
			}
			outcome.Result = failureResult(err.Error())
			return outcome
		}
		outcome.WasConfirmed = true
	}

	// 5. Dry-run short-circuit.
	if p.DryRun {
		outcome.WasDryRun = true
		outcome.Result = successResult(fmt.Sprintf("[DRY-RUN] %s(%s)", call.Name, string(call.Arguments)))
		return outcome
	}

	// 6. Execute, guarded against panics escaping the tool body.
	result := p.runGuarded(ctx, tool, call.Arguments)

	// 7. Post-edit hooks.
	if hookOutput := p.Hooks.Run(ctx, call.Name, call.Arguments); hookOutput != "" {
		if result.Output != "" {
			result.Output = result.Output + "\n\n" + hookOutput
		} else {
			result.Output = hookOutput
		}
	}

	// 8. Return.
	outcome.Result = result
	return outcome
}

func (p *Pipeline) runGuarded(ctx context.Context, tool Tool, args json.RawMessage) (result *ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failureResult(fmt.Sprintf("tool panicked: %v", r))
		}
	}()
	res, err := tool.Execute(ctx, args)
	if err != nil {
		return failureResult(fmt.Sprintf("tool execution error: %v", err))
	}
	if res == nil {
		return failureResult("tool returned no result")
	}
	return res
}

func (p *Pipeline) validateArgs(tool Tool, args json.RawMessage) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}
	schema, err := p.compiledSchema(tool.Name(), raw)
	if err != nil {
		// A tool that ships an unparsable schema shouldn't block every call;
		// the schema author's bug surfaces when the tool itself runs instead.
		return nil
	}
	var value interface{}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(value)
}

func (p *Pipeline) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := p.schemas.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	p.schemas.Store(name, schema)
	return schema, nil
}

// ExecuteBatch runs a turn's tool calls, in parallel when the batch
// qualifies under §5's bounded-parallelism rule: parallelTools enabled AND
// (yolo, or confirm-sensitive with no sensitive call in the batch). Results
// land in a pre-sized slice indexed by original call position so the
// message-back order never depends on completion order.
func (p *Pipeline) ExecuteBatch(ctx context.Context, calls []ToolCall, parallelTools bool) []ToolCallOutcome {
	results := make([]ToolCallOutcome, len(calls))
	if len(calls) > 1 && parallelTools && p.canParallelize(calls) {
		workers := len(calls)
		if workers > 4 {
			workers = 4
		}
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, call ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = p.Execute(ctx, call)
			}(i, call)
		}
		wg.Wait()
		return results
	}
	for i, call := range calls {
		results[i] = p.Execute(ctx, call)
	}
	return results
}

func (p *Pipeline) canParallelize(calls []ToolCall) bool {
	if p.Confirm == nil {
		return false
	}
	switch p.Confirm.Mode {
	case ConfirmYolo:
		return true
	case ConfirmSensitive:
		for _, call := range calls {
			tool, err := p.Registry.Get(call.Name)
			if err != nil {
				continue
			}
			if p.Confirm.ShouldConfirm(tool, call.Arguments) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
