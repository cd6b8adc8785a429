// Package main provides the CLI entry point for the agent loop: a single
// command that drives an Anthropic-backed tool-use agent against a local
// workspace and prints its final output (or, with --json, the full run
// state) before exiting with a status-derived code.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/policy"
)

var (
	version = "dev"

	configPath  string
	workspace   string
	toolsFlag   []string
	mode        string
	selfEval    string
	stream      bool
	dryRun      bool
	mixed       bool
	maxSteps    int
	jsonOutput  bool
)

// Exit codes, per the run's terminal AgentState.
const (
	exitSuccess       = 0
	exitFailed        = 1
	exitPartial       = 2
	exitConfigError   = 3
	exitAuthError     = 4
	exitLLMTimeout    = 5
	exitUserInterrupt = 130
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitConfigError)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nexus [prompt]",
		Short:        "Run an Anthropic-backed tool-use agent against a workspace",
		Version:      version,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runAgent,
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON5 configuration file")
	root.Flags().StringVar(&workspace, "workspace", ".", "Workspace root tools are sandboxed to")
	root.Flags().StringSliceVar(&toolsFlag, "tools", nil, "Allowed tools or groups (empty = all); e.g. group:fs,exec")
	root.Flags().StringVar(&mode, "mode", "confirm-sensitive", "Confirmation mode: yolo, confirm-sensitive, confirm-all")
	root.Flags().StringVar(&selfEval, "self-eval", "off", "Self-evaluation: off, basic, full")
	root.Flags().BoolVar(&stream, "stream", false, "Stream assistant content to stderr as it is produced")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "Short-circuit every tool call with a [DRY-RUN] result")
	root.Flags().BoolVar(&mixed, "mixed", false, "Run a read-only plan phase before the build phase")
	root.Flags().IntVar(&maxSteps, "max-steps", 25, "Maximum number of tool-use turns")
	root.Flags().BoolVar(&jsonOutput, "json", false, "Print the full AgentState as JSON instead of just the final output")

	return root
}

func runAgent(cmd *cobra.Command, args []string) error {
	prompt := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)

	apiKey := cfg.Anthropic.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY is required")
		os.Exit(exitAuthError)
	}

	llm, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:       apiKey,
		BaseURL:      cfg.Anthropic.BaseURL,
		MaxRetries:   cfg.Anthropic.MaxRetries,
		DefaultModel: cfg.Anthropic.Model,
	})
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	workspaceAbs, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}

	registry := buildRegistry(workspaceAbs)
	index := agent.NewWorkspaceIndex(workspaceAbs)
	tree, _ := index.Tree(cmd.Context())
	systemPrompt := buildSystemPrompt(cfg.SystemPrompt, tree)

	requestedTools := toolsFlag
	if len(requestedTools) == 0 {
		requestedTools = cfg.AllowedTools
	}
	allowedTools := policy.ExpandGroups(requestedTools)

	confirmMode := resolveConfirmMode(cfg.ConfirmMode)
	confirm := agent.NewConfirmationPolicy(confirmMode)

	var hooks *agent.PostEditHookSet
	if len(cfg.Hooks) > 0 {
		hookSet := &agent.PostEditHookSet{}
		for _, h := range cfg.Hooks {
			hookSet.Hooks = append(hookSet.Hooks, h.ToAgentHook())
		}
		hooks = hookSet
	}

	pipeline := agent.NewPipeline(registry, confirm, hooks, cfg.DryRun)

	ctxCfg := cfg.Context.ToAgentConfig()
	ctxMgr := agent.NewContextManager(ctxCfg)

	shutdown := agent.NewShutdownController()
	defer shutdown.Close()

	stepDeadline := time.Duration(cfg.StepTimeout)
	if stepDeadline <= 0 {
		stepDeadline = 2 * time.Minute
	}
	timer := agent.NewStepTimer(stepDeadline)

	model := cfg.Anthropic.Model
	cost := agent.NewBudgetTracker(model, cfg.Budget.MaxCostUSD)

	agentCfg := agent.AgentConfig{
		SystemPrompt: systemPrompt,
		AllowedTools: allowedTools,
		ConfirmMode:  confirmMode,
		MaxSteps:     cfg.MaxSteps,
	}

	var onChunk func(string)
	if cfg.Stream {
		onChunk = func(s string) { fmt.Fprint(os.Stderr, s) }
	}

	ctx := context.Background()
	var state *agent.AgentState

	if cfg.Mixed {
		runner := &agent.MixedRunner{
			LLM:          llm,
			Registry:     registry,
			Context:      ctxMgr,
			Shutdown:     shutdown,
			Timer:        timer,
			Cost:         cost,
			Model:        model,
			DryRun:       cfg.DryRun,
			PlanTools:    []string{"read_file"},
			BuildTools:   allowedTools,
			SystemPrompt: systemPrompt,
			MaxSteps:     cfg.MaxSteps,
		}
		state = runner.Run(ctx, prompt, cfg.Stream, onChunk)
	} else {
		loop := agent.NewAgentLoop(agentCfg, model, llm, registry, pipeline, ctxMgr, shutdown, timer, cost)
		state = loop.Run(ctx, prompt, cfg.Stream, onChunk)
	}

	if evalMode := cfg.SelfEvalModeValue(); evalMode != config.SelfEvalOff && state.Status == agent.StatusSuccess {
		state = applySelfEval(ctx, evalMode, llm, prompt, state, cfg, agentCfg, model, registry, pipeline, ctxMgr, shutdown, timer, cost)
	}

	if jsonOutput {
		payload, err := state.ToJSON()
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		fmt.Println(string(payload))
	} else {
		fmt.Println(state.FinalOutput)
	}

	os.Exit(exitCodeFor(state))
	return nil
}

func applySelfEval(
	ctx context.Context,
	mode config.SelfEvalMode,
	llm agent.LLMProvider,
	prompt string,
	state *agent.AgentState,
	cfg *config.Config,
	agentCfg agent.AgentConfig,
	model string,
	registry *agent.ToolRegistry,
	pipeline *agent.Pipeline,
	ctxMgr *agent.ContextManager,
	shutdown *agent.ShutdownController,
	timer *agent.StepTimer,
	cost agent.CostTracker,
) *agent.AgentState {
	retries := cfg.EvalRetries
	if retries <= 0 {
		retries = 2
	}
	evaluator := agent.NewSelfEvaluator(llm, cfg.EvalThreshold, retries)

	if mode == config.SelfEvalBasic {
		result := evaluator.EvaluateBasic(ctx, prompt, state)
		if !evaluator.Passes(result) {
			state.Status = agent.StatusPartial
		}
		return state
	}

	runFn := func(ctx context.Context, correction string) (*agent.AgentState, error) {
		loop := agent.NewAgentLoop(agentCfg, model, llm, registry, pipeline, ctxMgr, shutdown, timer, cost)
		return loop.Run(ctx, correction, false, nil), nil
	}
	return evaluator.EvaluateFull(ctx, prompt, state, runFn)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return &config.Config{Workspace: workspace, MaxSteps: maxSteps, ConfirmMode: mode, SelfEval: selfEval}, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace = workspace
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = maxSteps
	}
	return cfg, nil
}

// applyFlagOverrides lets explicitly-passed flags win over the loaded
// config file; flags left at their defaults leave the config value intact.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.ConfirmMode = mode
	}
	if flags.Changed("self-eval") {
		cfg.SelfEval = selfEval
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	if flags.Changed("stream") {
		cfg.Stream = stream
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if flags.Changed("mixed") {
		cfg.Mixed = mixed
	}
	if cfg.ConfirmMode == "" {
		cfg.ConfirmMode = mode
	}
}

func buildRegistry(workspaceAbs string) *agent.ToolRegistry {
	registry := agent.NewToolRegistry()

	fileCfg := files.Config{Workspace: workspaceAbs}
	_ = registry.Register(files.NewReadTool(fileCfg), false)
	_ = registry.Register(files.NewWriteTool(fileCfg), false)
	_ = registry.Register(files.NewEditTool(fileCfg), false)
	_ = registry.Register(files.NewApplyPatchTool(fileCfg), false)

	execManager := exec.NewManager(workspaceAbs)
	_ = registry.Register(exec.NewExecTool("exec", execManager), false)
	_ = registry.Register(exec.NewProcessTool(execManager), false)

	return registry
}

func buildSystemPrompt(configured, tree string) string {
	base := configured
	if base == "" {
		base = "You are a careful, methodical coding agent. Use the available tools to " +
			"inspect and modify the workspace, and report your final result clearly."
	}
	if tree == "" {
		return base
	}
	return base + "\n\nWorkspace layout:\n" + tree
}

func resolveConfirmMode(raw string) agent.ConfirmMode {
	switch agent.ConfirmMode(raw) {
	case agent.ConfirmYolo:
		return agent.ConfirmYolo
	case agent.ConfirmAll:
		return agent.ConfirmAll
	default:
		return agent.ConfirmSensitive
	}
}

func exitCodeFor(state *agent.AgentState) int {
	switch state.Status {
	case agent.StatusSuccess:
		return exitSuccess
	case agent.StatusFailed:
		return exitFailed
	case agent.StatusPartial:
		switch state.StopReason {
		case agent.StopUserInterrupt:
			return exitUserInterrupt
		case agent.StopTimeout:
			return exitLLMTimeout
		default:
			return exitPartial
		}
	default:
		return exitFailed
	}
}
