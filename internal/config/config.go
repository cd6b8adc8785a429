// Package config loads the CLI's YAML/JSON5 configuration, including
// $include merging, into the typed settings the agent core and its
// providers are built from.
package config

import (
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

// SelfEvalMode selects how (or whether) the SelfEvaluator runs after a
// successful run.
type SelfEvalMode string

const (
	SelfEvalOff   SelfEvalMode = "off"
	SelfEvalBasic SelfEvalMode = "basic"
	SelfEvalFull  SelfEvalMode = "full"
)

// Config is the root of the on-disk configuration: ambient settings
// (provider credentials, workspace, logging) plus the agent's own
// run-shaping knobs.
type Config struct {
	Workspace string `yaml:"workspace"`

	Anthropic AnthropicSettings `yaml:"anthropic"`

	SystemPrompt string   `yaml:"system_prompt"`
	AllowedTools []string `yaml:"allowed_tools"`
	ConfirmMode  string   `yaml:"confirm_mode"`
	MaxSteps     int      `yaml:"max_steps"`
	MaxDuration  Duration `yaml:"max_duration"`
	StepTimeout  Duration `yaml:"step_timeout"`

	Context ContextSettings `yaml:"context"`

	SelfEval      string `yaml:"self_eval"`
	EvalThreshold float64 `yaml:"eval_threshold"`
	EvalRetries   int    `yaml:"eval_retries"`

	Stream bool `yaml:"stream"`
	DryRun bool `yaml:"dry_run"`
	Mixed  bool `yaml:"mixed"`

	Budget BudgetSettings `yaml:"budget"`

	Hooks []HookSettings `yaml:"hooks"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// AnthropicSettings configures the LLM provider.
type AnthropicSettings struct {
	APIKey     string   `yaml:"api_key"`
	BaseURL    string   `yaml:"base_url"`
	Model      string   `yaml:"model"`
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`
}

// ContextSettings mirrors agent.ContextConfig for on-disk configuration.
type ContextSettings struct {
	MaxToolResultTokens int  `yaml:"max_tool_result_tokens"`
	SummarizeAfterSteps int  `yaml:"summarize_after_steps"`
	KeepRecentSteps     int  `yaml:"keep_recent_steps"`
	MaxContextTokens    int  `yaml:"max_context_tokens"`
	ParallelTools       bool `yaml:"parallel_tools"`
}

// ToAgentConfig converts the on-disk representation to agent.ContextConfig.
func (c ContextSettings) ToAgentConfig() agent.ContextConfig {
	return agent.ContextConfig{
		MaxToolResultTokens: c.MaxToolResultTokens,
		SummarizeAfterSteps: c.SummarizeAfterSteps,
		KeepRecentSteps:     c.KeepRecentSteps,
		MaxContextTokens:    c.MaxContextTokens,
		ParallelTools:       c.ParallelTools,
	}
}

// BudgetSettings configures the cost tracker's spend ceiling.
type BudgetSettings struct {
	MaxCostUSD float64 `yaml:"max_cost_usd"`
}

// HookSettings mirrors agent.PostEditHook for on-disk configuration.
type HookSettings struct {
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Patterns []string `yaml:"patterns"`
	Timeout  Duration `yaml:"timeout"`
	Enabled  bool     `yaml:"enabled"`
}

// ToAgentHook converts the on-disk representation to agent.PostEditHook.
func (h HookSettings) ToAgentHook() agent.PostEditHook {
	return agent.PostEditHook{
		Name:     h.Name,
		Command:  h.Command,
		Patterns: h.Patterns,
		Timeout:  time.Duration(h.Timeout),
		Enabled:  h.Enabled,
	}
}

// Duration unmarshals YAML duration strings (e.g. "30s", "5m"), or a bare
// integer number of seconds, into a time.Duration-backed value.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var seconds int
	if err := unmarshal(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ConfirmModeValue converts the configured string to an agent.ConfirmMode,
// defaulting to confirm-sensitive.
func (c Config) ConfirmModeValue() agent.ConfirmMode {
	switch c.ConfirmMode {
	case string(agent.ConfirmYolo):
		return agent.ConfirmYolo
	case string(agent.ConfirmAll):
		return agent.ConfirmAll
	default:
		return agent.ConfirmSensitive
	}
}

// SelfEvalModeValue converts the configured string to a SelfEvalMode,
// defaulting to off.
func (c Config) SelfEvalModeValue() SelfEvalMode {
	switch SelfEvalMode(c.SelfEval) {
	case SelfEvalBasic:
		return SelfEvalBasic
	case SelfEvalFull:
		return SelfEvalFull
	default:
		return SelfEvalOff
	}
}

// Load reads and merges the config file at path, resolving $include
// directives, then decodes it into a typed Config.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return decodeRawConfig(raw)
}
