package config

import (
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAMLString(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"30s"`), &d); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if time.Duration(d) != 30*time.Second {
		t.Errorf("got %v, want 30s", time.Duration(d))
	}
}

func TestDurationUnmarshalYAMLInt(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`45`), &d); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if time.Duration(d) != 45*time.Second {
		t.Errorf("got %v, want 45s", time.Duration(d))
	}
}

func TestDurationUnmarshalYAMLInvalidString(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"not-a-duration"`), &d); err == nil {
		t.Error("expected an error for an invalid duration string")
	}
}

func TestConfirmModeValueDefaultsToSensitive(t *testing.T) {
	tests := []struct {
		raw  string
		want agent.ConfirmMode
	}{
		{"", agent.ConfirmSensitive},
		{"bogus", agent.ConfirmSensitive},
		{"yolo", agent.ConfirmYolo},
		{"confirm-all", agent.ConfirmAll},
		{"confirm-sensitive", agent.ConfirmSensitive},
	}
	for _, tt := range tests {
		cfg := Config{ConfirmMode: tt.raw}
		if got := cfg.ConfirmModeValue(); got != tt.want {
			t.Errorf("ConfirmModeValue(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSelfEvalModeValueDefaultsToOff(t *testing.T) {
	tests := []struct {
		raw  string
		want SelfEvalMode
	}{
		{"", SelfEvalOff},
		{"bogus", SelfEvalOff},
		{"basic", SelfEvalBasic},
		{"full", SelfEvalFull},
	}
	for _, tt := range tests {
		cfg := Config{SelfEval: tt.raw}
		if got := cfg.SelfEvalModeValue(); got != tt.want {
			t.Errorf("SelfEvalModeValue(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestContextSettingsToAgentConfig(t *testing.T) {
	cs := ContextSettings{
		MaxToolResultTokens: 1000,
		SummarizeAfterSteps: 5,
		KeepRecentSteps:     3,
		MaxContextTokens:    50000,
		ParallelTools:       true,
	}
	got := cs.ToAgentConfig()
	want := agent.ContextConfig{
		MaxToolResultTokens: 1000,
		SummarizeAfterSteps: 5,
		KeepRecentSteps:     3,
		MaxContextTokens:    50000,
		ParallelTools:       true,
	}
	if got != want {
		t.Errorf("ToAgentConfig() = %+v, want %+v", got, want)
	}
}

func TestHookSettingsToAgentHook(t *testing.T) {
	hs := HookSettings{
		Name:     "lint",
		Command:  "golangci-lint run {file}",
		Patterns: []string{"*.go"},
		Timeout:  Duration(10 * time.Second),
		Enabled:  true,
	}
	got := hs.ToAgentHook()
	if got.Name != "lint" || got.Command != hs.Command || got.Timeout != 10*time.Second || !got.Enabled {
		t.Errorf("ToAgentHook() = %+v", got)
	}
	if len(got.Patterns) != 1 || got.Patterns[0] != "*.go" {
		t.Errorf("ToAgentHook() Patterns = %v", got.Patterns)
	}
}
