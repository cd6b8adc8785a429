package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPostEditHookSetRunIgnoresNonEditTools(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "x", Command: "true", Enabled: true, Patterns: []string{"*"}}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	if got := s.Run(context.Background(), "read_file", args); got != "" {
		t.Errorf("expected no hook output for a read, got %q", got)
	}
}

func TestPostEditHookSetRunSkipsUnmatchedPattern(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "x", Command: "echo hi", Enabled: true, Patterns: []string{"*.py"}}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	if got := s.Run(context.Background(), "write_file", args); got != "" {
		t.Errorf("expected no output for a non-matching pattern, got %q", got)
	}
}

func TestPostEditHookSetRunSkipsDisabledHooks(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "x", Command: "echo hi", Enabled: false, Patterns: []string{"*.go"}}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	if got := s.Run(context.Background(), "write_file", args); got != "" {
		t.Errorf("expected no output for a disabled hook, got %q", got)
	}
}

func TestPostEditHookSetRunSuccessfulCommand(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "echo-file", Command: "echo {file}", Enabled: true, Patterns: []string{"*.go"}}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	got := s.Run(context.Background(), "edit_file", args)
	if !strings.Contains(got, "[Hook echo-file: OK]") {
		t.Errorf("expected an OK section, got %q", got)
	}
	if !strings.Contains(got, "main.go") {
		t.Errorf("expected the substituted {file} path in the output, got %q", got)
	}
}

func TestPostEditHookSetRunFailingCommand(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "bad", Command: "exit 7", Enabled: true, Patterns: []string{"*.go"}}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	got := s.Run(context.Background(), "apply_patch", args)
	if !strings.Contains(got, "[Hook bad: FAILED (exit 7)]") {
		t.Errorf("expected a FAILED section with exit 7, got %q", got)
	}
}

func TestPostEditHookSetRunTimeout(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "slow", Command: "sleep 5", Enabled: true, Patterns: []string{"*.go"}, Timeout: 10 * time.Millisecond}}}
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	got := s.Run(context.Background(), "write_file", args)
	if !strings.Contains(got, "FAILED") || !strings.Contains(got, "Timeout") {
		t.Errorf("expected a timeout failure section, got %q", got)
	}
}

func TestPostEditHookSetRunNilSetIsNoop(t *testing.T) {
	var s *PostEditHookSet
	args, _ := json.Marshal(map[string]string{"path": "main.go"})
	if got := s.Run(context.Background(), "write_file", args); got != "" {
		t.Errorf("expected a nil hook set to be a no-op, got %q", got)
	}
}

func TestPostEditHookSetRunMissingPathIsNoop(t *testing.T) {
	s := &PostEditHookSet{Hooks: []PostEditHook{{Name: "x", Command: "echo hi", Enabled: true, Patterns: []string{"*"}}}}
	if got := s.Run(context.Background(), "write_file", json.RawMessage(`{}`)); got != "" {
		t.Errorf("expected no output without a path argument, got %q", got)
	}
}
