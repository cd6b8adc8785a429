package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// editToolNames are the tools that trigger post-edit hooks when they
// complete; every other tool's ToolResult passes through untouched.
var editToolNames = map[string]bool{
	"edit_file":   true,
	"write_file":  true,
	"apply_patch": true,
}

// PostEditHook is one configured external command run after a file-mutating
// tool call. Command contains a literal "{file}" placeholder substituted
// with the absolute path of the edited file.
type PostEditHook struct {
	Name     string
	Command  string
	Patterns []string
	Timeout  time.Duration
	Enabled  bool
}

func (h PostEditHook) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range h.Patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// PostEditHookSet fans a file-mutating tool call out to every enabled hook
// whose glob patterns match the edited path.
type PostEditHookSet struct {
	Hooks []PostEditHook
}

// Run extracts the `path` argument from a triggering tool call, runs every
// matching enabled hook, and returns their combined, already-formatted
// output (empty if the tool is not in the edit set, there is no path
// argument, or nothing matched).
func (s *PostEditHookSet) Run(ctx context.Context, toolName string, args json.RawMessage) string {
	if s == nil || !editToolNames[toolName] {
		return ""
	}
	var parsed struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil || parsed.Path == "" {
		return ""
	}
	absPath, err := filepath.Abs(parsed.Path)
	if err != nil {
		absPath = parsed.Path
	}

	var sections []string
	for _, hook := range s.Hooks {
		if !hook.Enabled || !hook.matches(parsed.Path) {
			continue
		}
		sections = append(sections, runHook(ctx, hook, absPath))
	}
	return strings.Join(sections, "\n\n")
}

func runHook(ctx context.Context, hook PostEditHook, absPath string) string {
	command := strings.ReplaceAll(hook.Command, "{file}", absPath)
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(), "HOOK_FILE="+absPath)
	cmd.Stdin = nil

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("[Hook %s: FAILED (exit -1)]\nTimeout after %ds", hook.Name, int(timeout.Seconds()))
	}
	if err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return fmt.Sprintf("[Hook %s: FAILED (exit %d)]\n%s", hook.Name, code, output)
	}
	if output == "" {
		return ""
	}
	return fmt.Sprintf("[Hook %s: OK]\n%s", hook.Name, output)
}
