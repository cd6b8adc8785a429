package agent

import "errors"

// Sentinel errors surfaced by registry, confirmation-policy and workspace
// path-resolution operations.
// Per §7, none of these ever escape the tool pipeline itself - the pipeline
// converts every one of them into a failure ToolResult before it reaches the
// loop. They exist so callers outside the pipeline (registry setup, CLI
// boot) can distinguish failure kinds with errors.Is.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrUnknownAllowedTool = errors.New("unknown tool in allow-list")
	ErrNoTTY             = errors.New("needs TTY")
	ErrConfirmCancelled  = errors.New("cancelled")
	ErrPathTraversal     = errors.New("path traversal")
)

// AbortError signals a user 'a' (abort) response to a confirmation prompt.
// The CLI boundary maps this to process exit 130.
type AbortError struct{}

func (AbortError) Error() string { return "aborted by user" }
