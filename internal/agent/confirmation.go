package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/tools/security"
)

// ConfirmAnswer is the normalized result of a confirmation prompt.
type ConfirmAnswer string

const (
	ConfirmYes   ConfirmAnswer = "y"
	ConfirmNo    ConfirmAnswer = "n"
	ConfirmAbort ConfirmAnswer = "a"
)

// Prompter asks the operator a y/n/a question on a TTY. The default
// implementation reads from stdin; tests supply a scripted stub.
type Prompter interface {
	IsTTY() bool
	Ask(question string) (ConfirmAnswer, error)
}

// StdPrompter is the default interactive Prompter backed by os.Stdin.
type StdPrompter struct {
	In  io.Reader
	TTY bool
}

// NewStdPrompter builds a prompter over os.Stdin, detecting whether it is a
// terminal.
func NewStdPrompter() *StdPrompter {
	info, err := os.Stdin.Stat()
	isTTY := err == nil && (info.Mode()&os.ModeCharDevice) != 0
	return &StdPrompter{In: os.Stdin, TTY: isTTY}
}

func (p *StdPrompter) IsTTY() bool { return p.TTY }

func (p *StdPrompter) Ask(question string) (ConfirmAnswer, error) {
	if !p.TTY {
		return "", ErrNoTTY
	}
	fmt.Fprintf(os.Stderr, "%s [y/n/a]: ", question)
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return ConfirmYes, nil
	case "a", "abort":
		return ConfirmAbort, nil
	default:
		return ConfirmNo, nil
	}
}

// ShellClassifier isolates the security package's classifier behind a small
// interface so the confirmation policy and the shell tool can share one
// decision without a hard import dependency in tests.
type ShellClassifier func(command string) security.Analysis

// DefaultShellClassifier wraps the production classifier.
func DefaultShellClassifier(command string) security.Analysis {
	return security.Classify(command)
}

// ConfirmationPolicy maps (tool, mode) to a require-confirmation decision
// and drives the interactive prompt when one is required.
type ConfirmationPolicy struct {
	Mode       ConfirmMode
	Prompter   Prompter
	ClassifyCmd ShellClassifier
}

// NewConfirmationPolicy builds a policy for the given mode with the default
// interactive prompter and shell classifier.
func NewConfirmationPolicy(mode ConfirmMode) *ConfirmationPolicy {
	return &ConfirmationPolicy{
		Mode:        mode,
		Prompter:    NewStdPrompter(),
		ClassifyCmd: DefaultShellClassifier,
	}
}

const shellToolName = "exec"

// ShouldConfirm decides whether a call to this tool requires confirmation.
// For the shell tool the decision is recomputed per call from the argument
// classifier rather than the tool's static Sensitive() flag.
func (p *ConfirmationPolicy) ShouldConfirm(tool Tool, args json.RawMessage) bool {
	if tool.Name() == shellToolName {
		risk := p.classifyArgs(args)
		switch p.Mode {
		case ConfirmYolo:
			return risk == security.RiskDangerous
		case ConfirmSensitive:
			return risk == security.RiskDev || risk == security.RiskDangerous
		case ConfirmAll:
			return true
		}
		return true
	}

	switch p.Mode {
	case ConfirmYolo:
		return false
	case ConfirmSensitive:
		return tool.Sensitive(args)
	case ConfirmAll:
		return true
	}
	return true
}

func (p *ConfirmationPolicy) classifyArgs(args json.RawMessage) security.Risk {
	var parsed struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return security.RiskDangerous
	}
	classify := p.ClassifyCmd
	if classify == nil {
		classify = DefaultShellClassifier
	}
	return classify(parsed.Command).Risk
}

// RequestConfirmation runs the interactive y/n/a prompt for one tool call.
// Absence of a TTY fails with ErrNoTTY; 'n' fails with ErrConfirmCancelled;
// 'a' returns AbortError so the caller can exit the whole process with 130.
func (p *ConfirmationPolicy) RequestConfirmation(name string, args json.RawMessage, dryRun bool) error {
	if p.Prompter == nil || !p.Prompter.IsTTY() {
		return ErrNoTTY
	}
	question := fmt.Sprintf("Run %s(%s)?", name, string(args))
	if dryRun {
		question = "[DRY-RUN] " + question
	}
	answer, err := p.Prompter.Ask(question)
	if err != nil {
		return err
	}
	switch answer {
	case ConfirmYes:
		return nil
	case ConfirmAbort:
		return AbortError{}
	default:
		return ErrConfirmCancelled
	}
}
