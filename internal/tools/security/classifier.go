package security

import (
	"regexp"
	"strings"
)

// Risk is the classification a shell command is tagged with before it
// reaches the confirmation policy.
type Risk string

const (
	RiskSafe      Risk = "safe"
	RiskDev       Risk = "dev"
	RiskDangerous Risk = "dangerous"
)

// blocklist holds fixed patterns that are rejected outright regardless of
// confirm mode: destructive shells, privilege escalation, piped-curl-to-shell,
// raw device writes, fork bombs, and mass process kills.
var blocklist = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/(\s|$)`),
	regexp.MustCompile(`\brm\s+-rf\s+[~/]\s*$`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bchmod\s+-R\s+777\s+/`),
	regexp.MustCompile(`\bcurl\b[^|]*\|\s*(sudo\s+)?(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b[^|]*\|\s*(sudo\s+)?(ba)?sh\b`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd)[a-z0-9]*\b`),
	regexp.MustCompile(`\bdd\s+.*of=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};`),
	regexp.MustCompile(`\bkill\s+-9\s+-1\b`),
	regexp.MustCompile(`\bpkill\s+-9\s+-?f?\s*\.\*`),
	regexp.MustCompile(`\bmkfs\b`),
}

// safePrograms are read-only utilities and VCS-query commands.
var safePrograms = map[string]bool{
	"cat": true, "head": true, "tail": true, "wc": true, "sort": true,
	"uniq": true, "grep": true, "egrep": true, "fgrep": true, "find": true,
	"ls": true, "pwd": true, "echo": true, "printf": true, "which": true,
	"file": true, "stat": true, "diff": true, "tree": true, "basename": true,
	"dirname": true, "env": true, "date": true, "whoami": true, "uname": true,
	"true": true, "false": true,
}

// safeSubcommands maps a leading program to the subcommands that keep it
// read-only (e.g. "git status" is safe, "git push" is not).
var safeSubcommands = map[string]map[string]bool{
	"git": {
		"status": true, "log": true, "diff": true, "show": true, "branch": true,
		"blame": true, "remote": true, "describe": true, "rev-parse": true,
		"ls-files": true, "shortlog": true,
	},
}

// devPrograms run build, test, lint, and type-check tooling.
var devPrograms = map[string]bool{
	"go": true, "npm": true, "npx": true, "yarn": true, "pnpm": true,
	"make": true, "cargo": true, "pytest": true, "python": true, "python3": true,
	"node": true, "tsc": true, "jest": true, "golangci-lint": true, "vet": true,
	"rustc": true, "gofmt": true, "goimports": true, "black": true, "ruff": true,
	"mypy": true, "eslint": true, "prettier": true, "bazel": true,
}

// Analysis is the result of classifying one shell command.
type Analysis struct {
	Command string
	Risk    Risk
	Blocked bool
	Reason  string
}

// Classify tags a command into {safe, dev, dangerous} by matching its
// leading program (and, for a handful of programs, its subcommand) against
// maintained allow-sets. Anything not recognized as safe or dev is
// dangerous. The fixed blocklist is checked first and always wins; next,
// quote-aware metacharacter analysis catches pipes, redirects, subshells,
// and command chaining that would let a safe leading program (e.g. "echo")
// hand control to an arbitrary trailing command (e.g. "grep foo | sh") —
// a command classified safe purely on its first token would miss that.
func Classify(command string) Analysis {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Analysis{Command: command, Risk: RiskDangerous, Blocked: true, Reason: "empty command"}
	}
	if re := matchBlocklist(trimmed); re != "" {
		return Analysis{Command: command, Risk: RiskDangerous, Blocked: true, Reason: "matches blocked pattern: " + re}
	}
	if shell := AnalyzeCommandQuoteAware(trimmed); !shell.IsSafe {
		return Analysis{Command: command, Risk: RiskDangerous, Reason: shell.Reason}
	}

	program, sub := leadingProgram(trimmed)
	if program == "" {
		return Analysis{Command: command, Risk: RiskDangerous, Reason: "could not determine leading program"}
	}

	if subs, ok := safeSubcommands[program]; ok {
		if sub != "" && subs[sub] {
			return Analysis{Command: command, Risk: RiskSafe}
		}
		// Known program but not a safe subcommand; fall through to dev/dangerous.
	} else if safePrograms[program] {
		return Analysis{Command: command, Risk: RiskSafe}
	}

	if devPrograms[program] {
		return Analysis{Command: command, Risk: RiskDev}
	}

	return Analysis{Command: command, Risk: RiskDangerous, Reason: "program not in a known safe or dev allow-set"}
}

func matchBlocklist(command string) string {
	for _, re := range blocklist {
		if re.MatchString(command) {
			return re.String()
		}
	}
	return ""
}

// leadingProgram extracts the first whitespace-separated token (the
// program) and, if present, the second token (a candidate subcommand).
func leadingProgram(command string) (program, sub string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", ""
	}
	program = strings.TrimSuffix(fields[0], "")
	// Strip a leading path component, e.g. "/usr/bin/git" -> "git".
	if idx := strings.LastIndex(program, "/"); idx >= 0 {
		program = program[idx+1:]
	}
	if len(fields) > 1 {
		sub = fields[1]
	}
	return program, sub
}
