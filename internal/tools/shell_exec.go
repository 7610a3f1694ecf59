package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

// DefaultAllowedCommands is the base-command allowlist used when none
// is configured.
var DefaultAllowedCommands = []string{
	"ls", "cat", "echo", "pwd", "git", "npm", "pnpm", "uv", "python",
	"python3", "node", "yarn", "pip", "pip3", "mkdir", "touch", "cp",
	"mv", "grep", "find", "head", "tail", "wc", "sort", "uniq",
}

// DefaultDeniedPatterns block destructive commands regardless of the
// allowlist. Matching is case-insensitive.
var DefaultDeniedPatterns = []string{
	`rm\s+-rf`,
	`rm\s+-fr`,
	`sudo`,
	`chmod\s+777`,
	`>\s*/dev/`,
	`mkfs`,
	`dd\s+if=`,
	`>\s*/etc/`,
	`shutdown`,
	`reboot`,
	`init\s+[06]`,
	`kill\s+-9\s+1`,
	regexp.QuoteMeta(":(){ :|:& };:"),
	`>\s*\$HOME`,
	`>\s*~`,
}

// ShellExec runs allowlisted commands through sh -c.
type ShellExec struct {
	enabled        bool
	workingDir     string
	allowedCmds    []string
	allowedDirs    []string
	denied         []*regexp.Regexp
	defaultTimeout time.Duration
	maxOutput      int
}

// ShellExecConfig configures the shell executor.
type ShellExecConfig struct {
	Enabled        bool
	WorkingDir     string   // default directory for commands
	AllowedCmds    []string // base command names; empty = DefaultAllowedCommands
	AllowedDirs    []string // permitted workdirs; empty = any
	DeniedPatterns []string // regular expressions; empty = DefaultDeniedPatterns
	DefaultTimeout time.Duration
	MaxOutputChars int
}

// DefaultShellExecConfig returns safe defaults.
func DefaultShellExecConfig() ShellExecConfig {
	return ShellExecConfig{
		Enabled:        false,
		AllowedCmds:    DefaultAllowedCommands,
		DeniedPatterns: DefaultDeniedPatterns,
		DefaultTimeout: 30 * time.Second,
		MaxOutputChars: 10000,
	}
}

// NewShellExec creates a new shell executor. It fails only when a
// denied pattern does not compile.
func NewShellExec(cfg ShellExecConfig) (*ShellExec, error) {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = 10000
	}
	if len(cfg.AllowedCmds) == 0 {
		cfg.AllowedCmds = DefaultAllowedCommands
	}
	if len(cfg.DeniedPatterns) == 0 {
		cfg.DeniedPatterns = DefaultDeniedPatterns
	}

	denied := make([]*regexp.Regexp, 0, len(cfg.DeniedPatterns))
	for _, p := range cfg.DeniedPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("denied pattern %q: %w", p, err)
		}
		denied = append(denied, re)
	}

	return &ShellExec{
		enabled:        cfg.Enabled,
		workingDir:     cfg.WorkingDir,
		allowedCmds:    cfg.AllowedCmds,
		allowedDirs:    cfg.AllowedDirs,
		denied:         denied,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutput:      cfg.MaxOutputChars,
	}, nil
}

// Enabled reports whether shell execution is available.
func (s *ShellExec) Enabled() bool {
	return s.enabled
}

// ExecResult contains the result of a command execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Format renders the result the way execute_command reports it.
func (r *ExecResult) Format() string {
	var parts []string
	if r.Stdout != "" {
		parts = append(parts, "Output:\n"+r.Stdout)
	}
	if r.Stderr != "" {
		parts = append(parts, "Errors:\n"+r.Stderr)
	}
	if r.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("Exit code: %d", r.ExitCode))
	}
	if len(parts) == 0 {
		return "Command completed (no output)"
	}
	return strings.Join(parts, "\n\n")
}

// Validate checks a command against the denylist and the allowlist.
func (s *ShellExec) Validate(command string) error {
	for _, re := range s.denied {
		if re.MatchString(command) {
			return Errorf(CodeCommandBlocked, "command blocked: matches dangerous pattern %s", re.String())
		}
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Errorf(CodeInvalidInput, "command is required")
	}
	base := filepath.Base(fields[0])
	if !slices.Contains(s.allowedCmds, base) {
		shown := s.allowedCmds
		if len(shown) > 10 {
			shown = shown[:10]
		}
		return Errorf(CodeCommandBlocked, "command %q is not in the allowlist. Allowed commands: %s...", base, strings.Join(shown, ", "))
	}
	return nil
}

// validateDir checks workdir against the allowed directories.
func (s *ShellExec) validateDir(workdir string) error {
	if len(s.allowedDirs) == 0 {
		return nil
	}
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return Errorf(CodeDirectoryNotAllowed, "invalid working directory %q", workdir)
	}
	for _, dir := range s.allowedDirs {
		allowed, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(allowed, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return Errorf(CodeDirectoryNotAllowed, "working directory %q is not in the allowed list", workdir)
}

// Exec validates and runs a command. Blocked commands, disallowed
// directories and timeouts return coded errors; a command that runs
// and exits non-zero is a successful result with its exit code.
func (s *ShellExec) Exec(ctx context.Context, command, workdir string, timeoutSec int) (*ExecResult, error) {
	if !s.enabled {
		return nil, &ErrToolUnavailable{ToolName: "execute_command"}
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, Errorf(CodeInvalidInput, "command is required")
	}
	if err := s.Validate(command); err != nil {
		return nil, err
	}

	dir := s.workingDir
	if workdir != "" {
		if err := s.validateDir(workdir); err != nil {
			return nil, err
		}
		dir = workdir
	}

	timeout := s.defaultTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	// Cap at 5 minutes
	if timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	// Background children can hold the pipes open after sh is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, Errorf(CodeTimeout, "command timed out after %s", timeout)
	}

	result := &ExecResult{
		Stdout: truncateOutput(stdout.String(), s.maxOutput, "output"),
		Stderr: truncateOutput(stderr.String(), s.maxOutput, "error output"),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, Errorf(CodeExecutionError, "command failed: %v", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

// SetShellExec registers execute_command when s is enabled.
func (r *Registry) SetShellExec(s *ShellExec) {
	if s == nil || !s.Enabled() {
		return
	}
	r.Register(&Tool{
		Name: "execute_command",
		Description: "Run a shell command. Only allowlisted base commands (" +
			strings.Join(s.allowedCmds, ", ") + ") are permitted and destructive patterns are blocked.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to run",
				},
				"workdir": map[string]any{
					"type":        "string",
					"description": "Working directory (optional)",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Timeout in seconds (optional, default 30)",
				},
			},
			"required": []string{"command"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := s.Exec(ctx, stringArg(args, "command"), stringArg(args, "workdir"), intArg(args, "timeout", 0))
			if err != nil {
				return "", err
			}
			return res.Format(), nil
		},
	})
}

// truncateOutput cuts s to limit characters, noting the original length.
func truncateOutput(s string, limit int, what string) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + fmt.Sprintf("\n... (%s truncated, %d characters total)", what, len(runes))
}
