package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestShell(t *testing.T, mutate func(*ShellExecConfig)) *ShellExec {
	t.Helper()
	cfg := DefaultShellExecConfig()
	cfg.Enabled = true
	cfg.WorkingDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	se, err := NewShellExec(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return se
}

func TestShellExec_BasicCommand(t *testing.T) {
	se := newTestShell(t, nil)

	result, err := se.Exec(context.Background(), "echo hello", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if got := result.Format(); got != "Output:\nhello\n" {
		t.Errorf("Format() = %q", got)
	}
}

func TestShellExec_Disabled(t *testing.T) {
	se := newTestShell(t, func(c *ShellExecConfig) { c.Enabled = false })

	_, err := se.Exec(context.Background(), "echo hello", "", 0)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v, want unavailable", err)
	}

	r := NewRegistry(nil)
	r.SetShellExec(se)
	if r.Get("execute_command") != nil {
		t.Error("disabled shell registered execute_command")
	}
}

func TestShellExec_Validate(t *testing.T) {
	se := newTestShell(t, nil)

	tests := []struct {
		command  string
		wantCode string
	}{
		{"ls -la", ""},
		{"/bin/ls", ""},
		{"git status", ""},
		{"rm -rf /tmp/x", CodeCommandBlocked},
		{"RM  -FR build", CodeCommandBlocked},
		{"echo hi | sudo tee x", CodeCommandBlocked},
		{"echo x > /etc/hosts", CodeCommandBlocked},
		{"echo x >~/.bashrc", CodeCommandBlocked},
		{"chmod 777 a", CodeCommandBlocked},
		{"dd if=/dev/zero of=x", CodeCommandBlocked},
		{":(){ :|:& };:", CodeCommandBlocked},
		{"curl http://example.com", CodeCommandBlocked},
		{"   ", CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := CodeOf(se.Validate(tt.command)); got != tt.wantCode {
				t.Errorf("Validate(%q) code = %q, want %q", tt.command, got, tt.wantCode)
			}
		})
	}
}

func TestShellExec_AllowedDirs(t *testing.T) {
	root := t.TempDir()
	se := newTestShell(t, func(c *ShellExecConfig) { c.AllowedDirs = []string{root} })
	ctx := context.Background()

	if _, err := se.Exec(ctx, "pwd", root, 0); err != nil {
		t.Errorf("allowed dir rejected: %v", err)
	}
	_, err := se.Exec(ctx, "pwd", filepath.Dir(root), 0)
	if CodeOf(err) != CodeDirectoryNotAllowed {
		t.Errorf("parent dir err = %v", err)
	}
	_, err = se.Exec(ctx, "pwd", root+"-sibling", 0)
	if CodeOf(err) != CodeDirectoryNotAllowed {
		t.Errorf("sibling prefix dir err = %v", err)
	}
}

func TestShellExec_Timeout(t *testing.T) {
	se := newTestShell(t, func(c *ShellExecConfig) {
		c.AllowedCmds = []string{"sleep"}
		c.DefaultTimeout = 200 * time.Millisecond
	})

	_, err := se.Exec(context.Background(), "sleep 10", "", 0)
	if CodeOf(err) != CodeTimeout {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
}

func TestShellExec_NonZeroExitAndStderr(t *testing.T) {
	se := newTestShell(t, nil)

	result, err := se.Exec(context.Background(), "ls does-not-exist", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}
	out := result.Format()
	if !strings.Contains(out, "Errors:\n") || !strings.Contains(out, "Exit code: ") {
		t.Errorf("Format() = %q", out)
	}
}

func TestShellExec_OutputTruncated(t *testing.T) {
	se := newTestShell(t, func(c *ShellExecConfig) { c.MaxOutputChars = 5 })

	result, err := se.Exec(context.Background(), "echo abcdefghij", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := "abcde\n... (output truncated, 11 characters total)"; result.Stdout != want {
		t.Errorf("Stdout = %q, want %q", result.Stdout, want)
	}
}

func TestShellExec_EmptyOutput(t *testing.T) {
	r := NewRegistry(nil)
	r.SetShellExec(newTestShell(t, nil))

	res := r.Execute(context.Background(), "execute_command", map[string]any{"command": "touch x"})
	if !res.OK || res.Text != "Command completed (no output)" {
		t.Errorf("Execute = %+v", res)
	}
	res = r.Execute(context.Background(), "execute_command", map[string]any{"command": "sudo ls"})
	if res.OK || res.Code != CodeCommandBlocked {
		t.Errorf("blocked Execute = %+v", res)
	}
}
