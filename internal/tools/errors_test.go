package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available in this context`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	orig := &ErrToolUnavailable{ToolName: "execute_command"}
	wrapped := fmt.Errorf("tool execution: %w", orig)

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "execute_command" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "execute_command")
	}
	if !errors.Is(wrapped, ErrUnknownTool) {
		t.Error("errors.Is(wrapped, ErrUnknownTool) = false")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", Errorf(CodeTimeout, "took %ds", 30), CodeTimeout},
		{"wrapped coded", fmt.Errorf("outer: %w", Errorf(CodeNotFound, "x")), CodeNotFound},
		{"unavailable", &ErrToolUnavailable{ToolName: "x"}, CodeUnknownTool},
		{"plain", errors.New("boom"), CodeExecutionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
