package tools

import (
	"context"
	"testing"
)

func TestSessionIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty when unset", context.Background(), ""},
		{"round trip", WithSessionID(context.Background(), "sess-abc"), "sess-abc"},
		{"empty string returns empty", WithSessionID(context.Background(), ""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("SessionIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolCallIDFromContext(t *testing.T) {
	ctx := WithToolCallID(WithSessionID(context.Background(), "s1"), "call_0")
	if got := ToolCallIDFromContext(ctx); got != "call_0" {
		t.Errorf("ToolCallIDFromContext() = %q, want call_0", got)
	}
	if got := SessionIDFromContext(ctx); got != "s1" {
		t.Errorf("SessionIDFromContext() = %q, want s1", got)
	}
	if got := ToolCallIDFromContext(context.Background()); got != "" {
		t.Errorf("unset ToolCallIDFromContext() = %q", got)
	}
}
