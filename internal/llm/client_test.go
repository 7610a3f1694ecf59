package llm

import (
	"context"
	"errors"
	"testing"
)

type chatOnly struct {
	resp  *ChatResponse
	err   error
	calls int
}

func (c *chatOnly) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	c.calls++
	return c.resp, c.err
}

func (c *chatOnly) Ping(ctx context.Context) error { return nil }

type streamer struct {
	chatOnly
	deltas []Delta
}

func (s *streamer) ChatStream(ctx context.Context, req *Request, onDelta DeltaCallback) error {
	for _, d := range s.deltas {
		onDelta(d)
	}
	return nil
}

func TestStreaming_Native(t *testing.T) {
	s := &streamer{}
	sc, native := Streaming(s)
	if !native {
		t.Error("native = false for a StreamingClient")
	}
	if sc != StreamingClient(s) {
		t.Error("native client should be returned unchanged")
	}
}

func TestStreaming_Adapter(t *testing.T) {
	c := &chatOnly{resp: &ChatResponse{
		Message: Message{
			Role:      RoleAssistant,
			Content:   "checking",
			ToolCalls: []ToolCall{NewToolCall("c1", "get_weather", `{"city":"Lima"}`)},
		},
		InputTokens: 3,
	}}
	sc, native := Streaming(c)
	if native {
		t.Error("native = true for a plain Client")
	}

	var got []Delta
	if err := sc.ChatStream(context.Background(), &Request{}, func(d Delta) { got = append(got, d) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("adapter delivered %d deltas, want 1", len(got))
	}
	d := got[0]
	if d.Content != "checking" || d.FinishReason != FinishToolCalls {
		t.Errorf("delta = %+v", d)
	}
	if len(d.ToolCalls) != 1 || d.ToolCalls[0].ID != "c1" || d.ToolCalls[0].Arguments != `{"city":"Lima"}` {
		t.Errorf("fragments = %+v", d.ToolCalls)
	}
	if d.Usage == nil || d.Usage.InputTokens != 3 {
		t.Errorf("usage = %+v", d.Usage)
	}
}

func TestStreaming_AdapterError(t *testing.T) {
	boom := errors.New("boom")
	sc, _ := Streaming(&chatOnly{err: boom})
	err := sc.ChatStream(context.Background(), &Request{}, func(Delta) { t.Error("unexpected delta") })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestResponseDelta_DefaultFinish(t *testing.T) {
	d := ResponseDelta(&ChatResponse{Message: Message{Content: "hi"}})
	if d.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want stop", d.FinishReason)
	}
	if d.Usage != nil {
		t.Errorf("Usage = %+v, want nil without token counts", d.Usage)
	}
}

func TestMultiClient_Routing(t *testing.T) {
	fallback := &chatOnly{resp: &ChatResponse{Message: Message{Content: "fallback"}}}
	cloud := &streamer{deltas: []Delta{{Content: "cloud"}}}

	m := NewMultiClient(fallback)
	m.AddProvider("anthropic", cloud)
	m.AddModel("claude-sonnet", "anthropic")

	resp, err := m.Chat(context.Background(), &Request{Model: "qwen3:8b"})
	if err != nil || resp.Message.Content != "fallback" {
		t.Fatalf("Chat = %+v, %v", resp, err)
	}

	var got string
	if err := m.ChatStream(context.Background(), &Request{Model: "claude-sonnet"}, func(d Delta) { got += d.Content }); err != nil {
		t.Fatal(err)
	}
	if got != "cloud" {
		t.Errorf("streamed %q, want cloud", got)
	}

	// Non-streaming fallback is adapted.
	got = ""
	if err := m.ChatStream(context.Background(), &Request{Model: "other"}, func(d Delta) { got += d.Content }); err != nil {
		t.Fatal(err)
	}
	if got != "fallback" {
		t.Errorf("streamed %q, want fallback", got)
	}
}

func TestMultiClient_NoFallback(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.Chat(context.Background(), &Request{Model: "x"}); err == nil {
		t.Error("expected error with no provider")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected Ping error with no fallback")
	}
}

func TestToolCall_ParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"object", `{"a":1,"b":"x"}`, 2, false},
		{"null", "null", 0, false},
		{"truncated", `{"a":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewToolCall("id", "tool", tt.args).ParseArguments()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}
