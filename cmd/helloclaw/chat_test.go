package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nugget/helloclaw/internal/agent"
	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/workspace"
)

// echoLLM answers every request with a fixed reply.
type echoLLM struct{ reply string }

func (m *echoLLM) Chat(context.Context, *llm.Request) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: m.reply},
		FinishReason: llm.FinishStop,
	}, nil
}

func (m *echoLLM) Ping(context.Context) error { return nil }

func newTestAgent(t *testing.T, reply string) *agent.Agent {
	t.Helper()
	ws := workspace.New(t.TempDir(), nil)
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	store, err := session.NewStore(ws.SessionsDir(), false, nil)
	if err != nil {
		t.Fatal(err)
	}
	loop := agent.NewLoop(&echoLLM{reply: reply}, nil, agent.LoopConfig{Model: "test"}, nil)
	return agent.New(loop, store, ws, agent.Config{}, nil)
}

func TestREPL_Conversation(t *testing.T) {
	ag := newTestAgent(t, "Hi, I'm here.")
	var out bytes.Buffer
	r := &repl{agent: ag, out: &out, styles: newStyles(&out)}

	in := strings.NewReader("hello\n/clear\n/new\n/bogus\n/exit\nnever sent\n")
	if err := r.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Commands: /new, /clear, /exit",
		"Hi, I'm here.",
		"session cleared",
		"new session ",
		"unknown command /bogus",
		"bye",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "you> ") {
		t.Error("prompt printed for non-interactive input")
	}

	sessions, err := ag.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("sessions = %d, want 2 (chat + /new)", len(sessions))
	}
}

func TestREPL_ClearWithoutSession(t *testing.T) {
	ag := newTestAgent(t, "unused")
	var out bytes.Buffer
	r := &repl{agent: ag, out: &out, styles: newStyles(&out)}

	if err := r.run(context.Background(), strings.NewReader("/clear\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "nothing to clear") {
		t.Errorf("output = %q", out.String())
	}
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				if out != "The answer is 4.\n" {
					t.Errorf("output = %q", out)
				}
			},
		},
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var res struct {
					SessionID string `json:"session_id"`
					Content   string `json:"content"`
				}
				if err := json.Unmarshal([]byte(out), &res); err != nil {
					t.Fatalf("invalid JSON: %v\n%s", err, out)
				}
				if res.Content != "The answer is 4." || res.SessionID == "" {
					t.Errorf("result = %+v", res)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ag := newTestAgent(t, "The answer is 4.")
			var out bytes.Buffer
			if err := ask(context.Background(), &out, ag, options{outputFmt: tt.format}, "what is 2+2?"); err != nil {
				t.Fatalf("ask: %v", err)
			}
			tt.check(t, out.String())
		})
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	ag := newTestAgent(t, "unused")
	var out bytes.Buffer
	if err := ask(context.Background(), &out, ag, options{outputFmt: "text"}, "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestPrintSessions(t *testing.T) {
	updated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	infos := []session.Info{
		{ID: "abc123", UpdatedAt: updated, MessageCount: 4, Preview: "plan the trip"},
	}

	t.Run("empty text", func(t *testing.T) {
		var out bytes.Buffer
		if err := printSessions(&out, nil, "text"); err != nil {
			t.Fatal(err)
		}
		if out.String() != "no sessions\n" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("empty json", func(t *testing.T) {
		var out bytes.Buffer
		if err := printSessions(&out, nil, "json"); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(out.String()) != "[]" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		if err := printSessions(&out, infos, "text"); err != nil {
			t.Fatal(err)
		}
		got := out.String()
		for _, want := range []string{"ID", "PREVIEW", "abc123", "2026-03-14 09:30", "plan the trip"} {
			if !strings.Contains(got, want) {
				t.Errorf("table missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		if err := printSessions(&out, infos, "json"); err != nil {
			t.Fatal(err)
		}
		var got []session.Info
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || got[0].ID != "abc123" || got[0].MessageCount != 4 {
			t.Errorf("sessions = %+v", got)
		}
	})
}

func TestFormatArgs(t *testing.T) {
	if got := formatArgs(nil); got != "" {
		t.Errorf("formatArgs(nil) = %q", got)
	}
	if got := formatArgs(map[string]any{"q": "x"}); got != ` {"q":"x"}` {
		t.Errorf("formatArgs = %q", got)
	}
	long := formatArgs(map[string]any{"q": strings.Repeat("a", 200)})
	if len(long) != 81 || !strings.HasSuffix(long, "...") {
		t.Errorf("long args = %q (len %d)", long, len(long))
	}
	cjk := formatArgs(map[string]any{"q": strings.Repeat("咖", 60)})
	if !utf8.ValidString(cjk) || !strings.HasSuffix(cjk, "咖...") || len(cjk) > 81 {
		t.Errorf("CJK args = %q (len %d)", cjk, len(cjk))
	}
}
