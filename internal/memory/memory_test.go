package memory

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/workspace"
)

func TestFlushMonitor_Trigger(t *testing.T) {
	m := NewFlushMonitor(FlushConfig{
		Enabled:              true,
		ContextWindow:        1000,
		CompressionThreshold: 0.8,
		SoftThresholdTokens:  100,
	})

	if got := m.Status().TriggerPoint; got != 700 {
		t.Fatalf("TriggerPoint = %d, want 700", got)
	}
	if m.ShouldTrigger(699) {
		t.Error("699 should not trigger")
	}
	if !m.ShouldTrigger(700) {
		t.Error("700 should trigger")
	}
	if m.ShouldTrigger(950) {
		t.Error("950 should not trigger again")
	}
	if !m.Status().FlushTriggered {
		t.Error("status should report the latch")
	}

	m.Reset()
	if m.Status().FlushTriggered {
		t.Error("Reset did not clear the latch")
	}
	if !m.ShouldTrigger(950) {
		t.Error("950 should trigger after Reset")
	}
}

func TestFlushConfig_TriggerPointFractional(t *testing.T) {
	tests := []struct {
		window    int
		threshold float64
		soft      int
		want      int
	}{
		{100, 0.29, 0, 29},
		{1000, 0.8, 100, 700},
		{1000, 0.8005, 0, 801},
		{128000, 0.8, 4000, 98400},
	}
	for _, tt := range tests {
		cfg := FlushConfig{Enabled: true, ContextWindow: tt.window, CompressionThreshold: tt.threshold, SoftThresholdTokens: tt.soft}
		if got := cfg.TriggerPoint(); got != tt.want {
			t.Errorf("TriggerPoint(%d, %v, %d) = %d, want %d", tt.window, tt.threshold, tt.soft, got, tt.want)
		}
	}

	m := NewFlushMonitor(FlushConfig{Enabled: true, ContextWindow: 100, CompressionThreshold: 0.29})
	if m.ShouldTrigger(28) {
		t.Error("28 is below 28.99 and should not trigger")
	}
	if !m.ShouldTrigger(29) {
		t.Error("29 should trigger")
	}
}

func TestFlushMonitor_Disabled(t *testing.T) {
	m := NewFlushMonitor(FlushConfig{Enabled: false, ContextWindow: 10, CompressionThreshold: 1})
	if m.ShouldTrigger(1 << 20) {
		t.Error("disabled monitor triggered")
	}
}

func TestFlushMonitor_AtMostOnceConcurrently(t *testing.T) {
	m := NewFlushMonitor(DefaultFlushConfig())
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.ShouldTrigger(200000) {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fired != 1 {
		t.Errorf("fired %d times, want 1", fired)
	}
}

func TestFlushPromptAndSilent(t *testing.T) {
	p := FlushPrompt(time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC))
	if !strings.Contains(p, "memory/2026-02-26.md") || !strings.HasSuffix(p, SilentReply) {
		t.Errorf("prompt = %q", p)
	}
	for reply, want := range map[string]bool{
		"[SILENT]":         true,
		"  [SILENT]\n":     true,
		"[SILENT] done":    false,
		"Saved 2 memories": false,
	} {
		if got := IsSilent(reply); got != want {
			t.Errorf("IsSilent(%q) = %v, want %v", reply, got, want)
		}
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"你好", 4},
		{"héllo", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "abcdefgh"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("c", "abcd", "abcdefgh")}},
	}
	// system 1 + user 2 + name 1 + args 2
	if got := EstimateContext("abcd", history); got != 6 {
		t.Errorf("EstimateContext = %d, want 6", got)
	}
}

func TestEstimateTokens_MonotonicCJK(t *testing.T) {
	s := ""
	prev := 0
	for _, r := range "记住我喜欢喝咖啡 and tea" {
		s += string(r)
		n := EstimateTokens(s)
		if n < prev {
			t.Fatalf("EstimateTokens(%q) = %d, dropped from %d", s, n, prev)
		}
		prev = n
	}
	// Eight CJK runes alone must not be estimated below eight tokens.
	if n := EstimateTokens("记住我喜欢喝咖啡"); n < 8 {
		t.Errorf("CJK estimate = %d, want >= 8", n)
	}
}

func TestLoadEncoding_Unknown(t *testing.T) {
	if err := LoadEncoding("no_such_encoding"); err == nil {
		t.Fatal("LoadEncoding(unknown) should fail")
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("heuristic should stay active, got %d", got)
	}
}

// fakeRecorder records appended memories; dupes lists contents that
// should be reported as already known.
type fakeRecorder struct {
	dupes    map[string]bool
	appended []Captured
	failOn   string
}

func (f *fakeRecorder) IsDuplicate(content string, _ float64) bool { return f.dupes[content] }

func (f *fakeRecorder) AppendClassified(content, category string) error {
	if content == f.failOn {
		return errors.New("disk full")
	}
	f.appended = append(f.appended, Captured{Content: content, Category: category})
	return nil
}

func TestCapture_Categories(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		content  string
		category string
	}{
		{"remember", "Please remember that my sister lives in Oslo.", "Please remember that my sister lives in Oslo", workspace.CategoryFact},
		{"english preference", "I prefer short answers!", "I prefer short answers", workspace.CategoryPreference},
		{"bare preference", "really love jazz records", "User: really love jazz records", workspace.CategoryPreference},
		{"chinese preference", "我喜欢简洁的回复风格。", "用户我喜欢简洁的回复风格", workspace.CategoryPreference},
		{"decision", "We decided to use Postgres", "We decided to use Postgres", workspace.CategoryDecision},
		{"email kept whole", "Reach me at bob@example.com for details", "Reach me at bob@example.com for details", workspace.CategoryEntity},
		{"phone", "call 0755 12345678 tonight", "call 0755 12345678 tonight", workspace.CategoryEntity},
		{"speaker prefix", "user: it turns out the bug was DNS", "it turns out the bug was DNS", workspace.CategoryFact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCapturer(&fakeRecorder{}, nil)
			got := c.Capture(tt.text)
			if len(got) != 1 {
				t.Fatalf("Capture(%q) = %+v, want 1 memory", tt.text, got)
			}
			if got[0].Content != tt.content || got[0].Category != tt.category {
				t.Errorf("got %+v, want %q [%s]", got[0], tt.content, tt.category)
			}
		})
	}
}

func TestCapture_Skips(t *testing.T) {
	rec := &fakeRecorder{dupes: map[string]bool{"I prefer tea over coffee": true}}
	c := NewCapturer(rec, nil)

	text := "What time is it? I prefer tea over coffee. love. Remember the milk. remember the milk."
	got := c.Capture(text)

	if len(got) != 1 {
		t.Fatalf("Capture = %+v, want only the first milk reminder", got)
	}
	if got[0].Content != "Remember the milk" {
		t.Errorf("content = %q", got[0].Content)
	}
}

func TestCaptureAndStore(t *testing.T) {
	rec := &fakeRecorder{failOn: "remember my locker is 42"}
	c := NewCapturer(rec, nil)

	stored, err := c.CaptureAndStore("remember my locker is 42\nI hate early meetings")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Category != workspace.CategoryPreference {
		t.Errorf("stored = %+v", stored)
	}
	if len(rec.appended) != 1 {
		t.Errorf("appended = %+v", rec.appended)
	}

	if _, err := NewCapturer(nil, nil).CaptureAndStore("remember this please"); err == nil {
		t.Error("CaptureAndStore without a recorder should fail")
	}
}

func TestCapture_AgainstWorkspace(t *testing.T) {
	ws := workspace.New(t.TempDir(), nil)
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	c := NewCapturer(ws, nil)

	first, err := c.CaptureAndStore("I prefer dark mode in every editor")
	if err != nil || len(first) != 1 {
		t.Fatalf("first capture = %+v, %v", first, err)
	}
	again, err := c.CaptureAndStore("I prefer dark mode in every editor")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("repeat capture stored %+v, want dedupe", again)
	}
}
