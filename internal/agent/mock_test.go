package agent

import (
	"context"
	"sync"

	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/tools"
)

// mockLLM is a blocking client that replays scripted responses in
// order and records every request. Past the script it answers "done".
type mockLLM struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	errs      map[int]error
	calls     []*llm.Request
}

func (m *mockLLM) Chat(_ context.Context, req *llm.Request) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.calls)
	m.calls = append(m.calls, req)
	if err := m.errs[n]; err != nil {
		return nil, err
	}
	if n >= len(m.responses) {
		return textResponse("done"), nil
	}
	return m.responses[n], nil
}

func (m *mockLLM) Ping(context.Context) error { return nil }

func (m *mockLLM) requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.calls...)
}

// streamLLM streams scripted deltas. failAt makes a call return an
// error after its script was delivered.
type streamLLM struct {
	mockLLM
	scripts [][]llm.Delta
	failAt  map[int]error
}

func (s *streamLLM) ChatStream(_ context.Context, req *llm.Request, onDelta llm.DeltaCallback) error {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if n < len(s.scripts) {
		for _, d := range s.scripts[n] {
			onDelta(d)
		}
	}
	return s.failAt[n]
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		FinishReason: llm.FinishStop,
	}
}

func toolResponse(content string, calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls},
		FinishReason: llm.FinishToolCalls,
	}
}

type gatewayCall struct {
	name string
	args map[string]any
}

// recordingGateway offers fixed tools and records executions.
type recordingGateway struct {
	mu      sync.Mutex
	names   []string
	results map[string]tools.Result
	calls   []gatewayCall
	panics  bool
}

func newGateway(names ...string) *recordingGateway {
	return &recordingGateway{names: names, results: map[string]tools.Result{}}
}

func (g *recordingGateway) List() []map[string]any {
	var out []map[string]any
	for _, n := range g.names {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":       n,
				"parameters": map[string]any{"type": "object"},
			},
		})
	}
	return out
}

func (g *recordingGateway) Execute(_ context.Context, name string, args map[string]any) tools.Result {
	if g.panics {
		panic("gateway exploded")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{name, args})
	if r, ok := g.results[name]; ok {
		return r
	}
	return tools.Result{OK: true, Text: name + " ok"}
}

func (g *recordingGateway) executed() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func eventKinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func countKind(evs []Event, kind EventKind) int {
	n := 0
	for _, ev := range evs {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
