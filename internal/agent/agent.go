package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/helloclaw/internal/conditions"
	"github.com/nugget/helloclaw/internal/events"
	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/memory"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/usage"
	"github.com/nugget/helloclaw/internal/workspace"
)

// ErrEmptyMessage is returned when a chat message has no text.
var ErrEmptyMessage = errors.New("message is empty")

// ErrRunFailed is returned by [Agent.Chat] when the run produced no
// answer. The user message is still recorded.
var ErrRunFailed = errors.New("agent run failed")

// DefaultRetainRounds is the number of recent rounds always sent to the
// model once history is compacted.
const DefaultRetainRounds = 10

// Config configures an [Agent].
type Config struct {
	// Name is the agent's name until IDENTITY.md records one.
	Name  string
	Flush memory.FlushConfig
	// Capture enables regex capture of notable user statements.
	Capture bool
	// Timezone is the IANA zone used for the time in the system
	// prompt. Empty means local time.
	Timezone string
	// RetainRounds is the minimum number of recent rounds kept when
	// history grows past the compaction point.
	RetainRounds int
}

// ChatResult is the outcome of one conversational turn.
type ChatResult struct {
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	RunID     string            `json:"run_id"`
	Steps     int               `json:"steps"`
	ToolCalls []ToolCallRecord  `json:"tool_calls,omitempty"`
	Usage     llm.Usage         `json:"usage"`
	Captured  []memory.Captured `json:"captured,omitempty"`
	Flushed   bool              `json:"flushed,omitempty"`
}

// Agent is a conversational agent over persistent sessions. Each turn
// loads the session history, runs the [Loop] and appends the run's
// transcript. Turns on one session are serialized; different sessions
// run concurrently.
type Agent struct {
	loop     *Loop
	sessions *session.Store
	ws       *workspace.Workspace
	cfg      Config
	capturer *memory.Capturer
	bus      *events.Bus
	logger   *slog.Logger

	mu       sync.Mutex
	monitors map[string]*memory.FlushMonitor

	now func() time.Time
}

// New creates an agent. ws may be nil, in which case the system prompt
// carries no persona and capture is disabled.
func New(loop *Loop, sessions *session.Store, ws *workspace.Workspace, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "HelloClaw"
	}
	if cfg.RetainRounds < 1 {
		cfg.RetainRounds = DefaultRetainRounds
	}
	a := &Agent{
		loop:     loop,
		sessions: sessions,
		ws:       ws,
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
		monitors: make(map[string]*memory.FlushMonitor),
		now:      time.Now,
	}
	if cfg.Capture && ws != nil {
		a.capturer = memory.NewCapturer(ws, logger)
	}
	return a
}

// SetEventBus publishes agent, loop and session events to bus.
func (a *Agent) SetEventBus(bus *events.Bus) {
	a.bus = bus
	a.loop.SetEventBus(bus)
	a.sessions.SetEventBus(bus)
}

// Loop returns the underlying tool-calling loop.
func (a *Agent) Loop() *Loop { return a.loop }

// Workspace returns the agent's workspace, or nil.
func (a *Agent) Workspace() *workspace.Workspace { return a.ws }

// SystemPrompt builds the current system prompt. It is rebuilt for
// every turn so workspace edits apply immediately.
func (a *Agent) SystemPrompt() string {
	return BuildSystemPrompt(a.cfg.Name, a.ws, a.logger)
}

// Chat runs one blocking turn. An empty sessionID starts a new session;
// an unknown one is created on first append.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (ChatResult, error) {
	id, err := a.resolve(sessionID, message)
	if err != nil {
		return ChatResult{}, err
	}

	unlock := a.sessions.Lock(id)
	defer unlock()

	in, err := a.prepare(id, message)
	if err != nil {
		return ChatResult{SessionID: id}, err
	}
	res := a.loop.execute(ctx, in, false, nil)
	out, err := a.save(in, res)
	if err != nil {
		return out, err
	}
	a.settle(ctx, in, res, &out)
	if res.FinishText() == "" {
		if res.Err != nil {
			return out, fmt.Errorf("%w: %w", ErrRunFailed, res.Err)
		}
		return out, ErrRunFailed
	}
	return out, nil
}

// ChatStream starts a streaming turn and returns the stream with the
// session id in use. Events end with exactly one agent-finish, emitted
// after the transcript is saved. The flush round and memory capture run
// after agent-finish; the event channel closes once they are done.
func (a *Agent) ChatStream(ctx context.Context, sessionID, message string) (*Stream, string, error) {
	id, err := a.resolve(sessionID, message)
	if err != nil {
		return nil, "", err
	}

	s := startStream(ctx, func(ctx context.Context, emit func(Event)) Result {
		unlock := a.sessions.Lock(id)
		defer unlock()

		in, err := a.prepare(id, message)
		if err != nil {
			a.logger.Error("failed to load session", "session", id, "error", err)
			emit(Event{Kind: EventError, Error: "failed to load session", ErrorType: ErrorTypeInternal})
			emit(Event{Kind: EventAgentFinish})
			return Result{Err: err, Failed: true}
		}

		res := a.loop.execute(ctx, in, true, emit)
		out, err := a.save(in, res)
		if err != nil {
			emit(Event{Kind: EventError, Error: "failed to save session", ErrorType: ErrorTypeInternal})
			emit(Event{Kind: EventAgentFinish, Result: res.FinishText()})
			return res
		}
		emit(Event{Kind: EventAgentFinish, Result: res.FinishText()})
		a.settle(ctx, in, res, &out)
		return res
	})
	return s, id, nil
}

// resolve validates a turn's input and picks its session id.
func (a *Agent) resolve(sessionID, message string) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}
	if sessionID != "" {
		if !session.ValidID(sessionID) {
			return "", fmt.Errorf("%w: %q", session.ErrInvalidID, sessionID)
		}
		return sessionID, nil
	}
	sess, err := a.sessions.Create()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sess.ID, nil
}

// prepare loads history and builds the run input. The caller holds the
// session lock.
func (a *Agent) prepare(id, message string) (Input, error) {
	var history []llm.Message
	var started time.Time
	sess, err := a.sessions.Load(id)
	switch {
	case errors.Is(err, session.ErrNotFound):
	case err != nil:
		return Input{}, err
	default:
		history = session.ToLLM(sess.History)
		started = sess.CreatedAt
	}

	base := a.SystemPrompt()
	kept := a.compact(base, history)
	system := base + "\n\n" + conditions.Current(a.now(), a.cfg.Timezone, conditions.Context{
		Model:         a.loop.cfg.Model,
		TokenCount:    memory.EstimateContext(base, kept),
		ContextWindow: a.cfg.Flush.ContextWindow,
		MessageCount:  len(kept),
		SessionStart:  started,
		Dropped:       len(history) - len(kept),
	})
	return Input{
		Text:      message,
		System:    system,
		History:   kept,
		SessionID: id,
	}, nil
}

// compact drops the oldest rounds once the estimated context passes
// the compaction point, keeping at least RetainRounds recent rounds. A
// round starts at a user message so tool results never lose the call
// they answer.
func (a *Agent) compact(system string, history []llm.Message) []llm.Message {
	fc := a.cfg.Flush
	limit := int(float64(fc.ContextWindow) * fc.CompressionThreshold)
	if limit <= 0 || memory.EstimateContext(system, history) <= limit {
		return history
	}

	var starts []int
	for i, m := range history {
		if m.Role == llm.RoleUser {
			starts = append(starts, i)
		}
	}
	if len(starts) <= a.cfg.RetainRounds {
		return history
	}

	cut := 0
	for r := 1; r <= len(starts)-a.cfg.RetainRounds; r++ {
		cut = starts[r]
		if memory.EstimateContext(system, history[cut:]) <= limit {
			break
		}
	}
	a.logger.Info("compacted history", "dropped", cut, "kept", len(history)-cut)
	return history[cut:]
}

// save persists a run's transcript. The caller holds the session lock.
func (a *Agent) save(in Input, res Result) (ChatResult, error) {
	out := ChatResult{
		SessionID: in.SessionID,
		Content:   res.FinishText(),
		RunID:     res.RunID,
		Steps:     res.Steps,
		ToolCalls: res.ToolCalls,
		Usage:     res.Usage,
	}

	msgs := res.Messages
	if len(msgs) == 0 {
		// A panicked run has no transcript; keep the user's words.
		msgs = []llm.Message{{Role: llm.RoleUser, Content: in.Text}}
	}
	if err := a.sessions.Append(in.SessionID, session.FromLLM(msgs)...); err != nil {
		a.logger.Error("failed to save session", "session", in.SessionID, "error", err)
		return out, fmt.Errorf("save session: %w", err)
	}
	return out, nil
}

// settle runs the flush check and memory capture for a saved turn. It
// outlives cancellation of ctx. The caller holds the session lock.
func (a *Agent) settle(ctx context.Context, in Input, res Result, out *ChatResult) {
	msgs := res.Messages
	if len(msgs) == 0 {
		msgs = []llm.Message{{Role: llm.RoleUser, Content: in.Text}}
	}
	history := append(append([]llm.Message(nil), in.History...), msgs...)
	out.Flushed = a.maybeFlush(context.WithoutCancel(ctx), in, history)
	out.Captured = a.capture(in.SessionID, in.Text)
}

func (a *Agent) monitor(id string) *memory.FlushMonitor {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.monitors[id]
	if !ok {
		m = memory.NewFlushMonitor(a.cfg.Flush)
		a.monitors[id] = m
	}
	return m
}

// maybeFlush runs the silent memory flush round once the session nears
// the compaction point. It reports whether a round ran.
func (a *Agent) maybeFlush(ctx context.Context, in Input, history []llm.Message) bool {
	tokens := memory.EstimateContext(in.System, history)
	if !a.monitor(in.SessionID).ShouldTrigger(tokens) {
		return false
	}

	log := a.logger.With("session", in.SessionID)
	log.Info("memory flush triggered", "tokens", tokens, "trigger_point", a.cfg.Flush.TriggerPoint())
	a.bus.Emit(events.SourceMemory, events.KindFlushTriggered, map[string]any{
		"session_id":    in.SessionID,
		"tokens":        tokens,
		"trigger_point": a.cfg.Flush.TriggerPoint(),
	})

	res := a.loop.execute(ctx, Input{
		Text:      memory.FlushPrompt(a.now()),
		System:    in.System,
		History:   history,
		SessionID: in.SessionID,
		Kind:      usage.KindFlush,
	}, false, nil)

	silent := memory.IsSilent(res.Text)
	if silent {
		log.Debug("memory flush completed silently", "tool_calls", len(res.ToolCalls))
	} else {
		log.Info("memory flush completed", "tool_calls", len(res.ToolCalls), "reply", res.Text)
	}
	if res.Err != nil {
		log.Warn("memory flush round failed", "error", res.Err)
	}
	a.bus.Emit(events.SourceMemory, events.KindFlushComplete, map[string]any{
		"session_id": in.SessionID,
		"silent":     silent,
		"tool_calls": len(res.ToolCalls),
	})
	return true
}

func (a *Agent) capture(sessionID, text string) []memory.Captured {
	if a.capturer == nil {
		return nil
	}
	stored, err := a.capturer.CaptureAndStore(text)
	if err != nil {
		a.logger.Warn("memory capture failed", "session", sessionID, "error", err)
	}
	if len(stored) == 0 {
		return nil
	}
	categories := make([]string, 0, len(stored))
	for _, c := range stored {
		categories = append(categories, c.Category)
	}
	a.bus.Emit(events.SourceMemory, events.KindMemoryCaptured, map[string]any{
		"session_id": sessionID,
		"count":      len(stored),
		"categories": categories,
	})
	return stored
}

// CreateSession starts an empty session.
func (a *Agent) CreateSession() (string, error) {
	sess, err := a.sessions.Create()
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// ListSessions returns every session, most recently updated first.
func (a *Agent) ListSessions() ([]session.Info, error) {
	return a.sessions.List()
}

// GetSession loads a session with its full transcript.
func (a *Agent) GetSession(id string) (*session.Session, error) {
	return a.sessions.Load(id)
}

// DeleteSession removes a session and forgets its flush state.
func (a *Agent) DeleteSession(id string) error {
	unlock := a.sessions.Lock(id)
	defer unlock()
	if err := a.sessions.Delete(id); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.monitors, id)
	a.mu.Unlock()
	return nil
}

// ClearSession empties a session's history and re-arms its flush
// monitor.
func (a *Agent) ClearSession(id string) error {
	unlock := a.sessions.Lock(id)
	defer unlock()
	if err := a.sessions.Clear(id); err != nil {
		return err
	}
	a.monitor(id).Reset()
	return nil
}

// History returns the user and assistant messages of a session.
func (a *Agent) History(id string) ([]session.Message, error) {
	sess, err := a.sessions.Load(id)
	if err != nil {
		return nil, err
	}
	return session.Conversation(sess.History), nil
}

// FlushStatus reports the flush monitor state of a session.
func (a *Agent) FlushStatus(id string) (memory.FlushStatus, error) {
	if !a.sessions.Exists(id) {
		return memory.FlushStatus{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return a.monitor(id).Status(), nil
}
