// Package agent implements the tool-calling loop and the conversational
// agent built on it.
//
// A [Loop] drives one run: it streams a model response, assembles any
// requested tool calls, executes them through a [Gateway], feeds the
// results back and repeats until the model answers in plain text or the
// iteration budget runs out. The loop holds no conversation state; the
// [Agent] loads history from the session store, runs the loop, and
// appends the run's transcript.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helloclaw/internal/config"
	"github.com/nugget/helloclaw/internal/events"
	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/tools"
	"github.com/nugget/helloclaw/internal/usage"
)

// DefaultMaxToolIterations bounds the rounds of one run when no limit
// is configured.
const DefaultMaxToolIterations = 10

// FallbackAnswer is the final response when the model produced no text.
const FallbackAnswer = "I cannot answer this"

// Tool call statuses in [ToolCallRecord].
const (
	StatusDone  = "done"
	StatusError = "error"
)

// Gateway executes tools on behalf of the model. [*tools.Registry]
// implements it.
type Gateway interface {
	// List returns the tool schemas offered to the model.
	List() []map[string]any
	// Execute runs one tool. Failures are results, never panics.
	Execute(ctx context.Context, name string, args map[string]any) tools.Result
}

// UsageRecorder persists per-call accounting. [*usage.Store] implements
// it.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
	RecordTool(ctx context.Context, rec usage.ToolRecord) error
}

// LoopConfig configures a [Loop].
type LoopConfig struct {
	Model             string
	MaxToolIterations int
	EnableToolCalling bool
	Temperature       float64
	MaxTokens         int
}

// Input is one run's input. History is the prior conversation, oldest
// first, without the system prompt.
type Input struct {
	Text      string
	System    string
	History   []llm.Message
	SessionID string
	Kind      string // usage kind; empty means interactive
}

// ToolCallRecord is one executed tool call. ID is the synthesized id
// used in the persisted transcript; CallID is the id the model sent.
type ToolCallRecord struct {
	ID     string         `json:"id"`
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
	Status string         `json:"status"`
	Code   string         `json:"code,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID string
	// Text is the final response. It is empty only when the run failed
	// before the model produced anything.
	Text string
	// Messages is the transcript to append to the conversation: the
	// user message, then the executed tool calls and their results,
	// then the final text.
	Messages  []llm.Message
	Steps     int
	ToolCalls []ToolCallRecord
	Usage     llm.Usage
	// Err is the first transport or internal failure, for logging. A
	// run with Err set still has a usable transcript.
	Err error
	// Failed is set when the run aborted on an internal error. The
	// caller reports an empty result.
	Failed bool
}

// FinishText is the agent-finish payload for the run: the final text,
// or "" when the run failed.
func (r Result) FinishText() string {
	if r.Failed {
		return ""
	}
	return r.Text
}

// Loop is the tool-calling orchestrator. It is stateless between runs
// and safe for concurrent use; each run owns its own state.
type Loop struct {
	client    llm.Client
	streamer  llm.StreamingClient
	native    bool
	gateway   Gateway
	cfg       LoopConfig
	logger    *slog.Logger
	bus       *events.Bus
	usage     UsageRecorder
	pricing   map[string]config.PricingEntry
	providers func(model string) string
}

// NewLoop creates a loop around client. gateway may be nil, in which
// case every run is a single plain completion. The streaming capability
// of client is resolved once here.
func NewLoop(client llm.Client, gateway Gateway, cfg LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolIterations < 1 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	streamer, native := llm.Streaming(client)
	return &Loop{
		client:   client,
		streamer: streamer,
		native:   native,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
	}
}

// SetEventBus publishes run progress to bus.
func (l *Loop) SetEventBus(bus *events.Bus) { l.bus = bus }

// SetUsageRecorder records every completion call and tool execution.
// providerFor names the provider serving a model.
func (l *Loop) SetUsageRecorder(rec UsageRecorder, pricing map[string]config.PricingEntry, providerFor func(model string) string) {
	l.usage = rec
	l.pricing = pricing
	l.providers = providerFor
}

// Config returns the loop configuration.
func (l *Loop) Config() LoopConfig { return l.cfg }

// NativeStreaming reports whether the client streams natively rather
// than through the blocking adapter.
func (l *Loop) NativeStreaming() bool { return l.native }

// Run executes one run with blocking completion calls. No events are
// produced; the transcript is the same a streaming run would build.
func (l *Loop) Run(ctx context.Context, in Input) Result {
	return l.execute(ctx, in, false, nil)
}

// RunStream starts a streaming run. Events arrive on the returned
// stream as they happen, ending with exactly one agent-finish event.
func (l *Loop) RunStream(ctx context.Context, in Input) *Stream {
	return startStream(ctx, func(ctx context.Context, emit func(Event)) Result {
		res := l.execute(ctx, in, true, emit)
		emit(Event{Kind: EventAgentFinish, Result: res.FinishText()})
		return res
	})
}

// run is the state of one execution. It is never shared.
type run struct {
	l         *Loop
	in        Input
	id        string
	streaming bool
	emit      func(Event)
	log       *slog.Logger

	messages []llm.Message
	records  []ToolCallRecord
	final    string
	step     int
	usage    llm.Usage
	err      error
}

// execute runs the round loop and returns the finalized result. It
// does not emit agent-finish; the caller does, after any bookkeeping of
// its own.
func (l *Loop) execute(ctx context.Context, in Input, streaming bool, emit func(Event)) (res Result) {
	if emit == nil {
		emit = func(Event) {}
	}
	r := &run{
		l:         l,
		in:        in,
		id:        newRunID(),
		streaming: streaming,
		emit:      emit,
	}
	r.log = l.logger.With("run", r.id)
	if in.SessionID != "" {
		r.log = r.log.With("session", in.SessionID)
	}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("agent run panicked", "panic", p, "stack", string(debug.Stack()))
			r.emit(Event{Kind: EventError, Error: "internal error", ErrorType: ErrorTypeInternal})
			res = Result{
				RunID:  r.id,
				Steps:  r.step,
				Usage:  r.usage,
				Err:    fmt.Errorf("agent run panicked: %v", p),
				Failed: true,
			}
		}
		r.log.Info("agent run completed",
			"steps", res.Steps,
			"tool_calls", len(res.ToolCalls),
			"failed", res.Failed,
			"elapsed", time.Since(start),
		)
		l.bus.Emit(events.SourceAgent, events.KindRequestComplete, map[string]any{
			"run_id":     r.id,
			"session_id": in.SessionID,
			"steps":      res.Steps,
			"tool_calls": len(res.ToolCalls),
			"failed":     res.Failed || res.Err != nil,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}()

	r.log.Info("agent run started", "input_len", len(in.Text), "history", len(in.History), "streaming", streaming)
	l.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"run_id":     r.id,
		"session_id": in.SessionID,
		"input_len":  len(in.Text),
	})

	r.emit(Event{Kind: EventAgentStart, InputText: in.Text})
	r.messages = buildMessages(in)
	r.rounds(ctx)
	return r.finalize()
}

func buildMessages(in Input) []llm.Message {
	msgs := make([]llm.Message, 0, len(in.History)+2)
	if in.System != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: in.System})
	}
	msgs = append(msgs, in.History...)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: in.Text})
}

func (r *run) rounds(ctx context.Context) {
	maxSteps := r.l.cfg.MaxToolIterations

	var schemas []map[string]any
	if r.l.cfg.EnableToolCalling && r.l.gateway != nil {
		schemas = r.l.gateway.List()
	}

	if len(schemas) == 0 {
		r.step = 1
		r.emit(Event{Kind: EventStepStart, Step: 1, MaxSteps: maxSteps})
		acc, err := r.complete(ctx, nil, "")
		if err != nil {
			r.fail(err)
			return
		}
		r.final = acc.Content
		r.emit(Event{Kind: EventStepFinish, Step: 1})
		return
	}

	answered := false
	for r.step < maxSteps {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		r.step++
		r.emit(Event{Kind: EventStepStart, Step: r.step, MaxSteps: maxSteps})

		acc, err := r.complete(ctx, schemas, "auto")
		if err != nil {
			r.fail(err)
			return
		}
		if acc.Content != "" {
			r.final = acc.Content
		}

		calls := r.completeCalls(acc)
		if len(calls) == 0 {
			if r.final == "" {
				r.final = FallbackAnswer
			}
			answered = true
			r.emit(Event{Kind: EventStepFinish, Step: r.step})
			break
		}

		r.log.Debug("executing tool calls", "step", r.step, "count", len(calls))
		assistant := llm.Message{Role: llm.RoleAssistant, Content: acc.Content}
		for _, c := range calls {
			assistant.ToolCalls = append(assistant.ToolCalls, llm.NewToolCall(c.ID, c.Name, c.Arguments))
		}
		r.messages = append(r.messages, assistant)

		for _, c := range calls {
			r.runTool(ctx, c)
		}
		r.emit(Event{Kind: EventStepFinish, Step: r.step})
	}

	if answered || r.final != "" {
		return
	}

	r.log.Info("tool iteration budget exhausted, requesting final answer", "steps", r.step)
	acc, err := r.complete(ctx, schemas, "none")
	if err != nil {
		r.fail(err)
		return
	}
	r.final = acc.Content
	if r.final == "" {
		r.final = FallbackAnswer
	}
}

// complete performs one completion call over the current messages and
// returns its accumulated result. Streaming runs forward text as
// llm-chunk events as it arrives.
func (r *run) complete(ctx context.Context, schemas []map[string]any, toolChoice string) (Accumulated, error) {
	cfg := r.l.cfg
	req := &llm.Request{
		Model:       cfg.Model,
		Messages:    append([]llm.Message(nil), r.messages...),
		Tools:       schemas,
		ToolChoice:  toolChoice,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	r.log.Debug("calling LLM", "step", r.step, "model", cfg.Model, "messages", len(req.Messages), "tools", len(schemas))
	r.l.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
		"run_id": r.id,
		"step":   r.step,
		"model":  cfg.Model,
		"tools":  len(schemas),
	})

	acc := NewAccumulator()
	step := r.step
	forward := func(ev StreamEvent) {
		if ev.Kind == StreamContentDelta {
			r.emit(Event{Kind: EventLLMChunk, Chunk: ev.Text, Step: step})
		}
	}

	start := time.Now()
	var err error
	if r.streaming {
		err = r.l.streamer.ChatStream(ctx, req, func(d llm.Delta) {
			acc.Add(d, forward)
		})
	} else {
		var resp *llm.ChatResponse
		resp, err = r.l.client.Chat(ctx, req)
		if err == nil {
			acc.Add(llm.ResponseDelta(resp), nil)
		}
	}

	res := acc.Result()
	r.usage.InputTokens += res.Usage.InputTokens
	r.usage.OutputTokens += res.Usage.OutputTokens
	r.recordUsage(ctx, res.Usage)

	if err != nil {
		return res, err
	}

	r.log.Log(ctx, config.LevelTrace, "LLM response",
		"step", step, "content", res.Content, "tool_calls", res.ToolCalls)
	r.log.Debug("LLM responded",
		"step", step,
		"finish", res.FinishReason,
		"tool_calls", len(res.ToolCalls),
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"elapsed", time.Since(start),
	)
	r.l.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
		"run_id":     r.id,
		"step":       step,
		"model":      cfg.Model,
		"tokens_in":  res.Usage.InputTokens,
		"tokens_out": res.Usage.OutputTokens,
		"tool_calls": len(res.ToolCalls),
	})
	return res, nil
}

// completeCalls returns the round's executable tool calls. Calls
// missing an id or a name are truncated fragments and are dropped.
func (r *run) completeCalls(acc Accumulated) []AccumulatedCall {
	var out []AccumulatedCall
	for _, c := range acc.ToolCalls {
		if !c.Complete() {
			r.log.Warn("dropping incomplete tool call",
				"step", r.step, "index", c.Index, "id", c.ID, "name", c.Name)
			continue
		}
		out = append(out, c)
	}
	return out
}

// runTool executes one tool call and appends its result message.
// Malformed arguments produce an error result without calling the
// gateway.
func (r *run) runTool(ctx context.Context, c AccumulatedCall) {
	args, err := llm.NewToolCall(c.ID, c.Name, c.Arguments).ParseArguments()
	if err != nil {
		r.log.Warn("malformed tool arguments", "step", r.step, "tool", c.Name, "error", err)
		r.messages = append(r.messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    "Error: invalid parameter format - " + err.Error(),
			ToolCallID: c.ID,
		})
		return
	}

	r.emit(Event{Kind: EventToolCallStart, ToolName: c.Name, ToolCallID: c.ID, Args: args})
	// Let stream consumers flush the start event before a slow tool
	// blocks progress.
	runtime.Gosched()

	r.l.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"run_id": r.id,
		"step":   r.step,
		"tool":   c.Name,
	})

	tctx := tools.WithToolCallID(ctx, c.ID)
	if r.in.SessionID != "" {
		tctx = tools.WithSessionID(tctx, r.in.SessionID)
	}
	start := time.Now()
	result := r.l.gateway.Execute(tctx, c.Name, args)
	elapsed := time.Since(start)
	text := result.String()

	r.emit(Event{Kind: EventToolCallFinish, ToolName: c.Name, ToolCallID: c.ID, Result: text})

	status := StatusDone
	if !result.OK {
		status = StatusError
	}
	r.log.Debug("tool executed", "step", r.step, "tool", c.Name, "status", status, "elapsed", elapsed)
	r.l.bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
		"run_id":      r.id,
		"step":        r.step,
		"tool":        c.Name,
		"ok":          result.OK,
		"duration_ms": elapsed.Milliseconds(),
	})
	r.recordTool(ctx, c.Name, result, elapsed)

	r.records = append(r.records, ToolCallRecord{
		CallID: c.ID,
		Name:   c.Name,
		Args:   args,
		Result: text,
		Status: status,
		Code:   result.Code,
	})
	r.messages = append(r.messages, llm.Message{Role: llm.RoleTool, Content: text, ToolCallID: c.ID})
}

// fail records a transport failure and reports it. The run continues
// to finalize with whatever response it has.
func (r *run) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	msg, typ := "LLM call failed", ErrorTypeLLM
	switch {
	case errors.Is(err, context.Canceled):
		msg, typ = "run canceled", ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		msg = "LLM call timed out"
	}
	r.log.Error(msg, "step", r.step, "error", err)
	r.emit(Event{Kind: EventError, Error: msg, ErrorType: typ})
}

// finalize builds the transcript: the user message, one assistant
// message carrying every executed call under a stable synthesized id,
// one tool message per call, then the final text if any.
func (r *run) finalize() Result {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: r.in.Text}}

	if len(r.records) > 0 {
		assistant := llm.Message{Role: llm.RoleAssistant}
		for i := range r.records {
			rec := &r.records[i]
			rec.ID = callID(r.id, i)
			args, err := json.Marshal(rec.Args)
			if err != nil {
				args = []byte("{}")
			}
			assistant.ToolCalls = append(assistant.ToolCalls, llm.NewToolCall(rec.ID, rec.Name, string(args)))
		}
		msgs = append(msgs, assistant)
		for _, rec := range r.records {
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: rec.Result, ToolCallID: rec.ID})
		}
	}

	if r.final != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: r.final})
	}

	return Result{
		RunID:     r.id,
		Text:      r.final,
		Messages:  msgs,
		Steps:     r.step,
		ToolCalls: r.records,
		Usage:     r.usage,
		Err:       r.err,
	}
}

func (r *run) kind() string {
	if r.in.Kind == "" {
		return usage.KindInteractive
	}
	return r.in.Kind
}

// recordUsage writes one ledger row. Ledger failures are logged and
// never affect the run.
func (r *run) recordUsage(ctx context.Context, u llm.Usage) {
	if r.l.usage == nil {
		return
	}
	model := r.l.cfg.Model
	provider := ""
	if r.l.providers != nil {
		provider = r.l.providers(model)
	}
	rec := usage.Record{
		RunID:        r.id,
		SessionID:    r.in.SessionID,
		Step:         r.step,
		Kind:         r.kind(),
		Model:        model,
		Provider:     provider,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      usage.ComputeCost(model, u.InputTokens, u.OutputTokens, r.l.pricing),
	}
	if err := r.l.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("failed to record usage", "error", err)
	}
}

func (r *run) recordTool(ctx context.Context, name string, res tools.Result, elapsed time.Duration) {
	if r.l.usage == nil {
		return
	}
	rec := usage.ToolRecord{
		RunID:     r.id,
		SessionID: r.in.SessionID,
		Tool:      name,
		OK:        res.OK,
		Code:      res.Code,
		Elapsed:   elapsed,
	}
	if err := r.l.usage.RecordTool(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("failed to record tool usage", "tool", name, "error", err)
	}
}

// callID names the i-th executed call of a run. Ids must stay unique
// across every turn replayed from one session, so the random tail of
// the run id is folded in.
func callID(runID string, i int) string {
	tail := strings.ReplaceAll(runID, "-", "")
	if len(tail) > 12 {
		tail = tail[len(tail)-12:]
	}
	return fmt.Sprintf("call_%s_%d", tail, i)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
