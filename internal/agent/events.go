package agent

import "encoding/json"

// StreamEventKind tags a [StreamEvent].
type StreamEventKind string

// Normalized stream events produced by the [Accumulator].
const (
	StreamContentDelta  StreamEventKind = "content-delta"
	StreamToolCallStart StreamEventKind = "tool-call-start"
	StreamToolCallDelta StreamEventKind = "tool-call-delta"
	StreamFinish        StreamEventKind = "finish"
)

// StreamEvent is one normalized increment of a model response.
// Which fields are set depends on Kind:
//
//   - content-delta: Text
//   - tool-call-start: Index, ID, Name
//   - tool-call-delta: Index, Text (the argument fragment)
//   - finish: FinishReason
type StreamEvent struct {
	Kind         StreamEventKind
	Index        int
	ID           string
	Name         string
	Text         string
	FinishReason string
}

// EventKind tags an [Event].
type EventKind string

// Agent events reported while a run progresses.
const (
	EventAgentStart     EventKind = "agent-start"
	EventStepStart      EventKind = "step-start"
	EventLLMChunk       EventKind = "llm-chunk"
	EventToolCallStart  EventKind = "tool-call-start"
	EventToolCallFinish EventKind = "tool-call-finish"
	EventStepFinish     EventKind = "step-finish"
	EventAgentFinish    EventKind = "agent-finish"
	EventError          EventKind = "error"
)

// Error types carried by error events.
const (
	ErrorTypeLLM      = "llm_error"
	ErrorTypeInternal = "internal_error"
	ErrorTypeCanceled = "canceled"
)

// Event is one caller-visible progress report from a run. Only the
// fields belonging to Kind are meaningful; see [Event.Payload].
type Event struct {
	Kind EventKind

	InputText  string
	Step       int
	MaxSteps   int
	Chunk      string
	ToolName   string
	ToolCallID string
	Args       map[string]any
	Result     string
	Error      string
	ErrorType  string
}

// Payload returns the named fields of the event for its kind. An
// agent-finish payload always carries "result", empty on failure.
func (e Event) Payload() map[string]any {
	switch e.Kind {
	case EventAgentStart:
		return map[string]any{"input_text": e.InputText}
	case EventStepStart:
		return map[string]any{"step": e.Step, "max_steps": e.MaxSteps}
	case EventLLMChunk:
		return map[string]any{"chunk": e.Chunk, "step": e.Step}
	case EventToolCallStart:
		args := e.Args
		if args == nil {
			args = map[string]any{}
		}
		return map[string]any{"tool_name": e.ToolName, "tool_call_id": e.ToolCallID, "args": args}
	case EventToolCallFinish:
		return map[string]any{"tool_name": e.ToolName, "tool_call_id": e.ToolCallID, "result": e.Result}
	case EventStepFinish:
		return map[string]any{"step": e.Step}
	case EventAgentFinish:
		return map[string]any{"result": e.Result}
	case EventError:
		return map[string]any{"error": e.Error, "error_type": e.ErrorType}
	}
	return map[string]any{}
}

// MarshalJSON renders the event as {"type": kind, "data": payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventKind      `json:"type"`
		Data map[string]any `json:"data"`
	}{e.Kind, e.Payload()})
}
