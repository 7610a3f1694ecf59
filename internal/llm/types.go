package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons, normalized to the OpenAI vocabulary regardless of
// provider.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Message is one chat message sent to or received from a provider.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages only
}

// ToolCall is a request from the model to invoke a tool. Arguments stay
// a serialized JSON string until the caller decides to parse them.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its raw argument string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall builds a function-type tool call.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: arguments},
	}
}

// ParseArguments decodes the argument string into a map. An empty
// string decodes to an empty map, for tools without parameters.
func (tc ToolCall) ParseArguments() (map[string]any, error) {
	if tc.Function.Arguments == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse arguments for %s: %w", tc.Function.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Request is one chat completion call.
type Request struct {
	Model    string
	Messages []Message
	// Tools are OpenAI-style function definitions:
	// {"type": "function", "function": {"name", "description", "parameters"}}.
	Tools []map[string]any
	// ToolChoice is "auto", "none" or "" (provider default).
	ToolChoice  string
	Temperature float64 // 0 means provider default
	MaxTokens   int     // 0 means provider default
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatResponse is the provider-neutral blocking response.
type ChatResponse struct {
	Model        string
	CreatedAt    time.Time
	Message      Message
	FinishReason string
	Done         bool

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration
}

// ToolCallFragment is one piece of a streamed tool call. The first
// fragment for an index usually carries ID and Name; later ones carry
// argument text only.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is one raw increment of a streamed response. Any field may be
// empty.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallFragment
	FinishReason string
	Usage        *Usage
}

// DeltaCallback receives deltas in arrival order.
type DeltaCallback func(Delta)

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}
