// Package session persists conversation transcripts as one JSON file per
// session under the workspace's sessions/ directory.
package session

import (
	"time"

	"github.com/nugget/helloclaw/internal/llm"
)

// ToolCallFunction names the function a tool call invokes.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // serialized JSON
}

// ToolCall is one requested tool invocation as persisted on an
// assistant message.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// Metadata carries the side-channel of a message: the tool calls an
// assistant message requested, or the call a tool message answers.
type Metadata struct {
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Message is one persisted conversation turn. Messages are never edited
// after they are appended.
type Message struct {
	Role     string    `json:"role"`
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Session is the on-disk record of one conversation.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	History   []Message `json:"history"`
}

// Info summarizes a session for listings.
type Info struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview,omitempty"`
}

// ToLLM converts persisted messages into chat messages for a
// completion request.
func ToLLM(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{Role: m.Role, Content: m.Content}
		if m.Metadata != nil {
			for _, tc := range m.Metadata.ToolCalls {
				lm.ToolCalls = append(lm.ToolCalls, llm.NewToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
			}
			lm.ToolCallID = m.Metadata.ToolCallID
		}
		out = append(out, lm)
	}
	return out
}

// FromLLM converts chat messages into their persisted form. Tool calls
// and tool-call ids move into Metadata.
func FromLLM(msgs []llm.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, lm := range msgs {
		m := Message{Role: lm.Role, Content: lm.Content}
		if len(lm.ToolCalls) > 0 || lm.ToolCallID != "" {
			md := &Metadata{ToolCallID: lm.ToolCallID}
			for _, tc := range lm.ToolCalls {
				typ := tc.Type
				if typ == "" {
					typ = "function"
				}
				md.ToolCalls = append(md.ToolCalls, ToolCall{
					ID:       tc.ID,
					Type:     typ,
					Function: ToolCallFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				})
			}
			m.Metadata = md
		}
		out = append(out, m)
	}
	return out
}

// Conversation returns only the user and assistant messages that carry
// text, the view shown to people and fed to summaries.
func Conversation(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if (m.Role == llm.RoleUser || m.Role == llm.RoleAssistant) && m.Content != "" {
			out = append(out, m)
		}
	}
	return out
}
