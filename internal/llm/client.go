// Package llm provides chat completion clients for OpenAI-compatible
// endpoints, Anthropic and Ollama behind one interface.
package llm

import "context"

// Client is the interface that all providers implement.
type Client interface {
	// Chat sends a blocking chat completion request.
	Chat(ctx context.Context, req *Request) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamingClient is a Client that can stream text and tool-call
// fragments as they are generated.
type StreamingClient interface {
	Client

	// ChatStream sends a streaming request and calls onDelta for every
	// raw increment, in order. It returns when the stream ends. A
	// non-nil error means the stream failed and whatever was delivered
	// so far is incomplete.
	ChatStream(ctx context.Context, req *Request, onDelta DeltaCallback) error
}

// Streaming resolves the streaming capability of c once. If c streams
// natively it is returned as is with native=true. Otherwise it is
// wrapped in an adapter that performs one blocking Chat and replays the
// whole response as a single delta.
func Streaming(c Client) (sc StreamingClient, native bool) {
	if sc, ok := c.(StreamingClient); ok {
		return sc, true
	}
	return &blockingAdapter{Client: c}, false
}

type blockingAdapter struct {
	Client
}

func (a *blockingAdapter) ChatStream(ctx context.Context, req *Request, onDelta DeltaCallback) error {
	resp, err := a.Chat(ctx, req)
	if err != nil {
		return err
	}
	onDelta(ResponseDelta(resp))
	return nil
}

// ResponseDelta converts a complete response into the single delta a
// stream of it would reduce to.
func ResponseDelta(resp *ChatResponse) Delta {
	d := Delta{
		Content:      resp.Message.Content,
		FinishReason: resp.FinishReason,
	}
	for i, tc := range resp.Message.ToolCalls {
		d.ToolCalls = append(d.ToolCalls, ToolCallFragment{
			Index:     i,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if d.FinishReason == "" {
		d.FinishReason = FinishStop
		if len(d.ToolCalls) > 0 {
			d.FinishReason = FinishToolCalls
		}
	}
	if resp.InputTokens > 0 || resp.OutputTokens > 0 {
		d.Usage = &Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
	}
	return d
}

// extractToolNames returns the function names of OpenAI-style tool
// definitions, skipping malformed entries.
func extractToolNames(tools []map[string]any) []string {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, _ := fn["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names
}
