package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/nugget/helloclaw/internal/config"
	"github.com/nugget/helloclaw/internal/httpkit"
)

// OllamaClient is a client for the Ollama /api/chat endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		// Large local models with tools need time to load.
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(timeout),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

// ollamaToolCall carries arguments as an object, not a string.
type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ollamaWireResponse is one /api/chat response or NDJSON stream chunk.
type ollamaWireResponse struct {
	Model      string        `json:"model"`
	CreatedAt  string        `json:"created_at"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`

	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

func (w *ollamaWireResponse) toChatResponse() *ChatResponse {
	resp := &ChatResponse{
		Model: w.Model,
		Message: Message{
			Role:    w.Message.Role,
			Content: w.Message.Content,
		},
		Done:          w.Done,
		InputTokens:   w.PromptEvalCount,
		OutputTokens:  w.EvalCount,
		TotalDuration: time.Duration(w.TotalDuration),
		LoadDuration:  time.Duration(w.LoadDuration),
		EvalDuration:  time.Duration(w.EvalDuration),
	}
	if t, err := time.Parse(time.RFC3339Nano, w.CreatedAt); err == nil {
		resp.CreatedAt = t
	}
	for i, tc := range w.Message.ToolCalls {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, fromOllamaToolCall(tc, i))
	}
	if w.Done {
		resp.FinishReason = FinishStop
		if len(resp.Message.ToolCalls) > 0 {
			resp.FinishReason = FinishToolCalls
		} else if w.DoneReason == "length" {
			resp.FinishReason = FinishLength
		}
	}
	return resp
}

// fromOllamaToolCall converts a wire call. Ollama does not assign call
// ids, so one is synthesized from the position in the response.
func fromOllamaToolCall(tc ollamaToolCall, index int) ToolCall {
	args := tc.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return NewToolCall(fmt.Sprintf("call_%d", index), tc.Function.Name, string(raw))
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var wire ollamaToolCall
			wire.Function.Name = tc.Function.Name
			args, err := tc.ParseArguments()
			if err != nil {
				args = map[string]any{}
			}
			wire.Function.Arguments = args
			om.ToolCalls = append(om.ToolCalls, wire)
		}
		out = append(out, om)
	}
	return out
}

func (c *OllamaClient) post(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   stream,
		Tools:    req.Tools,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: errBody}
	}
	return resp, nil
}

// Chat sends a blocking chat completion request.
func (c *OllamaClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", false,
	)

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire ollamaWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := wire.toChatResponse()

	// Many models emit tool calls as JSON in the text instead of the
	// native field.
	if len(out.Message.ToolCalls) == 0 && len(req.Tools) > 0 && out.Message.Content != "" {
		if parsed := parseTextToolCalls(out.Message.Content, extractToolNames(req.Tools)); len(parsed) > 0 {
			c.logger.Debug("parsed text tool calls", "count", len(parsed))
			out.Message.ToolCalls = parsed
			out.Message.Content = ""
			out.FinishReason = FinishToolCalls
		}
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
		"total_duration", out.TotalDuration,
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", out.Message.Content)
	return out, nil
}

// ChatStream reads the NDJSON stream and forwards each chunk as a Delta.
// Text-format tool calls can only be recognized once the whole text is
// known, so they are delivered as fragments just before the final delta.
func (c *OllamaClient) ChatStream(ctx context.Context, req *Request, onDelta DeltaCallback) error {
	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", true,
	)

	resp, err := c.post(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var (
		content   strings.Builder
		nextIndex int
		decoder   = json.NewDecoder(resp.Body)
	)
	for {
		var wire ollamaWireResponse
		if err := decoder.Decode(&wire); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("stream ended before done")
			}
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		chunk := wire.toChatResponse()

		var d Delta
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			d.Content = chunk.Message.Content
		}
		for _, tc := range wire.Message.ToolCalls {
			call := fromOllamaToolCall(tc, nextIndex)
			d.ToolCalls = append(d.ToolCalls, ToolCallFragment{
				Index:     nextIndex,
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
			nextIndex++
		}

		if !wire.Done {
			if d.Content != "" || len(d.ToolCalls) > 0 {
				onDelta(d)
			}
			continue
		}

		if nextIndex == 0 && len(d.ToolCalls) == 0 && len(req.Tools) > 0 {
			for i, tc := range parseTextToolCalls(content.String(), extractToolNames(req.Tools)) {
				d.ToolCalls = append(d.ToolCalls, ToolCallFragment{
					Index:     i,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
				nextIndex++
			}
		}

		d.FinishReason = FinishStop
		if nextIndex > 0 {
			d.FinishReason = FinishToolCalls
		} else if wire.DoneReason == "length" {
			d.FinishReason = FinishLength
		}
		d.Usage = &Usage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
		onDelta(d)

		c.logger.Debug("stream complete",
			"model", chunk.Model,
			"input_tokens", chunk.InputTokens,
			"output_tokens", chunk.OutputTokens,
			"tool_calls", nextIndex,
		)
		return nil
	}
}

type textToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// parseTextToolCalls extracts tool calls written into the response text.
// Recognized forms:
//   - a single object: {"name": "...", "arguments": {...}}
//   - an array of such objects
//   - concatenated objects, optionally followed by prose
//   - the above wrapped in <tool_call>...</tool_call>
//   - tool_name {json arguments}
//
// When validTools is non-empty, calls naming other tools are dropped.
func parseTextToolCalls(content string, validTools []string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	valid := func(name string) bool {
		if name == "" {
			return false
		}
		return len(validTools) == 0 || slices.Contains(validTools, name)
	}

	var found []textToolCall
	switch {
	case strings.HasPrefix(content, "["):
		var calls []textToolCall
		if err := json.Unmarshal([]byte(content), &calls); err == nil {
			found = calls
		}

	case strings.HasPrefix(content, "{"):
		// A decoder reads one value at a time, which handles both a
		// single object and several concatenated ones.
		dec := json.NewDecoder(strings.NewReader(content))
		for dec.More() {
			var call textToolCall
			if err := dec.Decode(&call); err != nil {
				break
			}
			found = append(found, call)
		}

	default:
		// tool_name {"arg": ...}
		name, rest, ok := strings.Cut(content, " ")
		if !ok || len(validTools) == 0 || !slices.Contains(validTools, name) {
			return nil
		}
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, "{") {
			return nil
		}
		var args map[string]any
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&args); err != nil {
			return nil
		}
		found = []textToolCall{{Name: name, Arguments: args}}
	}

	var result []ToolCall
	for _, call := range found {
		if !valid(call.Name) {
			continue
		}
		var wire ollamaToolCall
		wire.Function.Name = call.Name
		wire.Function.Arguments = call.Arguments
		result = append(result, fromOllamaToolCall(wire, len(result)))
	}
	return result
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// ListModels returns the names of locally available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 1024)}
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
