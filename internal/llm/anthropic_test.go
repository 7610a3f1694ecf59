package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are a helpful assistant."},
		{Role: RoleUser, Content: "Hello!"},
		{Role: RoleAssistant, Content: "Hi there!"},
		{Role: RoleUser, Content: "What's the weather?"},
	}

	result, system := convertToAnthropic(messages)

	if system != "You are a helpful assistant." {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages (no system), got %d", len(result))
	}
	if result[0].Role != RoleUser {
		t.Errorf("expected first message to be user, got %s", result[0].Role)
	}
}

func TestConvertToAnthropicWithToolCalls(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "Weather in Berlin and Paris?"},
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				NewToolCall("toolu_a", "get_weather", `{"city":"Berlin"}`),
				NewToolCall("toolu_b", "get_weather", `{"city":"Paris"}`),
			},
		},
		{Role: RoleTool, Content: "sunny", ToolCallID: "toolu_a"},
		{Role: RoleTool, Content: "rain", ToolCallID: "toolu_b"},
	}

	result, _ := convertToAnthropic(messages)

	// user, assistant with tool_use, one user turn holding both results
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	assistant, ok := result[1].Content.([]anthropicContent)
	if !ok {
		t.Fatal("expected assistant content to be []anthropicContent")
	}
	if len(assistant) != 2 || assistant[0].Type != "tool_use" || assistant[0].ID != "toolu_a" {
		t.Fatalf("assistant blocks = %+v", assistant)
	}
	input, ok := assistant[0].Input.(map[string]any)
	if !ok || input["city"] != "Berlin" {
		t.Errorf("input = %#v, want decoded object", assistant[0].Input)
	}

	results, ok := result[2].Content.([]anthropicContent)
	if !ok {
		t.Fatal("expected tool result content to be []anthropicContent")
	}
	if len(results) != 2 {
		t.Fatalf("tool_result blocks = %d, want 2", len(results))
	}
	if results[1].ToolUseID != "toolu_b" || results[1].Content != "rain" {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "get_weather",
				"description": "Current weather for a city",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{"city": map[string]any{"type": "string"}},
				},
			},
		},
		{"type": "function", "function": map[string]any{"name": "list_memory_files"}},
	}

	result := convertToolsToAnthropic(tools)
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}
	if result[0].Name != "get_weather" || result[0].Description != "Current weather for a city" {
		t.Errorf("tool 0 = %+v", result[0])
	}
	if result[1].InputSchema == nil {
		t.Error("missing parameters should become an empty object schema")
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	tests := []struct {
		name       string
		resp       anthropicResponse
		wantText   string
		wantCalls  int
		wantFinish string
	}{
		{
			name: "text only",
			resp: anthropicResponse{
				Content:    []anthropicContent{{Type: "text", Text: "It is sunny."}},
				StopReason: "end_turn",
				Usage:      anthropicUsage{InputTokens: 100, OutputTokens: 25},
			},
			wantText:   "It is sunny.",
			wantFinish: FinishStop,
		},
		{
			name: "text and tool use",
			resp: anthropicResponse{
				Content: []anthropicContent{
					{Type: "text", Text: "Let me check."},
					{Type: "tool_use", ID: "toolu_01", Name: "get_weather", Input: map[string]any{"city": "Berlin"}},
				},
				StopReason: "tool_use",
			},
			wantText:   "Let me check.",
			wantCalls:  1,
			wantFinish: FinishToolCalls,
		},
		{
			name:       "truncated",
			resp:       anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "Once upon"}}, StopReason: "max_tokens"},
			wantText:   "Once upon",
			wantFinish: FinishLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertFromAnthropic(&tt.resp)
			if result.Message.Content != tt.wantText {
				t.Errorf("Content = %q, want %q", result.Message.Content, tt.wantText)
			}
			if len(result.Message.ToolCalls) != tt.wantCalls {
				t.Fatalf("ToolCalls = %d, want %d", len(result.Message.ToolCalls), tt.wantCalls)
			}
			if result.FinishReason != tt.wantFinish {
				t.Errorf("FinishReason = %q, want %q", result.FinishReason, tt.wantFinish)
			}
			if result.Message.Role != RoleAssistant {
				t.Errorf("Role = %q", result.Message.Role)
			}
			if tt.wantCalls > 0 {
				tc := result.Message.ToolCalls[0]
				if tc.ID != "toolu_01" || tc.Type != "function" {
					t.Errorf("tool call = %+v", tc)
				}
				if got := argsOf(t, tc)["city"]; got != "Berlin" {
					t.Errorf("city = %v", got)
				}
			}
		})
	}
}

func TestAnthropicClient_ChatStream(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"model":"claude-sonnet","usage":{"input_tokens":12,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"get_weather","input":{}}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":30}}`,
		`{"type":"message_stop"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.System != "be brief" || !req.Stream || req.MaxTokens != anthropicMaxTokens {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", time.Second, nil)
	c.baseURL = srv.URL

	req := &Request{
		Model:    "claude-sonnet",
		Messages: []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "weather?"}},
	}
	var deltas []Delta
	if err := c.ChatStream(context.Background(), req, func(d Delta) { deltas = append(deltas, d) }); err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if len(deltas) != 5 {
		t.Fatalf("got %d deltas, want 5: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "Checking" {
		t.Errorf("delta 0 = %+v", deltas[0])
	}
	start := deltas[1].ToolCalls[0]
	if start.Index != 1 || start.ID != "toolu_9" || start.Name != "get_weather" || start.Arguments != "" {
		t.Errorf("start fragment = %+v", start)
	}
	if deltas[2].ToolCalls[0].Arguments+deltas[3].ToolCalls[0].Arguments != `{"city":"Oslo"}` {
		t.Errorf("argument fragments = %+v %+v", deltas[2], deltas[3])
	}
	last := deltas[4]
	if last.FinishReason != FinishToolCalls {
		t.Errorf("finish = %q", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.InputTokens != 12 || last.Usage.OutputTokens != 30 {
		t.Errorf("usage = %+v", last.Usage)
	}
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad"}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("k", time.Second, nil)
	c.baseURL = srv.URL
	_, err := c.Chat(context.Background(), &Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
}

func TestAnthropicClient_ChatStreamTruncated(t *testing.T) {
	tests := []struct {
		name    string
		events  []string
		wantErr string
	}{
		{
			name: "closed before message_stop",
			events: []string{
				`{"type":"message_start","message":{"model":"claude-sonnet","usage":{"input_tokens":3}}}`,
				`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Part"}}`,
			},
			wantErr: "message_stop",
		},
		{
			name:    "error event",
			events:  []string{`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
			wantErr: "Overloaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, e := range tt.events {
					fmt.Fprintf(w, "data: %s\n\n", e)
				}
			}))
			defer srv.Close()

			c := NewAnthropicClient("k", time.Second, nil)
			c.baseURL = srv.URL
			req := &Request{Model: "claude-sonnet", Messages: []Message{{Role: RoleUser, Content: "hi"}}}
			err := c.ChatStream(context.Background(), req, func(Delta) {})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
