// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrorMarker prefixes failed results when they are rendered into a
// tool message for the model.
const ErrorMarker = "❌"

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Result is the outcome of one tool execution. Failures are ordinary
// results: the text is fed back to the model so it can adjust.
type Result struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
	Code string `json:"code,omitempty"`
}

// Failure builds a failed Result.
func Failure(code, text string) Result {
	return Result{Code: code, Text: text}
}

// String renders the result as tool message content. Failures carry
// the marker and code so the model can tell them apart from output.
func (r Result) String() string {
	if r.OK {
		return r.Text
	}
	return fmt.Sprintf("%s [%s] %s", ErrorMarker, r.Code, r.Text)
}

// Registry holds available tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry, replacing any tool with the
// same name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// List returns all tools in the chat completions "function" schema,
// sorted by name so requests are stable across calls.
func (r *Registry) List() []map[string]any {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Call runs a tool handler directly. Unknown tools return
// [*ErrToolUnavailable].
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.Get(name)
	if tool == nil || tool.Handler == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}

// Execute runs a tool and folds every outcome, including panics, into a
// Result. It never returns an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	start := time.Now()
	log := r.logger.With("tool", name)
	if id := SessionIDFromContext(ctx); id != "" {
		log = log.With("session", id)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
			res = Failure(CodeExecutionError, fmt.Sprintf("tool %s failed: %v", name, p))
		}
		log.Debug("tool executed", "ok", res.OK, "code", res.Code, "elapsed", time.Since(start))
	}()

	out, err := r.Call(ctx, name, args)
	if err != nil {
		code := CodeOf(err)
		text := err.Error()
		var te *Error
		if errors.As(err, &te) {
			text = te.Message
		}
		if code == CodeUnknownTool {
			text = "unknown tool: " + name
		}
		log.Warn("tool failed", "code", code, "error", err)
		return Failure(code, text)
	}
	return Result{OK: true, Text: out}
}

// stringArg returns args[key] as a trimmed string.
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// rawStringArg returns args[key] untrimmed, for content that must be
// written verbatim.
func rawStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg returns args[key] as an int. JSON numbers decode as float64;
// models sometimes send numbers as strings.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
