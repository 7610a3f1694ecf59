// Package tools provides the tool registry and execution framework.
//
// This file defines result codes and error types for tool execution.
package tools

import (
	"errors"
	"fmt"
)

// Result codes reported in [Result.Code]. Tools may use others; these
// are the ones the built-ins share.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnknownTool         = "UNKNOWN_TOOL"
	CodeExecutionError      = "EXECUTION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeCommandBlocked      = "COMMAND_BLOCKED"
	CodeDirectoryNotAllowed = "DIRECTORY_NOT_ALLOWED"
	CodeTimeout             = "TIMEOUT"
	CodeInvalidURL          = "INVALID_URL"
	CodeUnsupportedContent  = "UNSUPPORTED_CONTENT"
	CodeHTTPError           = "HTTP_ERROR"
	CodeNetworkError        = "NETWORK_ERROR"
	CodeFetchError          = "FETCH_ERROR"
	CodeMissingAPIKey       = "MISSING_API_KEY"
	CodeSearchError         = "SEARCH_ERROR"
	CodeAuthError           = "AUTH_ERROR"
	CodeRateLimit           = "RATE_LIMIT"
)

// ErrUnknownTool matches any [ErrToolUnavailable] via errors.Is.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. This indicates a capability
// mismatch, not a transient execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// Is makes errors.Is(err, ErrUnknownTool) hold.
func (e *ErrToolUnavailable) Is(target error) bool {
	return target == ErrUnknownTool
}

// Error is a tool failure with a machine-readable code. Handlers return
// it to choose the code that reaches the model; any other error is
// reported as EXECUTION_ERROR.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Errorf builds an [*Error] with the given code.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err, EXECUTION_ERROR for uncoded
// errors, and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	if errors.Is(err, ErrUnknownTool) {
		return CodeUnknownTool
	}
	return CodeExecutionError
}
