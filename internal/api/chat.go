package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nugget/helloclaw/internal/agent"
)

// ChatRequest is the body of both chat endpoints. An empty SessionID
// starts a new session.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply of the sync chat endpoint.
type ChatResponse struct {
	Content   string                 `json:"content"`
	SessionID string                 `json:"session_id"`
	RunID     string                 `json:"run_id,omitempty"`
	Steps     int                    `json:"steps"`
	ToolCalls []agent.ToolCallRecord `json:"tool_calls,omitempty"`
}

// SessionHeader carries the session id of a streamed chat, since the
// response body is already committed to SSE.
const SessionHeader = "X-Session-ID"

func (s *Server) handleChatSendSync(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.agent.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.fail(w, err, "chat")
		return
	}
	writeJSON(w, ChatResponse{
		Content:   res.Content,
		SessionID: res.SessionID,
		RunID:     res.RunID,
		Steps:     res.Steps,
		ToolCalls: res.ToolCalls,
	}, s.logger)
}

// handleChatSend streams a turn as server-sent events. Each agent event
// is one "data:" line; quiet stretches get comment keepalives and the
// stream ends with "data: [DONE]".
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, sessionID, err := s.agent.ChatStream(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.fail(w, err, "chat")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.Header().Set(SessionHeader, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Get response controller for deadline management
	rc := http.NewResponseController(w)
	extend := func() {
		if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}
	extend()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	evs := stream.Events()
	for evs != nil {
		select {
		case ev, open := <-evs:
			if !open {
				evs = nil
				continue
			}
			s.writeSSE(w, ev)
			if ev.Kind == agent.EventToolCallStart {
				// Send SSE comment as keepalive ahead of a possibly slow tool
				fmt.Fprint(w, ": keepalive\n\n")
			}
			flusher.Flush()
			extend()
			if ev.Kind == agent.EventAgentFinish {
				// Post-turn housekeeping may still be running; the
				// client has everything it needs.
				evs = nil
			}
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
			extend()
		case <-r.Context().Done():
			s.logger.Debug("chat stream client went away", "session", sessionID)
			return
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE event", "error", err)
	}
}
