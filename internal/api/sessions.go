package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/summarizer"
)

// CreateSessionRequest is the optional body of POST /api/sessions.
// With SummarizeOld set the previous session is summarized into the
// memory directory before the new one starts. OldSessionID defaults to
// the most recently updated session.
type CreateSessionRequest struct {
	SummarizeOld bool   `json:"summarize_old"`
	OldSessionID string `json:"old_session_id,omitempty"`
}

// CreateSessionResponse reports the new session and, when requested,
// the summary written for the old one.
type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	SummaryFile string `json:"summary_file,omitempty"`
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.agent.ListSessions()
	if err != nil {
		s.fail(w, err, "list sessions")
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, map[string]any{
		"sessions": infos,
		"total":    len(infos),
	}, s.logger)
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp CreateSessionResponse
	if req.SummarizeOld {
		resp.SummaryFile = s.summarizeOld(r, req.OldSessionID)
	}

	id, err := s.agent.CreateSession()
	if err != nil {
		s.fail(w, err, "create session")
		return
	}
	resp.SessionID = id

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, resp, s.logger)
}

// summarizeOld summarizes the given or most recent session. Failures
// are logged and never block creating the new session.
func (s *Server) summarizeOld(r *http.Request, oldID string) string {
	if s.summarizer == nil {
		s.logger.Warn("summarize_old requested but no summarizer configured")
		return ""
	}
	if oldID == "" {
		infos, err := s.agent.ListSessions()
		if err != nil || len(infos) == 0 {
			return ""
		}
		oldID = infos[0].ID
	}

	sess, err := s.agent.GetSession(oldID)
	if err != nil {
		s.logger.Warn("cannot load session to summarize", "session", oldID, "error", err)
		return ""
	}
	file, err := s.summarizer.Summarize(r.Context(), oldID, sess.History)
	if errors.Is(err, summarizer.ErrNothingToSummarize) {
		return ""
	}
	if err != nil {
		s.logger.Warn("session summary failed", "session", oldID, "error", err)
		return ""
	}
	return file
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.agent.GetSession(r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "load session")
		return
	}
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agent.DeleteSession(id); err != nil {
		s.fail(w, err, "delete session")
		return
	}
	writeJSON(w, map[string]string{"status": "deleted", "session_id": id}, s.logger)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.agent.History(id)
	if err != nil {
		s.fail(w, err, "load history")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, map[string]any{
		"session_id": id,
		"messages":   msgs,
	}, s.logger)
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agent.ClearSession(id); err != nil {
		s.fail(w, err, "clear session")
		return
	}
	writeJSON(w, map[string]string{"status": "cleared", "session_id": id}, s.logger)
}

func (s *Server) handleSessionFlush(w http.ResponseWriter, r *http.Request) {
	status, err := s.agent.FlushStatus(r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "flush status")
		return
	}
	writeJSON(w, status, s.logger)
}
