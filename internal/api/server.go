// Package api implements the HTTP API: chat over SSE, sessions, memory
// files, workspace configs, usage and a live event feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/helloclaw/internal/agent"
	"github.com/nugget/helloclaw/internal/buildinfo"
	"github.com/nugget/helloclaw/internal/connwatch"
	"github.com/nugget/helloclaw/internal/events"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/summarizer"
	"github.com/nugget/helloclaw/internal/usage"
	"github.com/nugget/helloclaw/internal/workspace"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// streamWriteTimeout is the write deadline granted after every SSE
// event, so long tool loops outlive the server's WriteTimeout.
const streamWriteTimeout = 120 * time.Second

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	agent      *agent.Agent
	ws         *workspace.Workspace
	usage      *usage.Store
	summarizer *summarizer.Summarizer
	bus        *events.Bus
	watch      *connwatch.Manager
	logger     *slog.Logger
	server     *http.Server

	// keepalive is the SSE comment interval while a run is quiet.
	keepalive time.Duration
}

// NewServer creates a new API server.
func NewServer(address string, port int, ag *agent.Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		agent:     ag,
		ws:        ag.Workspace(),
		logger:    logger.With("component", "api"),
		keepalive: 15 * time.Second,
	}
}

// SetUsageStore enables the usage endpoint.
func (s *Server) SetUsageStore(store *usage.Store) {
	s.usage = store
}

// SetSummarizer enables summarize_old on session creation.
func (s *Server) SetSummarizer(sum *summarizer.Summarizer) {
	s.summarizer = sum
}

// SetProviderWatch adds model provider reachability to /health.
func (s *Server) SetProviderWatch(m *connwatch.Manager) {
	s.watch = m
}

// SetEventBus enables the websocket event feed.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// Handler returns the routed API handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	// Chat
	mux.HandleFunc("POST /api/chat/send", s.handleChatSend)
	mux.HandleFunc("POST /api/chat/send/sync", s.handleChatSendSync)

	// Sessions
	mux.HandleFunc("GET /api/sessions", s.handleSessionList)
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("POST /api/sessions/{id}/clear", s.handleSessionClear)
	mux.HandleFunc("GET /api/sessions/{id}/flush", s.handleSessionFlush)

	// Memory
	mux.HandleFunc("GET /api/memory/list", s.handleMemoryList)
	mux.HandleFunc("GET /api/memory/stats", s.handleMemoryStats)
	mux.HandleFunc("GET /api/memory/search", s.handleMemorySearch)
	mux.HandleFunc("POST /api/memory/today", s.handleMemoryToday)
	mux.HandleFunc("POST /api/memory/capture", s.handleMemoryCapture)
	mux.HandleFunc("POST /api/memory/cleanup", s.handleMemoryCleanup)
	mux.HandleFunc("GET /api/memory/{filename}", s.handleMemoryGet)

	// Summaries
	mux.HandleFunc("GET /api/summaries", s.handleSummaryList)
	mux.HandleFunc("GET /api/summaries/{filename}", s.handleSummaryGet)

	// Workspace configs
	mux.HandleFunc("GET /api/config/list", s.handleConfigList)
	mux.HandleFunc("GET /api/config/{name}", s.handleConfigGet)
	mux.HandleFunc("PUT /api/config/{name}", s.handleConfigPut)

	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown. Request contexts carry ctx's values but not its
// cancellation, so Shutdown can drain in-flight chats.
func (s *Server) Start(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
		BaseContext:  func(_ net.Listener) context.Context { return base },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// HealthResponse is the /health body. Status is "degraded" when a
// watched provider is unreachable; the server itself still answers.
type HealthResponse struct {
	Status    string             `json:"status"`
	Uptime    string             `json:"uptime"`
	Providers []connwatch.Status `json:"providers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Uptime: buildinfo.Uptime().Round(time.Second).String(),
	}
	if s.watch != nil {
		resp.Providers = s.watch.Status()
		for _, p := range resp.Providers {
			if !p.Ready {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

// errorResponse writes {"error": message} with the given status.
func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, workspace.ErrUnknownConfig):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidID),
		errors.Is(err, agent.ErrEmptyMessage),
		errors.Is(err, workspace.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail logs server-side errors and writes the mapped response. Client
// errors carry their message; internal ones a generic one.
func (s *Server) fail(w http.ResponseWriter, err error, action string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(action+" failed", "error", err)
		s.errorResponse(w, code, action+" failed")
		return
	}
	s.errorResponse(w, code, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
