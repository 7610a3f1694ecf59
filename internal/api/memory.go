package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/helloclaw/internal/workspace"
)

// dedupeThreshold is the keyword overlap above which a manual capture
// is treated as already remembered.
const dedupeThreshold = 0.7

// MemoryEntry is one memory file in a listing.
type MemoryEntry struct {
	Filename  string    `json:"filename"`
	Date      string    `json:"date,omitempty"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview,omitempty"`
}

// fileDate extracts the leading YYYY-MM-DD of a daily or summary file
// name.
func fileDate(name string) string {
	if len(name) >= 10 {
		if _, err := time.Parse("2006-01-02", name[:10]); err == nil {
			return name[:10]
		}
	}
	return ""
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	files, err := s.ws.ListMemoryFiles()
	if err != nil {
		s.fail(w, err, "list memory")
		return
	}

	category := r.URL.Query().Get("category")
	entries := []MemoryEntry{}
	for _, f := range files {
		if category != "" {
			content, ok, err := s.ws.ReadMemoryFile(f.Name)
			if err != nil || !ok || !strings.Contains(content, "["+category+"]") {
				continue
			}
		}
		entries = append(entries, MemoryEntry{
			Filename:  f.Name,
			Date:      fileDate(f.Name),
			Type:      f.Type,
			Size:      f.Size,
			UpdatedAt: f.UpdatedAt,
			Preview:   f.Preview,
		})
	}
	writeJSON(w, map[string]any{
		"memories": entries,
		"total":    len(entries),
	}, s.logger)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	files, err := s.ws.ListMemoryFiles()
	if err != nil {
		s.fail(w, err, "memory stats")
		return
	}
	categories, err := s.ws.CategoryStats()
	if err != nil {
		s.fail(w, err, "memory stats")
		return
	}

	var daily int
	var size int64
	for _, f := range files {
		size += f.Size
		if f.Type == "daily" {
			daily++
		}
	}
	writeJSON(w, map[string]any{
		"total_files": len(files),
		"daily_files": daily,
		"total_size":  size,
		"categories":  categories,
	}, s.logger)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyword := strings.TrimSpace(q.Get("q"))
	if keyword == "" {
		s.errorResponse(w, http.StatusBadRequest, "q is required")
		return
	}
	includeDaily := true
	if v := q.Get("include_daily"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "include_daily must be a boolean")
			return
		}
		includeDaily = b
	}
	contextLines := parseIntParam(r, "context", workspace.DefaultContextLines)

	results, err := s.ws.Search(keyword, includeDaily, contextLines)
	if err != nil {
		s.fail(w, err, "memory search")
		return
	}
	if results == nil {
		results = []workspace.SearchResult{}
	}
	writeJSON(w, map[string]any{
		"query":   keyword,
		"results": results,
		"total":   len(results),
	}, s.logger)
}

type memoryWriteRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

func (s *Server) handleMemoryToday(w http.ResponseWriter, r *http.Request) {
	var req memoryWriteRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}
	if err := s.ws.AppendDaily(content); err != nil {
		s.fail(w, err, "append daily memory")
		return
	}
	writeJSON(w, map[string]string{
		"status":  "ok",
		"message": "added to today's memory",
	}, s.logger)
}

func (s *Server) handleMemoryCapture(w http.ResponseWriter, r *http.Request) {
	var req memoryWriteRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}
	category := req.Category
	if category == "" {
		category = workspace.CategoryFact
	}
	if !slices.Contains(workspace.Categories, category) {
		s.errorResponse(w, http.StatusBadRequest,
			"category must be one of: "+strings.Join(workspace.Categories, ", "))
		return
	}

	if s.ws.IsDuplicate(content, dedupeThreshold) {
		writeJSON(w, map[string]string{
			"status":  "skipped",
			"message": "similar memory already exists",
		}, s.logger)
		return
	}
	if err := s.ws.AppendClassified(content, category); err != nil {
		s.fail(w, err, "capture memory")
		return
	}
	writeJSON(w, map[string]string{
		"status":   "ok",
		"message":  "memory captured",
		"category": category,
	}, s.logger)
}

func (s *Server) handleMemoryCleanup(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", 30)
	deleted, err := s.ws.Cleanup(days)
	if err != nil {
		s.fail(w, err, "memory cleanup")
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, map[string]any{
		"status":  "ok",
		"deleted": deleted,
		"message": "deleted " + strconv.Itoa(len(deleted)) + " files older than " + strconv.Itoa(days) + " days",
	}, s.logger)
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	s.serveMemoryFile(w, r, r.PathValue("filename"))
}

// serveMemoryFile writes one memory file as JSON, or as rendered HTML
// with ?format=html.
func (s *Server) serveMemoryFile(w http.ResponseWriter, r *http.Request, name string) {
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	content, ok, err := s.ws.ReadMemoryFile(name)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "memory file not found: "+name)
		return
	}
	if wantHTML(r) {
		s.writeHTML(w, content)
		return
	}
	writeJSON(w, map[string]string{
		"filename": name,
		"date":     fileDate(name),
		"content":  content,
	}, s.logger)
}

func (s *Server) handleSummaryList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.ws.ListSummaries()
	if err != nil {
		s.fail(w, err, "list summaries")
		return
	}
	if summaries == nil {
		summaries = []workspace.Summary{}
	}
	writeJSON(w, map[string]any{
		"summaries": summaries,
		"total":     len(summaries),
	}, s.logger)
}

func (s *Server) handleSummaryGet(w http.ResponseWriter, r *http.Request) {
	s.serveMemoryFile(w, r, r.PathValue("filename"))
}
