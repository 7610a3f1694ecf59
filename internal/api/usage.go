package api

import (
	"net/http"
	"time"

	"github.com/nugget/helloclaw/internal/usage"
)

// UsageReport is the body of GET /api/usage.
type UsageReport struct {
	Start   time.Time                 `json:"start"`
	End     time.Time                 `json:"end"`
	Days    int                       `json:"days"`
	Total   *usage.Summary            `json:"total"`
	ByModel map[string]*usage.Summary `json:"by_model"`
	ByKind  map[string]*usage.Summary `json:"by_kind"`
	Tools   []usage.ToolStat          `json:"tools"`
}

// handleUsage reports token, cost and tool totals for the last ?days
// (default 7).
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage tracking not configured")
		return
	}

	days := parseIntParam(r, "days", 7)
	if days == 0 {
		days = 7
	}
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	report := UsageReport{Start: start, End: end, Days: days}
	var err error
	if report.Total, err = s.usage.Summary(start, end); err != nil {
		s.fail(w, err, "usage summary")
		return
	}
	if report.ByModel, err = s.usage.SummaryByModel(start, end); err != nil {
		s.fail(w, err, "usage summary")
		return
	}
	if report.ByKind, err = s.usage.SummaryByKind(start, end); err != nil {
		s.fail(w, err, "usage summary")
		return
	}
	if report.Tools, err = s.usage.ToolStats(start, end); err != nil {
		s.fail(w, err, "usage summary")
		return
	}
	if report.Tools == nil {
		report.Tools = []usage.ToolStat{}
	}
	writeJSON(w, report, s.logger)
}
