package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultContextLines is how many lines around each hit a search
// returns.
const DefaultContextLines = 3

// Match is one contiguous block of lines around one or more hits.
// Lines are numbered from 1.
type Match struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// SearchResult groups the matches found in one file.
type SearchResult struct {
	Source  string  `json:"source"`
	Matches []Match `json:"matches"`
}

// Search finds keyword (case-insensitive) in MEMORY.md and, when
// includeDaily is set, every file under memory/. Each hit carries
// contextLines lines on either side; overlapping or adjacent windows
// are merged.
func (w *Workspace) Search(keyword string, includeDaily bool, contextLines int) ([]SearchResult, error) {
	if contextLines < 0 {
		contextLines = 0
	}
	var results []SearchResult

	longTerm, err := w.LoadConfig(ConfigMemory)
	if err != nil {
		return nil, err
	}
	if m := findMatches(longTerm, keyword, contextLines); len(m) > 0 {
		results = append(results, SearchResult{Source: MemoryFileName, Matches: m})
	}

	if !includeDaily {
		return results, nil
	}

	names, err := w.memoryDirFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(w.MemoryDir(), name))
		if err != nil {
			w.logger.Warn("skipping unreadable memory file", "file", name, "error", err)
			continue
		}
		if m := findMatches(string(data), keyword, contextLines); len(m) > 0 {
			results = append(results, SearchResult{Source: "memory/" + name, Matches: m})
		}
	}
	return results, nil
}

func findMatches(content, keyword string, contextLines int) []Match {
	if content == "" || keyword == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	needle := strings.ToLower(keyword)

	// Ranges of 0-based line indexes, merged as they are built since
	// hits are visited in order.
	type span struct{ start, end int }
	var spans []span
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		s := span{start: max(0, i-contextLines), end: min(len(lines)-1, i+contextLines)}
		if n := len(spans); n > 0 && s.start <= spans[n-1].end+1 {
			spans[n-1].end = max(spans[n-1].end, s.end)
			continue
		}
		spans = append(spans, s)
	}

	matches := make([]Match, 0, len(spans))
	for _, s := range spans {
		var b strings.Builder
		for i := s.start; i <= s.end; i++ {
			if i > s.start {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%4d | %s", i+1, lines[i])
		}
		matches = append(matches, Match{StartLine: s.start + 1, EndLine: s.end + 1, Content: b.String()})
	}
	return matches
}
