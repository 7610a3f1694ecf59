package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	dailyNameRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.md$`)
	summaryNameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)\.md$`)
)

// Summary describes one saved session summary.
type Summary struct {
	Filename  string    `json:"filename"`
	Date      string    `json:"date"`
	Slug      string    `json:"slug"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview,omitempty"`
}

// SummaryFilename returns today's file name for a summary with slug.
func (w *Workspace) SummaryFilename(slug string) string {
	return w.now().Format(dateLayout) + "-" + slug + ".md"
}

// SaveSummary writes a session summary under memory/.
func (w *Workspace) SaveSummary(filename, content string) error {
	path, err := w.memoryFilePath(filename)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return fmt.Errorf("save summary %s: %w", filename, err)
	}
	return nil
}

// LoadSummary reads a saved summary. ok is false if it does not exist.
func (w *Workspace) LoadSummary(filename string) (string, bool, error) {
	return w.ReadMemoryFile(filename)
}

// ListSummaries returns saved summaries, newest first. Plain daily
// notes are excluded.
func (w *Workspace) ListSummaries() ([]Summary, error) {
	names, err := w.memoryDirFiles()
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var out []Summary
	for _, name := range names {
		if dailyNameRe.MatchString(name) || !strings.Contains(name, "-") {
			continue
		}
		path := filepath.Join(w.MemoryDir(), name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		s := Summary{
			Filename:  name,
			Slug:      strings.TrimSuffix(name, ".md"),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
			Preview:   w.previewFile(path),
		}
		if m := summaryNameRe.FindStringSubmatch(name); m != nil {
			s.Date, s.Slug = m[1], m[2]
		}
		out = append(out, s)
	}
	return out, nil
}
