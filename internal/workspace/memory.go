package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// MemoryFileName is how the long-term memory file appears in
	// listings and search results.
	MemoryFileName = "MEMORY.md"

	// Memory categories written by automatic capture.
	CategoryPreference = "preference"
	CategoryDecision   = "decision"
	CategoryEntity     = "entity"
	CategoryFact       = "fact"
)

// Categories lists the capture categories in reporting order.
var Categories = []string{CategoryPreference, CategoryDecision, CategoryEntity, CategoryFact}

// MemoryFile describes one memory file for listings.
type MemoryFile struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"` // longterm or daily
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview,omitempty"`
}

// DailyPath returns the path of the daily note for day.
func (w *Workspace) DailyPath(day time.Time) string {
	return filepath.Join(w.MemoryDir(), day.Format(dateLayout)+".md")
}

// AppendDaily appends a timestamped entry to today's note, creating it
// with a date heading if needed.
func (w *Workspace) AppendDaily(content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	entry := fmt.Sprintf("\n## %s\n\n%s\n", now.Format("15:04:05"), content)
	return w.appendDailyLocked(now, entry)
}

// AppendClassified appends an automatically captured entry tagged with
// its category, e.g. "- [preference] likes short answers".
func (w *Workspace) AppendClassified(content, category string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	entry := fmt.Sprintf("\n## %s - auto capture\n\n- [%s] %s\n", now.Format("15:04"), category, content)
	return w.appendDailyLocked(now, entry)
}

func (w *Workspace) appendDailyLocked(day time.Time, entry string) error {
	path := w.DailyPath(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var header string
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		header = "# " + day.Format(dateLayout) + "\n"
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daily memory: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + entry); err != nil {
		return fmt.Errorf("append daily memory: %w", err)
	}
	return nil
}

// AppendLongTerm adds a section to MEMORY.md.
func (w *Workspace) AppendLongTerm(content string) error {
	current, err := w.LoadConfig(ConfigMemory)
	if err != nil {
		return err
	}
	return w.SaveConfig(ConfigMemory, current+"\n\n## New\n\n"+content+"\n")
}

// ReadDaily returns the note for day, or "" if there is none.
func (w *Workspace) ReadDaily(day time.Time) (string, error) {
	data, err := os.ReadFile(w.DailyPath(day))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

// memoryFilePath maps a memory file name to its path. "MEMORY.md" is
// the long-term file; anything else lives under memory/. Names that
// would escape the memory directory are rejected.
func (w *Workspace) memoryFilePath(name string) (string, error) {
	if name == MemoryFileName {
		return w.configPath(ConfigMemory), nil
	}
	clean := filepath.Clean(name)
	if clean != filepath.Base(clean) || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid memory file name %q", name)
	}
	return filepath.Join(w.MemoryDir(), clean), nil
}

// ReadMemoryFile returns a whole memory file. ok is false when the file
// does not exist.
func (w *Workspace) ReadMemoryFile(name string) (content string, ok bool, err error) {
	path, err := w.memoryFilePath(name)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// ReadLines returns lines start..end (1-based, inclusive) of a memory
// file, each prefixed with its line number. end <= 0 reads to the end
// of the file. ok is false when the file does not exist.
func (w *Workspace) ReadLines(name string, start, end int) (text string, ok bool, err error) {
	content, ok, err := w.ReadMemoryFile(name)
	if err != nil || !ok {
		return "", ok, err
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if start < 1 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", true, nil
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%4d | %s\n", i, lines[i-1])
	}
	return strings.TrimSuffix(b.String(), "\n"), true, nil
}

// ListMemoryFiles returns MEMORY.md first, then daily and summary files
// newest first.
func (w *Workspace) ListMemoryFiles() ([]MemoryFile, error) {
	var files []MemoryFile

	if info, err := os.Stat(w.configPath(ConfigMemory)); err == nil {
		files = append(files, MemoryFile{
			Name:      MemoryFileName,
			Type:      "longterm",
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
			Preview:   w.previewFile(w.configPath(ConfigMemory)),
		})
	}

	names, err := w.memoryDirFiles()
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		path := filepath.Join(w.MemoryDir(), name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, MemoryFile{
			Name:      name,
			Type:      "daily",
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
			Preview:   w.previewFile(path),
		})
	}
	return files, nil
}

func (w *Workspace) previewFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return Preview(string(data), previewLen)
}

// memoryDirFiles returns the markdown file names under memory/ in
// ascending order.
func (w *Workspace) memoryDirFiles() ([]string, error) {
	entries, err := os.ReadDir(w.MemoryDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RecentDays returns the daily note file names that exist for the last
// n days, today first.
func (w *Workspace) RecentDays(n int) []string {
	var out []string
	now := w.now()
	for i := 0; i < n; i++ {
		day := now.AddDate(0, 0, -i)
		name := day.Format(dateLayout) + ".md"
		if _, err := os.Stat(filepath.Join(w.MemoryDir(), name)); err == nil {
			out = append(out, name)
		}
	}
	return out
}

// Cleanup deletes daily notes dated more than days ago and returns the
// deleted file names. Summaries and other files are left alone.
func (w *Workspace) Cleanup(days int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	names, err := w.memoryDirFiles()
	if err != nil {
		return nil, err
	}
	cutoff := w.now().AddDate(0, 0, -days)

	var deleted []string
	for _, name := range names {
		day, err := time.ParseInLocation(dateLayout, strings.TrimSuffix(name, ".md"), cutoff.Location())
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.MemoryDir(), name)); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	if len(deleted) > 0 {
		w.logger.Info("cleaned up old memory files", "count", len(deleted), "days", days)
	}
	return deleted, nil
}

// CategoryStats counts today's captured entries per category. The
// "total" key holds the sum.
func (w *Workspace) CategoryStats() (map[string]int, error) {
	stats := map[string]int{"total": 0}
	for _, c := range Categories {
		stats[c] = 0
	}

	content, err := w.ReadDaily(w.now())
	if err != nil {
		return nil, err
	}
	for _, c := range Categories {
		re := regexp.MustCompile(`(?i)\[` + c + `\]`)
		n := len(re.FindAllStringIndex(content, -1))
		stats[c] = n
		stats["total"] += n
	}
	return stats, nil
}
