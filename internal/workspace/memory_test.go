package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMemory(t *testing.T, w *Workspace, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(w.MemoryDir(), name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAppendDaily(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.AppendDaily("first"); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendDaily("second"); err != nil {
		t.Fatal(err)
	}

	got, err := w.ReadDaily(fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	want := "# 2026-03-14\n\n## 09:26:53\n\nfirst\n\n## 09:26:53\n\nsecond\n"
	if got != want {
		t.Errorf("daily note =\n%q\nwant\n%q", got, want)
	}
}

func TestAppendClassified(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.AppendClassified("likes short answers", CategoryPreference); err != nil {
		t.Fatal(err)
	}
	got, _ := w.ReadDaily(fixedNow)
	want := "# 2026-03-14\n\n## 09:26 - auto capture\n\n- [preference] likes short answers\n"
	if got != want {
		t.Errorf("daily note = %q, want %q", got, want)
	}

	stats, err := w.CategoryStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats[CategoryPreference] != 1 || stats["total"] != 1 || stats[CategoryFact] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestAppendLongTerm(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.SaveConfig(ConfigMemory, "# MEMORY"); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendLongTerm("User lives in Lisbon."); err != nil {
		t.Fatal(err)
	}
	got, _ := w.LoadConfig(ConfigMemory)
	if got != "# MEMORY\n\n## New\n\nUser lives in Lisbon.\n" {
		t.Errorf("MEMORY.md = %q", got)
	}
}

func TestSearch(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.SaveConfig(ConfigMemory, "# MEMORY\n\nLikes Coffee black.\n"); err != nil {
		t.Fatal(err)
	}
	lines := []string{"# 2026-03-13", "a", "b", "coffee one", "c", "d", "e", "f", "g", "h", "coffee two", "i"}
	writeMemory(t, w, "2026-03-13.md", strings.Join(lines, "\n"))
	writeMemory(t, w, "2026-03-12.md", "nothing here\n")

	results, err := w.Search("COFFEE", true, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Source != MemoryFileName {
		t.Errorf("first source = %q, want MEMORY.md", results[0].Source)
	}

	daily := results[1]
	if daily.Source != "memory/2026-03-13.md" {
		t.Errorf("source = %q", daily.Source)
	}
	if len(daily.Matches) != 2 {
		t.Fatalf("matches = %+v, want 2 separate windows", daily.Matches)
	}
	m := daily.Matches[0]
	if m.StartLine != 3 || m.EndLine != 5 {
		t.Errorf("window = %d-%d, want 3-5", m.StartLine, m.EndLine)
	}
	if want := "   3 | b\n   4 | coffee one\n   5 | c"; m.Content != want {
		t.Errorf("content = %q, want %q", m.Content, want)
	}
	if last := daily.Matches[1]; last.StartLine != 10 || last.EndLine != 12 {
		t.Errorf("second window = %d-%d, want 10-12", last.StartLine, last.EndLine)
	}

	longOnly, _ := w.Search("coffee", false, 3)
	if len(longOnly) != 1 {
		t.Errorf("includeDaily=false returned %d results", len(longOnly))
	}
}

func TestSearch_MergesAdjacentWindows(t *testing.T) {
	got := findMatches("x\nhit\ny\nz\nhit\nw", "hit", 1)
	if len(got) != 1 {
		t.Fatalf("matches = %+v, want one merged window", got)
	}
	if got[0].StartLine != 1 || got[0].EndLine != 6 {
		t.Errorf("window = %d-%d, want 1-6", got[0].StartLine, got[0].EndLine)
	}
}

func TestReadLines(t *testing.T) {
	w := newTestWorkspace(t)
	writeMemory(t, w, "2026-03-13.md", "one\ntwo\nthree\nfour\n")

	tests := []struct {
		name       string
		start, end int
		want       string
	}{
		{"range", 2, 3, "   2 | two\n   3 | three"},
		{"to end", 3, 0, "   3 | three\n   4 | four"},
		{"clamped", 0, 99, "   1 | one\n   2 | two\n   3 | three\n   4 | four"},
		{"inverted", 4, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := w.ReadLines("2026-03-13.md", tt.start, tt.end)
			if err != nil || !ok {
				t.Fatalf("ReadLines: ok=%v err=%v", ok, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, ok, err := w.ReadLines("missing.md", 1, 2); ok || err != nil {
		t.Errorf("missing file: ok=%v err=%v", ok, err)
	}
	if _, _, err := w.ReadLines("../USER.md", 1, 2); err == nil {
		t.Error("path escape not rejected")
	}
	if got, ok, _ := w.ReadLines(MemoryFileName, 1, 1); !ok || !strings.Contains(got, "# MEMORY") {
		t.Errorf("MEMORY.md line 1 = %q", got)
	}
}

func TestListMemoryFiles(t *testing.T) {
	w := newTestWorkspace(t)
	writeMemory(t, w, "2026-03-12.md", "# 2026-03-12\n\nold")
	writeMemory(t, w, "2026-03-13.md", "# 2026-03-13\n\nnew")

	files, err := w.ListMemoryFiles()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "MEMORY.md,2026-03-13.md,2026-03-12.md" {
		t.Errorf("order = %s", got)
	}
	if files[0].Type != "longterm" || files[1].Type != "daily" {
		t.Errorf("types = %s, %s", files[0].Type, files[1].Type)
	}
	if files[1].Preview != "new" {
		t.Errorf("preview = %q, want new", files[1].Preview)
	}
}

func TestRecentDaysAndCleanup(t *testing.T) {
	w := newTestWorkspace(t)
	writeMemory(t, w, "2026-03-14.md", "today")
	writeMemory(t, w, "2026-03-12.md", "two days ago")
	writeMemory(t, w, "2026-01-01.md", "ancient")
	writeMemory(t, w, "2026-01-01-trip-planning.md", "summary")
	writeMemory(t, w, "notes.md", "undated")

	if got := w.RecentDays(2); len(got) != 1 || got[0] != "2026-03-14.md" {
		t.Errorf("RecentDays(2) = %v", got)
	}
	if got := w.RecentDays(3); len(got) != 2 {
		t.Errorf("RecentDays(3) = %v", got)
	}

	deleted, err := w.Cleanup(30)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != "2026-01-01.md" {
		t.Errorf("deleted = %v", deleted)
	}
	for _, keep := range []string{"2026-03-12.md", "2026-01-01-trip-planning.md", "notes.md"} {
		if _, err := os.Stat(filepath.Join(w.MemoryDir(), keep)); err != nil {
			t.Errorf("%s removed: %v", keep, err)
		}
	}
}

func TestKeywords(t *testing.T) {
	kw := Keywords("I prefer Dark mode in my editor, 我喜欢 深色主题 的")
	for _, want := range []string{"prefer", "dark", "mode", "editor", "深色主题"} {
		if !kw[want] {
			t.Errorf("missing keyword %q in %v", want, kw)
		}
	}
	for _, skip := range []string{"in", "my", "i", "的"} {
		if kw[skip] {
			t.Errorf("unexpected keyword %q", skip)
		}
	}
}

func TestIsDuplicate(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.AppendClassified("User prefers dark mode in the editor", CategoryPreference); err != nil {
		t.Fatal(err)
	}
	writeMemory(t, w, "2026-03-13.md", "# 2026-03-13\n\n- [entity] phone is 555-0100\n")
	writeMemory(t, w, "2026-03-01.md", "# 2026-03-01\n\n- [fact] allergic to peanuts\n")

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"exact line", "user prefers DARK mode   in the editor", true},
		{"keyword overlap", "prefers dark editor mode", true},
		{"yesterday", "phone is 555-0100", true},
		{"outside window", "allergic to peanuts", false},
		{"new fact", "travels to Kyoto next month", false},
		{"no keywords", "ok", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.IsDuplicate(tt.content, DuplicateThreshold); got != tt.want {
				t.Errorf("IsDuplicate(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestSummaries(t *testing.T) {
	w := newTestWorkspace(t)
	name := w.SummaryFilename("trip-planning")
	if name != "2026-03-14-trip-planning.md" {
		t.Errorf("SummaryFilename = %q", name)
	}
	if err := w.SaveSummary(name, "---\ntype: session-summary\n---\n\n# Trip\n\nKyoto in May."); err != nil {
		t.Fatal(err)
	}
	writeMemory(t, w, "2026-03-14.md", "daily")

	list, err := w.ListSummaries()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("ListSummaries = %+v, want only the summary", list)
	}
	if s := list[0]; s.Date != "2026-03-14" || s.Slug != "trip-planning" {
		t.Errorf("summary = %+v", s)
	}

	content, ok, err := w.LoadSummary(name)
	if err != nil || !ok || !strings.Contains(content, "Kyoto") {
		t.Errorf("LoadSummary = %q, %v, %v", content, ok, err)
	}
	if err := w.SaveSummary("../escape.md", "x"); err == nil {
		t.Error("SaveSummary accepted a path outside memory/")
	}
}
