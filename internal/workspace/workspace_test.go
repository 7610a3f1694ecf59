package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w := New(filepath.Join(t.TempDir(), "ws"), nil)
	w.now = func() time.Time { return fixedNow }
	if err := w.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return w
}

func TestEnsure_FreshWorkspace(t *testing.T) {
	w := newTestWorkspace(t)

	got := w.ListConfigs()
	if len(got) != len(configNames) {
		t.Fatalf("ListConfigs = %v, want all %d configs", got, len(configNames))
	}
	for _, dir := range []string{w.MemoryDir(), w.SessionsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}

	bootstrap, err := w.LoadConfig(ConfigBootstrap)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(bootstrap, "2026-03-14") {
		t.Errorf("bootstrap template date not substituted:\n%s", bootstrap)
	}
	if strings.Contains(bootstrap, "{date}") {
		t.Error("placeholder left in bootstrap")
	}
	if w.IdentityEstablished() {
		t.Error("template identity should not count as established")
	}
}

func TestEnsure_ExistingWorkspaceSkipsBootstrap(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)
	if err := w.Ensure(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "BOOTSTRAP.md")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("BOOTSTRAP.md written into existing dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "SOUL.md")); err != nil {
		t.Errorf("SOUL.md missing: %v", err)
	}
}

func TestEnsure_KeepsExistingFiles(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.SaveConfig(ConfigSoul, "custom soul"); err != nil {
		t.Fatal(err)
	}
	if err := w.Ensure(); err != nil {
		t.Fatal(err)
	}
	got, _ := w.LoadConfig(ConfigSoul)
	if got != "custom soul" {
		t.Errorf("SOUL = %q, want untouched", got)
	}
}

func TestSaveIdentity_RemovesBootstrap(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		removed  bool
	}{
		{"placeholder", "- **Name:** _(pick a name)_\n", false},
		{"empty", "- **Name:**\n- **Vibe:** calm\n", false},
		{"chinese placeholder", "- **名称：** （选一个名字）\n", false},
		{"real name", "- **Name:** Pip\n", true},
		{"chinese name", "- **名称：** 小爪\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorkspace(t)
			if err := w.SaveConfig(ConfigIdentity, "# IDENTITY\n\n"+tt.identity); err != nil {
				t.Fatal(err)
			}
			_, err := os.Stat(w.configPath(ConfigBootstrap))
			gone := errors.Is(err, os.ErrNotExist)
			if gone != tt.removed {
				t.Errorf("bootstrap removed = %v, want %v", gone, tt.removed)
			}
		})
	}
}

func TestUnknownConfig(t *testing.T) {
	w := newTestWorkspace(t)
	if _, err := w.LoadConfig("../etc/passwd"); !errors.Is(err, ErrUnknownConfig) {
		t.Errorf("LoadConfig err = %v, want ErrUnknownConfig", err)
	}
	if err := w.SaveConfig("NOPE", "x"); !errors.Is(err, ErrUnknownConfig) {
		t.Errorf("SaveConfig err = %v, want ErrUnknownConfig", err)
	}
}

func TestListConfigs_OnlyExisting(t *testing.T) {
	w := newTestWorkspace(t)
	if err := os.Remove(w.configPath(ConfigHeartbeat)); err != nil {
		t.Fatal(err)
	}
	for _, name := range w.ListConfigs() {
		if name == ConfigHeartbeat {
			t.Error("deleted HEARTBEAT still listed")
		}
	}
	got, err := w.LoadConfig(ConfigHeartbeat)
	if err != nil || got != "" {
		t.Errorf("LoadConfig missing = %q, %v; want empty, nil", got, err)
	}
}

func TestReset(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.SaveConfig(ConfigUser, "edited"); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendDaily("note"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(w.SessionsDir(), "abc.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.Reset(true, true); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	user, _ := w.LoadConfig(ConfigUser)
	if user == "edited" {
		t.Error("USER not reset")
	}
	if files, _ := w.memoryDirFiles(); len(files) != 0 {
		t.Errorf("memory files left: %v", files)
	}
	if _, err := os.Stat(filepath.Join(w.SessionsDir(), "abc.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("session file not cleared")
	}
	if _, err := os.Stat(w.configPath(ConfigBootstrap)); err != nil {
		t.Error("reset should restore BOOTSTRAP.md")
	}
}

func TestSettings(t *testing.T) {
	w := newTestWorkspace(t)

	s, err := w.Settings()
	if err != nil {
		t.Fatalf("template settings: %v", err)
	}
	if _, ok := s["agent"]; !ok {
		t.Errorf("settings = %v, want agent section", s)
	}
	if w.OnboardingCompleted() {
		t.Error("template onboarding_completed should be false")
	}

	if err := w.SaveSettings("{\n  // done\n  \"onboarding_completed\": true,\n}"); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if !w.OnboardingCompleted() {
		t.Error("onboarding_completed not saved")
	}

	for _, bad := range []string{"{", "[1,2]", "null"} {
		if err := w.SaveSettings(bad); err == nil {
			t.Errorf("SaveSettings(%q) accepted invalid settings", bad)
		}
	}
	raw, _ := w.LoadSettings()
	if !strings.Contains(raw, "// done") {
		t.Errorf("invalid save overwrote settings: %q", raw)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		src  string
		n    int
		want string
	}{
		{"heading skipped", "# 2026-03-14\n\n## 09:00:00\n\nBought **oat** milk.\n", 0, "Bought oat milk."},
		{"list", "- [fact] one\n- two `code`\n", 0, "[fact] one two code"},
		{"truncate", "abcdefghij", 4, "abcd…"},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.src, tt.n); got != tt.want {
				t.Errorf("Preview = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	got, err := RenderHTML("# Hi\n\n**bold**")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<h1>Hi</h1>") || !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("RenderHTML = %q", got)
	}
}

func TestAgentName(t *testing.T) {
	w := newTestWorkspace(t)
	if got := w.AgentName(); got != "" {
		t.Errorf("template AgentName = %q, want empty", got)
	}
	if err := w.SaveConfig(ConfigIdentity, "- **Name:**   Pip  \n- **Vibe:** calm\n"); err != nil {
		t.Fatal(err)
	}
	if got := w.AgentName(); got != "Pip" {
		t.Errorf("AgentName = %q, want Pip", got)
	}
	if !w.IdentityEstablished() {
		t.Error("IdentityEstablished = false with a real name")
	}
}
