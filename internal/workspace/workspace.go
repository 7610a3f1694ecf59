// Package workspace manages the agent's markdown workspace: persona
// configuration files (IDENTITY, SOUL, USER, ...), daily and long-term
// memory notes, and session summaries. Everything is plain files so a
// human can read and edit them alongside the agent.
package workspace

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

//go:embed templates
var templateFS embed.FS

// Config file names. Each is stored as {name}.md at the workspace root.
const (
	ConfigBootstrap = "BOOTSTRAP"
	ConfigIdentity  = "IDENTITY"
	ConfigSoul      = "SOUL"
	ConfigUser      = "USER"
	ConfigMemory    = "MEMORY"
	ConfigAgents    = "AGENTS"
	ConfigHeartbeat = "HEARTBEAT"
)

// configNames lists the markdown config files in display order.
var configNames = []string{
	ConfigBootstrap,
	ConfigIdentity,
	ConfigSoul,
	ConfigUser,
	ConfigMemory,
	ConfigAgents,
	ConfigHeartbeat,
}

// ErrUnknownConfig is returned for a config name outside the known set.
var ErrUnknownConfig = errors.New("unknown config")

// identityNameRe finds the agent's name field in IDENTITY.md. Both the
// English and the original Chinese field labels are accepted.
var identityNameRe = regexp.MustCompile(`\*\*(?:Name|名称)[：:]\*\*[ \t]*(.*)`)

// Workspace is a directory holding the agent's persona files, memory and
// sessions. Methods are safe for concurrent use; writes to the same
// workspace are serialized.
type Workspace struct {
	root   string
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New returns a Workspace rooted at path. It does not touch the disk;
// call [Workspace.Ensure] to create the layout.
func New(path string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		root:   path,
		logger: logger.With("component", "workspace"),
		now:    time.Now,
	}
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// MemoryDir returns the directory holding daily notes and summaries.
func (w *Workspace) MemoryDir() string { return filepath.Join(w.root, "memory") }

// SessionsDir returns the directory holding session transcripts.
func (w *Workspace) SessionsDir() string { return filepath.Join(w.root, "sessions") }

// ConfigNames returns the known config names.
func ConfigNames() []string {
	return append([]string(nil), configNames...)
}

// Ensure creates the workspace layout and writes a template for every
// missing config file. BOOTSTRAP.md is only written into a brand-new
// workspace, and is removed once IDENTITY.md names the agent.
func (w *Workspace) Ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := false
	if _, err := os.Stat(w.root); errors.Is(err, fs.ErrNotExist) {
		fresh = true
	}

	for _, dir := range []string{w.root, w.MemoryDir(), w.SessionsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	for _, name := range configNames {
		if name == ConfigBootstrap && !fresh {
			continue
		}
		path := w.configPath(name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(w.template(name)), 0o644); err != nil {
			return fmt.Errorf("write %s template: %w", name, err)
		}
		w.logger.Debug("wrote config template", "name", name)
	}

	if _, err := os.Stat(w.settingsPath()); errors.Is(err, fs.ErrNotExist) {
		data, _ := templateFS.ReadFile("templates/settings.json")
		if err := os.WriteFile(w.settingsPath(), data, 0o644); err != nil {
			return fmt.Errorf("write settings template: %w", err)
		}
	}

	w.checkBootstrapLocked()
	return nil
}

// template returns the embedded template for name with {date}
// substituted, or a minimal placeholder if none is embedded.
func (w *Workspace) template(name string) string {
	data, err := templateFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		return fmt.Sprintf("# %s\n\n(to be configured)\n", name)
	}
	return strings.ReplaceAll(string(data), "{date}", w.now().Format(dateLayout))
}

func (w *Workspace) configPath(name string) string {
	return filepath.Join(w.root, name+".md")
}

func validConfig(name string) bool {
	for _, n := range configNames {
		if n == name {
			return true
		}
	}
	return false
}

// LoadConfig returns the content of a config file. A missing file
// returns "" with a nil error.
func (w *Workspace) LoadConfig(name string) (string, error) {
	if !validConfig(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownConfig, name)
	}
	data, err := os.ReadFile(w.configPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveConfig overwrites a config file. Saving IDENTITY re-checks
// whether BOOTSTRAP.md is still needed.
func (w *Workspace) SaveConfig(name, content string) error {
	if !validConfig(name) {
		return fmt.Errorf("%w: %s", ErrUnknownConfig, name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := writeFileAtomic(w.configPath(name), []byte(content)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if name == ConfigIdentity {
		w.checkBootstrapLocked()
	}
	return nil
}

// ListConfigs returns the names of config files that exist on disk.
func (w *Workspace) ListConfigs() []string {
	var out []string
	for _, name := range configNames {
		if _, err := os.Stat(w.configPath(name)); err == nil {
			out = append(out, name)
		}
	}
	return out
}

// IdentityEstablished reports whether IDENTITY.md carries a real agent
// name rather than the template placeholder.
func (w *Workspace) IdentityEstablished() bool {
	return w.AgentName() != ""
}

// AgentName returns the name recorded in IDENTITY.md, or "" while the
// file still holds the template placeholder.
func (w *Workspace) AgentName() string {
	data, err := os.ReadFile(w.configPath(ConfigIdentity))
	if err != nil {
		return ""
	}
	m := identityNameRe.FindStringSubmatch(string(data))
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if name == "" || strings.HasPrefix(name, "_") {
		return ""
	}
	if strings.Contains(name, "选一个") || strings.Contains(name, "（") {
		return ""
	}
	return name
}

func (w *Workspace) checkBootstrapLocked() {
	path := w.configPath(ConfigBootstrap)
	if _, err := os.Stat(path); err != nil {
		return
	}
	if !w.IdentityEstablished() {
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove bootstrap file", "error", err)
		return
	}
	w.logger.Info("identity established, bootstrap removed")
}

// Reset rewrites every config file from its template. With sessions or
// memory set it also empties those directories.
func (w *Workspace) Reset(sessions, memory bool) error {
	w.mu.Lock()
	for _, name := range configNames {
		if name == ConfigBootstrap {
			continue
		}
		if err := os.WriteFile(w.configPath(name), []byte(w.template(name)), 0o644); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	if err := os.WriteFile(w.configPath(ConfigBootstrap), []byte(w.template(ConfigBootstrap)), 0o644); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("reset bootstrap: %w", err)
	}
	w.mu.Unlock()

	if sessions {
		if err := clearDir(w.SessionsDir(), ".json"); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
	}
	if memory {
		if err := clearDir(w.MemoryDir(), ".md"); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
	}
	return nil
}

func clearDir(dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
