package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ConfigSettings is the config name under which settings.json is
// exposed next to the markdown files.
const ConfigSettings = "CONFIG"

const settingsFile = "settings.json"

// ErrInvalidSettings is returned when settings.json content is not a
// JSON object.
var ErrInvalidSettings = errors.New("invalid settings")

func (w *Workspace) settingsPath() string {
	return filepath.Join(w.root, settingsFile)
}

// LoadSettings returns the raw settings.json text, comments included.
func (w *Workspace) LoadSettings() (string, error) {
	data, err := os.ReadFile(w.settingsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

// SaveSettings validates and writes settings.json. Comments and
// trailing commas are allowed; the content must otherwise be a JSON
// object.
func (w *Workspace) SaveSettings(content string) error {
	if _, err := parseSettings([]byte(content)); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return writeFileAtomic(w.settingsPath(), []byte(content))
}

// Settings returns settings.json decoded into a map. A missing file
// yields an empty map.
func (w *Workspace) Settings() (map[string]any, error) {
	data, err := os.ReadFile(w.settingsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return parseSettings(data)
}

// OnboardingCompleted reports the onboarding_completed flag from
// settings.json.
func (w *Workspace) OnboardingCompleted() bool {
	s, err := w.Settings()
	if err != nil {
		return false
	}
	done, _ := s["onboarding_completed"].(bool)
	return done
}

func parseSettings(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidSettings)
	}
	return out, nil
}
