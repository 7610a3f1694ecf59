package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nugget/helloclaw/examples"
	"github.com/nugget/helloclaw/internal/workspace"
)

// runInit writes an example config.yaml into dir and creates the
// workspace it points at (dir/workspace) with the persona templates.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing HelloClaw in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The config may carry API keys.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(w, configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}

	wsPath := filepath.Join(dir, "workspace")
	ws := workspace.New(wsPath, nil)
	if err := ws.Ensure(); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", wsPath)
	for _, name := range ws.ListConfigs() {
		fmt.Fprintf(w, "    %s.md\n", name)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to choose a model, then run: helloclaw serve")
	return nil
}

// writeIfMissing creates path with content and mode unless it already
// exists, reporting either outcome to w.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		fmt.Fprintf(w, "  - %s (exists, skipping)\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
