package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxReadBytes caps read_file output.
const maxReadBytes = 50 * 1024

// FileTools provides file read/write/edit capabilities within a workspace.
type FileTools struct {
	workspacePath string
}

// NewFileTools creates a new FileTools instance.
// If workspacePath is empty, file tools will be disabled.
func NewFileTools(workspacePath string) *FileTools {
	return &FileTools{workspacePath: workspacePath}
}

// Enabled returns true if file tools are available.
func (ft *FileTools) Enabled() bool {
	return ft.workspacePath != ""
}

// resolvePath converts a path to an absolute path within the workspace.
// Relative paths are taken from the workspace root; absolute paths must
// already point inside it.
func (ft *FileTools) resolvePath(path string) (string, error) {
	if ft.workspacePath == "" {
		return "", Errorf(CodeExecutionError, "workspace not configured")
	}
	if strings.TrimSpace(path) == "" {
		return "", Errorf(CodeInvalidInput, "path is required")
	}

	root, err := filepath.Abs(ft.workspacePath)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", Errorf(CodeAccessDenied, "path escapes workspace: %s", path)
	}
	return absPath, nil
}

// Read reads a file. offset is 1-based; offset and limit select a line
// range and label the output with the range shown.
func (ft *FileTools) Read(_ context.Context, path string, offset, limit int) (string, error) {
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", Errorf(CodeNotFound, "file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	content := string(data)

	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")

		startLine := 0
		if offset > 0 {
			startLine = offset - 1
		}
		if startLine >= len(lines) {
			return "", Errorf(CodeInvalidInput, "offset %d exceeds file length (%d lines)", offset, len(lines))
		}

		endLine := len(lines)
		if limit > 0 && startLine+limit < endLine {
			endLine = startLine + limit
		}

		content = strings.Join(lines[startLine:endLine], "\n")
		if startLine > 0 || endLine < len(lines) {
			content = fmt.Sprintf("[Lines %d-%d of %d]\n%s", startLine+1, endLine, len(lines), content)
		}
	}

	if len(content) > maxReadBytes {
		content = truncateUTF8(content, maxReadBytes) + "\n\n[... truncated, use offset/limit for more ...]"
	}
	if content == "" {
		return "(empty file)", nil
	}
	return content, nil
}

// Write writes content to a file, creating directories as needed.
func (ft *FileTools) Write(_ context.Context, path, content string) error {
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Edit replaces exactly one occurrence of oldText with newText.
func (ft *FileTools) Edit(_ context.Context, path, oldText, newText string) error {
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return err
	}
	if oldText == "" {
		return Errorf(CodeInvalidInput, "old_text is required")
	}

	data, err := os.ReadFile(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Errorf(CodeNotFound, "file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	switch count := strings.Count(content, oldText); {
	case count == 0:
		if len(oldText) > 100 {
			return Errorf(CodeNotFound, "old text not found in file (first 100 chars: %q...)", oldText[:100])
		}
		return Errorf(CodeNotFound, "old text not found in file: %q", oldText)
	case count > 1:
		return Errorf(CodeInvalidInput, "old text appears %d times in file; must be unique for safe editing", count)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(absPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List lists a directory; subdirectories carry a trailing slash.
func (ft *FileTools) List(_ context.Context, path string) ([]string, error) {
	if path == "" {
		path = "."
	}
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Errorf(CodeNotFound, "directory not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}

	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		result = append(result, name)
	}
	return result, nil
}

// SetFileTools registers read_file, write_file, edit_file and
// list_files backed by ft.
func (r *Registry) SetFileTools(ft *FileTools) {
	if ft == nil || !ft.Enabled() {
		return
	}

	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace. Use offset and limit to page through large files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the workspace root (e.g., IDENTITY.md, memory/2026-01-31.md)",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "First line to read, starting at 1",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of lines to read",
				},
			},
			"required": []string{"path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return ft.Read(ctx, stringArg(args, "path"), intArg(args, "offset", 0), intArg(args, "limit", 0))
		},
	})

	r.Register(&Tool{
		Name:        "write_file",
		Description: "Create or overwrite a file in the workspace. Parent directories are created as needed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the workspace root",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Complete file content",
				},
			},
			"required": []string{"path", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			content := rawStringArg(args, "content")
			if err := ft.Write(ctx, path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	})

	r.Register(&Tool{
		Name:        "edit_file",
		Description: "Replace one exact, unique occurrence of old_text with new_text in a workspace file. Read the file first so old_text matches exactly.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the workspace root",
				},
				"old_text": map[string]any{
					"type":        "string",
					"description": "Exact text to replace; must appear exactly once",
				},
				"new_text": map[string]any{
					"type":        "string",
					"description": "Replacement text",
				},
			},
			"required": []string{"path", "old_text", "new_text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			if err := ft.Edit(ctx, path, rawStringArg(args, "old_text"), rawStringArg(args, "new_text")); err != nil {
				return "", err
			}
			return "Edited " + path, nil
		},
	})

	r.Register(&Tool{
		Name:        "list_files",
		Description: "List the files in a workspace directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory relative to the workspace root (default: root)",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			names, err := ft.List(ctx, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	})
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
