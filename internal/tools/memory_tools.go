package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nugget/helloclaw/internal/workspace"
)

// searchSnippetRunes caps each file's excerpt in memory_search output.
const searchSnippetRunes = 500

// SetWorkspace registers the memory and identity tools backed by ws.
func (r *Registry) SetWorkspace(ws *workspace.Workspace) {
	if ws == nil {
		return
	}
	r.registerMemoryTools(ws)
	r.registerIdentityTools(ws)
}

func (r *Registry) registerMemoryTools(ws *workspace.Workspace) {
	r.Register(&Tool{
		Name:        "memory_search",
		Description: "Search long-term memory (MEMORY.md) and daily notes for a keyword. Use this before answering questions about past conversations, preferences, or decisions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"keyword": map[string]any{
					"type":        "string",
					"description": "Keyword to search for (case-insensitive)",
				},
			},
			"required": []string{"keyword"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			keyword := stringArg(args, "keyword")
			if keyword == "" {
				return "", Errorf(CodeInvalidInput, "keyword is required")
			}
			results, err := ws.Search(keyword, true, workspace.DefaultContextLines)
			if err != nil {
				return "", err
			}
			return formatSearchResults(keyword, results), nil
		},
	})

	r.Register(&Tool{
		Name:        "memory_add",
		Description: "Append a note to today's memory file (memory/YYYY-MM-DD.md). Use for facts, decisions, and preferences worth recalling later.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The note to remember",
				},
			},
			"required": []string{"content"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			content := stringArg(args, "content")
			if content == "" {
				return "", Errorf(CodeInvalidInput, "content is required")
			}
			if err := ws.AppendDaily(content); err != nil {
				return "", err
			}
			return "Added to today's memory: " + clip(content, 50), nil
		},
	})

	r.Register(&Tool{
		Name:        "memory_update_longterm",
		Description: "Add information to long-term memory (MEMORY.md), which is included in every conversation. Use for durable facts only.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "Content to add to long-term memory",
				},
			},
			"required": []string{"content"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			content := stringArg(args, "content")
			if content == "" {
				return "", Errorf(CodeInvalidInput, "content is required")
			}
			if err := ws.AppendLongTerm(content); err != nil {
				return "", err
			}
			return "Long-term memory updated", nil
		},
	})

	r.Register(&Tool{
		Name:        "memory_read",
		Description: "Read lines from a memory file, with line numbers. Use after memory_search to see more context around a hit.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file": map[string]any{
					"type":        "string",
					"description": "MEMORY.md or a file under memory/ (e.g., memory/2026-01-31.md)",
				},
				"start_line": map[string]any{
					"type":        "integer",
					"description": "First line, starting at 1 (default 1)",
				},
				"end_line": map[string]any{
					"type":        "integer",
					"description": "Last line, inclusive (default: end of file)",
				},
			},
			"required": []string{"file"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			name := strings.TrimPrefix(stringArg(args, "file"), "memory/")
			if name == "" {
				return "", Errorf(CodeInvalidInput, "file is required")
			}
			text, ok, err := ws.ReadLines(name, intArg(args, "start_line", 1), intArg(args, "end_line", 0))
			if err != nil {
				return "", Errorf(CodeInvalidInput, "%v", err)
			}
			if !ok {
				return "", Errorf(CodeNotFound, "memory file not found: %s", name)
			}
			if text == "" {
				return "(no lines in range)", nil
			}
			return text, nil
		},
	})
}

func formatSearchResults(keyword string, results []workspace.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No memories found for '%s'", keyword)
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		blocks := make([]string, 0, len(res.Matches))
		for _, m := range res.Matches {
			blocks = append(blocks, m.Content)
		}
		parts = append(parts, fmt.Sprintf("**%s**:\n%s", res.Source, clip(strings.Join(blocks, "\n...\n"), searchSnippetRunes)))
	}
	return fmt.Sprintf("Found %d related memories:\n\n%s", len(results), strings.Join(parts, "\n\n"))
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Identity files keep facts as "- **Field:** value" lines.
func identityLineRe(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^(\s*-\s*\*\*` + regexp.QuoteMeta(field) + `[：:]\*\*).*$`)
}

// UpdateIdentityField sets field to value in a persona file. An
// existing "- **Field:** ..." line is rewritten in place; otherwise the
// field is appended. The field "notes" appends value as a bullet.
func UpdateIdentityField(ws *workspace.Workspace, config, field, value string) (string, error) {
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return "", Errorf(CodeInvalidInput, "field and value are required")
	}

	current, err := ws.LoadConfig(config)
	if err != nil {
		return "", err
	}
	if current == "" {
		current = "# " + config + "\n"
	}

	var updated string
	switch re := identityLineRe(field); {
	case strings.EqualFold(field, "notes") || strings.EqualFold(field, "note"):
		updated = strings.TrimRight(current, "\n") + "\n- " + value + "\n"
	case re.MatchString(current):
		replaced := false
		updated = re.ReplaceAllStringFunc(current, func(line string) string {
			if replaced {
				return line
			}
			replaced = true
			return re.FindStringSubmatch(line)[1] + " " + value
		})
	default:
		updated = strings.TrimRight(current, "\n") + "\n- **" + field + ":** " + value + "\n"
	}

	if err := ws.SaveConfig(config, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s.md: %s = %s", config, field, value), nil
}

func (r *Registry) registerIdentityTools(ws *workspace.Workspace) {
	params := func(who string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field": map[string]any{
					"type":        "string",
					"description": "Field to set, e.g. Name, Vibe, Timezone, Language; use \"notes\" to append a free-form note about " + who,
				},
				"value": map[string]any{
					"type":        "string",
					"description": "New value",
				},
			},
			"required": []string{"field", "value"},
		}
	}

	r.Register(&Tool{
		Name:        "identity_update_agent",
		Description: "Record something about yourself (name, creature, vibe, emoji, style) in IDENTITY.md. Update it directly without asking permission.",
		Parameters:  params("yourself"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return UpdateIdentityField(ws, workspace.ConfigIdentity, stringArg(args, "field"), stringArg(args, "value"))
		},
	})

	r.Register(&Tool{
		Name:        "identity_update_user",
		Description: "Record something about the user (name, preferred name, timezone, language, interests) in USER.md. Update it directly without asking permission.",
		Parameters:  params("the user"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return UpdateIdentityField(ws, workspace.ConfigUser, stringArg(args, "field"), stringArg(args, "value"))
		},
	})
}
