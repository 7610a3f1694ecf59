package agent

import (
	"log/slog"
	"strings"

	"github.com/nugget/helloclaw/internal/prompts"
	"github.com/nugget/helloclaw/internal/workspace"
)

// BuildSystemPrompt assembles the system prompt from the base template
// and the workspace persona files. The name recorded in IDENTITY.md
// wins over fallbackName. Unreadable files are skipped with a warning.
func BuildSystemPrompt(fallbackName string, ws *workspace.Workspace, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	name := fallbackName
	if ws != nil {
		if n := ws.AgentName(); n != "" {
			name = n
		}
	}

	var b strings.Builder
	b.WriteString(prompts.SystemPrompt(name))
	if ws == nil {
		return b.String()
	}

	sections := []struct {
		config  string
		heading string
	}{
		{workspace.ConfigBootstrap, prompts.SectionBootstrap},
		{workspace.ConfigIdentity, prompts.SectionIdentity},
		{workspace.ConfigUser, prompts.SectionUser},
		{workspace.ConfigSoul, prompts.SectionSoul},
		{workspace.ConfigMemory, prompts.SectionMemory},
	}
	for _, s := range sections {
		content, err := ws.LoadConfig(s.config)
		if err != nil {
			logger.Warn("skipping workspace file in system prompt", "config", s.config, "error", err)
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(s.heading)
		b.WriteString("\n")
		b.WriteString(content)
	}
	return b.String()
}
