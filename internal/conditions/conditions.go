// Package conditions renders the "Current Conditions" section of the
// system prompt: the wall clock, the host, the running build and how
// full the conversation's context is. It is rebuilt for every turn.
package conditions

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/nugget/helloclaw/internal/buildinfo"
)

// Context describes the conversation the prompt is built for. Zero
// fields are omitted from the rendered line.
type Context struct {
	// Model is the model the turn will be sent to.
	Model string
	// TokenCount is the estimated size of the prompt and history.
	TokenCount int
	// ContextWindow is the model's context window in tokens.
	ContextWindow int
	// MessageCount is the number of history messages sent.
	MessageCount int
	// SessionStart is when the session was created.
	SessionStart time.Time
	// Dropped is the number of old messages left out by compaction.
	Dropped int
}

// Current returns a formatted "# Current Conditions" section. timezone
// is an IANA name (e.g. "America/Chicago"); when empty or invalid the
// local zone is used.
func Current(now time.Time, timezone string, c Context) string {
	var sb strings.Builder
	sb.WriteString("# Current Conditions\n\n")

	loc := now.Location()
	resolved := false
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
			resolved = true
		}
	}
	now = now.In(loc)
	zone, _ := now.Zone()

	// Saturday, February 14, 2026 at 15:45 CST (America/Chicago)
	sb.WriteString("**Time:** ")
	sb.WriteString(now.Format("Monday, January 2, 2006 at 15:04 "))
	sb.WriteString(zone)
	if resolved && timezone != zone {
		sb.WriteString(" (" + timezone + ")")
	}
	sb.WriteString("\n")

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	fmt.Fprintf(&sb, "**Host:** %s (%s/%s, %s)\n", hostname, runtime.GOOS, runtime.GOARCH, detectEnvironment())
	fmt.Fprintf(&sb, "**HelloClaw:** %s (%s)\n", buildinfo.Version, buildinfo.GitCommit)
	fmt.Fprintf(&sb, "**Uptime:** %s", formatDuration(buildinfo.Uptime()))

	if line := formatContext(now, c); line != "" {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// formatContext renders the single context usage line, or "" when c
// carries nothing to report.
func formatContext(now time.Time, c Context) string {
	var parts []string
	if c.Model != "" {
		parts = append(parts, c.Model)
	}
	if c.ContextWindow > 0 {
		pct := float64(c.TokenCount) / float64(c.ContextWindow) * 100
		parts = append(parts, fmt.Sprintf("%s/%s tokens (%.1f%%)",
			formatNumber(c.TokenCount), formatNumber(c.ContextWindow), pct))
	}
	if c.MessageCount > 0 {
		parts = append(parts, fmt.Sprintf("%d msgs", c.MessageCount))
	}
	if !c.SessionStart.IsZero() && now.After(c.SessionStart) {
		parts = append(parts, "session "+formatDuration(now.Sub(c.SessionStart)))
	}
	if c.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("%d older msgs compacted", c.Dropped))
	}
	if len(parts) == 0 {
		return ""
	}
	return "**Context:** " + strings.Join(parts, " | ")
}

// detectEnvironment returns "container" or "bare metal".
func detectEnvironment() string {
	if runtime.GOOS != "linux" {
		return "bare metal"
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "container"
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") ||
			strings.Contains(content, "lxc") ||
			strings.Contains(content, "kubepods") {
			return "container"
		}
	}
	if os.Getenv("container") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "container"
	}
	return "bare metal"
}

// formatDuration formats d as a short uptime: "30s", "45m", "4h 23m",
// "2d 5h".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// formatNumber adds thousands separators: 200000 -> "200,000".
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		sb.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
