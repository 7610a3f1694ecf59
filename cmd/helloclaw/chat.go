package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/nugget/helloclaw/internal/agent"
	"github.com/nugget/helloclaw/internal/session"
)

// styles renders the terminal chat. Colors are dropped automatically
// when the output is not a terminal.
type styles struct {
	prompt lipgloss.Style
	name   lipgloss.Style
	tool   lipgloss.Style
	err    lipgloss.Style
	info   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		prompt: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		name:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		tool:   r.NewStyle().Faint(true),
		err:    r.NewStyle().Foreground(lipgloss.Color("9")),
		info:   r.NewStyle().Faint(true).Italic(true),
	}
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f any) bool {
	file, ok := f.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// runChat handles the "helloclaw chat" subcommand.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so they do not interleave with the conversation.
	a, err := newApp(cfg, newLogger(os.Stderr, cfg))
	if err != nil {
		return err
	}
	defer a.close()

	r := &repl{
		agent:       a.agent,
		out:         stdout,
		styles:      newStyles(stdout),
		sessionID:   opts.sessionID,
		interactive: isTerminal(stdin),
	}
	return r.run(ctx, stdin)
}

// repl is the interactive chat loop. Lines starting with "/" are
// commands; everything else is sent to the agent and streamed back.
type repl struct {
	agent       *agent.Agent
	out         io.Writer
	styles      styles
	sessionID   string
	interactive bool
	// pending is the last turn's stream, which may still be running
	// post-turn housekeeping after agent-finish.
	pending *agent.Stream
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	name := r.agent.Workspace().AgentName()
	if name == "" {
		name = "HelloClaw"
	}
	fmt.Fprintln(r.out, r.styles.info.Render("Chatting with "+name+". Commands: /new, /clear, /exit"))
	defer r.wait()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if r.interactive {
			fmt.Fprint(r.out, r.styles.prompt.Render("you> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := r.command(line)
			if err != nil {
				fmt.Fprintln(r.out, r.styles.err.Render("error: "+err.Error()))
			}
			if done {
				return nil
			}
			continue
		}

		if err := r.send(ctx, name, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(r.out, r.styles.err.Render("error: "+err.Error()))
		}
	}
	return scanner.Err()
}

// command runs a slash command and reports whether the loop should end.
func (r *repl) command(line string) (bool, error) {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		fmt.Fprintln(r.out, r.styles.info.Render("bye"))
		return true, nil
	case "/new":
		id, err := r.agent.CreateSession()
		if err != nil {
			return false, err
		}
		r.sessionID = id
		fmt.Fprintln(r.out, r.styles.info.Render("new session "+id))
	case "/clear":
		if r.sessionID == "" {
			fmt.Fprintln(r.out, r.styles.info.Render("nothing to clear"))
			return false, nil
		}
		if err := r.agent.ClearSession(r.sessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		fmt.Fprintln(r.out, r.styles.info.Render("session cleared"))
	default:
		return false, fmt.Errorf("unknown command %s", line)
	}
	return false, nil
}

// send streams one turn to the terminal.
func (r *repl) send(ctx context.Context, name, message string) error {
	stream, id, err := r.agent.ChatStream(ctx, r.sessionID, message)
	if err != nil {
		return err
	}
	r.pending = stream
	r.sessionID = id

	fmt.Fprint(r.out, r.styles.name.Render(strings.ToLower(name)+"> "))
	for ev := range stream.Events() {
		switch ev.Kind {
		case agent.EventLLMChunk:
			fmt.Fprint(r.out, ev.Chunk)
		case agent.EventToolCallStart:
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, r.styles.tool.Render("  ⚙ "+ev.ToolName+formatArgs(ev.Args)))
		case agent.EventError:
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, r.styles.err.Render("  "+ev.Error))
		case agent.EventAgentFinish:
			fmt.Fprintln(r.out)
			return nil
		}
	}
	return nil
}

// wait blocks until the last turn, including its housekeeping, is done.
func (r *repl) wait() {
	if r.pending != nil {
		r.pending.Result()
		r.pending = nil
	}
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > 80 {
		cut := 77
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return " " + s
}
