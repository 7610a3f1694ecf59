package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/helloclaw/internal/agent"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/workspace"
)

// runAsk handles "helloclaw ask <question>". It runs one blocking turn
// and prints the answer; with --session the turn continues that session.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newLogger(stderr, cfg))
	if err != nil {
		return err
	}
	defer a.close()

	return ask(ctx, stdout, a.agent, opts, strings.Join(args, " "))
}

func ask(ctx context.Context, w io.Writer, ag *agent.Agent, opts options, question string) error {
	res, err := ag.Chat(ctx, opts.sessionID, strings.TrimSpace(question))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if opts.outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(w, res.Content)
	return nil
}

// runSessions handles "helloclaw sessions". It reads the session
// directory directly and needs no model.
func runSessions(stdout io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	ws := workspace.New(cfg.Workspace.Path, newLogger(io.Discard, cfg))
	store, err := session.NewStore(ws.SessionsDir(), false, nil)
	if err != nil {
		return err
	}
	infos, err := store.List()
	if err != nil {
		return err
	}
	return printSessions(stdout, infos, opts.outputFmt)
}

func printSessions(w io.Writer, infos []session.Info, outputFmt string) error {
	if outputFmt == "json" {
		if infos == nil {
			infos = []session.Info{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}

	header := lipgloss.NewRenderer(w).NewStyle().Bold(true)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header.Render("ID")+"\t"+header.Render("UPDATED")+"\t"+header.Render("MESSAGES")+"\t"+header.Render("PREVIEW"))
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			info.ID,
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
			info.MessageCount,
			info.Preview,
		)
	}
	return tw.Flush()
}
