// HelloClaw is a personal AI assistant with a file-based workspace.
//
// It keeps its persona, long-term memory and daily notes as markdown
// files, persists each conversation as a JSON session, and exposes
// everything over an HTTP API with streaming chat. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	helloclaw serve              Start the API server
//	helloclaw chat               Interactive chat in the terminal
//	helloclaw ask <question>     Ask a single question
//	helloclaw init [dir]         Write an example config and workspace
//	helloclaw sessions           List saved sessions
//	helloclaw version            Print version and build information
//	helloclaw -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nugget/helloclaw/internal/buildinfo"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the commands
// can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the global flags shared by every command.
type options struct {
	configPath string
	outputFmt  string // text or json
	sessionID  string
}

// run is the real entry point. Global flags come before the command;
// everything after the command name is passed to it untouched.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var opts options
	var help bool

	flagSet := pflag.NewFlagSet("helloclaw", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: auto-discover)")
	flagSet.StringVarP(&opts.outputFmt, "output", "o", "text", "output format: text or json")
	flagSet.StringVarP(&opts.sessionID, "session", "s", "", "session id for chat and ask (default: new session)")
	flagSet.BoolVarP(&help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return printUsage(stdout, flagSet)
		}
		return err
	}
	if help {
		return printUsage(stdout, flagSet)
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return printUsage(stdout, flagSet)
	}
	command, cmdArgs := rest[0], rest[1:]

	switch command {
	case "serve":
		return runServe(ctx, stdout, opts)
	case "chat":
		return runChat(ctx, stdin, stdout, opts)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: helloclaw ask <question>")
		}
		return runAsk(ctx, stdout, stderr, opts, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "sessions":
		return runSessions(stdout, opts)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer, flagSet *pflag.FlagSet) error {
	fmt.Fprintln(w, "HelloClaw - personal AI assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: helloclaw [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  chat             Interactive chat (/new, /clear, /exit)")
	fmt.Fprintln(w, "  ask <question>   Ask a single question")
	fmt.Fprintln(w, "  init [dir]       Write an example config and workspace (default: .)")
	fmt.Fprintln(w, "  sessions         List saved sessions")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/helloclaw/config.yaml, /etc/helloclaw/config.yaml")
	fmt.Fprintln(w, "Without a config file the built-in defaults and environment are used.")
	return nil
}
