package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/helloclaw/internal/agent"
	"github.com/nugget/helloclaw/internal/config"
	"github.com/nugget/helloclaw/internal/events"
	"github.com/nugget/helloclaw/internal/fetch"
	"github.com/nugget/helloclaw/internal/llm"
	"github.com/nugget/helloclaw/internal/memory"
	"github.com/nugget/helloclaw/internal/search"
	"github.com/nugget/helloclaw/internal/session"
	"github.com/nugget/helloclaw/internal/summarizer"
	"github.com/nugget/helloclaw/internal/tools"
	"github.com/nugget/helloclaw/internal/usage"
	"github.com/nugget/helloclaw/internal/workspace"
)

// app holds the wired components shared by serve, chat and ask.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	ws         *workspace.Workspace
	sessions   *session.Store
	usage      *usage.Store
	bus        *events.Bus
	agent      *agent.Agent
	summarizer *summarizer.Summarizer
	// providers holds the configured model clients by provider name.
	providers map[string]llm.Client
}

// loadConfig locates and parses the YAML configuration file. An
// explicit path must exist; otherwise [config.FindConfig] searches the
// default locations and, when none exists, the built-in defaults with
// environment overrides are used. Returns the config and the path that
// was loaded ("" for defaults).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg, "", cfg.Validate()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the configured logger writing to w.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	// Validate has already rejected unknown levels.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// newApp wires the workspace, stores, tools, model client and agent
// from cfg. Callers must call close.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, bus: events.New()}

	a.ws = workspace.New(cfg.Workspace.Path, logger)
	if err := a.ws.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare workspace %s: %w", cfg.Workspace.Path, err)
	}

	var err error
	a.sessions, err = session.NewStore(a.ws.SessionsDir(), cfg.Sessions.ArchiveOnDelete, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.sessions.SetEventBus(a.bus)

	if cfg.Usage.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Usage.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create usage directory: %w", err)
		}
		a.usage, err = usage.NewStore(cfg.Usage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open usage database %s: %w", cfg.Usage.DBPath, err)
		}
		logger.Info("usage database opened", "path", cfg.Usage.DBPath)
	}

	if enc := cfg.MemoryFlush.Tokenizer; enc != "" && enc != "heuristic" {
		// The first load may download BPE ranks; estimates use the
		// heuristic until it lands.
		go func() {
			if err := memory.LoadEncoding(enc); err != nil {
				logger.Warn("tokenizer unavailable, using heuristic estimates", "tokenizer", enc, "error", err)
				return
			}
			logger.Debug("tokenizer loaded", "tokenizer", enc)
		}()
	}

	client, providers := createLLMClient(cfg, logger)
	a.providers = providers
	registry, err := createTools(cfg, a.ws, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	loop := agent.NewLoop(client, registry, agent.LoopConfig{
		Model:             cfg.LLM.DefaultModel,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		EnableToolCalling: cfg.Agent.ToolCallingEnabled(),
		Temperature:       cfg.LLM.Temperature,
	}, logger)

	a.agent = agent.New(loop, a.sessions, a.ws, agent.Config{
		Name: cfg.Agent.Name,
		Flush: memory.FlushConfig{
			Enabled:              cfg.MemoryFlush.Enabled,
			ContextWindow:        cfg.MemoryFlush.ContextWindow,
			CompressionThreshold: cfg.MemoryFlush.CompressionThreshold,
			SoftThresholdTokens:  cfg.MemoryFlush.SoftThresholdTokens,
		},
		Capture:  cfg.MemoryCapture.Enabled,
		Timezone: cfg.Agent.Timezone,
	}, logger)
	a.agent.SetEventBus(a.bus)

	a.summarizer = summarizer.New(a.ws, client, logger, summarizer.Config{
		Model:   cfg.LLM.DefaultModel,
		Timeout: cfg.LLM.Timeout(),
	})

	if a.usage != nil {
		loop.SetUsageRecorder(a.usage, cfg.Pricing, cfg.ProviderFor)
		a.summarizer.SetUsageRecorder(a.usage, cfg.Pricing, cfg.ProviderFor)
	}
	return a, nil
}

func (a *app) close() {
	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			a.logger.Warn("failed to close usage database", "error", err)
		}
	}
}

// createLLMClient builds a multi-provider client. Each model listed in
// config is routed to its provider; everything else goes to the
// default model's provider, then OpenAI-compatible, then Ollama. The
// individual provider clients are returned for health probing.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, map[string]llm.Client) {
	timeout := cfg.LLM.Timeout()
	providers := make(map[string]llm.Client)

	if cfg.LLM.Ollama.Configured() {
		providers["ollama"] = llm.NewOllamaClient(cfg.LLM.Ollama.URL, timeout, logger)
	}
	if cfg.LLM.OpenAI.Configured() {
		providers["openai"] = llm.NewOpenAIClient(cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.APIKey, timeout, logger)
		logger.Info("OpenAI-compatible provider configured", "base_url", cfg.LLM.OpenAI.BaseURL)
	}
	if cfg.LLM.Anthropic.Configured() {
		providers["anthropic"] = llm.NewAnthropicClient(cfg.LLM.Anthropic.APIKey, timeout, logger)
		logger.Info("Anthropic provider configured")
	}

	defaultProvider := cfg.ProviderFor(cfg.LLM.DefaultModel)
	if _, ok := providers[defaultProvider]; !ok {
		defaultProvider = ""
		for _, name := range []string{"openai", "ollama", "anthropic"} {
			if _, ok := providers[name]; ok {
				defaultProvider = name
				break
			}
		}
	}

	multi := llm.NewMultiClient(providers[defaultProvider])
	for name, c := range providers {
		multi.AddProvider(name, c)
	}
	for _, m := range cfg.LLM.Models {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("LLM client initialized", "default_model", cfg.LLM.DefaultModel, "default_provider", defaultProvider)
	return multi, providers
}

// createTools registers the built-in tools enabled by cfg.
func createTools(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger)
	registry.SetCalculator()
	registry.SetWorkspace(ws)
	registry.SetFileTools(tools.NewFileTools(ws.Root()))

	if ec := cfg.Tools.Exec; ec.Enabled {
		shell, err := tools.NewShellExec(tools.ShellExecConfig{
			Enabled:        true,
			WorkingDir:     ws.Root(),
			AllowedCmds:    ec.AllowedCommands,
			AllowedDirs:    append([]string{ws.Root()}, ec.AllowedDirs...),
			DefaultTimeout: time.Duration(ec.TimeoutSec) * time.Second,
			MaxOutputChars: ec.MaxOutput,
		})
		if err != nil {
			return nil, fmt.Errorf("configure execute_command: %w", err)
		}
		registry.SetShellExec(shell)
	}

	if fc := cfg.Tools.Fetch; fc.Enabled {
		registry.SetFetcher(fetch.New(
			fetch.WithTimeout(time.Duration(fc.TimeoutSec)*time.Second),
			fetch.WithMaxChars(fc.MaxChars),
		))
	}

	if sc := cfg.Tools.Search; sc.Provider != "" {
		mgr := search.NewManager(sc.Provider)
		if sc.SearXNG.URL != "" {
			mgr.Register(search.NewSearXNG(sc.SearXNG.URL))
		}
		if sc.Brave.APIKey != "" {
			mgr.Register(search.NewBrave(sc.Brave.APIKey))
		}
		registry.SetSearch(mgr)
	}

	logger.Debug("tools registered", "tools", registry.Names())
	return registry, nil
}
