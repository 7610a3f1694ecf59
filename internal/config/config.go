// Package config handles HelloClaw configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/helloclaw/config.yaml, /etc/helloclaw/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "helloclaw", "config.yaml"))
	}

	paths = append(paths, "/etc/helloclaw/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all HelloClaw configuration.
type Config struct {
	Listen        ListenConfig            `yaml:"listen"`
	LLM           LLMConfig               `yaml:"llm"`
	Agent         AgentConfig             `yaml:"agent"`
	MemoryFlush   MemoryFlushConfig       `yaml:"memory_flush"`
	MemoryCapture MemoryCaptureConfig     `yaml:"memory_capture"`
	Workspace     WorkspaceConfig         `yaml:"workspace"`
	Sessions      SessionsConfig          `yaml:"sessions"`
	Tools         ToolsConfig             `yaml:"tools"`
	Usage         UsageConfig             `yaml:"usage"`
	Pricing       map[string]PricingEntry `yaml:"pricing"`
	LogLevel      string                  `yaml:"log_level"`
	LogFormat     string                  `yaml:"log_format"` // text or json

	modelFromFile bool
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig selects and configures the chat completion providers.
type LLMConfig struct {
	DefaultModel string          `yaml:"default_model"`
	Temperature  float64         `yaml:"temperature"`
	TimeoutSec   int             `yaml:"timeout_sec"` // response-header timeout per call
	OpenAI       OpenAIConfig    `yaml:"openai"`
	Anthropic    AnthropicConfig `yaml:"anthropic"`
	Ollama       OllamaConfig    `yaml:"ollama"`
	Models       []ModelConfig   `yaml:"models"`
}

// Timeout returns the per-call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// OpenAIConfig covers any OpenAI-compatible chat completions endpoint
// (OpenAI, GLM, DeepSeek, vLLM, LM Studio).
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Configured reports whether the endpoint can be used.
func (c OpenAIConfig) Configured() bool { return c.BaseURL != "" }

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is set.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// OllamaConfig defines the Ollama server location.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether an Ollama URL is set.
func (c OllamaConfig) Configured() bool { return c.URL != "" }

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // openai, anthropic, ollama
}

// AgentConfig controls the tool-calling loop.
type AgentConfig struct {
	Name              string `yaml:"name"`
	MaxToolIterations int    `yaml:"max_tool_iterations"`
	// EnableToolCalling is a pointer so an explicit false survives
	// the merge with defaults.
	EnableToolCalling *bool `yaml:"enable_tool_calling"`
	// Timezone is the IANA zone for the time shown to the model.
	Timezone string `yaml:"timezone"`
}

// ToolCallingEnabled reports whether tools are offered to the model.
func (c AgentConfig) ToolCallingEnabled() bool {
	return c.EnableToolCalling == nil || *c.EnableToolCalling
}

// MemoryFlushConfig configures the pre-compaction memory flush.
type MemoryFlushConfig struct {
	Enabled              bool    `yaml:"enabled"`
	ContextWindow        int     `yaml:"context_window"`
	CompressionThreshold float64 `yaml:"compression_threshold"`
	SoftThresholdTokens  int     `yaml:"soft_threshold_tokens"`
	// Tokenizer names the tiktoken encoding used for token estimates.
	// Empty or "heuristic" keeps the built-in approximation.
	Tokenizer string `yaml:"tokenizer"`
}

// MemoryCaptureConfig toggles automatic capture of notable user statements.
type MemoryCaptureConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WorkspaceConfig defines the agent's workspace root. Persona files,
// memory and sessions all live beneath it.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig controls transcript storage.
type SessionsConfig struct {
	// ArchiveOnDelete keeps a zstd-compressed copy of deleted sessions
	// under sessions/archive.
	ArchiveOnDelete bool `yaml:"archive_on_delete"`
}

// ToolsConfig configures the built-in tools that need settings.
type ToolsConfig struct {
	Exec   ExecConfig   `yaml:"exec"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Search SearchConfig `yaml:"search"`
}

// ExecConfig defines the execute_command tool. Disabled by default.
type ExecConfig struct {
	Enabled         bool     `yaml:"enabled"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	MaxOutput       int      `yaml:"max_output"`
	AllowedCommands []string `yaml:"allowed_commands"` // empty = built-in allowlist
	AllowedDirs     []string `yaml:"allowed_dirs"`     // empty = workspace only
}

// FetchConfig defines the web_fetch tool.
type FetchConfig struct {
	Enabled    bool `yaml:"enabled"`
	TimeoutSec int  `yaml:"timeout_sec"`
	MaxChars   int  `yaml:"max_chars"`
}

// SearchConfig defines the web_search tool providers.
type SearchConfig struct {
	Provider string        `yaml:"provider"` // searxng or brave
	SearXNG  SearXNGConfig `yaml:"searxng"`
	Brave    BraveConfig   `yaml:"brave"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// UsageConfig locates the usage ledger database. Empty disables it.
type UsageConfig struct {
	DBPath string `yaml:"db_path"`
}

// PricingEntry is the per-million token price for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file on top of Default(), then
// applies environment fallbacks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	defaultModel := cfg.LLM.DefaultModel
	cfg.LLM.DefaultModel = ""
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.modelFromFile = cfg.LLM.DefaultModel != ""
	if !cfg.modelFromFile {
		cfg.LLM.DefaultModel = defaultModel
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// Default returns a complete working configuration pointing at a local
// Ollama server.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			DefaultModel: "qwen3:8b",
			Temperature:  0.7,
			TimeoutSec:   120,
			Ollama:       OllamaConfig{URL: "http://localhost:11434"},
		},
		Agent: AgentConfig{
			Name:              "HelloClaw",
			MaxToolIterations: 10,
		},
		MemoryFlush: MemoryFlushConfig{
			Enabled:              true,
			ContextWindow:        128000,
			CompressionThreshold: 0.8,
			SoftThresholdTokens:  4000,
			Tokenizer:            "cl100k_base",
		},
		MemoryCapture: MemoryCaptureConfig{Enabled: true},
		Workspace:     WorkspaceConfig{Path: filepath.Join(home, ".helloclaw", "workspace")},
		Tools: ToolsConfig{
			Exec:  ExecConfig{TimeoutSec: 30, MaxOutput: 10000},
			Fetch: FetchConfig{Enabled: true, TimeoutSec: 15, MaxChars: 50000},
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ApplyEnv fills values the config file left unset from the
// environment. Load calls it; callers running on Default() call it
// themselves.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_MODEL_ID"); v != "" && !c.modelFromFile {
		c.LLM.DefaultModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" && c.LLM.OpenAI.APIKey == "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" && c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" && c.Tools.Search.Brave.APIKey == "" {
		c.Tools.Search.Brave.APIKey = v
	}
	if v := os.Getenv("WORKSPACE_PATH"); v != "" {
		c.Workspace.Path = v
	}
	c.Workspace.Path = expandHome(c.Workspace.Path)
	c.Usage.DBPath = expandHome(c.Usage.DBPath)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxToolIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tool_iterations must be >= 1, got %d", c.Agent.MaxToolIterations))
	}
	if t := c.MemoryFlush.CompressionThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("memory_flush.compression_threshold must be in (0, 1], got %v", t))
	}
	if c.MemoryFlush.SoftThresholdTokens < 0 {
		errs = append(errs, fmt.Errorf("memory_flush.soft_threshold_tokens must be >= 0"))
	}
	if c.MemoryFlush.ContextWindow <= 0 {
		errs = append(errs, fmt.Errorf("memory_flush.context_window must be > 0"))
	}
	if tz := c.Agent.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("agent.timezone: %w", err))
		}
	}
	if c.Workspace.Path == "" {
		errs = append(errs, fmt.Errorf("workspace.path is required"))
	}
	for _, m := range c.LLM.Models {
		switch m.Provider {
		case "openai", "anthropic", "ollama":
		default:
			errs = append(errs, fmt.Errorf("llm.models[%s]: unknown provider %q", m.Name, m.Provider))
		}
	}
	switch c.Tools.Search.Provider {
	case "", "searxng", "brave":
	default:
		errs = append(errs, fmt.Errorf("tools.search.provider: unknown provider %q", c.Tools.Search.Provider))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProviderFor returns the provider configured for model, or "" when the
// model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.LLM.Models {
		if m.Name == model {
			return m.Provider
		}
	}
	return ""
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
