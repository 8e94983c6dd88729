// Package config handles Verity configuration loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/verity/config.yaml, /etc/verity/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "verity", "config.yaml"))
	}

	paths = append(paths, "/etc/verity/config.yaml")
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

// Config holds all Verity configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	LLM       LLMConfig      `yaml:"llm"`
	Agent     AgentConfig    `yaml:"agent"`
	Search    SearchConfig   `yaml:"search"`
	Sessions  SessionsConfig `yaml:"sessions"`
	Database  DatabaseConfig `yaml:"database"`
	Email     EmailConfig    `yaml:"email"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the chat API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig selects the completion provider used by the agent loop and
// the digest summarizer.
type LLMConfig struct {
	// Provider is one of openai, ollama, anthropic, gemini.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible
	// gateways, remote Ollama hosts).
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AgentConfig tunes the ReAct loop.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	// SystemPromptFile replaces the built-in system prompt. The file
	// may contain {{tools}} and {{verification}} placeholders.
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// SearchConfig configures the web search fallback chain.
type SearchConfig struct {
	// Provider is the primary backend: serpapi, brave or searxng.
	// Empty means no provider is configured.
	Provider string        `yaml:"provider"`
	SerpAPI  SerpAPIConfig `yaml:"serpapi"`
	Brave    BraveConfig   `yaml:"brave"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
	Timeout  time.Duration `yaml:"timeout"`
	// MaxVariants bounds how many reformulations are tried per query.
	MaxVariants int `yaml:"max_variants"`
	// OnExhausted is "strict" (report no results) or "knowledge_base"
	// (answer from the built-in fact table).
	OnExhausted string `yaml:"on_exhausted"`
}

// SerpAPIConfig holds SerpAPI credentials.
type SerpAPIConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Engine   string `yaml:"engine"`
}

// BraveConfig holds Brave Search credentials.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// SessionsConfig controls the conversation cache idle sweep.
type SessionsConfig struct {
	// IdleAfter is how long a session must be silent before it is
	// summarized and evicted.
	IdleAfter time.Duration `yaml:"idle_after"`
	// Interval is the sweep period.
	Interval       time.Duration `yaml:"interval"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`
	SummaryModel   string        `yaml:"summary_model"`
	// ShutdownGrace bounds how long an interrupted sweep keeps
	// delivering digests for chats it already took from the cache.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DatabaseConfig locates the SQLite session store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmailConfig defines the SMTP account used to deliver session digests.
type EmailConfig struct {
	From     string `yaml:"from"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
}

// Configured reports whether digest email delivery is possible.
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// MQTTConfig defines the optional broker that receives session digests.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	// PublishInterval is the period of the runtime status updates
	// (active sessions, tokens today, uptime).
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// Configured reports whether a broker URL is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file. A .env file next to the
// config (or in the working directory) is loaded first so that
// ${VAR} references resolve against it. Variables already present in
// the environment win over .env entries.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  2 * time.Minute,
		},
		Agent: AgentConfig{MaxIterations: 10},
		Search: SearchConfig{
			Timeout:     10 * time.Second,
			MaxVariants: 4,
			OnExhausted: "strict",
		},
		Sessions: SessionsConfig{
			IdleAfter:      5 * time.Minute,
			Interval:       time.Minute,
			SummaryTimeout: time.Minute,
			ShutdownGrace:  15 * time.Second,
		},
		Database: DatabaseConfig{Path: "verity.db"},
	}
}

// applyDefaults fills zero values that YAML may have cleared.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Listen.Port == 0 {
		c.Listen.Port = d.Listen.Port
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = d.Agent.MaxIterations
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = d.Search.Timeout
	}
	if c.Search.MaxVariants <= 0 {
		c.Search.MaxVariants = d.Search.MaxVariants
	}
	if c.Search.OnExhausted == "" {
		c.Search.OnExhausted = d.Search.OnExhausted
	}
	if c.Search.Provider == "" && c.Search.SerpAPI.APIKey != "" {
		c.Search.Provider = "serpapi"
	}
	if c.Sessions.IdleAfter <= 0 {
		c.Sessions.IdleAfter = d.Sessions.IdleAfter
	}
	if c.Sessions.Interval <= 0 {
		c.Sessions.Interval = d.Sessions.Interval
	}
	if c.Sessions.SummaryTimeout <= 0 {
		c.Sessions.SummaryTimeout = d.Sessions.SummaryTimeout
	}
	if c.Sessions.ShutdownGrace <= 0 {
		c.Sessions.ShutdownGrace = d.Sessions.ShutdownGrace
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Email.Host != "" {
		if c.Email.Port == 0 {
			c.Email.Port = 587
		}
		if !c.Email.StartTLS && c.Email.Port != 465 {
			c.Email.StartTLS = true
		}
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "verity"
	}
	if c.MQTT.PublishInterval <= 0 {
		c.MQTT.PublishInterval = time.Minute
	}
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "ollama", "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.provider %q is not supported (openai, ollama, anthropic, gemini)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	switch c.Search.Provider {
	case "":
	case "serpapi":
		if c.Search.SerpAPI.APIKey == "" {
			return fmt.Errorf("search.serpapi.api_key is required for provider serpapi")
		}
	case "brave":
		if c.Search.Brave.APIKey == "" {
			return fmt.Errorf("search.brave.api_key is required for provider brave")
		}
	case "searxng":
		if c.Search.SearXNG.URL == "" {
			return fmt.Errorf("search.searxng.url is required for provider searxng")
		}
	default:
		return fmt.Errorf("search.provider %q is not supported (serpapi, brave, searxng)", c.Search.Provider)
	}
	switch c.Search.OnExhausted {
	case "strict", "knowledge_base":
	default:
		return fmt.Errorf("search.on_exhausted %q must be strict or knowledge_base", c.Search.OnExhausted)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.Email.Host != "" && c.Email.From == "" {
		return fmt.Errorf("email.from is required when email.host is set")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q must be text or json", c.LogFormat)
	}
	return nil
}
