package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nugget/verity/internal/agent"
	"github.com/nugget/verity/internal/config"
	"github.com/nugget/verity/internal/conversation"
	"github.com/nugget/verity/internal/llm"
	"github.com/nugget/verity/internal/mqtt"
	"github.com/nugget/verity/internal/prompts"
	"github.com/nugget/verity/internal/search"
	"github.com/nugget/verity/internal/tools"
	"github.com/nugget/verity/internal/verify"
)

// app holds the components every subcommand shares: the model client,
// the tool registry, and the agent loop built on both.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	llm      llm.Client
	registry *tools.Registry
	loop     *agent.Loop
	tokens   *mqtt.DailyTokens
}

// newApp wires the agent from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	client, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	registry := newRegistry(cfg, logger)

	prompt, err := systemPrompt(cfg, registry)
	if err != nil {
		return nil, err
	}

	tokens := mqtt.NewDailyTokens(nil)
	loop := agent.NewLoop(logger, client, registry, agent.Config{
		Model:         cfg.LLM.Model,
		MaxIterations: cfg.Agent.MaxIterations,
		Timeout:       cfg.LLM.Timeout,
		SystemPrompt:  prompt,
		Tokens:        tokens,
	})

	logger.Info("agent ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"tools", registry.Names(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		llm:      client,
		registry: registry,
		loop:     loop,
		tokens:   tokens,
	}, nil
}

// newRegistry registers the offline built-ins plus web_search and
// verify_result, both backed by one search fallback chain.
func newRegistry(cfg *config.Config, logger *slog.Logger) *tools.Registry {
	registry := tools.NewDefaultRegistry(logger)

	mgr := search.NewManagerFromConfig(cfg.Search, logger)
	if !mgr.Configured() {
		logger.Warn("no search provider configured, web_search runs in degraded mode",
			"on_exhausted", cfg.Search.OnExhausted)
	}
	chain := search.NewChain(mgr, search.NewKnowledgeBase(nil), search.ChainConfig{
		MaxVariants: cfg.Search.MaxVariants,
		Timeout:     cfg.Search.Timeout,
		OnExhausted: search.Policy(cfg.Search.OnExhausted),
	}, logger)

	registry.Register(chain.Tool())
	registry.Register(verify.New(chain, logger).Tool())
	return registry
}

// systemPrompt renders the configured prompt file, or the built-in
// prompt when none is set.
func systemPrompt(cfg *config.Config, registry *tools.Registry) (string, error) {
	if cfg.Agent.SystemPromptFile == "" {
		return prompts.AgentSystemPrompt(registry.Catalog(), verify.Guidelines()), nil
	}
	data, err := os.ReadFile(cfg.Agent.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return prompts.RenderSystemPrompt(string(data), registry.Catalog(), verify.Guidelines()), nil
}

// sessions is the persistence side of serve: the SQLite store and the
// cache in front of it.
type sessions struct {
	db    *sql.DB
	store *conversation.Store
	cache *conversation.Cache
}

func openSessions(cfg *config.Config, logger *slog.Logger) (*sessions, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := conversation.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	store, err := conversation.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init conversation store: %w", err)
	}
	logger.Info("conversation database opened", "path", cfg.Database.Path)

	return &sessions{
		db:    db,
		store: store,
		cache: conversation.NewCache(store, logger),
	}, nil
}

func (s *sessions) Close() error {
	return s.db.Close()
}

// statsAdapter feeds the MQTT status loop.
type statsAdapter struct {
	cache *conversation.Cache
	model string
}

func (a *statsAdapter) ActiveSessions() int  { return a.cache.Len() }
func (a *statsAdapter) DefaultModel() string { return a.model }
