package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/nugget/verity/internal/mcpserver"
)

// runMCP serves the tool registry, plus an "ask" tool backed by the
// agent, over MCP on stdin/stdout. stdout belongs to the protocol, so
// logs go to stderr.
func runMCP(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(stderr)
	logger.Info("config loaded", "path", cfgPath)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	s := mcpserver.New(a.registry, a.loop, logger)
	logger.Info("serving MCP on stdio", "tools", a.registry.Names())
	return mcpserver.Serve(ctx, s, stdin, stdout, logger)
}
