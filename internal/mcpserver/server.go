// Package mcpserver exposes the tool registry, and optionally the whole
// agent, as a Model Context Protocol server.
//
// Every registry tool is published with a single required string
// argument, "input", mirroring the one-string-in, one-string-out
// contract of the text protocol. When an agent is supplied an extra
// "ask" tool runs a full reasoning loop.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nugget/verity/internal/agent"
	"github.com/nugget/verity/internal/buildinfo"
	"github.com/nugget/verity/internal/tools"
)

// AskToolName is the name of the agent tool.
const AskToolName = "ask"

// Asker runs the agent on one question. [agent.Loop] satisfies it.
type Asker interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
}

const instructions = `Verity answers questions with a tool-using reasoning agent.

Call the individual tools for a single deterministic step (arithmetic,
text statistics, a web search, or a corroboration pass). Call "ask" to
let the agent plan, search, and verify on its own.`

// New builds an MCP server over registry. asker may be nil, in which
// case the "ask" tool is not offered.
func New(registry *tools.Registry, asker Asker, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	s := server.NewMCPServer(
		"verity",
		buildinfo.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, t := range registry.List() {
		s.AddTool(toolDefinition(t), toolHandler(registry, t.Name, logger))
	}
	if asker != nil {
		s.AddTool(askDefinition(), askHandler(asker, logger))
	}
	return s
}

// Serve speaks MCP over in and out until ctx is cancelled or the
// client closes its end. Transport errors go to logger.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func toolDefinition(t *tools.Tool) mcp.Tool {
	desc := t.Description
	if t.Usage != "" {
		desc += "\n\nInput: " + t.Usage
	}
	return mcp.NewTool(t.Name,
		mcp.WithDescription(desc),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("Tool input text"),
		),
	)
}

func toolHandler(registry *tools.Registry, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("input")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out, err := registry.Execute(ctx, name, input)
		if err != nil {
			var unknown *tools.ErrUnknownTool
			if errors.As(err, &unknown) {
				return mcp.NewToolResultError(fmt.Sprintf("unknown tool %q", name)), nil
			}
			logger.Warn("tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		logger.Debug("tool call", "tool", name, "input_len", len(input), "result_len", len(out))
		return mcp.NewToolResultText(out), nil
	}
}

func askDefinition() mcp.Tool {
	return mcp.NewTool(AskToolName,
		mcp.WithDescription("Answer a question with the full agent: it may calculate, search the web, and verify claims before answering."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
	)
}

func askHandler(asker Asker, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := asker.Run(ctx, question)
		if err != nil {
			logger.Error("agent run failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("agent error: %v", err)), nil
		}
		logger.Info("agent run via mcp",
			"iterations", res.Iterations,
			"tool_calls", res.ToolCalls,
			"exhausted", res.Exhausted,
		)
		return mcp.NewToolResultText(res.Answer), nil
	}
}
