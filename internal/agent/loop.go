// Package agent implements the ReAct agent loop.
//
// A run seeds the transcript with the system prompt and the user's
// question, then alternates model completions with tool observations
// until the model emits a final answer or the iteration bound is hit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/verity/internal/llm"
	"github.com/nugget/verity/internal/protocol"
	"github.com/nugget/verity/internal/tools"
)

// ExhaustedAnswer is returned as the answer when the iteration bound is
// reached before the model produced a final answer.
const ExhaustedAnswer = "Max iterations reached without final answer"

// DefaultMaxIterations bounds model completions per run.
const DefaultMaxIterations = 10

// TokenObserver receives token counts from each completed model call.
type TokenObserver interface {
	OnTokens(inputTokens, outputTokens int)
}

// Config parameterizes one agent: which model it talks to, how long it
// may think, and what it is told.
type Config struct {
	Model         string
	MaxIterations int
	// Timeout bounds each individual completion. Zero leaves the
	// caller's context as the only deadline.
	Timeout      time.Duration
	SystemPrompt string
	// Tokens, when set, is told about every completion's usage.
	Tokens TokenObserver
}

// Result describes the outcome of one run.
type Result struct {
	Answer     string
	Iterations int
	// Exhausted is set when the run stopped at the iteration bound.
	Exhausted bool
	// ToolCalls counts actions that reached a registered tool.
	ToolCalls  int
	Transcript []llm.Message
	Duration   time.Duration
}

// Loop is the agent execution loop. It holds no per-run state, so one
// Loop may serve concurrent runs.
type Loop struct {
	logger *slog.Logger
	llm    llm.Client
	tools  *tools.Registry
	cfg    Config
}

// NewLoop creates a new agent loop.
func NewLoop(logger *slog.Logger, client llm.Client, registry *tools.Registry, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Loop{
		logger: logger.With("component", "agent"),
		llm:    client,
		tools:  registry,
		cfg:    cfg,
	}
}

// Model returns the model this loop sends completions to.
func (l *Loop) Model() string { return l.cfg.Model }

// Run answers one question. Only a model failure or context
// cancellation produces an error; hitting the iteration bound is a
// normal result with Exhausted set.
func (l *Loop) Run(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	res := &Result{
		Transcript: []llm.Message{
			{Role: llm.RoleSystem, Content: l.cfg.SystemPrompt},
			{Role: llm.RoleUser, Content: question},
		},
	}

	l.logger.Info("agent loop started",
		"model", l.cfg.Model,
		"max_iterations", l.cfg.MaxIterations,
		"question_len", len(question),
	)

	for res.Iterations < l.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations++

		reply, err := l.complete(ctx, res.Transcript)
		if err != nil {
			l.logger.Error("LLM call failed", "iteration", res.Iterations, "error", err)
			return nil, fmt.Errorf("iteration %d: %w", res.Iterations, err)
		}
		res.Transcript = append(res.Transcript, llm.Message{Role: llm.RoleAssistant, Content: reply})
		l.logger.Log(ctx, llm.LevelTrace, "model reply", "iteration", res.Iterations, "content", reply)

		out := protocol.Parse(reply)
		switch out.Kind {
		case protocol.KindFinal:
			res.Answer = out.Answer
			res.Duration = time.Since(start)
			l.logger.Info("agent loop completed",
				"iterations", res.Iterations,
				"tool_calls", res.ToolCalls,
				"elapsed", res.Duration.Round(time.Millisecond),
			)
			return res, nil

		case protocol.KindAction:
			observation := l.invoke(ctx, out.Action, res)
			res.Transcript = append(res.Transcript, llm.Message{
				Role:    llm.RoleUser,
				Content: protocol.Observation(observation),
			})

		case protocol.KindThinking:
			l.logger.Debug("model is thinking", "iteration", res.Iterations)

		default:
			l.logger.Warn("unexpected reply format", "iteration", res.Iterations, "reply_len", len(reply))
		}
	}

	res.Answer = ExhaustedAnswer
	res.Exhausted = true
	res.Duration = time.Since(start)
	l.logger.Warn("agent loop exhausted",
		"iterations", res.Iterations,
		"tool_calls", res.ToolCalls,
		"elapsed", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// complete runs one model call at temperature 0 under the per-call
// timeout.
func (l *Loop) complete(ctx context.Context, transcript []llm.Message) (string, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	resp, err := l.llm.Chat(ctx, l.cfg.Model, transcript, llm.Options{Temperature: 0})
	if err != nil {
		return "", err
	}
	if l.cfg.Tokens != nil {
		l.cfg.Tokens.OnTokens(resp.InputTokens, resp.OutputTokens)
	}
	return resp.Message.Content, nil
}

// invoke executes an action and returns the observation text.
func (l *Loop) invoke(ctx context.Context, action protocol.Action, res *Result) string {
	toolStart := time.Now()
	result, err := l.tools.Execute(ctx, action.Tool, action.Input)
	if err != nil {
		var unknown *tools.ErrUnknownTool
		if errors.As(err, &unknown) {
			l.logger.Warn("model requested unknown tool", "tool", action.Tool)
			return fmt.Sprintf("Error - Unknown tool '%s'", action.Tool)
		}
		l.logger.Error("tool execution failed", "tool", action.Tool, "error", err)
		return "Error: " + err.Error()
	}

	res.ToolCalls++
	l.logger.Info("tool executed",
		"tool", action.Tool,
		"input_len", len(action.Input),
		"result_len", len(result),
		"elapsed", time.Since(toolStart).Round(time.Millisecond),
	)
	return result
}
