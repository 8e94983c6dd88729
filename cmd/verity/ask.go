package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// askResult is the JSON shape of `verity -o json ask`.
type askResult struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Model      string `json:"model"`
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
	Exhausted  bool   `json:"exhausted"`
	Elapsed    string `json:"elapsed"`
}

// runAsk answers one question and prints the result. Logs go to stderr
// so stdout carries only the answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, question string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(stderr)
	logger.Debug("config loaded", "path", cfgPath)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	res, err := a.loop.Run(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{
			Question:   question,
			Answer:     res.Answer,
			Model:      a.loop.Model(),
			Iterations: res.Iterations,
			ToolCalls:  res.ToolCalls,
			Exhausted:  res.Exhausted,
			Elapsed:    res.Duration.Round(time.Millisecond).String(),
		})
	}

	fmt.Fprintln(stdout, res.Answer)
	return nil
}
