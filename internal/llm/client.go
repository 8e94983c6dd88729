// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/verity/internal/config"
)

// Client is the interface that all LLM providers must implement.
// Implementations must honor ctx for cancellation and deadlines.
type Client interface {
	// Chat sends the full transcript and returns one completion.
	Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error)
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, logger), nil
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, logger), nil
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
