package search

import (
	"context"
	"strings"

	"github.com/nugget/verity/internal/tools"
)

// Tool returns the web_search tool backed by the chain.
func (c *Chain) Tool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Searches the web for current information",
		Usage:       "search query",
		Handler: func(ctx context.Context, input string) string {
			query := strings.TrimSpace(input)
			if query == "" {
				return "Error: search query is required"
			}
			return c.Search(ctx, query)
		},
	}
}
