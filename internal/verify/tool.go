package verify

import (
	"context"
	"strings"

	"github.com/nugget/verity/internal/tools"
)

// Tool returns the verify_result tool.
func (v *Verifier) Tool() *tools.Tool {
	return &tools.Tool{
		Name:        "verify_result",
		Description: "REQUIRED for numbers, technical specs, legal/medical info, and other critical data",
		Usage:       "description of result to verify",
		Handler: func(ctx context.Context, input string) string {
			desc := strings.TrimSpace(input)
			if desc == "" {
				return "Error: a description of the result to verify is required"
			}
			return v.Verify(ctx, desc)
		},
	}
}
