// Package tools defines the tools available to the agent.
//
// Every tool takes one free-text input and returns one free-text
// result. Tools report their own failures inside the result string
// ("Error: ...") so a misbehaving tool never aborts an agent run.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Handler runs a tool against its raw input.
type Handler func(ctx context.Context, input string) string

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	// Usage is a short hint for the input shape shown in the prompt,
	// e.g. "mathematical expression".
	Usage   string
	Handler Handler
}

// Registry holds available tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// NewDefaultRegistry creates a registry with the offline built-ins:
// calculator and text_analyzer.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(&Tool{
		Name:        "calculator",
		Description: "Evaluates mathematical expressions",
		Usage:       "mathematical expression",
		Handler: func(_ context.Context, input string) string {
			return Calculate(input)
		},
	})
	r.Register(&Tool{
		Name:        "text_analyzer",
		Description: "Analyzes text statistics and insights",
		Usage:       "text to analyze",
		Handler: func(_ context.Context, input string) string {
			return AnalyzeText(input)
		},
	})
	return r
}

// Register adds a tool, replacing any earlier tool with the same name.
// A replaced tool keeps its position in the catalog.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns tools in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Catalog renders the tool list for the system prompt, one tool per
// line in registration order.
func (r *Registry) Catalog() string {
	var sb strings.Builder
	for _, t := range r.List() {
		if t.Usage != "" {
			fmt.Fprintf(&sb, "- %s: [%s] - %s\n", t.Name, t.Usage, t.Description)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		}
	}
	return sb.String()
}

// Execute runs the named tool. It returns *ErrUnknownTool when no
// such tool is registered. A panicking handler is recovered and
// reported as an error result.
func (r *Registry) Execute(ctx context.Context, name, input string) (result string, err error) {
	t := r.Get(name)
	if t == nil {
		return "", &ErrUnknownTool{ToolName: name}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			result = fmt.Sprintf("Error: %v", p)
			err = nil
		}
	}()

	r.logger.Debug("executing tool", "tool", name, "input_len", len(input))
	return t.Handler(ctx, input), nil
}
