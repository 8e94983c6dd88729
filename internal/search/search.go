// Package search provides the web search layer used by the agent.
//
// Each backend implements the [Provider] interface and is registered
// by name with a [Manager]. The [Chain] sits on top of the manager and
// implements the reformulate-and-retry fallback that the web_search
// and verify_result tools rely on.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nugget/verity/internal/config"
	"github.com/nugget/verity/internal/httpkit"
)

// Result is a single organic search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Response is the structured payload of one provider query. Fields a
// provider cannot supply are left empty.
type Response struct {
	// Answer is a direct answer ("answer box") when the engine has one.
	Answer string `json:"answer,omitempty"`
	// AnswerSnippet is the answer-box excerpt when there is no direct
	// answer.
	AnswerSnippet string `json:"answer_snippet,omitempty"`
	// KnowledgeDescription is the knowledge-panel summary of an entity.
	KnowledgeDescription string   `json:"knowledge_description,omitempty"`
	Results              []Result `json:"results,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`
}

// Provider is the interface that search backends implement. Transport
// and HTTP-status failures are returned as errors; an empty Response
// is a valid "nothing found".
type Provider interface {
	// Name returns the provider identifier (e.g., "serpapi", "brave").
	Name() string

	// Search executes a query.
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// Manager holds configured providers and routes searches.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// NewManagerFromConfig registers every provider that has credentials
// in cfg and selects cfg.Provider as primary.
func NewManagerFromConfig(cfg config.SearchConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpkit.NewClient(
		httpkit.WithTimeout(15*time.Second),
		httpkit.WithRetry(2, 500*time.Millisecond),
		httpkit.WithLogger(logger.With("component", "search")),
	)

	m := NewManager(cfg.Provider)
	if cfg.SerpAPI.APIKey != "" {
		m.Register(NewSerpAPI(cfg.SerpAPI.APIKey, cfg.SerpAPI.Endpoint, cfg.SerpAPI.Engine, client))
	}
	if cfg.Brave.APIKey != "" {
		m.Register(NewBrave(cfg.Brave.APIKey, client))
	}
	if cfg.SearXNG.URL != "" {
		m.Register(NewSearXNG(cfg.SearXNG.URL, client))
	}
	return m
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return m.SearchWith(ctx, m.primary, query, opts)
}

// SearchWith runs a query against a specific named provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) (*Response, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	return p.Search(ctx, query, opts)
}

// Providers returns the sorted names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Primary returns the name of the default provider.
func (m *Manager) Primary() string {
	return m.primary
}

// Configured reports whether the primary provider is registered.
func (m *Manager) Configured() bool {
	if m == nil {
		return false
	}
	_, ok := m.providers[m.primary]
	return ok
}
