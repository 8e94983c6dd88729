package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Policy decides what the chain returns when every variant came back
// empty.
type Policy string

const (
	// PolicyStrict reports that nothing was found.
	PolicyStrict Policy = "strict"
	// PolicyKnowledgeBase answers from the built-in fact table.
	PolicyKnowledgeBase Policy = "knowledge_base"
)

// Chain defaults.
const (
	DefaultMaxVariants = 4
	DefaultTimeout     = 10 * time.Second

	minSnippetLen  = 20
	maxSnippets    = 2
	resultsPerCall = 3
)

// Messages returned when the chain has nothing to offer.
const (
	NoProviderMessage = "No search provider configured"
	noResultsFormat   = "No results found for '%s'"
)

// ChainConfig tunes the fallback chain.
type ChainConfig struct {
	MaxVariants int
	Timeout     time.Duration
	OnExhausted Policy
}

// Chain reformulates a query and tries each variant against the
// primary provider until one yields a usable answer.
type Chain struct {
	mgr    *Manager
	kb     *KnowledgeBase
	cfg    ChainConfig
	logger *slog.Logger
}

// NewChain creates a chain. mgr may be nil or unconfigured, in which
// case every lookup degrades according to cfg.OnExhausted.
func NewChain(mgr *Manager, kb *KnowledgeBase, cfg ChainConfig, logger *slog.Logger) *Chain {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = DefaultMaxVariants
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OnExhausted == "" {
		cfg.OnExhausted = PolicyStrict
	}
	if kb == nil {
		kb = NewKnowledgeBase(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		mgr:    mgr,
		kb:     kb,
		cfg:    cfg,
		logger: logger.With("component", "search_chain"),
	}
}

// Outcome is the result of one chain lookup.
type Outcome struct {
	// Text is what the tool returns to the model.
	Text string
	// Found reports whether Text carries real content rather than a
	// "nothing found" notice.
	Found bool
	// Attempts is the number of provider requests issued.
	Attempts int
}

// Variants returns the reformulations of query in the order they are
// tried, capped at max. The term-substituted form is omitted when it
// would repeat the original.
func Variants(query string, max int) []string {
	v := []string{
		query,
		query + " definition",
		"what is " + query,
		query + " explained",
	}
	sub := strings.ReplaceAll(query, "power of", "thrust")
	sub = strings.ReplaceAll(sub, "power", "specifications")
	if sub != query {
		v = append(v, sub)
	}
	if max > 0 && len(v) > max {
		v = v[:max]
	}
	return v
}

// Search returns the chain's answer text for query.
func (c *Chain) Search(ctx context.Context, query string) string {
	return c.Lookup(ctx, query).Text
}

// Lookup runs the fallback chain. Provider errors are logged and the
// next variant is tried; they never end the chain early.
func (c *Chain) Lookup(ctx context.Context, query string) Outcome {
	if !c.mgr.Configured() {
		if c.cfg.OnExhausted == PolicyKnowledgeBase {
			text, found := c.kb.Lookup(query)
			return Outcome{Text: text, Found: found}
		}
		return Outcome{Text: NoProviderMessage}
	}

	var attempts int
	for i, variant := range Variants(query, c.cfg.MaxVariants) {
		if ctx.Err() != nil {
			c.logger.Debug("search abandoned", "query", query, "error", ctx.Err())
			break
		}
		attempts++

		resp, err := c.query(ctx, variant)
		if err != nil {
			c.logger.Warn("search variant failed",
				"variant", variant,
				"attempt", i+1,
				"error", err,
			)
			continue
		}
		if text, ok := Summarize(resp); ok {
			c.logger.Debug("search variant answered", "variant", variant, "attempt", i+1)
			return Outcome{Text: text, Found: true, Attempts: attempts}
		}
		c.logger.Debug("no usable results", "variant", variant, "attempt", i+1)
	}

	if c.cfg.OnExhausted == PolicyKnowledgeBase {
		text, found := c.kb.Lookup(query)
		return Outcome{Text: text, Found: found, Attempts: attempts}
	}
	return Outcome{Text: fmt.Sprintf(noResultsFormat, query), Attempts: attempts}
}

func (c *Chain) query(ctx context.Context, variant string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.mgr.Search(ctx, variant, Options{Count: resultsPerCall})
}

// Summarize picks the most authoritative part of resp: a direct
// answer, then an answer-box excerpt, then a knowledge-panel
// description, then up to two substantial organic snippets taken from
// the top two results.
func Summarize(resp *Response) (string, bool) {
	if resp == nil {
		return "", false
	}
	switch {
	case resp.Answer != "":
		return "Direct answer: " + resp.Answer, true
	case resp.AnswerSnippet != "":
		return "Answer: " + resp.AnswerSnippet, true
	case resp.KnowledgeDescription != "":
		return "Info: " + resp.KnowledgeDescription, true
	}

	top := resp.Results
	if len(top) > maxSnippets {
		top = top[:maxSnippets]
	}
	var lines []string
	for _, r := range top {
		s := strings.TrimSpace(r.Snippet)
		if utf8.RuneCountInString(s) >= minSnippetLen {
			lines = append(lines, "• "+s)
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return "Search results:\n" + strings.Join(lines, "\n"), true
}
