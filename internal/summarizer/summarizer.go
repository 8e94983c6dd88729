// Package summarizer provides a background worker that finalizes idle
// chats. On every tick it detaches chats that have gone quiet from the
// conversation cache, merges them with persisted history, asks the LLM
// for a short summary, and hands the resulting digest to the configured
// sinks (email, MQTT). A chat is finalized at most once per idle period.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/verity/internal/conversation"
	"github.com/nugget/verity/internal/llm"
	"github.com/nugget/verity/internal/prompts"
)

// Config controls the summarizer worker behavior.
type Config struct {
	// Interval between sweeps of the conversation cache.
	// Default: 1 minute.
	Interval time.Duration

	// IdleAfter is how long a chat must be silent before it is
	// finalized. Default: 5 minutes.
	IdleAfter time.Duration

	// Timeout per summarization LLM call.
	// Default: 60 seconds.
	Timeout time.Duration

	// Grace bounds how long a sweep keeps finalizing chats it has
	// already detached once the worker is cancelled. Default: 15 seconds.
	Grace time.Duration

	// Model used for summaries.
	Model string
}

// DefaultConfig returns sensible defaults for the summarizer worker.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		IdleAfter: 5 * time.Minute,
		Timeout:   60 * time.Second,
		Grace:     15 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Grace <= 0 {
		c.Grace = d.Grace
	}
}

// maxSummaryRunes caps the summary placed in a digest.
const maxSummaryRunes = 1000

// HistoryStore is the persisted side of a chat.
type HistoryStore interface {
	Query(ctx context.Context, chatID string, f conversation.Filter) ([]conversation.Message, error)
	RecipientFor(ctx context.Context, ownerID string) (string, error)
}

// Sink receives finished digests.
type Sink interface {
	Name() string
	// NeedsRecipient reports whether the sink can only deliver to a
	// resolved owner address.
	NeedsRecipient() bool
	Deliver(ctx context.Context, d *Digest) error
}

// Worker periodically finalizes idle chats.
type Worker struct {
	cache     *conversation.Cache
	store     HistoryStore
	llmClient llm.Client
	sinks     []Sink
	logger    *slog.Logger
	config    Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a summarizer worker. Call Start to begin processing.
func New(cache *conversation.Cache, store HistoryStore, llmClient llm.Client, sinks []Sink, logger *slog.Logger, cfg Config) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cache:     cache,
		store:     store,
		llmClient: llmClient,
		sinks:     sinks,
		logger:    logger.With("component", "summarizer"),
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *Worker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(workerCtx)
}

// Stop cancels the worker and waits for its goroutine to exit. It is a
// no-op if the worker was never started.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("summarizer started",
		"interval", w.config.Interval,
		"idle_after", w.config.IdleAfter,
		"sinks", len(w.sinks),
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("summarizer stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes every chat that is currently idle and returns how
// many were detached from the cache. Chats are processed sequentially.
//
// Detached chats are no longer in the cache, so cancelling ctx does not
// abandon them: the sweep carries on under a context that ignores the
// cancellation but expires after Config.Grace. Chats still pending when
// the grace period runs out are dropped and logged.
func (w *Worker) Sweep(ctx context.Context) int {
	idle := w.cache.DetachIdle(w.config.IdleAfter)
	if len(idle) == 0 {
		return 0
	}
	w.logger.Info("found idle chats", "count", len(idle))

	work := context.WithoutCancel(ctx)
	graceStarted := false
	for i, d := range idle {
		if ctx.Err() != nil && !graceStarted {
			var cancel context.CancelFunc
			work, cancel = context.WithTimeout(work, w.config.Grace)
			defer cancel()
			graceStarted = true
			w.logger.Warn("sweep interrupted, finishing detached chats",
				"remaining", len(idle)-i,
				"grace", w.config.Grace,
			)
		}
		if work.Err() != nil {
			w.logger.Error("grace period expired, dropping idle chats",
				"remaining", len(idle)-i,
			)
			break
		}
		w.finalize(work, d)
	}
	return len(idle)
}

func (w *Worker) finalize(ctx context.Context, d conversation.Detached) {
	log := w.logger.With("chat_id", d.ChatID)

	msgs := d.Messages
	ownerID := d.OwnerID
	if w.store != nil {
		persisted, err := w.store.Query(ctx, d.ChatID, conversation.Filter{})
		if err != nil {
			log.Error("failed to load persisted history, using cached messages", "error", err)
		} else {
			msgs = conversation.MergeByID(persisted, d.Messages)
			if ownerID == "" && len(persisted) > 0 {
				ownerID = persisted[0].OwnerID
			}
		}
	}
	if len(msgs) == 0 {
		log.Debug("idle chat has no messages")
		return
	}

	var recipient string
	if w.store != nil && ownerID != "" {
		var err error
		recipient, err = w.store.RecipientFor(ctx, ownerID)
		if err != nil {
			log.Warn("failed to resolve digest recipient", "owner_id", ownerID, "error", err)
		}
	}

	sinks := w.eligibleSinks(recipient)
	if len(sinks) == 0 {
		log.Info("no digest recipient for chat, skipping", "owner_id", ownerID)
		return
	}

	history := conversation.FormatHistory(msgs)
	summary := w.summarize(ctx, history)
	digest := NewDigest(d.ChatID, ownerID, recipient, summary, history)
	digest.Messages = len(msgs)

	for _, s := range sinks {
		if err := w.deliver(ctx, s, digest); err != nil {
			log.Error("digest delivery failed", "sink", s.Name(), "error", err)
			continue
		}
		log.Info("digest delivered",
			"sink", s.Name(),
			"messages", digest.Messages,
			"summary_len", len(digest.Summary),
		)
	}
}

// deliver hands d to one sink, bounded by the summarization timeout.
func (w *Worker) deliver(ctx context.Context, s Sink, d *Digest) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()
	return s.Deliver(ctx, d)
}

func (w *Worker) eligibleSinks(recipient string) []Sink {
	var out []Sink
	for _, s := range w.sinks {
		if s.NeedsRecipient() && recipient == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// summarize asks the LLM for a one-paragraph summary. Any failure
// yields the fixed fallback text rather than an error.
func (w *Worker) summarize(ctx context.Context, history string) string {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	msgs := []llm.Message{{Role: llm.RoleUser, Content: prompts.ConversationSummaryPrompt(history)}}
	resp, err := w.llmClient.Chat(ctx, w.config.Model, msgs, llm.Options{Temperature: 0})
	if err != nil {
		w.logger.Warn("failed to generate chat summary", "model", w.config.Model, "error", err)
		return prompts.SummaryFailureText
	}
	return truncateSummary(strings.TrimSpace(resp.Message.Content))
}

func truncateSummary(s string) string {
	r := []rune(s)
	if len(r) <= maxSummaryRunes {
		return s
	}
	return string(r[:maxSummaryRunes-3]) + "..."
}

// Digest is the finished export of one chat.
type Digest struct {
	ChatID    string    `json:"chat_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Recipient string    `json:"-"`
	Subject   string    `json:"subject"`
	Summary   string    `json:"summary"`
	History   string    `json:"history"`
	Body      string    `json:"-"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDigest assembles the subject and plain-text body of a digest.
func NewDigest(chatID, ownerID, recipient, summary, history string) *Digest {
	return &Digest{
		ChatID:    chatID,
		OwnerID:   ownerID,
		Recipient: recipient,
		Subject:   "Chat Summary for " + chatID,
		Summary:   summary,
		History:   history,
		Body: fmt.Sprintf("Chat History for Chat ID: %s\n\nAI Summary:\n%s\n\n=== DETAILED CONVERSATION ===\n\n%s",
			chatID, summary, history),
		CreatedAt: time.Now().UTC(),
	}
}
