package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Persister is the durable side of the cache.
type Persister interface {
	Append(ctx context.Context, m Message) error
	Query(ctx context.Context, chatID string, f Filter) ([]Message, error)
}

// session is the cached state of one chat. A session is created on the
// first message for its chat and destroyed when the sweeper detaches
// it. Once detached it accepts no more messages; writers that lose the
// race start a fresh session instead.
type session struct {
	mu           sync.Mutex
	chatID       string
	messages     []Message
	lastActivity time.Time
	detached     bool
}

// Detached is a session that has been removed from the cache for
// finalization.
type Detached struct {
	ChatID       string
	OwnerID      string
	Messages     []Message
	LastActivity time.Time
}

// Cache is the process-wide set of active chat sessions. All methods
// are safe for concurrent use; access to each chat is serialized by
// that chat's own lock.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*session

	store  Persister
	logger *slog.Logger
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces the time source used for message timestamps and
// idle detection.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache that writes through to store. A nil
// store keeps messages in memory only.
func NewCache(store Persister, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		sessions: make(map[string]*session),
		store:    store,
		logger:   logger.With("component", "conversation"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Append records a new message for in.ChatID. ID and Timestamp are
// assigned here. The message is kept in the cache even when the
// persistent write fails; that failure is logged, not returned.
func (c *Cache) Append(ctx context.Context, in Message) (Message, error) {
	if in.ChatID == "" {
		return Message{}, fmt.Errorf("chat_id is required")
	}
	if !ValidRole(in.Role) {
		return Message{}, fmt.Errorf("invalid role %q", in.Role)
	}

	var m Message
	for {
		s := c.session(in.ChatID)
		s.mu.Lock()
		if s.detached {
			// Swept between lookup and lock; the next lookup creates
			// a fresh session.
			s.mu.Unlock()
			continue
		}
		now := c.now()
		m = newMessage(in, now)
		s.messages = append(s.messages, m)
		s.lastActivity = now
		s.mu.Unlock()
		break
	}

	if c.store != nil {
		if err := c.store.Append(ctx, m); err != nil {
			c.logger.Error("failed to persist message, keeping cached copy",
				"chat_id", m.ChatID,
				"message_id", m.ID,
				"error", err,
			)
		}
	}

	c.logger.Debug("message cached",
		"chat_id", m.ChatID,
		"role", m.Role,
		"message_id", m.ID,
	)
	return m, nil
}

// session returns the live session for chatID, creating it if needed.
func (c *Cache) session(chatID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[chatID]
	if !ok {
		s = &session{chatID: chatID, lastActivity: c.now()}
		c.sessions[chatID] = s
	}
	return s
}

// Messages returns a copy of the cached messages for a chat.
func (c *Cache) Messages(chatID string) []Message {
	c.mu.Lock()
	s, ok := c.sessions[chatID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of active sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// History returns the history of a chat: persisted messages merged
// with cached messages the store does not have yet, in chronological
// order. Filter.Limit keeps the earliest messages of the merged result,
// matching Store.Query. Reading history does not create or refresh a
// session.
func (c *Cache) History(ctx context.Context, chatID string, f Filter) ([]Message, error) {
	var persisted []Message
	if c.store != nil {
		var err error
		persisted, err = c.store.Query(ctx, chatID, f)
		if err != nil {
			return nil, err
		}
	}

	var cached []Message
	for _, m := range c.Messages(chatID) {
		if f.OwnerID == "" || m.OwnerID == f.OwnerID {
			cached = append(cached, m)
		}
	}
	msgs := MergeByID(persisted, cached)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	if f.Limit > 0 && len(msgs) > f.Limit {
		msgs = msgs[:f.Limit]
	}
	return msgs, nil
}

// DetachIdle removes every session whose last activity is older than
// idleAfter and returns their contents. Each session is returned by
// exactly one call; a session that received a message within the
// threshold is left in place.
func (c *Cache) DetachIdle(idleAfter time.Duration) []Detached {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Detached
	for id, s := range c.sessions {
		s.mu.Lock()
		if now.Sub(s.lastActivity) > idleAfter {
			s.detached = true
			delete(c.sessions, id)
			d := Detached{
				ChatID:       id,
				Messages:     s.messages,
				LastActivity: s.lastActivity,
			}
			if len(s.messages) > 0 {
				d.OwnerID = s.messages[0].OwnerID
			}
			s.messages = nil
			out = append(out, d)
		}
		s.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.Before(out[j].LastActivity)
	})
	return out
}

// MergeByID appends to base the extra messages whose IDs base does not
// already contain.
func MergeByID(base, extra []Message) []Message {
	seen := make(map[string]bool, len(base))
	out := make([]Message, 0, len(base)+len(extra))
	for _, m := range base {
		seen[m.ID] = true
		out = append(out, m)
	}
	for _, m := range extra {
		if !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}
