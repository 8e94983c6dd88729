package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Append(context.Context, Message) error { return errors.New("disk full") }
func (failingStore) Query(context.Context, string, Filter) ([]Message, error) {
	return nil, nil
}

func TestStore_AppendAndQuery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	msgs := []Message{
		{ID: "b", ChatID: "c1", OwnerID: "o1", Role: RoleAssistant, Content: "hi", Timestamp: base.Add(time.Second)},
		{ID: "a", ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: "hello", Timestamp: base},
		{ID: "x", ChatID: "c2", OwnerID: "o2", Role: RoleUser, Content: "other", Timestamp: base},
		{ID: "d", ChatID: "c1", OwnerID: "o1", Role: RoleAdmin, Content: "taking over", AdminID: "op7", Timestamp: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := store.Append(ctx, m); err != nil {
			t.Fatalf("append %s: %v", m.ID, err)
		}
	}
	// Re-appending is a no-op.
	if err := store.Append(ctx, msgs[0]); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	got, err := store.Query(ctx, "c1", Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if strings.Join(ids, ",") != "a,b,d" {
		t.Errorf("ids = %v, want a,b,d", ids)
	}
	if !got[0].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, base)
	}
	if got[2].AdminID != "op7" {
		t.Errorf("AdminID = %q", got[2].AdminID)
	}

	got, err = store.Query(ctx, "c1", Filter{OwnerID: "o2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("owner filter leaked %d messages", len(got))
	}

	got, err = store.Query(ctx, "c1", Filter{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit returned %d messages", len(got))
	}
}

func TestStore_ChatIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	for i, chat := range []string{"old", "new", "old"} {
		m := Message{ID: fmt.Sprint(i), ChatID: chat, OwnerID: "o1", Role: RoleUser, Content: "x", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if chat == "new" {
			m.Timestamp = base.Add(time.Hour)
		}
		if err := store.Append(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := store.ChatIDs(ctx, "o1")
	if err != nil {
		t.Fatalf("chat ids: %v", err)
	}
	if strings.Join(ids, ",") != "new,old" {
		t.Errorf("ids = %v", ids)
	}
	ids, _ = store.ChatIDs(ctx, "nobody")
	if len(ids) != 0 {
		t.Errorf("expected no chats, got %v", ids)
	}
}

func TestStore_RecipientFor(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutOwner(ctx, Owner{ID: "o1", Name: "Support bot", ReportsEmail: "ops@example.com"}); err != nil {
		t.Fatalf("put owner: %v", err)
	}
	if err := store.PutOwner(ctx, Owner{ID: "o2", Name: "Quiet bot"}); err != nil {
		t.Fatalf("put owner: %v", err)
	}

	tests := []struct {
		owner, want string
	}{
		{"o1", "ops@example.com"},
		{"o2", ""},
		{"missing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := store.RecipientFor(ctx, tt.owner)
		if err != nil {
			t.Errorf("RecipientFor(%q): %v", tt.owner, err)
		}
		if got != tt.want {
			t.Errorf("RecipientFor(%q) = %q, want %q", tt.owner, got, tt.want)
		}
	}

	// Upsert replaces the address.
	if err := store.PutOwner(ctx, Owner{ID: "o1", ReportsEmail: "new@example.com"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.RecipientFor(ctx, "o1"); got != "new@example.com" {
		t.Errorf("after upsert = %q", got)
	}
}

func TestCache_AppendAssignsIDs(t *testing.T) {
	store := setupTestStore(t)
	c := NewCache(store, testLogger())
	ctx := context.Background()

	m1, err := c.Append(ctx, Message{ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: "hi", AdminID: "ignored"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	m2, err := c.Append(ctx, Message{ChatID: "c1", OwnerID: "o1", Role: RoleAdmin, Content: "hello", AdminID: "op1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m1.ID == "" || m1.ID == m2.ID {
		t.Errorf("ids not unique: %q %q", m1.ID, m2.ID)
	}
	if m1.AdminID != "" {
		t.Errorf("admin id kept for user role: %q", m1.AdminID)
	}
	if m2.AdminID != "op1" {
		t.Errorf("admin id dropped for admin role")
	}

	persisted, err := store.Query(ctx, "c1", Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted %d messages, want 2", len(persisted))
	}
	if got := len(c.Messages("c1")); got != 2 {
		t.Errorf("cached %d messages, want 2", got)
	}
}

func TestCache_AppendValidation(t *testing.T) {
	c := NewCache(nil, testLogger())
	if _, err := c.Append(context.Background(), Message{Role: RoleUser}); err == nil {
		t.Error("expected error for missing chat id")
	}
	if _, err := c.Append(context.Background(), Message{ChatID: "c", Role: "system"}); err == nil {
		t.Error("expected error for system role")
	}
	if c.Len() != 0 {
		t.Errorf("rejected messages created %d sessions", c.Len())
	}
}

func TestCache_PersistFailureKeepsMessage(t *testing.T) {
	c := NewCache(failingStore{}, testLogger())
	m, err := c.Append(context.Background(), Message{ChatID: "c1", Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("append should not fail on store error: %v", err)
	}
	got := c.Messages("c1")
	if len(got) != 1 || got[0].ID != m.ID {
		t.Errorf("message not kept in cache: %+v", got)
	}
}

func TestCache_History(t *testing.T) {
	store := setupTestStore(t)
	c := NewCache(failingStore{}, testLogger())
	ctx := context.Background()

	// Persisted only.
	old := Message{ID: "old", ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: "earlier", Timestamp: time.Now().Add(-time.Hour).UTC()}
	if err := store.Append(ctx, old); err != nil {
		t.Fatal(err)
	}
	// Cached only, because the cache's own store rejects writes.
	m, _ := c.Append(ctx, Message{ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: "now"})

	c.store = store
	got, err := c.History(ctx, "c1", Filter{OwnerID: "o1"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 || got[0].ID != "old" || got[1].ID != m.ID {
		t.Errorf("history = %+v", got)
	}

	// A message present in both appears once.
	if err := store.Append(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, _ = c.History(ctx, "c1", Filter{})
	if len(got) != 2 {
		t.Errorf("merged history has %d messages, want 2", len(got))
	}

	if _, err := c.History(ctx, "unknown", Filter{}); err != nil {
		t.Errorf("history of unknown chat: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("reading history created sessions: %d", c.Len())
	}
}

func TestCache_HistoryLimitAppliesAfterMerge(t *testing.T) {
	store := setupTestStore(t)
	c := NewCache(failingStore{}, testLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	for i, content := range []string{"first", "second"} {
		m := Message{ID: fmt.Sprintf("p%d", i), ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: content, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Append(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	// Cached only; newer than everything persisted.
	for _, content := range []string{"third", "fourth"} {
		if _, err := c.Append(ctx, Message{ChatID: "c1", OwnerID: "o1", Role: RoleUser, Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	c.store = store

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"first", "second", "third", "fourth"}},
		{1, []string{"first"}},
		{3, []string{"first", "second", "third"}},
		{10, []string{"first", "second", "third", "fourth"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			got, err := c.History(ctx, "c1", Filter{Limit: tt.limit})
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			var contents []string
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			if strings.Join(contents, ",") != strings.Join(tt.want, ",") {
				t.Errorf("history = %v, want %v", contents, tt.want)
			}
		})
	}
}

func TestCache_DetachIdle(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(nil, testLogger(), WithClock(clock.Now))
	ctx := context.Background()

	c.Append(ctx, Message{ChatID: "idle", OwnerID: "o1", Role: RoleUser, Content: "hi"})
	clock.Advance(4 * time.Minute)
	c.Append(ctx, Message{ChatID: "fresh", OwnerID: "o2", Role: RoleUser, Content: "hey"})
	clock.Advance(2 * time.Minute)

	got := c.DetachIdle(5 * time.Minute)
	if len(got) != 1 || got[0].ChatID != "idle" {
		t.Fatalf("detached = %+v, want only idle", got)
	}
	if got[0].OwnerID != "o1" || len(got[0].Messages) != 1 {
		t.Errorf("detached session = %+v", got[0])
	}

	// Already detached: never returned twice.
	if again := c.DetachIdle(5 * time.Minute); len(again) != 0 {
		t.Errorf("second sweep returned %d sessions", len(again))
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	// A message for a swept chat starts a new session.
	c.Append(ctx, Message{ChatID: "idle", Role: RoleUser, Content: "back"})
	if msgs := c.Messages("idle"); len(msgs) != 1 || msgs[0].Content != "back" {
		t.Errorf("new session = %+v", msgs)
	}
}

func TestCache_ConcurrentAppendAndDetach(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(nil, testLogger(), WithClock(clock.Now))
	ctx := context.Background()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var detached []Detached

	stop := make(chan struct{})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			d := c.DetachIdle(-1)
			mu.Lock()
			detached = append(detached, d...)
			mu.Unlock()
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.Append(ctx, Message{ChatID: "shared", Role: RoleUser, Content: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	<-sweepDone
	detached = append(detached, c.DetachIdle(-1)...)

	seen := make(map[string]int)
	for _, d := range detached {
		for _, m := range d.Messages {
			seen[m.ID]++
		}
	}
	if len(seen) != writers*perWriter {
		t.Errorf("saw %d distinct messages, want %d", len(seen), writers*perWriter)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("message %s delivered %d times", id, n)
		}
	}
}

func TestMergeByID(t *testing.T) {
	base := []Message{{ID: "1"}, {ID: "2"}}
	extra := []Message{{ID: "2"}, {ID: "3"}, {ID: "3"}}
	got := MergeByID(base, extra)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if strings.Join(ids, ",") != "1,2,3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestFormatHistory(t *testing.T) {
	day1 := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 16, 0, 1, 5, 0, time.UTC)
	msgs := []Message{
		{Role: RoleAssistant, Content: "Good morning", Timestamp: day2},
		{Role: RoleUser, Content: "hello", Timestamp: day1},
		{Role: RoleUser, Content: "hello", Timestamp: day2.Add(time.Second)},
		{Role: RoleAssistant, Content: "hello", Timestamp: day2.Add(2 * time.Second)},
	}

	got := FormatHistory(msgs)
	want := "=== CHAT HISTORY ===\n" +
		"\n[Date: 2025-06-15]\n" +
		"[23:59:00] USER: hello\n" +
		"\n[Date: 2025-06-16]\n" +
		"[00:01:05] ASSISTANT: Good morning\n" +
		"[00:01:07] ASSISTANT: hello\n"
	if got != want {
		t.Errorf("FormatHistory =\n%s\nwant\n%s", got, want)
	}
}

func TestDedupe(t *testing.T) {
	ts := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "late", Role: RoleUser, Content: "same", Timestamp: ts.Add(time.Hour)},
		{ID: "early", Role: RoleUser, Content: "same", Timestamp: ts},
	}
	got := Dedupe(msgs)
	if len(got) != 1 || got[0].ID != "early" {
		t.Errorf("Dedupe = %+v", got)
	}
	if msgs[0].ID != "late" {
		t.Error("Dedupe modified its input")
	}
}
