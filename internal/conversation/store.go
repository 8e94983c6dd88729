package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed-width so that stored timestamps sort
// lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Filter narrows a history query.
type Filter struct {
	// OwnerID restricts results to one owning entity. Empty matches
	// every owner.
	OwnerID string
	// Limit caps the number of messages returned. Zero means no cap.
	Limit int
}

// Owner is the entity a chat belongs to, e.g. a deployed assistant,
// together with where its conversation digests are delivered.
type Owner struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ReportsEmail string `json:"reports_email,omitempty"`
}

// Store persists chat messages and owners in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path with WAL journaling.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// NewStore creates a conversation store, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate conversation store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			chat_id    TEXT NOT NULL,
			owner_id   TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			admin_id   TEXT NOT NULL DEFAULT '',
			persona    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id);

		CREATE TABLE IF NOT EXISTS owners (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			reports_email TEXT NOT NULL DEFAULT '',
			updated_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Append persists a message. Appending an ID that already exists is a
// no-op, so retries are safe.
func (s *Store) Append(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(id, chat_id, owner_id, role, content, admin_id, persona, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ChatID, m.OwnerID, m.Role, m.Content, m.AdminID, m.Persona,
		m.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Query returns the persisted messages of a chat in chronological order.
func (s *Store) Query(ctx context.Context, chatID string, f Filter) ([]Message, error) {
	q := `SELECT id, chat_id, owner_id, role, content, admin_id, persona, created_at
		FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if f.OwnerID != "" {
		q += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	q += ` ORDER BY created_at ASC, rowid ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.OwnerID, &m.Role, &m.Content, &m.AdminID, &m.Persona, &ts); err != nil {
			return nil, err
		}
		m.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("message %s: bad timestamp %q: %w", m.ID, ts, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ChatIDs returns the distinct chats recorded for an owner, most
// recently active first.
func (s *Store) ChatIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM messages
		WHERE owner_id = ?
		GROUP BY chat_id
		ORDER BY MAX(created_at) DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query chat ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutOwner inserts or replaces an owner record.
func (s *Store) PutOwner(ctx context.Context, o Owner) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, name, reports_email, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			reports_email = excluded.reports_email,
			updated_at = CURRENT_TIMESTAMP
	`, o.ID, o.Name, o.ReportsEmail)
	if err != nil {
		return fmt.Errorf("put owner: %w", err)
	}
	return nil
}

// RecipientFor returns the digest address registered for an owner.
// An unknown owner, or one without an address, yields "".
func (s *Store) RecipientFor(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", nil
	}
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT reports_email FROM owners WHERE id = ?`, ownerID,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup owner %s: %w", ownerID, err)
	}
	return email, nil
}
