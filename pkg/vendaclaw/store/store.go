// Package store provides the central SQLite database for VendaClaw: pending
// drafts and aggregate usage statistics. A single vendaclaw.db file holds
// both; the whatsapp session database (whatsmeow_* tables) lives alongside
// it in the same file when configured that way.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Replies awaiting operator approval.
CREATE TABLE IF NOT EXISTS drafts (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    message_id      TEXT NOT NULL,
    contact_name    TEXT DEFAULT '',
    contact_number  TEXT DEFAULT '',
    query           TEXT NOT NULL,
    reply           TEXT NOT NULL,
    message_count   INTEGER DEFAULT 1,
    sentiment       TEXT DEFAULT '',
    handover        INTEGER DEFAULT 0,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_created ON drafts(created_at);

-- Aggregate usage statistics (single row).
CREATE TABLE IF NOT EXISTS usage_stats (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    replies_sent        INTEGER DEFAULT 0,
    messages_aggregated INTEGER DEFAULT 0,
    seconds_saved       INTEGER DEFAULT 0,
    updated_at          TEXT NOT NULL
);
`

const timeLayout = time.RFC3339Nano

// UsageStats holds the accumulated counters.
type UsageStats struct {
	RepliesSent        int       `json:"replies_sent"`
	MessagesAggregated int       `json:"messages_aggregated"`
	SecondsSaved       int64     `json:"seconds_saved"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store is the SQLite-backed persistence layer. It implements
// autoreply.Store and is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at the given path, enables WAL mode
// and creates all tables.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "./data/vendaclaw.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle so the whatsapp session container can share the
// same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ---------- Drafts ----------

// SaveDraft inserts a new draft.
func (s *Store) SaveDraft(d *autoreply.Draft) error {
	handover := 0
	if d.Handover {
		handover = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO drafts (id, conversation_id, message_id, contact_name,
			contact_number, query, reply, message_count, sentiment, handover, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ConversationID, d.MessageID, d.ContactName, d.ContactNumber,
		d.Query, d.Reply, d.MessageCount, d.Sentiment, handover,
		d.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// GetDraft returns the draft or (nil, nil) when it does not exist.
func (s *Store) GetDraft(id string) (*autoreply.Draft, error) {
	row := s.db.QueryRow(`
		SELECT id, conversation_id, message_id, contact_name, contact_number,
			query, reply, message_count, sentiment, handover, created_at
		FROM drafts WHERE id = ?`, id)

	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query draft: %w", err)
	}
	return d, nil
}

// ListDrafts returns all pending drafts, oldest first.
func (s *Store) ListDrafts() ([]*autoreply.Draft, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, message_id, contact_name, contact_number,
			query, reply, message_count, sentiment, handover, created_at
		FROM drafts ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*autoreply.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// DeleteDraft removes the draft and reports whether it still existed. The
// atomic delete is the single source of truth for concurrent
// approve/discard races.
func (s *Store) DeleteDraft(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete draft result: %w", err)
	}
	return n > 0, nil
}

// UpdateDraftReply overwrites only the reply text, reporting whether the
// draft still existed.
func (s *Store) UpdateDraftReply(id, reply string) (bool, error) {
	res, err := s.db.Exec(`UPDATE drafts SET reply = ? WHERE id = ?`, reply, id)
	if err != nil {
		return false, fmt.Errorf("update draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update draft result: %w", err)
	}
	return n > 0, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*autoreply.Draft, error) {
	var d autoreply.Draft
	var handover int
	var createdAt string
	err := row.Scan(&d.ID, &d.ConversationID, &d.MessageID, &d.ContactName,
		&d.ContactNumber, &d.Query, &d.Reply, &d.MessageCount, &d.Sentiment,
		&handover, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Handover = handover != 0
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		d.CreatedAt = t
	}
	return &d, nil
}

// ---------- Usage statistics ----------

// RecordReply accumulates one delivered reply into the counters.
func (s *Store) RecordReply(messagesAggregated int, saved time.Duration) error {
	if messagesAggregated < 1 {
		messagesAggregated = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO usage_stats (id, replies_sent, messages_aggregated, seconds_saved, updated_at)
		VALUES (1, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			replies_sent = replies_sent + 1,
			messages_aggregated = messages_aggregated + excluded.messages_aggregated,
			seconds_saved = seconds_saved + excluded.seconds_saved,
			updated_at = excluded.updated_at`,
		messagesAggregated, int64(saved.Seconds()),
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return nil
}

// Stats returns the accumulated counters (zero values when nothing was
// recorded yet).
func (s *Store) Stats() (*UsageStats, error) {
	row := s.db.QueryRow(`
		SELECT replies_sent, messages_aggregated, seconds_saved, updated_at
		FROM usage_stats WHERE id = 1`)

	var st UsageStats
	var updatedAt string
	err := row.Scan(&st.RepliesSent, &st.MessagesAggregated, &st.SecondsSaved, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &UsageStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		st.UpdatedAt = t
	}
	return &st, nil
}
