// Package memory implements long-term conversation memory for VendaClaw.
// Turns are appended to a per-conversation SQLite log; recall uses keyword
// overlap scoring over the recent log (future: FTS5 / embeddings). The
// memory database is separate from the main vendaclaw.db.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/autoreply"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    text            TEXT NOT NULL,
    media_context   TEXT DEFAULT '',
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id);
`

// candidateWindow bounds how many recent turns recall scoring considers.
const candidateWindow = 400

// SQLStore is the SQLite-backed Memory implementation.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the memory database at the given path.
func Open(path string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "./data/memory.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3",
		fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memory schema: %w", err)
	}

	return &SQLStore{db: db, logger: logger.With("component", "memory")}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Embed appends one turn to the conversation log.
func (s *SQLStore) Embed(ctx context.Context, conversationID, role, text, mediaContext string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, role, text, media_context, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, role, text, mediaContext,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit most recent turns, oldest first.
func (s *SQLStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]autoreply.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, media_context FROM turns
		WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Recall returns up to limit turns scored by keyword overlap with the query,
// best matches first.
func (s *SQLStore) Recall(ctx context.Context, conversationID, query string, limit int) ([]autoreply.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	keywords := tokenize(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, media_context FROM turns
		WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`, conversationID, candidateWindow)
	if err != nil {
		return nil, fmt.Errorf("query recall candidates: %w", err)
	}
	defer rows.Close()

	candidates, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		turn  autoreply.Turn
		score int
		pos   int // recency tiebreak: lower = newer
	}
	var matches []scored
	for i, t := range candidates {
		sc := overlap(keywords, tokenize(t.Text))
		if sc > 0 {
			matches = append(matches, scored{turn: t, score: sc, pos: i})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].pos < matches[j].pos
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]autoreply.Turn, len(matches))
	for i, m := range matches {
		out[i] = m.turn
	}
	return out, nil
}

func scanTurns(rows *sql.Rows) ([]autoreply.Turn, error) {
	var turns []autoreply.Turn
	for rows.Next() {
		var t autoreply.Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.MediaContext); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// tokenize lowercases and splits text into keyword tokens, dropping very
// short words that carry no signal.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 3 {
			tokens[w] = true
		}
	}
	return tokens
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
