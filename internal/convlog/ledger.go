// ABOUTME: SQLite ledger sink for conversation events using modernc.org/sqlite.
// ABOUTME: Queryable history alongside the JSONL files; schema created on open.

package convlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Ledger persists conversation events to SQLite so history can be queried
// without scanning JSONL files. It is an optional sink behind the Logger
// and follows the same policy: a failed write is reported, never fatal.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenLedger opens (or creates) the ledger database at the given path.
// Parent directories are created if needed.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// WAL keeps appends cheap under concurrent request handling.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS conversation_events (
			event_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_conversation
			ON conversation_events(agent_id, conversation_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	l := &Ledger{
		db:     db,
		logger: slog.Default().With("component", "convlog-ledger"),
	}
	l.logger.Info("conversation ledger opened", "path", path)
	return l, nil
}

// SaveEntry inserts one event row.
func (l *Ledger) SaveEntry(e *Entry) error {
	var metadata *string
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		s := string(raw)
		metadata = &s
	}

	_, err := l.db.Exec(`
		INSERT INTO conversation_events (
			event_id, agent_id, conversation_id, source, message, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		e.AgentID,
		e.ConversationID,
		e.Source,
		e.Message,
		metadata,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation event: %w", err)
	}
	return nil
}

// ListByConversation returns events for one conversation in chronological
// order, capped at limit (default 100, max 500).
func (l *Ledger) ListByConversation(agentID, conversationID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := l.db.Query(`
		SELECT agent_id, conversation_id, source, message, metadata, created_at
		FROM conversation_events
		WHERE agent_id = ? AND conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		agentID, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var metadata sql.NullString
		if err := rows.Scan(
			&entry.AgentID,
			&entry.ConversationID,
			&entry.Source,
			&entry.Message,
			&metadata,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				l.logger.Warn("skipping malformed event metadata", "error", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
