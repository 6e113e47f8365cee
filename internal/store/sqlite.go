// ABOUTME: SQLite-backed local cache of conversation snapshots using modernc.org/sqlite.
// ABOUTME: Lets listing and review work offline; refreshed on every successful fetch.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/parley/internal/thread"
)

// ErrNotFound is returned when a conversation is not in the cache.
var ErrNotFound = errors.New("conversation not cached")

// Cache persists conversation snapshots locally. It is a read-through
// convenience, never an authority: the server copy always wins and a save
// replaces the cached snapshot wholesale.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the cache database at path, creating parent
// directories and the schema as needed. Pass nil logger for default.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	c := &Cache{db: db, logger: logger}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id               TEXT PRIMARY KEY,
		agent_id         TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		last_accessed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq             INTEGER NOT NULL,
		message_id      TEXT NOT NULL DEFAULT '',
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		timestamp       TIMESTAMP NOT NULL,
		source          TEXT NOT NULL DEFAULT '',
		tool_name       TEXT NOT NULL DEFAULT '',
		tool_args       TEXT NOT NULL DEFAULT '',
		tool_output     TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (conversation_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_accessed
		ON conversations(last_accessed_at DESC);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SaveConversation replaces the cached snapshot for conv.ID.
func (c *Cache) SaveConversation(ctx context.Context, conv *thread.Conversation) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, agent_id, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			last_accessed_at = MAX(last_accessed_at, excluded.last_accessed_at)`,
		conv.ID, conv.AgentID,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.LastAccessedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clearing cached messages: %w", err)
	}

	for i, m := range conv.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, seq, message_id, role, content, timestamp, source, tool_name, tool_args, tool_output)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, i, m.ID, string(m.Role), m.Content,
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			string(m.Source), m.ToolName, m.ToolArgs, m.ToolOutput)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	c.logger.Debug("snapshot cached",
		"conversation_id", conv.ID,
		"messages", len(conv.Messages))
	return nil
}

// GetConversation loads a cached snapshot, messages included.
func (c *Cache) GetConversation(ctx context.Context, id string) (*thread.Conversation, error) {
	conv := &thread.Conversation{ID: id}

	var createdAtStr, lastAccessedStr string
	err := c.db.QueryRowContext(ctx, `
		SELECT agent_id, created_at, last_accessed_at
		FROM conversations WHERE id = ?`, id).
		Scan(&conv.AgentID, &createdAtStr, &lastAccessedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccessedStr); err != nil {
		return nil, fmt.Errorf("parsing last_accessed_at: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT message_id, role, content, timestamp, source, tool_name, tool_args, tool_output
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m thread.Message
		var role, source, tsStr string
		if err := rows.Scan(&m.ID, &role, &m.Content, &tsStr, &source, &m.ToolName, &m.ToolArgs, &m.ToolOutput); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		m.Role = thread.Role(role)
		m.Source = thread.Source(source)
		m.Timestamp = ts
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return conv, nil
}

// ListConversations returns cached conversation metadata (no messages),
// most recently accessed first.
func (c *Cache) ListConversations(ctx context.Context, limit, offset int) ([]*thread.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, agent_id, created_at, last_accessed_at
		FROM conversations
		ORDER BY last_accessed_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*thread.Conversation
	for rows.Next() {
		conv := &thread.Conversation{}
		var createdAtStr, lastAccessedStr string
		if err := rows.Scan(&conv.ID, &conv.AgentID, &createdAtStr, &lastAccessedStr); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if conv.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccessedStr); err != nil {
			return nil, fmt.Errorf("parsing last_accessed_at: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
