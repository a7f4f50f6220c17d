// Package store persists conversations, messages, and credentials in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"titan/internal/logging"
	"titan/internal/types"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	pinned          INTEGER NOT NULL DEFAULT 0,
	archived        INTEGER NOT NULL DEFAULT 0,
	message_count   INTEGER NOT NULL DEFAULT 0,
	last_message_at TIMESTAMP NOT NULL,
	created_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	parts           TEXT,
	tool_calls      TEXT,
	actions         TEXT,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, name)
);
`

// SQLiteStore implements types.MessageStore plus the credential operations
// the credential tools need.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logging.Store("database opened: %s", path)
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateConversation inserts a new conversation for the user.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, title string) (*types.Conversation, error) {
	now := time.Now().UTC()
	conv := &types.Conversation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, last_message_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.LastMessageAt, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	logging.Store("conversation created: id=%s user=%s", conv.ID, userID)
	return conv, nil
}

// GetConversation fetches one conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, pinned, archived, message_count, last_message_at, created_at
		 FROM conversations WHERE id = ?`, id)

	var c types.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Pinned, &c.Archived,
		&c.MessageCount, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &c, nil
}

// ListConversations returns the user's conversations, pinned first, newest
// activity first within each group.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, pinned, archived, message_count, last_message_at, created_at
		 FROM conversations WHERE user_id = ?
		 ORDER BY pinned DESC, last_message_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []types.Conversation
	for rows.Next() {
		var c types.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Pinned, &c.Archived,
			&c.MessageCount, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes the conversation; messages cascade.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logging.Store("conversation deleted: id=%s", id)
	return nil
}

// UpdateTitle sets the conversation title.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to update title for %s: %w", id, err)
	}
	return nil
}

// SetPinned toggles the pin flag.
func (s *SQLiteStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET pinned = ? WHERE id = ?`, pinned, id)
	return err
}

// SetArchived toggles the archive flag.
func (s *SQLiteStore) SetArchived(ctx context.Context, id string, archived bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET archived = ? WHERE id = ?`, archived, id)
	return err
}

// AppendMessage writes the row and bumps the conversation's counters in the
// same transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	parts, err := marshalNullable(msg.Parts)
	if err != nil {
		return fmt.Errorf("failed to encode parts: %w", err)
	}
	toolCalls, err := marshalNullable(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	actions, err := marshalNullable(msg.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, role, content, parts, tool_calls, actions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content,
		parts, toolCalls, actions, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = message_count + 1, last_message_at = ?
		 WHERE id = ?`, msg.CreatedAt, msg.ConversationID); err != nil {
		return fmt.Errorf("failed to bump conversation counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	logging.StoreDebug("message appended: conversation=%s role=%s bytes=%d",
		msg.ConversationID, msg.Role, len(msg.Content))
	return nil
}

// RecentMessages returns up to n UI-visible rows newest-first. system and
// tool roles never surface here.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, role, content, parts, tool_calls, actions, created_at
		 FROM messages
		 WHERE conversation_id = ? AND role IN ('user', 'assistant')
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var m types.Message
		var parts, toolCalls, actions sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content,
			&parts, &toolCalls, &actions, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(parts, &m.Parts); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(toolCalls, &m.ToolCalls); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(actions, &m.Actions); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func marshalNullable(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []types.ContentPart:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []types.ToolCall:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []types.ActionRecord:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
