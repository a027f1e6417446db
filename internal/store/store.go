// Package store provides sqlite-backed persistence for conversations and
// their messages. Rows are append-only: messages are never edited or removed
// by this package, and every append commits in its own transaction so a turn
// that fails halfway never rolls back what was already saved.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/beris147/chatbot-debate/internal/logger"
)

// Message roles as persisted. The upstream assistant vocabulary is a
// projection concern, see History in the chat package.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// defaultRecentLimit caps ListRecent when the caller passes no limit.
const defaultRecentLimit = 10

//go:embed migrations/*.sql
var migrations embed.FS

// Conversation is an append-only container of messages.
type Conversation struct {
	ID        string
	CreatedAt time.Time
}

// Message is one persisted turn half. Immutable once written.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// NotFoundError reports a lookup of a conversation id that does not exist.
type NotFoundError struct {
	ConversationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No conversation %s found", e.ConversationID)
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and brings the
// schema up to date with the embedded goose migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	logger.L.Info("store opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new empty conversation and returns it.
func (s *Store) CreateConversation(ctx context.Context) (Conversation, error) {
	conv := Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?);`,
		conv.ID, conv.CreatedAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation looks up a conversation by id. A miss is a *NotFoundError.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM conversations WHERE id = ?;`, id,
	).Scan(&conv.ID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, &NotFoundError{ConversationID: id}
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: get conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage persists one message in its own transaction and returns the
// stored row.
func (s *Store) AppendMessage(ctx context.Context, conversationID, content, role string) (Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("store: begin append: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?);`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return Message{}, fmt.Errorf("store: append message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("store: commit append: %w", err)
	}
	return msg, nil
}

// ListMessages returns every message of a conversation in chronological
// order, oldest first. This is the ordering the LLM history is built from.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, rowid ASC;`,
		conversationID)
}

// ListRecent returns the newest messages of a conversation, most recent
// first. A limit <= 0 falls back to the default display window.
func (s *Store) ListRecent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.queryMessages(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?;`,
		conversationID, limit)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return out, nil
}
