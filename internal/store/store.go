// Package store persists sessions, conversation messages and reasoning
// context in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"showrunner/internal/session"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store wraps a Postgres connection.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL DEFAULT '',
	collection_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS conversations (
	msg_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	conv_id TEXT NOT NULL,
	msg_type TEXT NOT NULL,
	agents JSONB NOT NULL DEFAULT '[]',
	actions JSONB NOT NULL DEFAULT '[]',
	content JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, conv_id);

CREATE TABLE IF NOT EXISTS context_messages (
	session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
	context_data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateSession inserts a session, or refreshes updated_at if it already
// exists.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if sess.Metadata == nil {
		metadata = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, video_id, collection_id, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET updated_at = now()`,
		sess.ID, sess.VideoID, sess.CollectionID, metadata)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	var (
		sess     session.Session
		metadata []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, video_id, collection_id, created_at, updated_at, metadata
		FROM sessions WHERE session_id = $1`, sessionID).
		Scan(&sess.ID, &sess.VideoID, &sess.CollectionID, &sess.CreatedAt, &sess.UpdatedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}
	return &sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, video_id, collection_id, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.VideoID, &sess.CollectionID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session with its conversation and context rows.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM context_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSessionNotFound
	}
	return tx.Commit()
}

// SaveMessage upserts one conversation message keyed by msg_id.
func (s *Store) SaveMessage(ctx context.Context, msg session.BaseMessage) error {
	agents, err := json.Marshal(msg.Agents)
	if err != nil {
		return fmt.Errorf("failed to marshal agents: %w", err)
	}
	actions, err := json.Marshal(msg.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (msg_id, session_id, conv_id, msg_type, agents, actions, content, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (msg_id) DO UPDATE SET
			agents = EXCLUDED.agents,
			actions = EXCLUDED.actions,
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			updated_at = now()`,
		msg.MsgID, msg.SessionID, msg.ConvID, msg.MsgType, agents, actions, content, string(msg.Status))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetConversation returns all messages of a session in insertion order.
func (s *Store) GetConversation(ctx context.Context, sessionID string) ([]session.BaseMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT msg_id, session_id, conv_id, msg_type, agents, actions, content, status, created_at
		FROM conversations WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer rows.Close()

	var messages []session.BaseMessage
	for rows.Next() {
		var (
			msg                      session.BaseMessage
			agents, actions, content []byte
			status                   string
		)
		if err := rows.Scan(&msg.MsgID, &msg.SessionID, &msg.ConvID, &msg.MsgType, &agents, &actions, &content, &status, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Status = session.MsgStatus(status)
		if err := json.Unmarshal(agents, &msg.Agents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agents: %w", err)
		}
		if err := json.Unmarshal(actions, &msg.Actions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
		if err := json.Unmarshal(content, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetContextMessages loads the persisted reasoning context of a session.
// A session without saved context yields an empty slice.
func (s *Store) GetContextMessages(ctx context.Context, sessionID string) ([]session.ContextMessage, error) {
	var contextData []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT context_data FROM context_messages WHERE session_id = $1`, sessionID).
		Scan(&contextData)
	if errors.Is(err, sql.ErrNoRows) {
		return []session.ContextMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context messages: %w", err)
	}

	var messages []session.ContextMessage
	if err := json.Unmarshal(contextData, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context messages: %w", err)
	}
	return messages, nil
}

// SaveContextMessages replaces the persisted reasoning context of a
// session with the given sequence.
func (s *Store) SaveContextMessages(ctx context.Context, sessionID string, messages []session.ContextMessage) error {
	contextData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal context messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_messages (session_id, context_data)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET
			context_data = EXCLUDED.context_data,
			updated_at = now()`,
		sessionID, contextData)
	if err != nil {
		return fmt.Errorf("failed to save context messages: %w", err)
	}
	return nil
}

// Touch refreshes a session's updated_at timestamp.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = now() WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}
