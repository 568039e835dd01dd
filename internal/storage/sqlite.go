// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists conversations in a local sqlite database.
//
// Construction does no I/O; Initialize opens the database and runs
// migrations. Query methods called before Initialize completes return
// ErrNotReady.
type SQLiteStore struct {
	path string

	mu    sync.RWMutex
	db    *sql.DB
	ready bool
}

// DefaultDatabasePath returns the default location of the conversation
// database (~/.lantern/conversations.db).
func DefaultDatabasePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lantern", "conversations.db"), nil
}

// NewSQLiteStore creates a store for the given database path. No I/O
// happens until Initialize is called.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Initialize opens the database, configures it, and runs migrations.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, initMetadata); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize metadata: %w", err)
	}

	// First read: readiness means the read path works, not just Open.
	var version string
	row := db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'")
	if err := row.Scan(&version); err != nil {
		db.Close()
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	s.db = db
	s.ready = true
	return nil
}

// IsReady reports whether the store can serve queries.
func (s *SQLiteStore) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Close purges temporary conversations and releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	// Temporary conversations never outlive the process.
	s.db.Exec("DELETE FROM conversations WHERE temporary = 1")

	err := s.db.Close()
	s.db = nil
	s.ready = false
	return err
}

// conn returns the database handle, or ErrNotReady.
func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready || s.db == nil {
		return nil, ErrNotReady
	}
	return s.db, nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation persists a new conversation and returns its ID.
func (s *SQLiteStore) CreateConversation(title string, temporary bool) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	conv := model.NewConversation()
	conv.Title = title
	conv.Temporary = temporary

	_, err = db.Exec(
		`INSERT INTO conversations (id, title, system_prompt, temporary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.SystemPrompt, boolToInt(temporary),
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv.ID, nil
}

// GetConversation loads a conversation with its full message history.
func (s *SQLiteStore) GetConversation(id string) (*model.Conversation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	conv := &model.Conversation{ID: id}
	var temporary int
	var createdAt, updatedAt int64

	row := db.QueryRow(
		"SELECT title, system_prompt, temporary, created_at, updated_at FROM conversations WHERE id = ?", id)
	if err := row.Scan(&conv.Title, &conv.SystemPrompt, &temporary, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	conv.Temporary = temporary != 0
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := db.Query(
		`SELECT id, role, content, is_error, created_at,
		        response_time_ms, ttft_ms, token_count, tokens_per_sec
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg        model.Message
			role       string
			isError    int
			msgCreated int64
			respMs     int64
			ttftMs     int64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &isError, &msgCreated,
			&respMs, &ttftMs, &msg.TokenCount, &msg.TokensPerSec); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.IsError = isError != 0
		msg.CreatedAt = time.UnixMilli(msgCreated)
		msg.ResponseTime = time.Duration(respMs) * time.Millisecond
		msg.TTFT = time.Duration(ttftMs) * time.Millisecond
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return conv, nil
}

// SaveMessage persists a finalized message. Saving an existing message ID
// updates its content and statistics in place.
func (s *SQLiteStore) SaveMessage(convID string, msg *model.Message) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if msg.IsStreaming {
		return ErrMessageStreaming
	}

	var exists int
	row := db.QueryRow("SELECT COUNT(*) FROM conversations WHERE id = ?", convID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return ErrConversationNotFound
	}

	_, err = db.Exec(
		`INSERT INTO messages (id, conversation_id, seq, role, content, is_error, created_at,
		                       response_time_ms, ttft_ms, token_count, tokens_per_sec)
		 VALUES (?, ?,
		         (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?),
		         ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     content = excluded.content,
		     is_error = excluded.is_error,
		     response_time_ms = excluded.response_time_ms,
		     ttft_ms = excluded.ttft_ms,
		     token_count = excluded.token_count,
		     tokens_per_sec = excluded.tokens_per_sec`,
		msg.ID, convID, convID,
		msg.Role.String(), msg.Content, boolToInt(msg.IsError), msg.CreatedAt.UnixMilli(),
		msg.ResponseTime.Milliseconds(), msg.TTFT.Milliseconds(),
		msg.TokenCount, msg.TokensPerSec,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	_, err = db.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now().UnixMilli(), convID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// UpdateTitle sets the conversation title.
func (s *SQLiteStore) UpdateTitle(convID, title string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec("UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().UnixMilli(), convID)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ListConversations returns metadata for all non-temporary conversations,
// most recently updated first.
func (s *SQLiteStore) ListConversations() ([]model.ConversationMeta, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT c.id, c.title, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		        (SELECT m.content FROM messages m
		         WHERE m.conversation_id = c.id AND m.role = 'user'
		         ORDER BY m.seq LIMIT 1)
		 FROM conversations c
		 WHERE c.temporary = 0
		 ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	metas := []model.ConversationMeta{}
	for rows.Next() {
		var (
			meta      model.ConversationMeta
			createdAt int64
			updatedAt int64
			preview   sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &createdAt, &updatedAt,
			&meta.MessageCount, &preview); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		meta.CreatedAt = time.UnixMilli(createdAt)
		meta.UpdatedAt = time.UnixMilli(updatedAt)
		if preview.Valid {
			meta.Preview = previewString(preview.String)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return metas, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// previewString produces a single-line truncated preview for listings.
func previewString(content string) string {
	return util.Truncate(util.CollapseWhitespace(content), 80)
}
