// ABOUTME: SQLite implementation of the session snapshot store using modernc.org/sqlite.
// ABOUTME: Automatic schema creation; each save replaces the session's rows in one transaction.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/orchestrator"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/session"
)

// SQLiteStore implements session.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a store at the given path. The schema is created
// if it doesn't exist; parent directories are created as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			selection TEXT NOT NULL,
			streaming INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_agents (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			model TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		);

		CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			agent_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Save persists a snapshot, replacing any previous state for the session.
func (s *SQLiteStore) Save(ctx context.Context, snap session.Snapshot) error {
	selection, err := json.Marshal(snap.Selection)
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, policy, selection, streaming, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy = excluded.policy,
			selection = excluded.selection,
			streaming = excluded.streaming,
			saved_at = excluded.saved_at
	`, snap.SessionID, snap.Policy.String(), string(selection), boolToInt(snap.Streaming),
		snap.SavedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	for _, table := range []string{"session_agents", "session_messages"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", snap.SessionID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i, d := range snap.Agents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_agents (session_id, position, agent_id, display_name, provider_id, model, system_prompt)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, snap.SessionID, i, d.ID, d.DisplayName, d.ProviderID, d.Model, d.SystemPrompt)
		if err != nil {
			return fmt.Errorf("inserting agent %q: %w", d.ID, err)
		}
	}

	for i, m := range snap.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_messages (session_id, position, message_id, role, agent_id, agent_name, content, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.SessionID, i, m.ID, string(m.Role), m.AgentID, m.AgentName, m.Content,
			m.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting message %q: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Debug("session snapshot saved",
		"session_id", snap.SessionID,
		"messages", len(snap.Messages),
		"agents", len(snap.Agents))
	return nil
}

// Load reconstructs the snapshot for a session ID. Returns
// session.ErrNotFound for unknown sessions.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	var policyStr, selectionJSON, savedAtStr string
	var streaming int
	err := s.db.QueryRowContext(ctx, `
		SELECT policy, selection, streaming, saved_at FROM sessions WHERE id = ?
	`, sessionID).Scan(&policyStr, &selectionJSON, &streaming, &savedAtStr)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	policy, err := orchestrator.ParsePolicy(policyStr)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}
	var selection []string
	if err := json.Unmarshal([]byte(selectionJSON), &selection); err != nil {
		return nil, fmt.Errorf("decoding selection: %w", err)
	}
	savedAt, err := time.Parse(time.RFC3339Nano, savedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing saved_at: %w", err)
	}

	snap := &session.Snapshot{
		SessionID: sessionID,
		Policy:    policy,
		Selection: selection,
		Streaming: streaming != 0,
		SavedAt:   savedAt,
	}

	if snap.Agents, err = s.loadAgents(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Messages, err = s.loadMessages(ctx, sessionID); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListSessions returns the stored session IDs, most recently saved first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY saved_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) loadAgents(ctx context.Context, sessionID string) ([]agent.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, display_name, provider_id, model, system_prompt
		FROM session_agents WHERE session_id = ? ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Descriptor
	for rows.Next() {
		var d agent.Descriptor
		if err := rows.Scan(&d.ID, &d.DisplayName, &d.ProviderID, &d.Model, &d.SystemPrompt); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, d)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, sessionID string) ([]chatlog.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, agent_id, agent_name, content, timestamp
		FROM session_messages WHERE session_id = ? ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []chatlog.Message
	for rows.Next() {
		var m chatlog.Message
		var role, timestampStr string
		if err := rows.Scan(&m.ID, &role, &m.AgentID, &m.AgentName, &m.Content, &timestampStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = chatlog.Role(role)
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr); err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
