// Package store provides storage backends for voiceform.
//
// This file implements an SQLite-backed store for forms and sessions.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/hutchutchutch/voiceform/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists forms and sessions in an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveForm stores or replaces a form definition.
func (s *SQLiteStore) SaveForm(form models.FormDefinition) error {
	definition, err := json.Marshal(form)
	if err != nil {
		slog.Error("SQLiteStore SaveForm marshal failed", "error", err, "formID", form.ID)
		return fmt.Errorf("failed to marshal form %s: %w", form.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO forms (id, definition, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET definition = excluded.definition, updated_at = CURRENT_TIMESTAMP`,
		form.ID, string(definition))
	if err != nil {
		slog.Error("SQLiteStore SaveForm failed", "error", err, "formID", form.ID)
		return fmt.Errorf("failed to save form %s: %w", form.ID, err)
	}
	slog.Debug("SQLiteStore SaveForm succeeded", "formID", form.ID)
	return nil
}

// GetForm retrieves a form definition, or (nil, nil) if absent.
func (s *SQLiteStore) GetForm(id string) (*models.FormDefinition, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM forms WHERE id = ?`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetForm not found", "formID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetForm failed", "error", err, "formID", id)
		return nil, fmt.Errorf("failed to get form %s: %w", id, err)
	}
	var form models.FormDefinition
	if err := json.Unmarshal([]byte(definition), &form); err != nil {
		slog.Error("SQLiteStore GetForm unmarshal failed", "error", err, "formID", id)
		return nil, fmt.Errorf("failed to unmarshal form %s: %w", id, err)
	}
	return &form, nil
}

// ListForms returns all stored form definitions.
func (s *SQLiteStore) ListForms() ([]models.FormDefinition, error) {
	rows, err := s.db.Query(`SELECT definition FROM forms ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListForms query failed", "error", err)
		return nil, fmt.Errorf("failed to query forms: %w", err)
	}
	defer rows.Close()

	var forms []models.FormDefinition
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			slog.Error("SQLiteStore ListForms scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan form row: %w", err)
		}
		var form models.FormDefinition
		if err := json.Unmarshal([]byte(definition), &form); err != nil {
			slog.Error("SQLiteStore ListForms unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal form row: %w", err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListForms rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate form rows: %w", err)
	}
	slog.Debug("SQLiteStore ListForms succeeded", "count", len(forms))
	return forms, nil
}

// DeleteForm removes a form definition.
func (s *SQLiteStore) DeleteForm(id string) error {
	_, err := s.db.Exec(`DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteForm failed", "error", err, "formID", id)
		return fmt.Errorf("failed to delete form %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteForm succeeded", "formID", id)
	return nil
}

// SaveSession stores or replaces a conversation state record.
func (s *SQLiteStore) SaveSession(state models.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to marshal session %s: %w", state.SessionID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, form_id, state, is_complete, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state, is_complete = excluded.is_complete, updated_at = CURRENT_TIMESTAMP`,
		state.SessionID, state.FormID, string(stateJSON), state.IsComplete)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", state.SessionID, "node", state.CurrentNode)
	return nil
}

// GetSession retrieves a conversation state record, or (nil, nil) if absent.
func (s *SQLiteStore) GetSession(sessionID string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE session_id = ?`, sessionID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore GetSession unmarshal failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &state, nil
}

// ListSessions returns all stored conversation state records.
func (s *SQLiteStore) ListSessions() ([]models.ConversationState, error) {
	rows, err := s.db.Query(`SELECT state FROM sessions ORDER BY session_id`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ConversationState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("SQLiteStore ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var state models.ConversationState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Error("SQLiteStore ListSessions unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
		}
		sessions = append(sessions, state)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// DeleteSession removes a conversation state record.
func (s *SQLiteStore) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
