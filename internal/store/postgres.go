// Package store provides storage backends for voiceform.
//
// This file implements a PostgreSQL-backed store for forms and sessions.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/hutchutchutch/voiceform/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists forms and sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveForm stores or replaces a form definition.
func (s *PostgresStore) SaveForm(form models.FormDefinition) error {
	definition, err := json.Marshal(form)
	if err != nil {
		slog.Error("PostgresStore SaveForm marshal failed", "error", err, "formID", form.ID)
		return fmt.Errorf("failed to marshal form %s: %w", form.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO forms (id, definition, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()`,
		form.ID, definition)
	if err != nil {
		slog.Error("PostgresStore SaveForm failed", "error", err, "formID", form.ID)
		return fmt.Errorf("failed to save form %s: %w", form.ID, err)
	}
	slog.Debug("PostgresStore SaveForm succeeded", "formID", form.ID)
	return nil
}

// GetForm retrieves a form definition, or (nil, nil) if absent.
func (s *PostgresStore) GetForm(id string) (*models.FormDefinition, error) {
	var definition []byte
	err := s.db.QueryRow(`SELECT definition FROM forms WHERE id = $1`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetForm not found", "formID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetForm failed", "error", err, "formID", id)
		return nil, fmt.Errorf("failed to get form %s: %w", id, err)
	}
	var form models.FormDefinition
	if err := json.Unmarshal(definition, &form); err != nil {
		slog.Error("PostgresStore GetForm unmarshal failed", "error", err, "formID", id)
		return nil, fmt.Errorf("failed to unmarshal form %s: %w", id, err)
	}
	return &form, nil
}

// ListForms returns all stored form definitions.
func (s *PostgresStore) ListForms() ([]models.FormDefinition, error) {
	rows, err := s.db.Query(`SELECT definition FROM forms ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListForms query failed", "error", err)
		return nil, fmt.Errorf("failed to query forms: %w", err)
	}
	defer rows.Close()

	var forms []models.FormDefinition
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			slog.Error("PostgresStore ListForms scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan form row: %w", err)
		}
		var form models.FormDefinition
		if err := json.Unmarshal(definition, &form); err != nil {
			slog.Error("PostgresStore ListForms unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal form row: %w", err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListForms rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate form rows: %w", err)
	}
	slog.Debug("PostgresStore ListForms succeeded", "count", len(forms))
	return forms, nil
}

// DeleteForm removes a form definition.
func (s *PostgresStore) DeleteForm(id string) error {
	_, err := s.db.Exec(`DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteForm failed", "error", err, "formID", id)
		return fmt.Errorf("failed to delete form %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteForm succeeded", "formID", id)
	return nil
}

// SaveSession stores or replaces a conversation state record.
func (s *PostgresStore) SaveSession(state models.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to marshal session %s: %w", state.SessionID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, form_id, state, is_complete, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state, is_complete = EXCLUDED.is_complete, updated_at = now()`,
		state.SessionID, state.FormID, stateJSON, state.IsComplete)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", state.SessionID, "node", state.CurrentNode)
	return nil
}

// GetSession retrieves a conversation state record, or (nil, nil) if absent.
func (s *PostgresStore) GetSession(sessionID string) (*models.ConversationState, error) {
	var stateJSON []byte
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE session_id = $1`, sessionID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		slog.Error("PostgresStore GetSession unmarshal failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &state, nil
}

// ListSessions returns all stored conversation state records.
func (s *PostgresStore) ListSessions() ([]models.ConversationState, error) {
	rows, err := s.db.Query(`SELECT state FROM sessions ORDER BY session_id`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ConversationState
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			slog.Error("PostgresStore ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var state models.ConversationState
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			slog.Error("PostgresStore ListSessions unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
		}
		sessions = append(sessions, state)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore ListSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// DeleteSession removes a conversation state record.
func (s *PostgresStore) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
