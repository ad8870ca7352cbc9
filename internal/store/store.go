// Package store provides storage backends for voiceform.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backends for persistent storage. All backends
// treat forms and sessions as whole documents: a save replaces the record
// atomically, and single-writer-per-session is enforced above the store by
// the flow engine.
package store

import (
	"strings"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// Store defines the persistence contract for forms and conversation state.
//
// Get methods return (nil, nil) when the record does not exist; callers
// translate that into their own not-found errors.
type Store interface {
	SaveForm(form models.FormDefinition) error
	GetForm(id string) (*models.FormDefinition, error)
	ListForms() ([]models.FormDefinition, error)
	DeleteForm(id string) error

	SaveSession(state models.ConversationState) error
	GetSession(sessionID string) (*models.ConversationState, error)
	ListSessions() ([]models.ConversationState, error)
	DeleteSession(sessionID string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the data source name for a store backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL
// DSNs use URL or key=value forms; anything else is treated as an SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
