// Package store provides storage backends for voiceform.
//
// This file implements the in-memory store used for tests and
// single-process deployments.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// InMemoryStore keeps forms and sessions in process memory. Records are
// deep-copied on both save and load so callers can never alias the stored
// state.
type InMemoryStore struct {
	mu       sync.RWMutex
	forms    map[string]models.FormDefinition
	sessions map[string]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		forms:    make(map[string]models.FormDefinition),
		sessions: make(map[string]models.ConversationState),
	}
}

// SaveForm stores or replaces a form definition.
func (s *InMemoryStore) SaveForm(form models.FormDefinition) error {
	copied, err := copyViaJSON(form)
	if err != nil {
		return fmt.Errorf("failed to copy form %s: %w", form.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[form.ID] = copied
	return nil
}

// GetForm retrieves a form definition, or (nil, nil) if absent.
func (s *InMemoryStore) GetForm(id string) (*models.FormDefinition, error) {
	s.mu.RLock()
	form, ok := s.forms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	copied, err := copyViaJSON(form)
	if err != nil {
		return nil, fmt.Errorf("failed to copy form %s: %w", id, err)
	}
	return &copied, nil
}

// ListForms returns all stored form definitions.
func (s *InMemoryStore) ListForms() ([]models.FormDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	forms := make([]models.FormDefinition, 0, len(s.forms))
	for _, form := range s.forms {
		copied, err := copyViaJSON(form)
		if err != nil {
			return nil, err
		}
		forms = append(forms, copied)
	}
	return forms, nil
}

// DeleteForm removes a form definition.
func (s *InMemoryStore) DeleteForm(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.forms, id)
	return nil
}

// SaveSession stores or replaces a conversation state record.
func (s *InMemoryStore) SaveSession(state models.ConversationState) error {
	copied, err := copyViaJSON(state)
	if err != nil {
		return fmt.Errorf("failed to copy session %s: %w", state.SessionID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.SessionID] = copied
	return nil
}

// GetSession retrieves a conversation state record, or (nil, nil) if absent.
func (s *InMemoryStore) GetSession(sessionID string) (*models.ConversationState, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	copied, err := copyViaJSON(state)
	if err != nil {
		return nil, fmt.Errorf("failed to copy session %s: %w", sessionID, err)
	}
	return &copied, nil
}

// ListSessions returns all stored conversation state records.
func (s *InMemoryStore) ListSessions() ([]models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.ConversationState, 0, len(s.sessions))
	for _, state := range s.sessions {
		copied, err := copyViaJSON(state)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, copied)
	}
	return sessions, nil
}

// DeleteSession removes a conversation state record.
func (s *InMemoryStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// copyViaJSON deep-copies a value through its JSON representation. Forms and
// sessions are already JSON-shaped, so this round-trip is lossless.
func copyViaJSON[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
