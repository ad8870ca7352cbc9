// Package models defines session state structures for voiceform dialogues.
package models

import (
	"errors"
	"time"
)

// NodeType identifies a state-machine node within a conversation.
type NodeType string

// State-machine node constants. A session holds exactly one active node.
const (
	NodeOpeningActivity  NodeType = "opening_activity"
	NodeQuestion         NodeType = "question"
	NodeValidateResponse NodeType = "validate_response"
	NodeRephraseQuestion NodeType = "rephrase_question"
	NodeClosingActivity  NodeType = "closing_activity"
	NodeEnd              NodeType = "end"
)

// Message roles for the session transcript.
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Error variables for session protocol misuse and contention.
var (
	ErrFormNotFound    = errors.New("form not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionComplete = errors.New("session is already complete")
	ErrSessionBusy     = errors.New("session has another turn in flight")
)

// Message is one transcript entry. The transcript is append-only and is
// never read by the state machine's decision logic.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the mutable per-session record. It has a single
// owner at a time; the flow engine serializes all mutations.
type ConversationState struct {
	SessionID            string            `json:"session_id"`
	FormID               string            `json:"form_id"`
	CurrentNode          NodeType          `json:"current_node"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	Responses            map[string]string `json:"responses"`
	DynamicReferences    map[string]string `json:"dynamic_references"`
	MessageLog           []Message         `json:"message_log"`
	CurrentAttempts      int               `json:"current_attempts"`
	RequiresFollowUp     bool              `json:"requires_follow_up"`
	IsComplete           bool              `json:"is_complete"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// AppendMessage adds a transcript entry with the current time.
func (s *ConversationState) AppendMessage(role, content string) {
	s.MessageLog = append(s.MessageLog, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// CompletionSummary is returned with the final turn of a session.
type CompletionSummary struct {
	FormID           string            `json:"form_id"`
	SessionID        string            `json:"session_id"`
	Responses        map[string]string `json:"responses"`
	RequiresFollowUp bool              `json:"requires_follow_up"`
	FollowUp         string            `json:"follow_up,omitempty"`
}
