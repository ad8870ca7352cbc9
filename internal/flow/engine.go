// Package flow implements the conversation state machine that walks a
// respondent through a voice form: it owns per-session dialogue state,
// decides the next prompt from the current node and the respondent's
// latest input, enforces attempt limits, and terminates the session.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hutchutchutch/voiceform/internal/judge"
	"github.com/hutchutchutch/voiceform/internal/models"
	"github.com/hutchutchutch/voiceform/internal/store"
	"github.com/hutchutchutch/voiceform/internal/util"
)

// DefaultIdleTimeout is how long a session may sit untouched before it is
// expired. Zero disables expiry.
const DefaultIdleTimeout = 30 * time.Minute

// Turn is the outcome of one Start or Advance call: the text to speak next
// and, when the conversation has finished, the completion summary.
type Turn struct {
	SessionID string                    `json:"session_id"`
	Prompt    string                    `json:"prompt"`
	Done      bool                      `json:"done"`
	Summary   *models.CompletionSummary `json:"summary,omitempty"`
}

// Engine drives conversations through the node graph: opening_activity ->
// question -> validate_response -> (rephrase_question | question |
// closing_activity) -> end. Transitions are a total function of the
// current state and the judge's verdict; the judge is the only
// non-deterministic input.
type Engine struct {
	store    store.Store
	judge    judge.Judge
	locks    sessionLocks
	timer    *DialogueTimer
	idleTime time.Duration
}

// EngineOpts holds the options for creating an engine.
type EngineOpts struct {
	// IdleTimeout overrides DefaultIdleTimeout. Negative disables expiry.
	IdleTimeout time.Duration
}

// EngineOption configures an engine.
type EngineOption func(*EngineOpts)

// WithIdleTimeout sets how long idle sessions live before expiry.
func WithIdleTimeout(d time.Duration) EngineOption {
	return func(o *EngineOpts) { o.IdleTimeout = d }
}

// NewEngine creates a conversation engine backed by the given store and judge.
func NewEngine(st store.Store, j judge.Judge, opts ...EngineOption) *Engine {
	var cfg EngineOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	if idle < 0 {
		idle = 0
	}
	slog.Debug("Engine.NewEngine: creating engine", "idleTimeout", idle)
	return &Engine{
		store:    st,
		judge:    j,
		timer:    NewDialogueTimer(),
		idleTime: idle,
	}
}

// Start creates a new session for the form and returns the opening prompt
// and the first question prompt as one combined text, separated by a blank
// line. A form with no questions completes immediately.
func (e *Engine) Start(ctx context.Context, formID string) (*Turn, error) {
	form, err := e.store.GetForm(formID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form %s: %w", formID, err)
	}
	if form == nil {
		return nil, fmt.Errorf("form %s: %w", formID, models.ErrFormNotFound)
	}
	form.Normalize()

	now := time.Now().UTC()
	state := models.ConversationState{
		SessionID:            util.GenerateSessionID(),
		FormID:               form.ID,
		CurrentNode:          models.NodeOpeningActivity,
		CurrentQuestionIndex: 0,
		Responses:            make(map[string]string),
		DynamicReferences:    make(map[string]string),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var parts []string
	if form.Opening.Prompt != "" {
		parts = append(parts, Render(form.Opening.Prompt, state.DynamicReferences))
	}

	turn := &Turn{SessionID: state.SessionID}
	if len(form.Questions) == 0 {
		// Nothing to ask: go straight to closing.
		closing, summary := e.finishSession(form, &state)
		parts = append(parts, closing)
		turn.Done = true
		turn.Summary = summary
	} else {
		parts = append(parts, Render(form.Questions[0].Prompt, state.DynamicReferences))
		state.CurrentNode = models.NodeQuestion
	}
	turn.Prompt = strings.Join(parts, "\n\n")
	state.AppendMessage(models.RoleAssistant, turn.Prompt)

	if err := e.store.SaveSession(state); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	e.touchSession(state.SessionID, state.IsComplete)
	slog.Info("Engine.Start: session started", "sessionID", state.SessionID, "formID", form.ID, "questions", len(form.Questions))
	return turn, nil
}

// Advance feeds one respondent utterance into a session and returns the
// next prompt or the completion signal. At most one Advance is in flight
// per session; a losing concurrent call fails fast with ErrSessionBusy.
func (e *Engine) Advance(ctx context.Context, sessionID, userText string) (*Turn, error) {
	if !e.locks.tryLock(sessionID) {
		slog.Warn("Engine.Advance: session busy", "sessionID", sessionID)
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionBusy)
	}
	defer e.locks.unlock(sessionID)

	state, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if state == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	if state.IsComplete || state.CurrentNode == models.NodeEnd {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionComplete)
	}

	form, err := e.store.GetForm(state.FormID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form %s: %w", state.FormID, err)
	}
	if form == nil {
		return nil, fmt.Errorf("form %s: %w", state.FormID, models.ErrFormNotFound)
	}
	form.Normalize()

	state.AppendMessage(models.RoleUser, userText)
	state.CurrentNode = models.NodeValidateResponse

	var turn *Turn
	if state.CurrentQuestionIndex >= len(form.Questions) {
		// The form was replaced with fewer questions while this session was
		// mid-flight. Close out with what was collected instead of
		// referencing a question that no longer exists.
		slog.Warn("Engine.Advance: question index beyond form, closing session",
			"sessionID", sessionID, "index", state.CurrentQuestionIndex, "questions", len(form.Questions))
		turn = &Turn{SessionID: state.SessionID}
		closing, summary := e.finishSession(form, state)
		turn.Prompt = closing
		turn.Done = true
		turn.Summary = summary
		state.AppendMessage(models.RoleAssistant, turn.Prompt)
	} else {
		turn = e.transition(ctx, form, state, userText)
	}
	state.UpdatedAt = time.Now().UTC()

	if err := e.store.SaveSession(*state); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	e.touchSession(sessionID, state.IsComplete)
	return turn, nil
}

// transition runs the validate_response node and every deterministic hop
// that follows it, mutating state in place and producing the next turn.
func (e *Engine) transition(ctx context.Context, form *models.FormDefinition, state *models.ConversationState, userText string) *Turn {
	question := form.Questions[state.CurrentQuestionIndex]
	verdict := e.judge.Judge(ctx, question, userText)
	slog.Debug("Engine.transition: verdict",
		"sessionID", state.SessionID, "questionID", question.ID,
		"accepted", verdict.Accepted, "reason", verdict.Reason)

	turn := &Turn{SessionID: state.SessionID}

	if verdict.Accepted {
		state.Responses[question.ID] = verdict.CanonicalValue
		if question.CreateDynamicReference && question.ReferenceName != "" {
			state.DynamicReferences[question.ReferenceName] = verdict.CanonicalValue
		}
		state.CurrentQuestionIndex++
		state.CurrentAttempts = 0
		turn.Prompt = e.emitNextOrClosing(form, state, turn)
		state.AppendMessage(models.RoleAssistant, turn.Prompt)
		return turn
	}

	state.CurrentAttempts++
	if state.CurrentAttempts < question.MaxAttempts {
		// Retry: ask again with the rephrase prompt when the form has one.
		state.CurrentNode = models.NodeRephraseQuestion
		prompt := question.RephrasePrompt
		if prompt == "" {
			prompt = question.Prompt
		}
		turn.Prompt = Render(prompt, state.DynamicReferences)
		state.AppendMessage(models.RoleAssistant, turn.Prompt)
		return turn
	}

	// Attempts exhausted. Optional questions are skipped with no stored
	// response; a failed required question ends the form flagged for
	// human follow-up.
	if !question.IsRequired() {
		slog.Info("Engine.transition: skipping optional question",
			"sessionID", state.SessionID, "questionID", question.ID)
		state.CurrentQuestionIndex++
		state.CurrentAttempts = 0
		turn.Prompt = e.emitNextOrClosing(form, state, turn)
		state.AppendMessage(models.RoleAssistant, turn.Prompt)
		return turn
	}

	slog.Info("Engine.transition: required question failed, closing with follow-up",
		"sessionID", state.SessionID, "questionID", question.ID)
	state.RequiresFollowUp = true
	closing, summary := e.finishSession(form, state)
	turn.Prompt = closing
	turn.Done = true
	turn.Summary = summary
	state.AppendMessage(models.RoleAssistant, turn.Prompt)
	return turn
}

// emitNextOrClosing asks the next question if one remains, otherwise
// closes the session. It fills turn's Done/Summary fields on closing and
// returns the prompt text either way.
func (e *Engine) emitNextOrClosing(form *models.FormDefinition, state *models.ConversationState, turn *Turn) string {
	if state.CurrentQuestionIndex < len(form.Questions) {
		state.CurrentNode = models.NodeQuestion
		next := form.Questions[state.CurrentQuestionIndex]
		return Render(next.Prompt, state.DynamicReferences)
	}
	closing, summary := e.finishSession(form, state)
	turn.Done = true
	turn.Summary = summary
	return closing
}

// finishSession runs the closing_activity node and moves the session to
// end. Returns the rendered closing prompt and the completion summary.
func (e *Engine) finishSession(form *models.FormDefinition, state *models.ConversationState) (string, *models.CompletionSummary) {
	state.CurrentNode = models.NodeEnd
	state.IsComplete = true

	prompt := Render(form.Closing.Prompt, state.DynamicReferences)
	var followUp string
	if state.RequiresFollowUp && form.Closing.FollowUpTemplate != "" {
		followUp = Render(form.Closing.FollowUpTemplate, state.DynamicReferences)
		if prompt == "" {
			prompt = followUp
		} else {
			prompt = prompt + "\n\n" + followUp
		}
	}

	summary := &models.CompletionSummary{
		FormID:           form.ID,
		SessionID:        state.SessionID,
		Responses:        state.Responses,
		RequiresFollowUp: state.RequiresFollowUp,
		FollowUp:         followUp,
	}
	slog.Info("Engine.finishSession: session complete",
		"sessionID", state.SessionID, "formID", form.ID,
		"responses", len(state.Responses), "requiresFollowUp", state.RequiresFollowUp)
	return prompt, summary
}

// touchSession reschedules (or cancels) the idle-expiry timer for a session
// and releases the session's lock entry once the session completes.
func (e *Engine) touchSession(sessionID string, complete bool) {
	if complete {
		if e.idleTime > 0 {
			e.timer.Cancel(sessionID)
		}
		e.locks.forget(sessionID)
		return
	}
	if e.idleTime <= 0 {
		return
	}
	e.timer.Schedule(sessionID, e.idleTime, func() {
		// A turn still in flight holds the session lock; skip this expiry
		// and let the turn's own touch re-arm the timer.
		if !e.locks.tryLock(sessionID) {
			slog.Debug("Engine: skipping expiry, session has a turn in flight", "sessionID", sessionID)
			return
		}
		slog.Info("Engine: expiring idle session", "sessionID", sessionID)
		if err := e.store.DeleteSession(sessionID); err != nil {
			slog.Error("Engine: failed to expire idle session", "error", err, "sessionID", sessionID)
		}
		e.locks.forget(sessionID)
	})
}

// Stop cancels all pending idle-expiry timers. Called on shutdown.
func (e *Engine) Stop() {
	e.timer.Stop()
}

// sessionLocks serializes advances per session id. TryLock semantics: a
// losing concurrent caller gets a conflict instead of queueing, so client
// retries cannot pile up behind a slow judge call.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (s *sessionLocks) tryLock(sessionID string) bool {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	s.mu.Unlock()
	return lock.TryLock()
}

func (s *sessionLocks) unlock(sessionID string) {
	s.mu.Lock()
	lock := s.locks[sessionID]
	s.mu.Unlock()
	if lock != nil {
		lock.Unlock()
	}
}

func (s *sessionLocks) forget(sessionID string) {
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
}
