package flow

import (
	"log/slog"
	"sync"
	"time"
)

// DialogueTimer tracks one idle-expiry timer per session. Scheduling a
// session that already has a timer replaces it, which is how a session is
// "touched" on every turn.
type DialogueTimer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDialogueTimer creates a new DialogueTimer.
func NewDialogueTimer() *DialogueTimer {
	return &DialogueTimer{timers: make(map[string]*time.Timer)}
}

// Schedule arms (or re-arms) the timer for a session to fire fn after
// delay. fn runs at most once per arming, on the timer's own goroutine.
func (t *DialogueTimer) Schedule(sessionID string, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[sessionID]; ok {
		existing.Stop()
	}
	t.timers[sessionID] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, sessionID)
		t.mu.Unlock()
		fn()
	})
	slog.Debug("DialogueTimer.Schedule: timer armed", "sessionID", sessionID, "delay", delay)
}

// Cancel disarms the timer for a session, if any.
func (t *DialogueTimer) Cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[sessionID]; ok {
		existing.Stop()
		delete(t.timers, sessionID)
		slog.Debug("DialogueTimer.Cancel: timer disarmed", "sessionID", sessionID)
	}
}

// Stop disarms all timers.
func (t *DialogueTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	slog.Debug("DialogueTimer.Stop: disarming all timers", "count", len(t.timers))
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
