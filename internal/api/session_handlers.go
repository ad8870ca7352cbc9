// Package api provides session lifecycle handlers for voiceform endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hutchutchutch/voiceform/internal/models"
)

// startSessionRequest is the body for POST /sessions.
type startSessionRequest struct {
	FormID string `json:"form_id"`
}

// advanceSessionRequest is the body for POST /sessions/{id}/advance.
type advanceSessionRequest struct {
	Text string `json:"text"`
}

// startSessionHandler handles POST /sessions
func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("startSessionHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("startSessionHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.FormID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("form_id is required"))
		return
	}

	turn, err := s.engine.Start(r.Context(), req.FormID)
	if err != nil {
		if errors.Is(err, models.ErrFormNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Form not found"))
			return
		}
		slog.Error("startSessionHandler start failed", "error", err, "formID", req.FormID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start session"))
		return
	}

	slog.Info("Session started successfully", "sessionID", turn.SessionID, "formID", req.FormID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session started successfully", turn))
}

// advanceSessionHandler handles POST /sessions/{id}/advance
func (s *Server) advanceSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("advanceSessionHandler invoked", "sessionID", sessionID)

	var req advanceSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("advanceSessionHandler invalid JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	turn, err := s.engine.Advance(r.Context(), sessionID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrSessionComplete):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is already complete"))
		case errors.Is(err, models.ErrSessionBusy):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session has another turn in flight, retry shortly"))
		case errors.Is(err, models.ErrFormNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Form not found"))
		default:
			slog.Error("advanceSessionHandler advance failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to advance session"))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

// getSessionHandler handles GET /sessions/{id}
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("getSessionHandler invoked", "sessionID", sessionID)

	state, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("getSessionHandler load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// getTranscriptHandler handles GET /sessions/{id}/transcript
func (s *Server) getTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("getTranscriptHandler invoked", "sessionID", sessionID)

	state, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("getTranscriptHandler load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	transcript := state.MessageLog
	if transcript == nil {
		transcript = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(transcript))
}

// deleteSessionHandler handles DELETE /sessions/{id}
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("deleteSessionHandler invoked", "sessionID", sessionID)

	state, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("deleteSessionHandler load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	if err := s.st.DeleteSession(sessionID); err != nil {
		slog.Error("deleteSessionHandler delete failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	slog.Info("Session deleted successfully", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted successfully", nil))
}
