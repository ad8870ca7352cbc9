// Package api provides form definition management handlers for voiceform endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hutchutchutch/voiceform/internal/models"
	"github.com/hutchutchutch/voiceform/internal/util"
)

// createFormHandler handles POST /forms
func (s *Server) createFormHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("createFormHandler invoked", "method", r.Method, "path", r.URL.Path)

	var form models.FormDefinition
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		slog.Warn("createFormHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if form.ID == "" {
		form.ID = util.GenerateFormID()
	}

	// Definition errors fail closed: the whole form is rejected and no
	// partial state is created.
	if err := form.Validate(); err != nil {
		slog.Warn("createFormHandler validation failed", "error", err, "formID", form.ID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	form.Normalize()

	if err := s.st.SaveForm(form); err != nil {
		slog.Error("createFormHandler save failed", "error", err, "formID", form.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save form"))
		return
	}

	slog.Info("Form created successfully", "formID", form.ID, "questions", len(form.Questions))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Form created successfully", form))
}

// listFormsHandler handles GET /forms
func (s *Server) listFormsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("listFormsHandler invoked", "method", r.Method, "path", r.URL.Path)

	forms, err := s.st.ListForms()
	if err != nil {
		slog.Error("listFormsHandler list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list forms"))
		return
	}
	if forms == nil {
		forms = []models.FormDefinition{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(forms))
}

// getFormHandler handles GET /forms/{id}
func (s *Server) getFormHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slog.Debug("getFormHandler invoked", "formID", id)

	form, err := s.st.GetForm(id)
	if err != nil {
		slog.Error("getFormHandler load failed", "error", err, "formID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load form"))
		return
	}
	if form == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Form not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(form))
}

// deleteFormHandler handles DELETE /forms/{id}
func (s *Server) deleteFormHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slog.Debug("deleteFormHandler invoked", "formID", id)

	form, err := s.st.GetForm(id)
	if err != nil {
		slog.Error("deleteFormHandler load failed", "error", err, "formID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load form"))
		return
	}
	if form == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Form not found"))
		return
	}

	if err := s.st.DeleteForm(id); err != nil {
		slog.Error("deleteFormHandler delete failed", "error", err, "formID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete form"))
		return
	}
	slog.Info("Form deleted successfully", "formID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Form deleted successfully", nil))
}
