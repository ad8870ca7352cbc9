package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hutchutchutch/voiceform/internal/flow"
	"github.com/hutchutchutch/voiceform/internal/judge"
	"github.com/hutchutchutch/voiceform/internal/models"
	"github.com/hutchutchutch/voiceform/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, judge.NewRuleJudge(), flow.WithIdleTimeout(-1))
	t.Cleanup(engine.Stop)
	return NewServer(st, engine), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func surveyForm() models.FormDefinition {
	return models.FormDefinition{
		ID:      "form_survey",
		Name:    "Survey",
		Opening: models.OpeningActivity{Prompt: "Welcome."},
		Questions: []models.Question{
			{ID: "q1", Order: 0, Prompt: "Do you enjoy hiking?", ExpectedFormat: models.FormatYesNo},
		},
		Closing: models.ClosingActivity{Prompt: "Thanks."},
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("health response status = %q", resp.Status)
	}
}

func TestCreateAndGetForm(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/forms", surveyForm())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create form status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, resp := doJSON(t, h, http.MethodGet, "/forms/form_survey", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get form status = %d", rec.Code)
	}
	result, _ := resp.Result.(map[string]interface{})
	if result["name"] != "Survey" {
		t.Errorf("form result = %+v", resp.Result)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/forms/form_absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing form status = %d, want 404", rec.Code)
	}
}

func TestCreateFormAssignsID(t *testing.T) {
	srv, _ := newTestServer(t)

	form := surveyForm()
	form.ID = ""
	_, resp := doJSON(t, srv.Handler(), http.MethodPost, "/forms", form)
	result, _ := resp.Result.(map[string]interface{})
	id, _ := result["id"].(string)
	if len(id) == 0 {
		t.Errorf("expected generated form id, got %+v", resp.Result)
	}
}

func TestCreateFormValidationRejected(t *testing.T) {
	srv, st := newTestServer(t)

	form := surveyForm()
	form.Questions[0].ExpectedFormat = "riddle"
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/forms", form)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid form status = %d, want 400", rec.Code)
	}

	// Fails closed: nothing stored.
	stored, _ := st.GetForm("form_survey")
	if stored != nil {
		t.Error("invalid form must not be stored")
	}
}

func TestDeleteForm(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/forms", surveyForm())
	rec, _ := doJSON(t, h, http.MethodDelete, "/forms/form_survey", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete form status = %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodDelete, "/forms/form_survey", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/forms", surveyForm())

	rec, resp := doJSON(t, h, http.MethodPost, "/sessions", startSessionRequest{FormID: "form_survey"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session status = %d, body %s", rec.Code, rec.Body.String())
	}
	result, _ := resp.Result.(map[string]interface{})
	sessionID, _ := result["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("start response missing session id: %+v", resp.Result)
	}
	prompt, _ := result["prompt"].(string)
	if prompt != "Welcome.\n\nDo you enjoy hiking?" {
		t.Errorf("start prompt = %q", prompt)
	}

	advancePath := fmt.Sprintf("/sessions/%s/advance", sessionID)
	rec, resp = doJSON(t, h, http.MethodPost, advancePath, advanceSessionRequest{Text: "yes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("advance status = %d, body %s", rec.Code, rec.Body.String())
	}
	result, _ = resp.Result.(map[string]interface{})
	if done, _ := result["done"].(bool); !done {
		t.Errorf("expected completed turn, got %+v", result)
	}

	// Transcript reflects the whole dialogue.
	rec, resp = doJSON(t, h, http.MethodGet, fmt.Sprintf("/sessions/%s/transcript", sessionID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript status = %d", rec.Code)
	}
	entries, _ := resp.Result.([]interface{})
	if len(entries) != 3 {
		t.Errorf("transcript length = %d, want 3", len(entries))
	}

	// Protocol misuse: advancing a finished session is a conflict.
	rec, _ = doJSON(t, h, http.MethodPost, advancePath, advanceSessionRequest{Text: "more"})
	if rec.Code != http.StatusConflict {
		t.Errorf("advance after completion status = %d, want 409", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/sessions/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete session status = %d", rec.Code)
	}
}

func TestStartSessionUnknownForm(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/sessions", startSessionRequest{FormID: "form_absent"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("start with unknown form status = %d, want 404", rec.Code)
	}
}

func TestStartSessionMissingFormID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/sessions", startSessionRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("start without form_id status = %d, want 400", rec.Code)
	}
}

func TestAdvanceUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/sessions/sess_absent/advance", advanceSessionRequest{Text: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("advance unknown session status = %d, want 404", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/forms", surveyForm())
	_, resp := doJSON(t, h, http.MethodPost, "/sessions", startSessionRequest{FormID: "form_survey"})
	result, _ := resp.Result.(map[string]interface{})
	sessionID, _ := result["session_id"].(string)
	doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/advance", sessionID), advanceSessionRequest{Text: "yes"})

	rec, resp := doJSON(t, h, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats, _ := resp.Result.(map[string]interface{})
	if stats["forms"].(float64) != 1 {
		t.Errorf("stats forms = %v, want 1", stats["forms"])
	}
	if stats["sessions_complete"].(float64) != 1 {
		t.Errorf("stats sessions_complete = %v, want 1", stats["sessions_complete"])
	}
}
