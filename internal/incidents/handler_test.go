package incidents

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) chi.Router {
	t.Helper()

	svc := NewService(newMockStore())
	handler := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := identity.Principal{UserID: "u-1", DisplayName: "alice", Provider: "test"}
			next.ServeHTTP(w, req.WithContext(identity.WithPrincipal(req.Context(), p)))
		})
	})
	handler.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1, "error body must be flat")
	return body["error"]
}

func createIncidentPayload() map[string]any {
	return map[string]any{
		"title":            "API Outage",
		"severity":         "SEV2",
		"status":           "investigating",
		"servicesImpacted": []string{"api"},
		"startedAt":        "2026-01-09T12:00:00Z",
	}
}

func TestHandler_CreateIncident(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var incident domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &incident))
	assert.NotEmpty(t, incident.ID)
	assert.Equal(t, "API Outage", incident.Title)
	assert.Equal(t, identity.DefaultTenant, incident.TenantID)
	require.Len(t, incident.AuditLog, 1)
	assert.Equal(t, "alice", incident.AuditLog[0].User)
}

func TestHandler_CreateIncident_Validation(t *testing.T) {
	r := setupTestRouter(t)

	payload := createIncidentPayload()
	payload["severity"] = "SEV9"
	rec := doJSON(t, r, http.MethodPost, "/incidents", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "Severity")

	delete(payload, "severity")
	delete(payload, "title")
	rec = doJSON(t, r, http.MethodPost, "/incidents", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "validation error")
}

func TestHandler_CreateIncident_BadJSON(t *testing.T) {
	r := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/incidents", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid json", errorBody(t, rec))
}

func TestHandler_GetIncident_NotFound(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/incidents/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "incident not found", errorBody(t, rec))
}

func TestHandler_ListIncidents_Empty(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/incidents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandler_UpdateIncident(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodPatch, "/incidents/"+created.ID, map[string]any{
		"status": "resolved",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, domain.StatusResolved, updated.Status)
	assert.Equal(t, created.Title, updated.Title)
	assert.Len(t, updated.AuditLog, 2)
}

func TestHandler_DeleteIncident(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodDelete, "/incidents/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	// Delete of a missing incident is 404, not 204.
	rec = doJSON(t, r, http.MethodDelete, "/incidents/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "incident not found", errorBody(t, rec))
}

func TestHandler_TimelineLifecycle(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodPost, "/incidents/"+created.ID+"/timeline", map[string]any{
		"timestamp":   "2026-01-09T12:05:00Z",
		"description": "Alert fired",
		"author":      "bot",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var event domain.TimelineEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.NotEmpty(t, event.ID)

	rec = doJSON(t, r, http.MethodDelete, "/incidents/"+created.ID+"/timeline/"+event.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/incidents/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Timeline)
	assert.Len(t, got.AuditLog, 3)
}

func TestHandler_TimelineValidation(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodPost, "/incidents/"+created.ID+"/timeline", map[string]any{
		"timestamp": "2026-01-09T12:05:00Z",
		"author":    "bot",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "Description")
}

func TestHandler_ActionItemLifecycle(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodPost, "/incidents/"+created.ID+"/actions", map[string]any{
		"title": "Add alert",
		"owner": "bob",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.ActionItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, domain.ActionOpen, item.Status)

	rec = doJSON(t, r, http.MethodPatch, "/incidents/"+created.ID+"/actions/"+item.ID, map[string]any{
		"status": "done",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var patched domain.ActionItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.Equal(t, domain.ActionDone, patched.Status)
	assert.Equal(t, "Add alert", patched.Title)

	rec = doJSON(t, r, http.MethodDelete, "/incidents/"+created.ID+"/actions/"+item.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_UpdateActionItem_NotFound(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodPatch, "/incidents/"+created.ID+"/actions/no-such-action", map[string]any{
		"status": "done",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "action item not found", errorBody(t, rec))
}

func TestHandler_ExportIncident(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/incidents", createIncidentPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, http.MethodGet, "/incidents/"+created.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "postmortem-"+created.ID+".md")
	assert.Contains(t, rec.Body.String(), "# Postmortem: API Outage")
}

func TestHandler_ExportIncident_NotFound(t *testing.T) {
	r := setupTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/incidents/missing/export", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
