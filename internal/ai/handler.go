package ai

import (
	"encoding/json"
	"net/http"

	"github.com/blamelessops/postmortem-tracker/internal/identity"
	"github.com/blamelessops/postmortem-tracker/internal/incidents"
	"github.com/blamelessops/postmortem-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Handler handles HTTP requests for narrative generation.
type Handler struct {
	service *NarrativeService
	limiter *rate.Limiter
}

// NewHandler creates a new AI handler. The limiter bounds upstream
// calls across all callers of this process.
func NewHandler(service *NarrativeService, limiter *rate.Limiter) *Handler {
	return &Handler{
		service: service,
		limiter: limiter,
	}
}

// RegisterRoutes registers generation routes under /incidents/{id}/ai.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/incidents/{id}/ai/summary", h.GenerateSummary)
	r.Post("/incidents/{id}/ai/actions", h.SuggestActions)
	r.Post("/incidents/{id}/ai/report", h.GenerateReport)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: incidents.ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrEmptyTimeline, Status: http.StatusBadRequest},
	{Error: ErrGenerationFailed, Status: http.StatusInternalServerError, Message: ErrGenerationFailed.Error()},
	{Error: ErrNotConfigured, Status: http.StatusInternalServerError, Message: ErrNotConfigured.Error()},
}

// timezoneRequest is the optional body carrying the caller's timezone
// hint. A missing or malformed body falls back to UTC.
type timezoneRequest struct {
	Timezone       string `json:"timezone"`
	TimezoneOffset int    `json:"timezoneOffset"`
}

func decodeTimezone(r *http.Request) string {
	var req timezoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.Timezone
}

func (h *Handler) allow(w http.ResponseWriter) bool {
	if h.limiter != nil && !h.limiter.Allow() {
		httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded, try again shortly")
		return false
	}
	return true
}

// GenerateSummary handles POST /incidents/{id}/ai/summary.
func (h *Handler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	p := identity.FromContext(r.Context())
	summary, err := h.service.Summary(r.Context(), p.TenantID(), chi.URLParam(r, "id"), decodeTimezone(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// SuggestActions handles POST /incidents/{id}/ai/actions.
func (h *Handler) SuggestActions(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	p := identity.FromContext(r.Context())
	suggestions, err := h.service.SuggestActions(r.Context(), p.TenantID(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

// GenerateReport handles POST /incidents/{id}/ai/report.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	p := identity.FromContext(r.Context())
	report, err := h.service.Report(r.Context(), p.TenantID(), chi.URLParam(r, "id"), decodeTimezone(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"report": report})
}
