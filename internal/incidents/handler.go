package incidents

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/identity"
	"github.com/blamelessops/postmortem-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
// Patterns are registered flat so the AI module can hang its routes off
// the same /incidents/{id} subtree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Post("/incidents", h.CreateIncident)

	r.Get("/incidents/{id}", h.GetIncident)
	r.Patch("/incidents/{id}", h.UpdateIncident)
	r.Delete("/incidents/{id}", h.DeleteIncident)
	r.Get("/incidents/{id}/export", h.ExportIncident)

	r.Post("/incidents/{id}/timeline", h.AddTimelineEvent)
	r.Delete("/incidents/{id}/timeline/{eventId}", h.DeleteTimelineEvent)

	r.Post("/incidents/{id}/actions", h.AddActionItem)
	r.Patch("/incidents/{id}/actions/{actionId}", h.UpdateActionItem)
	r.Delete("/incidents/{id}/actions/{actionId}", h.DeleteActionItem)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrActionItemNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidActionState, Status: http.StatusBadRequest},
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title            string     `json:"title" validate:"required,min=1,max=500"`
	Severity         string     `json:"severity" validate:"required,oneof=SEV1 SEV2 SEV3 SEV4"`
	Status           string     `json:"status" validate:"required,oneof=investigating identified monitoring resolved"`
	Summary          string     `json:"summary" validate:"max=5000"`
	ServicesImpacted []string   `json:"servicesImpacted"`
	StartedAt        time.Time  `json:"startedAt" validate:"required"`
	ResolvedAt       *time.Time `json:"resolvedAt"`
}

// ToInput converts the request to a service input.
func (r *CreateIncidentRequest) ToInput() CreateIncidentInput {
	return CreateIncidentInput{
		Title:            r.Title,
		Severity:         domain.Severity(r.Severity),
		Status:           domain.IncidentStatus(r.Status),
		Summary:          r.Summary,
		ServicesImpacted: r.ServicesImpacted,
		StartedAt:        r.StartedAt,
		ResolvedAt:       r.ResolvedAt,
	}
}

// UpdateIncidentRequest represents a partial update. Absent keys leave
// the stored values untouched.
type UpdateIncidentRequest struct {
	Title            *string    `json:"title" validate:"omitempty,min=1,max=500"`
	Severity         *string    `json:"severity" validate:"omitempty,oneof=SEV1 SEV2 SEV3 SEV4"`
	Status           *string    `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	Summary          *string    `json:"summary" validate:"omitempty,max=5000"`
	ServicesImpacted *[]string  `json:"servicesImpacted"`
	StartedAt        *time.Time `json:"startedAt"`
	ResolvedAt       *time.Time `json:"resolvedAt"`
}

// ToInput converts the request to a service input.
func (r *UpdateIncidentRequest) ToInput() UpdateIncidentInput {
	input := UpdateIncidentInput{
		Title:            r.Title,
		Summary:          r.Summary,
		ServicesImpacted: r.ServicesImpacted,
		StartedAt:        r.StartedAt,
		ResolvedAt:       r.ResolvedAt,
	}
	if r.Severity != nil {
		s := domain.Severity(*r.Severity)
		input.Severity = &s
	}
	if r.Status != nil {
		s := domain.IncidentStatus(*r.Status)
		input.Status = &s
	}
	return input
}

// CreateTimelineEventRequest represents the request body for adding a
// timeline event.
type CreateTimelineEventRequest struct {
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Description string    `json:"description" validate:"required,min=1,max=2000"`
	Author      string    `json:"author" validate:"required,min=1,max=200"`
}

// CreateActionItemRequest represents the request body for adding an
// action item.
type CreateActionItemRequest struct {
	Title   string     `json:"title" validate:"required,min=1,max=500"`
	Owner   string     `json:"owner" validate:"required,min=1,max=200"`
	DueDate *time.Time `json:"dueDate"`
	Status  string     `json:"status" validate:"omitempty,oneof=open in_progress done"`
}

// UpdateActionItemRequest represents a partial action item update.
type UpdateActionItemRequest struct {
	Title   *string    `json:"title" validate:"omitempty,min=1,max=500"`
	Owner   *string    `json:"owner" validate:"omitempty,min=1,max=200"`
	DueDate *time.Time `json:"dueDate"`
	Status  *string    `json:"status" validate:"omitempty,oneof=open in_progress done"`
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())

	list, err := h.service.List(r.Context(), p.TenantID())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, list)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())

	incident, err := h.service.Get(r.Context(), p.TenantID(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, incident)
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	p := identity.FromContext(r.Context())
	incident, err := h.service.Create(r.Context(), p.TenantID(), p.DisplayName, req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusCreated, incident)
}

// UpdateIncident handles PATCH /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	p := identity.FromContext(r.Context())
	incident, err := h.service.Update(r.Context(), p.TenantID(), p.DisplayName, chi.URLParam(r, "id"), req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), p.TenantID(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddTimelineEvent handles POST /incidents/{id}/timeline.
func (h *Handler) AddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateTimelineEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	p := identity.FromContext(r.Context())
	event, err := h.service.AddTimelineEvent(r.Context(), p.TenantID(), p.DisplayName, chi.URLParam(r, "id"), AddTimelineEventInput{
		Timestamp:   req.Timestamp,
		Description: req.Description,
		Author:      req.Author,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusCreated, event)
}

// DeleteTimelineEvent handles DELETE /incidents/{id}/timeline/{eventId}.
func (h *Handler) DeleteTimelineEvent(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())

	err := h.service.DeleteTimelineEvent(r.Context(), p.TenantID(), p.DisplayName,
		chi.URLParam(r, "id"), chi.URLParam(r, "eventId"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddActionItem handles POST /incidents/{id}/actions.
func (h *Handler) AddActionItem(w http.ResponseWriter, r *http.Request) {
	var req CreateActionItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	p := identity.FromContext(r.Context())
	item, err := h.service.AddActionItem(r.Context(), p.TenantID(), p.DisplayName, chi.URLParam(r, "id"), AddActionItemInput{
		Title:   req.Title,
		Owner:   req.Owner,
		DueDate: req.DueDate,
		Status:  domain.ActionItemStatus(req.Status),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusCreated, item)
}

// UpdateActionItem handles PATCH /incidents/{id}/actions/{actionId}.
func (h *Handler) UpdateActionItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateActionItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateActionItemInput{
		Title:   req.Title,
		Owner:   req.Owner,
		DueDate: req.DueDate,
	}
	if req.Status != nil {
		s := domain.ActionItemStatus(*req.Status)
		input.Status = &s
	}

	p := identity.FromContext(r.Context())
	item, err := h.service.UpdateActionItem(r.Context(), p.TenantID(), p.DisplayName,
		chi.URLParam(r, "id"), chi.URLParam(r, "actionId"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// DeleteActionItem handles DELETE /incidents/{id}/actions/{actionId}.
func (h *Handler) DeleteActionItem(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())

	err := h.service.DeleteActionItem(r.Context(), p.TenantID(), p.DisplayName,
		chi.URLParam(r, "id"), chi.URLParam(r, "actionId"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportIncident handles GET /incidents/{id}/export.
func (h *Handler) ExportIncident(w http.ResponseWriter, r *http.Request) {
	p := identity.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	md, err := h.service.ExportMarkdown(r.Context(), p.TenantID(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Markdown(w, fmt.Sprintf("postmortem-%s.md", id), md)
}
