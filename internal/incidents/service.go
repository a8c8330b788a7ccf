// Package incidents implements the incident aggregate and its
// read-modify-write mutation protocol.
package incidents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/pkg/metrics"
	"github.com/google/uuid"
)

// Service implements incident business logic. Every mutating operation
// is one point read followed by one whole-document write; the written
// aggregate carries a refreshed UpdatedAt and exactly one new audit
// entry. There is no version token, so concurrent writers to the same
// incident race last-write-wins on the whole document.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new incident service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title            string
	Severity         domain.Severity
	Status           domain.IncidentStatus
	Summary          string
	ServicesImpacted []string
	StartedAt        time.Time
	ResolvedAt       *time.Time
}

// UpdateIncidentInput holds a partial update. Nil fields are left
// untouched; only keys present in the request overwrite existing
// values (shallow merge).
type UpdateIncidentInput struct {
	Title            *string
	Severity         *domain.Severity
	Status           *domain.IncidentStatus
	Summary          *string
	ServicesImpacted *[]string
	StartedAt        *time.Time
	ResolvedAt       *time.Time
}

// AddTimelineEventInput holds data for appending a timeline event.
type AddTimelineEventInput struct {
	Timestamp   time.Time
	Description string
	Author      string
}

// AddActionItemInput holds data for appending an action item.
type AddActionItemInput struct {
	Title   string
	Owner   string
	DueDate *time.Time
	Status  domain.ActionItemStatus
}

// UpdateActionItemInput holds a partial action item update.
type UpdateActionItemInput struct {
	Title   *string
	Owner   *string
	DueDate *time.Time
	Status  *domain.ActionItemStatus
}

// Create validates input and writes a new aggregate with empty
// collections and a single "created" audit entry.
func (s *Service) Create(ctx context.Context, tenantID, actor string, input CreateIncidentInput) (*domain.Incident, error) {
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, input.Severity)
	}
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, input.Status)
	}

	services := input.ServicesImpacted
	if services == nil {
		services = make([]string, 0)
	}

	now := s.now()
	incident := &domain.Incident{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Title:            input.Title,
		Severity:         input.Severity,
		Status:           input.Status,
		Summary:          input.Summary,
		ServicesImpacted: services,
		StartedAt:        input.StartedAt,
		ResolvedAt:       input.ResolvedAt,
		Timeline:         make([]domain.TimelineEvent, 0),
		ActionItems:      make([]domain.ActionItem, 0),
		AuditLog:         []domain.AuditEntry{s.auditEntry(actor, domain.AuditCreated, "")},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditCreated).Inc()
	return incident, nil
}

// Get returns the aggregate for the tenant or ErrIncidentNotFound.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.Incident, error) {
	return s.store.Get(ctx, tenantID, id)
}

// List returns all aggregates for the tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]*domain.Incident, error) {
	list, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	if list == nil {
		list = make([]*domain.Incident, 0)
	}
	return list, nil
}

// Update shallow-merges the provided fields into the aggregate. The
// audit entry's details capture a JSON serialization of exactly the
// applied changes; an empty partial still advances UpdatedAt and
// appends one entry.
func (s *Service) Update(ctx context.Context, tenantID, actor, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	if input.Severity != nil && !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, *input.Severity)
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *input.Status)
	}

	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updated := existing.Clone()
	changes := make(map[string]any)

	if input.Title != nil {
		updated.Title = *input.Title
		changes["title"] = *input.Title
	}
	if input.Severity != nil {
		updated.Severity = *input.Severity
		changes["severity"] = *input.Severity
	}
	if input.Status != nil {
		updated.Status = *input.Status
		changes["status"] = *input.Status
	}
	if input.Summary != nil {
		updated.Summary = *input.Summary
		changes["summary"] = *input.Summary
	}
	if input.ServicesImpacted != nil {
		updated.ServicesImpacted = *input.ServicesImpacted
		changes["servicesImpacted"] = *input.ServicesImpacted
	}
	if input.StartedAt != nil {
		updated.StartedAt = *input.StartedAt
		changes["startedAt"] = *input.StartedAt
	}
	if input.ResolvedAt != nil {
		updated.ResolvedAt = input.ResolvedAt
		changes["resolvedAt"] = *input.ResolvedAt
	}

	details, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("serialize changes: %w", err)
	}

	s.touch(updated, actor, domain.AuditUpdated, string(details))

	if err := s.store.Replace(ctx, updated); err != nil {
		return nil, fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditUpdated).Inc()
	return updated, nil
}

// Delete removes the aggregate permanently. A missing id surfaces as
// ErrIncidentNotFound; there is no tombstone and no audit entry since
// the document ceases to exist.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	metrics.IncidentMutations.WithLabelValues("deleted").Inc()
	return nil
}

// AddTimelineEvent inserts an event and re-sorts the whole timeline
// ascending by timestamp. The sort is stable, so events with equal
// timestamps keep their insertion order.
func (s *Service) AddTimelineEvent(ctx context.Context, tenantID, actor, id string, input AddTimelineEventInput) (*domain.TimelineEvent, error) {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	event := domain.TimelineEvent{
		ID:          uuid.NewString(),
		Timestamp:   input.Timestamp,
		Description: input.Description,
		Author:      input.Author,
	}

	updated := existing.Clone()
	updated.Timeline = append(updated.Timeline, event)
	sort.SliceStable(updated.Timeline, func(i, j int) bool {
		return updated.Timeline[i].Timestamp.Before(updated.Timeline[j].Timestamp)
	})

	s.touch(updated, actor, domain.AuditTimelineAdded, event.Description)

	if err := s.store.Replace(ctx, updated); err != nil {
		return nil, fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditTimelineAdded).Inc()
	return &event, nil
}

// DeleteTimelineEvent removes the matching event by id. Zero matches is
// not an error: the write still happens with only UpdatedAt and the
// audit log advancing.
func (s *Service) DeleteTimelineEvent(ctx context.Context, tenantID, actor, id, eventID string) error {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	updated := existing.Clone()
	filtered := updated.Timeline[:0:0]
	for _, e := range updated.Timeline {
		if e.ID != eventID {
			filtered = append(filtered, e)
		}
	}
	updated.Timeline = filtered

	s.touch(updated, actor, domain.AuditTimelineDeleted, eventID)

	if err := s.store.Replace(ctx, updated); err != nil {
		return fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditTimelineDeleted).Inc()
	return nil
}

// AddActionItem appends an item to the collection. Items keep insertion
// order and are never re-sorted.
func (s *Service) AddActionItem(ctx context.Context, tenantID, actor, id string, input AddActionItemInput) (*domain.ActionItem, error) {
	status := input.Status
	if status == "" {
		status = domain.ActionOpen
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidActionState, status)
	}

	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	item := domain.ActionItem{
		ID:      uuid.NewString(),
		Title:   input.Title,
		Owner:   input.Owner,
		DueDate: input.DueDate,
		Status:  status,
	}

	updated := existing.Clone()
	updated.ActionItems = append(updated.ActionItems, item)

	s.touch(updated, actor, domain.AuditActionAdded, item.Title)

	if err := s.store.Replace(ctx, updated); err != nil {
		return nil, fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditActionAdded).Inc()
	return &item, nil
}

// UpdateActionItem shallow-merges the partial payload into the matching
// item. A missing item is ErrActionItemNotFound, distinct from
// ErrIncidentNotFound even though both map to 404.
func (s *Service) UpdateActionItem(ctx context.Context, tenantID, actor, id, actionID string, input UpdateActionItemInput) (*domain.ActionItem, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidActionState, *input.Status)
	}

	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updated := existing.Clone()
	idx := -1
	for i, a := range updated.ActionItems {
		if a.ID == actionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrActionItemNotFound
	}

	item := updated.ActionItems[idx]
	if input.Title != nil {
		item.Title = *input.Title
	}
	if input.Owner != nil {
		item.Owner = *input.Owner
	}
	if input.DueDate != nil {
		item.DueDate = input.DueDate
	}
	if input.Status != nil {
		item.Status = *input.Status
	}
	updated.ActionItems[idx] = item

	s.touch(updated, actor, domain.AuditActionUpdated, actionID)

	if err := s.store.Replace(ctx, updated); err != nil {
		return nil, fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditActionUpdated).Inc()
	return &item, nil
}

// DeleteActionItem removes the matching item by id. A missing item is a
// no-op on the collection, same as timeline deletes.
func (s *Service) DeleteActionItem(ctx context.Context, tenantID, actor, id, actionID string) error {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	updated := existing.Clone()
	filtered := updated.ActionItems[:0:0]
	for _, a := range updated.ActionItems {
		if a.ID != actionID {
			filtered = append(filtered, a)
		}
	}
	updated.ActionItems = filtered

	s.touch(updated, actor, domain.AuditActionDeleted, actionID)

	if err := s.store.Replace(ctx, updated); err != nil {
		return fmt.Errorf("replace incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues(domain.AuditActionDeleted).Inc()
	return nil
}

// ExportMarkdown renders the aggregate as a Markdown postmortem. Pure
// read-side projection: no write, no audit entry.
func (s *Service) ExportMarkdown(ctx context.Context, tenantID, id string) (string, error) {
	incident, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(incident, s.now()), nil
}

// touch refreshes UpdatedAt, keeping it monotone even if the wall clock
// stepped backwards, and appends one audit entry.
func (s *Service) touch(incident *domain.Incident, actor, action, details string) {
	now := s.now()
	if now.Before(incident.UpdatedAt) {
		now = incident.UpdatedAt
	}
	incident.UpdatedAt = now
	incident.AuditLog = append(incident.AuditLog, s.auditEntry(actor, action, details))
}

func (s *Service) auditEntry(actor, action, details string) domain.AuditEntry {
	if actor == "" {
		actor = "anonymous"
	}
	return domain.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		User:      actor,
		Action:    action,
		Details:   details,
	}
}
