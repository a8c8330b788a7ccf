package incidents

import (
	"context"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
)

// Store defines the document-store contract for incident aggregates.
// Every lookup is qualified by tenant; an id that exists under a
// different tenant must surface as ErrIncidentNotFound, never as a
// distinct error. Replace overwrites the whole document.
type Store interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Get(ctx context.Context, tenantID, id string) (*domain.Incident, error)
	List(ctx context.Context, tenantID string) ([]*domain.Incident, error)
	Replace(ctx context.Context, incident *domain.Incident) error
	Delete(ctx context.Context, tenantID, id string) error
}
