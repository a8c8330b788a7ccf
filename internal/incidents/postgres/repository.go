// Package postgres provides the PostgreSQL implementation of the
// incident document store. Aggregates are stored whole as JSONB rows
// keyed by (id, tenant_id); single-row reads and replaces give the
// strong per-document consistency the mutation protocol relies on.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the incidents.Store interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new incident document.
func (r *Repository) Create(ctx context.Context, incident *domain.Incident) error {
	doc, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	query := `
		INSERT INTO incidents (id, tenant_id, doc, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, incident.ID, incident.TenantID, doc, incident.CreatedAt); err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get reads a single incident document. A row under a different tenant
// is indistinguishable from an absent one.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*domain.Incident, error) {
	query := `
		SELECT doc FROM incidents
		WHERE id = $1 AND tenant_id = $2
	`
	var doc []byte
	if err := r.db.QueryRow(ctx, query, id, tenantID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	var incident domain.Incident
	if err := json.Unmarshal(doc, &incident); err != nil {
		return nil, fmt.Errorf("unmarshal incident: %w", err)
	}
	return &incident, nil
}

// List returns all of a tenant's incidents, newest first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]*domain.Incident, error) {
	query := `
		SELECT doc FROM incidents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Incident, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		var incident domain.Incident
		if err := json.Unmarshal(doc, &incident); err != nil {
			return nil, fmt.Errorf("unmarshal incident: %w", err)
		}
		list = append(list, &incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return list, nil
}

// Replace overwrites the whole document.
func (r *Repository) Replace(ctx context.Context, incident *domain.Incident) error {
	doc, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	query := `
		UPDATE incidents SET doc = $3
		WHERE id = $1 AND tenant_id = $2
	`
	tag, err := r.db.Exec(ctx, query, incident.ID, incident.TenantID, doc)
	if err != nil {
		return fmt.Errorf("replace incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// Delete removes the document permanently.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	query := `
		DELETE FROM incidents
		WHERE id = $1 AND tenant_id = $2
	`
	tag, err := r.db.Exec(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}
