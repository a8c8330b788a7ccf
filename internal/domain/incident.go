// Package domain contains the incident aggregate and its embedded types.
package domain

import (
	"slices"
	"time"
)

// Severity represents the severity level of an incident.
type Severity string

// Severity levels.
const (
	SeveritySev1 Severity = "SEV1"
	SeveritySev2 Severity = "SEV2"
	SeveritySev3 Severity = "SEV3"
	SeveritySev4 Severity = "SEV4"
)

// IncidentStatus represents the current status of an incident.
type IncidentStatus string

// Incident statuses. Any status may transition to any other; the
// progression is user-controlled and not enforced.
const (
	StatusInvestigating IncidentStatus = "investigating"
	StatusIdentified    IncidentStatus = "identified"
	StatusMonitoring    IncidentStatus = "monitoring"
	StatusResolved      IncidentStatus = "resolved"
)

// ActionItemStatus represents the completion state of an action item.
type ActionItemStatus string

// Action item statuses.
const (
	ActionOpen       ActionItemStatus = "open"
	ActionInProgress ActionItemStatus = "in_progress"
	ActionDone       ActionItemStatus = "done"
)

// Incident is the aggregate root. The document and its embedded
// collections are stored and replaced as one unit; every mutation
// refreshes UpdatedAt and appends exactly one audit entry.
type Incident struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenantId"`
	Title            string          `json:"title"`
	Severity         Severity        `json:"severity"`
	Status           IncidentStatus  `json:"status"`
	Summary          string          `json:"summary,omitempty"`
	ServicesImpacted []string        `json:"servicesImpacted"`
	StartedAt        time.Time       `json:"startedAt"`
	ResolvedAt       *time.Time      `json:"resolvedAt,omitempty"`
	Timeline         []TimelineEvent `json:"timeline"`
	ActionItems      []ActionItem    `json:"actionItems"`
	AuditLog         []AuditEntry    `json:"auditLog"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// TimelineEvent is a single entry on an incident's timeline. Events are
// created and deleted by id, never updated in place.
type TimelineEvent struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
}

// ActionItem is a follow-up task attached to an incident. Items keep
// their insertion order.
type ActionItem struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Owner   string           `json:"owner"`
	DueDate *time.Time       `json:"dueDate,omitempty"`
	Status  ActionItemStatus `json:"status"`
}

// AuditEntry records one mutation of the aggregate. Entries are
// immutable once appended and are never removed or reordered.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Audit action tags.
const (
	AuditCreated         = "created"
	AuditUpdated         = "updated"
	AuditTimelineAdded   = "timeline_added"
	AuditTimelineDeleted = "timeline_deleted"
	AuditActionAdded     = "action_added"
	AuditActionUpdated   = "action_updated"
	AuditActionDeleted   = "action_deleted"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeveritySev1 || s == SeveritySev2 || s == SeveritySev3 || s == SeveritySev4
}

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	return s == StatusInvestigating ||
		s == StatusIdentified ||
		s == StatusMonitoring ||
		s == StatusResolved
}

// IsValid checks if the action item status is valid.
func (s ActionItemStatus) IsValid() bool {
	return s == ActionOpen || s == ActionInProgress || s == ActionDone
}

// Clone returns a deep copy of the incident. Mutating operations work on
// a copy and replace the stored document whole, so a half-applied merge
// never leaks into shared state. Empty collections stay empty rather
// than becoming nil so they keep serializing as [].
func (i *Incident) Clone() *Incident {
	out := *i
	out.ServicesImpacted = slices.Clone(i.ServicesImpacted)
	out.Timeline = slices.Clone(i.Timeline)
	out.ActionItems = slices.Clone(i.ActionItems)
	out.AuditLog = slices.Clone(i.AuditLog)
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
