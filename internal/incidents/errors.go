package incidents

import "errors"

// Service errors.
var (
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrActionItemNotFound = errors.New("action item not found")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidActionState = errors.New("invalid action item status")
)
