package ai

import "errors"

// Narrative errors.
var (
	ErrEmptyTimeline    = errors.New("add at least one timeline event before generating a summary")
	ErrGenerationFailed = errors.New("generation failed, try again")
	ErrNotConfigured    = errors.New("generation provider is not configured")
)
