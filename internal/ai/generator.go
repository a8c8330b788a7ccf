// Package ai generates incident narratives through a pluggable
// text-generation provider with a deterministic local fallback.
package ai

import "context"

// ChatRequest is one generation request: a system prompt framing the
// task and a user prompt carrying the incident snapshot.
type ChatRequest struct {
	System string
	User   string
}

// Generator produces free text from a prompt. Implementations wrap an
// outside endpoint or a local template renderer.
type Generator interface {
	Generate(ctx context.Context, req ChatRequest) (string, error)
}
