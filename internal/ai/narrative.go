package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/pkg/ctxlog"
	"github.com/blamelessops/postmortem-tracker/internal/pkg/metrics"
)

// IncidentReader provides read access to incident aggregates. Narrative
// generation never writes; persisting generated text is an explicit
// update decision left to the caller.
type IncidentReader interface {
	Get(ctx context.Context, tenantID, id string) (*domain.Incident, error)
}

// MaxSuggestions bounds the suggested action list.
const MaxSuggestions = 5

// NarrativeService builds prompts from incident snapshots, delegates to
// the configured generator, and parses the response shape. When the
// upstream fails or returns malformed output it makes one deterministic
// local fallback attempt before reporting ErrGenerationFailed.
type NarrativeService struct {
	incidents IncidentReader
	generator Generator
	fallback  bool
}

// NewNarrativeService creates a new narrative service. fallback enables
// the deterministic template fallback.
func NewNarrativeService(incidents IncidentReader, generator Generator, fallback bool) *NarrativeService {
	return &NarrativeService{
		incidents: incidents,
		generator: generator,
		fallback:  fallback,
	}
}

var jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*?\]`)

// Summary produces a free-text incident summary. The incident must have
// at least one timeline event.
func (s *NarrativeService) Summary(ctx context.Context, tenantID, id, timezone string) (string, error) {
	incident, err := s.incidents.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	if len(incident.Timeline) == 0 {
		return "", ErrEmptyTimeline
	}

	loc := loadLocation(timezone)
	started := formatForPrompt(incident.StartedAt, loc)

	var timeline strings.Builder
	for _, e := range incident.Timeline {
		fmt.Fprintf(&timeline, "- %s: %s (by %s)\n", formatForPrompt(e.Timestamp, loc), e.Description, e.Author)
	}

	req := ChatRequest{
		System: "You are an expert Site Reliability Engineer writing incident postmortem summaries. " +
			"Be concise, professional, and blameless. Write 2-3 paragraphs. Do not use markdown formatting or headers. " +
			"CRITICAL: Use the exact dates and times provided - do not change them.",
		User: fmt.Sprintf(`Write an incident summary. Use the EXACT dates/times below - do not modify them:

Title: %s
Severity: %s
Status: %s
Incident Start Time: %s
Services Affected: %s

Timeline:
%s
Cover: what happened, the impact, root cause (if apparent from timeline), and resolution. Start by mentioning the incident occurred on %s.`,
			incident.Title, incident.Severity, incident.Status, started,
			servicesOrDefault(incident), timeline.String(), started),
	}

	text, err := s.generator.Generate(ctx, req)
	if err != nil {
		if s.fallback {
			ctxlog.FromContext(ctx).Warn("summary generation failed, using fallback", "error", err)
			metrics.AIGenerations.WithLabelValues("summary", "fallback").Inc()
			return fallbackSummary(incident, loc), nil
		}
		metrics.AIGenerations.WithLabelValues("summary", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	metrics.AIGenerations.WithLabelValues("summary", "ok").Inc()
	return text, nil
}

// SuggestActions produces up to MaxSuggestions short follow-up action
// items. An empty or unparseable upstream result falls back to the
// deterministic list; a success is never empty.
func (s *NarrativeService) SuggestActions(ctx context.Context, tenantID, id string) ([]string, error) {
	incident, err := s.incidents.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var existing strings.Builder
	for _, a := range incident.ActionItems {
		fmt.Fprintf(&existing, "- %s\n", a.Title)
	}

	planned := ""
	if existing.Len() > 0 {
		planned = fmt.Sprintf("Already planned (do not repeat these):\n%s\n", existing.String())
	}

	summary := incident.Summary
	if summary == "" {
		summary = "No summary"
	}

	req := ChatRequest{
		System: "You are an expert Site Reliability Engineer. You must respond with ONLY a JSON array of strings " +
			"containing action items. No other text, no explanation, no markdown - just the JSON array.",
		User: fmt.Sprintf(`Suggest 4 follow-up action items for this incident:

Incident: %s
Severity: %s
Services: %s
Summary: %s

%sRespond with ONLY a JSON array like: ["Add monitoring for X", "Create runbook for Y", "Review Z", "Implement W"]`,
			incident.Title, incident.Severity, servicesOrDefault(incident), summary, planned),
	}

	text, genErr := s.generator.Generate(ctx, req)
	if genErr == nil {
		if suggestions := parseSuggestions(text); len(suggestions) > 0 {
			metrics.AIGenerations.WithLabelValues("actions", "ok").Inc()
			return suggestions, nil
		}
		genErr = fmt.Errorf("no parseable suggestions in response")
	}

	if s.fallback {
		ctxlog.FromContext(ctx).Warn("action suggestion failed, using fallback", "error", genErr)
		metrics.AIGenerations.WithLabelValues("actions", "fallback").Inc()
		return fallbackSuggestions(incident), nil
	}
	metrics.AIGenerations.WithLabelValues("actions", "error").Inc()
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
}

// Report produces a full Markdown postmortem report.
func (s *NarrativeService) Report(ctx context.Context, tenantID, id, timezone string) (string, error) {
	incident, err := s.incidents.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}

	loc := loadLocation(timezone)
	started := formatForPrompt(incident.StartedAt, loc)
	resolved := "Ongoing"
	if incident.ResolvedAt != nil {
		resolved = formatForPrompt(*incident.ResolvedAt, loc)
	}

	timeline := "No timeline recorded"
	if len(incident.Timeline) > 0 {
		var b strings.Builder
		for _, e := range incident.Timeline {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", formatForPrompt(e.Timestamp, loc), e.Description, e.Author)
		}
		timeline = strings.TrimRight(b.String(), "\n")
	}

	actions := "No action items"
	if len(incident.ActionItems) > 0 {
		var b strings.Builder
		for _, a := range incident.ActionItems {
			check := " "
			if a.Status == domain.ActionDone {
				check = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s (Owner: %s)\n", check, a.Title, a.Owner)
		}
		actions = strings.TrimRight(b.String(), "\n")
	}

	summary := incident.Summary
	if summary == "" {
		summary = "Not provided"
	}

	req := ChatRequest{
		System: "You are an expert Site Reliability Engineer writing comprehensive incident postmortem reports. " +
			"Use proper Markdown formatting with headers.\n\n" +
			"CRITICAL INSTRUCTION: You MUST use the EXACT dates and times provided. Do NOT change, recalculate, " +
			"or adjust any timestamps. Copy them exactly as given.",
		User: fmt.Sprintf(`Write a complete postmortem report. COPY ALL DATES EXACTLY - DO NOT CHANGE THEM:

=== INCIDENT DETAILS (USE THESE EXACT VALUES) ===
Title: %s
Severity: %s
Status: %s
INCIDENT START TIME: %s
RESOLUTION TIME: %s
Services: %s
Summary: %s

=== TIMELINE (COPY THESE TIMESTAMPS EXACTLY) ===
%s

=== ACTION ITEMS ===
%s

Write a professional Markdown postmortem report. In the Executive Summary, state that the incident started on "%s". Include these sections:

# %s Postmortem Report
## Executive Summary
## Impact
## Root Cause Analysis
## Timeline
## Action Items
## Lessons Learned`,
			incident.Title, incident.Severity, incident.Status, started, resolved,
			servicesOrDefault(incident), summary, timeline, actions, started, incident.Title),
	}

	text, err := s.generator.Generate(ctx, req)
	if err != nil {
		if s.fallback {
			ctxlog.FromContext(ctx).Warn("report generation failed, using fallback", "error", err)
			metrics.AIGenerations.WithLabelValues("report", "fallback").Inc()
			return fallbackReport(incident, loc), nil
		}
		metrics.AIGenerations.WithLabelValues("report", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	metrics.AIGenerations.WithLabelValues("report", "ok").Inc()
	return text, nil
}

// parseSuggestions extracts the first JSON array of strings from the
// reply, drops empty entries, and caps the result.
func parseSuggestions(text string) []string {
	match := jsonArrayPattern.FindString(text)
	if match == "" {
		return nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

func servicesOrDefault(incident *domain.Incident) string {
	if len(incident.ServicesImpacted) == 0 {
		return "Not specified"
	}
	return strings.Join(incident.ServicesImpacted, ", ")
}

// loadLocation resolves the caller's timezone hint, falling back to UTC
// when it is absent or invalid.
func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func formatForPrompt(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("January 2, 2006 at 3:04 PM")
}
