package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
)

// Deterministic template rendering used when the upstream endpoint is
// unavailable or returns malformed output. Same incident in, same text
// out, never fails.

func fallbackSummary(incident *domain.Incident, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "On %s, a %s incident titled %q began",
		formatForPrompt(incident.StartedAt, loc), incident.Severity, incident.Title)
	if len(incident.ServicesImpacted) > 0 {
		fmt.Fprintf(&b, ", impacting %s", strings.Join(incident.ServicesImpacted, ", "))
	}
	fmt.Fprintf(&b, ". The incident is currently %s.\n\n", incident.Status)

	first := incident.Timeline[0]
	last := incident.Timeline[len(incident.Timeline)-1]
	fmt.Fprintf(&b, "The first recorded event at %s was: %s. ",
		formatForPrompt(first.Timestamp, loc), first.Description)
	if len(incident.Timeline) > 1 {
		fmt.Fprintf(&b, "The most recent of %d recorded events, at %s, was: %s. ",
			len(incident.Timeline), formatForPrompt(last.Timestamp, loc), last.Description)
	}
	if incident.ResolvedAt != nil {
		fmt.Fprintf(&b, "The incident was resolved at %s.", formatForPrompt(*incident.ResolvedAt, loc))
	} else {
		b.WriteString("The incident has not yet been resolved.")
	}

	return b.String()
}

func fallbackSuggestions(incident *domain.Incident) []string {
	candidates := []string{
		fmt.Sprintf("Add monitoring and alerting coverage for %s", primaryService(incident)),
		fmt.Sprintf("Write or update the runbook for %s incidents", primaryService(incident)),
		"Schedule a blameless postmortem review with all responders",
		fmt.Sprintf("Verify rollback and mitigation procedures for %s", primaryService(incident)),
		"Add an automated regression test covering the failure mode",
	}

	existing := make(map[string]bool, len(incident.ActionItems))
	for _, a := range incident.ActionItems {
		existing[strings.ToLower(a.Title)] = true
	}

	out := make([]string, 0, MaxSuggestions)
	for _, c := range candidates {
		if !existing[strings.ToLower(c)] {
			out = append(out, c)
		}
		if len(out) == MaxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, "Schedule a blameless postmortem review")
	}
	return out
}

func fallbackReport(incident *domain.Incident, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Postmortem Report\n\n", incident.Title)

	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "The incident started on %s with severity %s and is currently %s.\n\n",
		formatForPrompt(incident.StartedAt, loc), incident.Severity, incident.Status)

	b.WriteString("## Impact\n")
	if len(incident.ServicesImpacted) > 0 {
		fmt.Fprintf(&b, "Impacted services: %s.\n\n", strings.Join(incident.ServicesImpacted, ", "))
	} else {
		b.WriteString("No impacted services were recorded.\n\n")
	}

	b.WriteString("## Root Cause Analysis\n")
	if incident.Summary != "" {
		b.WriteString(incident.Summary + "\n\n")
	} else {
		b.WriteString("Root cause analysis is pending.\n\n")
	}

	b.WriteString("## Timeline\n")
	if len(incident.Timeline) > 0 {
		for _, e := range incident.Timeline {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", formatForPrompt(e.Timestamp, loc), e.Description, e.Author)
		}
	} else {
		b.WriteString("No timeline recorded.\n")
	}
	b.WriteString("\n")

	b.WriteString("## Action Items\n")
	if len(incident.ActionItems) > 0 {
		for _, a := range incident.ActionItems {
			check := " "
			if a.Status == domain.ActionDone {
				check = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s (Owner: %s)\n", check, a.Title, a.Owner)
		}
	} else {
		b.WriteString("No action items recorded.\n")
	}
	b.WriteString("\n")

	b.WriteString("## Lessons Learned\n")
	b.WriteString("To be completed during the postmortem review.\n")

	return b.String()
}

func primaryService(incident *domain.Incident) string {
	if len(incident.ServicesImpacted) > 0 {
		return incident.ServicesImpacted[0]
	}
	return "the affected services"
}
