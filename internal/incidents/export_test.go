package incidents

import (
	"strings"
	"testing"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown_FullDocument(t *testing.T) {
	started := time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)
	resolved := time.Date(2026, 1, 9, 14, 30, 0, 0, time.UTC)
	due := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	inc := &domain.Incident{
		ID:               "inc-1",
		TenantID:         "default",
		Title:            "API Outage",
		Severity:         domain.SeveritySev2,
		Status:           domain.StatusResolved,
		Summary:          "A bad deploy took the API down.",
		ServicesImpacted: []string{"api", "billing"},
		StartedAt:        started,
		ResolvedAt:       &resolved,
		Timeline: []domain.TimelineEvent{
			{ID: "e1", Timestamp: started.Add(5 * time.Minute), Description: "Alert fired", Author: "bot"},
			{ID: "e2", Timestamp: started.Add(20 * time.Minute), Description: "Rollback started", Author: "alice"},
		},
		ActionItems: []domain.ActionItem{
			{ID: "a1", Title: "Add canary stage", Owner: "bob", Status: domain.ActionOpen},
			{ID: "a2", Title: "Fix alert threshold", Owner: "carol", DueDate: &due, Status: domain.ActionDone},
		},
	}

	doc := RenderMarkdown(inc, now)

	assert.True(t, strings.HasPrefix(doc, "# Postmortem: API Outage\n"))
	assert.Contains(t, doc, "**Severity:** SEV2  \n")
	assert.Contains(t, doc, "**Status:** resolved  \n")
	assert.Contains(t, doc, "**Started:** 2026-01-09T12:00:00Z  \n")
	assert.Contains(t, doc, "**Resolved:** 2026-01-09T14:30:00Z  \n")

	assert.Contains(t, doc, "## Services Impacted\n- api\n- billing\n")
	assert.Contains(t, doc, "## Summary\nA bad deploy took the API down.\n")

	// Timeline bullets in stored order.
	first := strings.Index(doc, "- **2026-01-09T12:05:00Z** (bot): Alert fired")
	second := strings.Index(doc, "- **2026-01-09T12:20:00Z** (alice): Rollback started")
	require.Greater(t, first, 0)
	require.Greater(t, second, first)

	assert.Contains(t, doc, "- [ ] Add canary stage — *bob*\n")
	assert.Contains(t, doc, "- [x] Fix alert threshold — *carol* (due 2026-01-16T00:00:00Z)\n")

	assert.True(t, strings.HasSuffix(doc, "---\n*Generated at 2026-01-10T08:00:00Z*"))
}

func TestRenderMarkdown_OmitsEmptySections(t *testing.T) {
	inc := &domain.Incident{
		Title:     "Quiet Incident",
		Severity:  domain.SeveritySev4,
		Status:    domain.StatusInvestigating,
		StartedAt: time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC),
	}

	doc := RenderMarkdown(inc, time.Date(2026, 1, 9, 13, 0, 0, 0, time.UTC))

	assert.NotContains(t, doc, "**Resolved:**")
	assert.NotContains(t, doc, "## Services Impacted")
	assert.NotContains(t, doc, "## Summary")
	assert.NotContains(t, doc, "## Timeline")
	assert.NotContains(t, doc, "## Action Items")
	assert.Contains(t, doc, "*Generated at 2026-01-09T13:00:00Z*")
}
