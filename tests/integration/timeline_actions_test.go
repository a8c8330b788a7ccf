//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeline_SortedAscendingRegardlessOfInsertionOrder(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client)

	addTimelineEvent(t, client, created.ID, "2026-01-09T10:00:00Z", "third chronologically")
	addTimelineEvent(t, client, created.ID, "2026-01-09T09:00:00Z", "first chronologically")
	addTimelineEvent(t, client, created.ID, "2026-01-09T09:30:00Z", "second chronologically")

	got := getIncident(t, client, created.ID)
	require.Len(t, got.Timeline, 3)
	assert.Equal(t, "first chronologically", got.Timeline[0].Description)
	assert.Equal(t, "second chronologically", got.Timeline[1].Description)
	assert.Equal(t, "third chronologically", got.Timeline[2].Description)
	assert.Len(t, got.AuditLog, 4)
}

func TestTimeline_DeleteEvent(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client)

	event := addTimelineEvent(t, client, created.ID, "2026-01-09T12:05:00Z", "to delete")

	resp, err := client.DELETE("/api/incidents/" + created.ID + "/timeline/" + event.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	got := getIncident(t, client, created.ID)
	assert.Empty(t, got.Timeline)
	require.Len(t, got.AuditLog, 3)
	assert.Equal(t, domain.AuditTimelineDeleted, got.AuditLog[2].Action)
	assert.Equal(t, event.ID, got.AuditLog[2].Details)
}

func TestTimeline_DeleteMissingEventStillSucceeds(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client)

	resp, err := client.DELETE("/api/incidents/" + created.ID + "/timeline/no-such-event")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	got := getIncident(t, client, created.ID)
	assert.Len(t, got.AuditLog, 2)
}

func TestActions_Lifecycle(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client)

	item := addActionItem(t, client, created.ID, "Add canary stage", "bob")
	assert.Equal(t, domain.ActionOpen, item.Status)

	resp, err := client.PATCH("/api/incidents/"+created.ID+"/actions/"+item.ID, map[string]any{
		"status": "done",
		"owner":  "carol",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var patched domain.ActionItem
	testutil.DecodeJSON(t, resp, &patched)
	assert.Equal(t, domain.ActionDone, patched.Status)
	assert.Equal(t, "carol", patched.Owner)
	assert.Equal(t, "Add canary stage", patched.Title)

	resp, err = client.DELETE("/api/incidents/" + created.ID + "/actions/" + item.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	got := getIncident(t, client, created.ID)
	assert.Empty(t, got.ActionItems)
	assert.Len(t, got.AuditLog, 4)
}

func TestActions_UpdateMissingIsNotFound(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client)

	resp, err := client.WithoutValidation().PATCH(
		"/api/incidents/"+created.ID+"/actions/no-such-action",
		map[string]any{"status": "done"},
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, testutil.ReadBody(t, resp), "action item not found")
}

func TestExport_Markdown(t *testing.T) {
	client := newTestClient(t)
	created := createTestIncident(t, client, withTitle("Export Incident"))
	addTimelineEvent(t, client, created.ID, "2026-01-09T12:05:00Z", "Alert fired")
	item := addActionItem(t, client, created.ID, "Write alert runbook", "bob")

	resp, err := client.GET("/api/incidents/" + created.ID + "/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "postmortem-"+created.ID+".md")

	body := testutil.ReadBody(t, resp)
	assert.Contains(t, body, "# Postmortem: Export Incident")
	assert.Contains(t, body, "- **2026-01-09T12:05:00Z** (integration-bot): Alert fired")
	assert.Contains(t, body, "- [ ] "+item.Title)
	assert.Contains(t, body, "*Generated at ")
}
