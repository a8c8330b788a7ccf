//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
	"github.com/blamelessops/postmortem-tracker/internal/testutil"
	"github.com/stretchr/testify/require"
)

// createTestIncident creates an incident and registers cleanup.
func createTestIncident(t *testing.T, client *testutil.Client, overrides ...func(map[string]any)) domain.Incident {
	t.Helper()

	payload := map[string]any{
		"title":            "Integration Incident",
		"severity":         "SEV2",
		"status":           "investigating",
		"servicesImpacted": []string{"api"},
		"startedAt":        "2026-01-09T12:00:00Z",
	}
	for _, o := range overrides {
		o(payload)
	}

	resp, err := client.POST("/api/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var incident domain.Incident
	testutil.DecodeJSON(t, resp, &incident)
	require.NotEmpty(t, incident.ID)

	t.Cleanup(func() {
		resp, err := client.WithoutValidation().DELETE("/api/incidents/" + incident.ID)
		if err == nil {
			_ = resp.Body.Close()
		}
	})
	return incident
}

func withTitle(title string) func(map[string]any) {
	return func(m map[string]any) { m["title"] = title }
}

func addTimelineEvent(t *testing.T, client *testutil.Client, incidentID, timestamp, description string) domain.TimelineEvent {
	t.Helper()

	resp, err := client.POST("/api/incidents/"+incidentID+"/timeline", map[string]any{
		"timestamp":   timestamp,
		"description": description,
		"author":      "integration-bot",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var event domain.TimelineEvent
	testutil.DecodeJSON(t, resp, &event)
	return event
}

func addActionItem(t *testing.T, client *testutil.Client, incidentID, title, owner string) domain.ActionItem {
	t.Helper()

	resp, err := client.POST("/api/incidents/"+incidentID+"/actions", map[string]any{
		"title": title,
		"owner": owner,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var item domain.ActionItem
	testutil.DecodeJSON(t, resp, &item)
	return item
}

func getIncident(t *testing.T, client *testutil.Client, id string) domain.Incident {
	t.Helper()

	resp, err := client.GET("/api/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var incident domain.Incident
	testutil.DecodeJSON(t, resp, &incident)
	return incident
}
