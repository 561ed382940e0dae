package web_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/web"
)

// Walks one access request through the whole API surface: template
// publish, instantiation, a blocked gate, an outsider vote, the real
// approvals, and completion.
func TestAPI_FullRequestLifecycle(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	template := &models.WorkflowTemplate{
		ID:             "tpl-lifecycle",
		OrganizationID: "org-1",
		Name:           "Production Access",
		Type:           models.TemplateTypeIntake,
		Stages: []*models.Stage{
			{ID: "request", Name: "Request", Type: models.StageTypeIntake},
			{ID: "security-review", Name: "Security Review", Type: models.StageTypeApprovalGate, Required: true, Approvers: []string{"bob", "dana"}},
			{ID: "grant", Name: "Grant", Type: models.StageTypePhase},
		},
		Settings: models.TemplateSettings{RequireAllApprovals: true},
	}

	seedTemplate(t, app, template)

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{
		TemplateID: "tpl-lifecycle",
		Actor:      "alice",
		Data:       models.InstanceData{FormData: map[string]any{"system": "payments", "duration": "24h"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	instance := decode[models.WorkflowInstance](t, resp)

	// Into the gate.
	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	instance = decode[models.WorkflowInstance](t, resp)
	require.Equal(t, "security-review", instance.CurrentStage)

	// Gate refuses until every approver has voted.
	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/vote", web.VoteRequest{
		StageID: "security-review", ApproverID: "mallory", Status: models.ApprovalStatusApproved,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/vote", web.VoteRequest{
		StageID: "security-review", ApproverID: "bob", Status: models.ApprovalStatusApproved, Comments: "scoped correctly",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// One of two approvals under require-all: still blocked.
	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/vote", web.VoteRequest{
		StageID: "security-review", ApproverID: "dana", Status: models.ApprovalStatusApproved,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	instance = decode[models.WorkflowInstance](t, resp)
	require.Equal(t, "grant", instance.CurrentStage)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	instance = decode[models.WorkflowInstance](t, resp)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Empty(t, instance.CurrentStage)
	require.Len(t, instance.StageHistory, 3)

	for _, entry := range instance.StageHistory {
		assert.NotNil(t, entry.ExitedAt)
	}

	resp = doJSON(t, app, http.MethodGet, "/instances/"+instance.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metrics := decode[models.InstanceMetrics](t, resp)
	require.NotNil(t, metrics.TotalDurationMs)
	assert.False(t, metrics.CanProgress)
	assert.Zero(t, metrics.PendingApprovals)
}
