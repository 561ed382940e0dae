package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/pkg/actions/assignuser"
	"github.com/flowgate/flowgate/pkg/actions/movestage"
	"github.com/flowgate/flowgate/pkg/automations"
	"github.com/flowgate/flowgate/pkg/conditions"
	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence/memory"
	"github.com/flowgate/flowgate/pkg/registry"
	"github.com/flowgate/flowgate/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	reg := registry.NewRegistry(logger)
	reg.Register(movestage.NewExecutor())
	reg.Register(assignuser.NewExecutor())

	runner := automations.NewRunner(reg, conditions.NewEvaluator(logger), logger)
	eng := engine.New(store, runner, nil, logger)

	handlers := web.NewAPIHandlers(eng, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, store
}

func seedTemplate(t *testing.T, app *fiber.App, template *models.WorkflowTemplate) {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/templates/", template)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func gatedTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:             "tpl-web",
		OrganizationID: "org-1",
		Name:           "Access Request",
		Type:           models.TemplateTypeIntake,
		Stages: []*models.Stage{
			{ID: "intake", Name: "Intake", Type: models.StageTypeIntake},
			{ID: "review", Name: "Review", Type: models.StageTypeApprovalGate, Required: true, Approvers: []string{"bob"}},
			{ID: "provision", Name: "Provision", Type: models.StageTypePhase},
		},
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestSaveTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		template       *models.WorkflowTemplate
		expectedStatus int
	}{
		{
			name:           "valid template",
			template:       gatedTemplate(),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "duplicate stage ids",
			template: &models.WorkflowTemplate{
				ID:             "tpl-dup",
				OrganizationID: "org-1",
				Name:           "Broken",
				Type:           models.TemplateTypeCustom,
				Stages: []*models.Stage{
					{ID: "a", Name: "A", Type: models.StageTypePhase},
					{ID: "a", Name: "A again", Type: models.StageTypePhase},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "required gate without approvers or timed exit",
			template: &models.WorkflowTemplate{
				ID:             "tpl-gate",
				OrganizationID: "org-1",
				Name:           "Unsatisfiable",
				Type:           models.TemplateTypeCustom,
				Stages: []*models.Stage{
					{ID: "gate", Name: "Gate", Type: models.StageTypeApprovalGate, Required: true},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing name",
			template: &models.WorkflowTemplate{
				ID:             "tpl-noname",
				OrganizationID: "org-1",
				Type:           models.TemplateTypeCustom,
				Stages: []*models.Stage{
					{ID: "a", Name: "A", Type: models.StageTypePhase},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			resp := doJSON(t, app, http.MethodPost, "/templates/", tt.template)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestInstantiateInstance(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{
		TemplateID: "tpl-web",
		Actor:      "alice",
		Data:       models.InstanceData{FormData: map[string]any{"system": "billing"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	instance := decode[models.WorkflowInstance](t, resp)
	assert.Equal(t, models.InstanceStatusActive, instance.Status)
	assert.Equal(t, "intake", instance.CurrentStage)
	assert.NotEmpty(t, instance.ID)
}

func TestInstantiateInstance_UnknownTemplate(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{
		TemplateID: "missing",
		Actor:      "alice",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdvance_BlockedGateReturnsConflict(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Review is a required gate with no votes yet.
	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVote_OutsiderIsForbidden(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/vote", web.VoteRequest{
		StageID:    "review",
		ApproverID: "carol",
		Status:     models.ApprovalStatusApproved,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestVote_InvalidStatusRejected(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/vote", web.VoteRequest{
		StageID:    "review",
		ApproverID: "bob",
		Status:     models.ApprovalStatus("maybe"),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateTemplateEndpoint(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/templates/tpl-web/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[web.TemplateValidationResponse](t, resp)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	// A template saved behind the API's back can still be vetted.
	broken := gatedTemplate()
	broken.ID = "tpl-broken"
	broken.Stages[2].ID = broken.Stages[0].ID
	require.NoError(t, store.SaveTemplate(t.Context(), broken))

	resp = doJSON(t, app, http.MethodPost, "/templates/tpl-broken/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result = decode[web.TemplateValidationResponse](t, resp)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestGetInstanceMetrics(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodGet, "/instances/"+instance.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metrics := decode[models.InstanceMetrics](t, resp)
	assert.Equal(t, instance.ID, metrics.InstanceID)
	assert.Equal(t, 1, metrics.PendingApprovals)
	assert.True(t, metrics.CanProgress)
}

func TestCancelInstance(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel", web.CancelRequest{Actor: "alice", Reason: "no longer needed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled := decode[models.WorkflowInstance](t, resp)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.CurrentStage)
}

func TestHoldResumeEndpoints(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
	instance := decode[models.WorkflowInstance](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/hold", web.StatusChangeRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{Actor: "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/resume", web.StatusChangeRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resumed := decode[models.WorkflowInstance](t, resp)
	assert.Equal(t, models.InstanceStatusActive, resumed.Status)
}

func TestListInstancesFiltered(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	seedTemplate(t, app, gatedTemplate())

	for range 2 {
		resp := doJSON(t, app, http.MethodPost, "/instances/", web.InstantiateInstanceRequest{TemplateID: "tpl-web", Actor: "alice"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doJSON(t, app, http.MethodGet, "/instances/?status=active&template_id=tpl-web", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	instances := decode[[]models.WorkflowInstance](t, resp)
	assert.Len(t, instances, 2)
}
