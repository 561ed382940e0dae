package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
	"github.com/flowgate/flowgate/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_instances", "workflow_templates", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowgate_test"),
			postgres.WithUsername("flowgate"),
			postgres.WithPassword("flowgate"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)
		require.NoError(t, store.Close(ctx))
		cancel()
	})

	return store, ctx
}

func testInstance() *models.WorkflowInstance {
	now := time.Now().UTC()

	return &models.WorkflowInstance{
		ID:           uuid.New().String(),
		TemplateID:   "tpl-" + uuid.New().String()[:8],
		Status:       models.InstanceStatusActive,
		CurrentStage: "intake",
		StageHistory: []models.StageHistoryEntry{
			{StageID: "intake", EnteredAt: now, Actor: "integration-test"},
		},
		Data:      models.InstanceData{FormData: map[string]any{"requester": "ops"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIntegration_InstanceLifecycle(t *testing.T) {
	store, ctx := setupTestDB(t)

	instance := testInstance()
	require.NoError(t, store.SaveInstance(ctx, instance, 0))

	loaded, version, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "intake", loaded.CurrentStage)
	assert.Equal(t, "ops", loaded.Data.FormData["requester"])

	loaded.CurrentStage = "review"
	require.NoError(t, store.SaveInstance(ctx, loaded, version))

	_, version, err = store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestIntegration_VersionConflict(t *testing.T) {
	store, ctx := setupTestDB(t)

	instance := testInstance()
	require.NoError(t, store.SaveInstance(ctx, instance, 0))

	first, version, err := store.LoadInstance(ctx, instance.ID)
	require.NoError(t, err)

	second := first.Clone()

	first.CurrentStage = "review"
	require.NoError(t, store.SaveInstance(ctx, first, version))

	second.CurrentStage = "done"
	err = store.SaveInstance(ctx, second, version)
	require.True(t, persistence.IsVersionConflict(err))
}

func TestIntegration_CreateCollision(t *testing.T) {
	store, ctx := setupTestDB(t)

	instance := testInstance()
	require.NoError(t, store.SaveInstance(ctx, instance, 0))

	err := store.SaveInstance(ctx, instance, 0)
	require.ErrorIs(t, err, persistence.ErrInstanceAlreadyExists)
}

func TestIntegration_InstanceFiltering(t *testing.T) {
	store, ctx := setupTestDB(t)

	active := testInstance()
	require.NoError(t, store.SaveInstance(ctx, active, 0))

	completed := testInstance()
	completed.Status = models.InstanceStatusCompleted
	require.NoError(t, store.SaveInstance(ctx, completed, 0))

	got, err := store.Instances(ctx, persistence.InstanceFilter{Status: models.InstanceStatusCompleted})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, completed.ID, got[0].ID)
}

func TestIntegration_TemplateRoundTrip(t *testing.T) {
	store, ctx := setupTestDB(t)

	template := &models.WorkflowTemplate{
		ID:             uuid.New().String(),
		OrganizationID: "org-1",
		Name:           "Operational Readiness",
		Type:           models.TemplateTypeOperationalReadiness,
		Stages: []*models.Stage{
			{ID: "prep", Name: "Preparation", Type: models.StageTypeReadinessSection},
			{ID: "signoff", Name: "Sign-off", Type: models.StageTypeApprovalGate, Required: true, Approvers: []string{"lead"}},
		},
		Settings: models.TemplateSettings{RequireAllApprovals: true},
	}

	require.NoError(t, store.SaveTemplate(ctx, template))

	loaded, err := store.TemplateByID(ctx, template.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Stages, 2)
	assert.Equal(t, []string{"lead"}, loaded.Stages[1].Approvers)

	all, err := store.Templates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.TemplateByID(ctx, "missing")
	require.True(t, persistence.IsTemplateNotFound(err))
}
