package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/pkg/automations"
	"github.com/flowgate/flowgate/pkg/cmd"
	"github.com/flowgate/flowgate/pkg/conditions"
	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence/file"
)

func setupTestApp(tempDir string) *fiber.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(tempDir)

	reg := cmd.NewRegistry(logger, nil, nil)
	runner := automations.NewRunner(reg, conditions.NewEvaluator(logger), logger)
	eng := engine.New(store, runner, nil, logger)

	return NewAPI(logger, store, eng).App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Flowgate API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_GetTemplates_Empty(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/templates", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var templates []models.WorkflowTemplate

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&templates))
	assert.Empty(t, templates)
}

func TestAPI_GetInstances_Empty(t *testing.T) {
	app := setupTestApp(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var instances []models.WorkflowInstance

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&instances))
	assert.Empty(t, instances)
}
