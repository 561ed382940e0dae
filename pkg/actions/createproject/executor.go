// Package createproject hands create_project actions to the
// surrounding system's project service.
package createproject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/protocol"
)

type Executor struct {
	creator protocol.ProjectCreator
	logger  *slog.Logger
}

func NewExecutor(creator protocol.ProjectCreator, logger *slog.Logger) *Executor {
	return &Executor{creator: creator, logger: logger}
}

func (e *Executor) Kind() models.ActionType {
	return models.ActionCreateProject
}

func (e *Executor) Execute(ctx context.Context, action models.ActionSpec, instance models.WorkflowInstance) (bool, string, error) {
	cfg := action.CreateProject
	if cfg == nil {
		return false, "", fmt.Errorf("create_project action has no config")
	}

	name := expandName(cfg.NameTemplate, instance)

	projectID, err := e.creator.CreateProject(ctx, name, cfg.ProjectTemplateID, instance)
	if err != nil {
		return false, "", err
	}

	return true, fmt.Sprintf("created project %s (%q)", projectID, name), nil
}

// expandName substitutes the {{instance.id}} and {{instance.stage}}
// placeholders the console's editor offers.
func expandName(template string, instance models.WorkflowInstance) string {
	name := strings.ReplaceAll(template, "{{instance.id}}", instance.ID)

	return strings.ReplaceAll(name, "{{instance.stage}}", instance.CurrentStage)
}
