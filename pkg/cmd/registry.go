// Package cmd provides common initialization for the flowgate binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flowgate/flowgate/pkg/actions/assignuser"
	"github.com/flowgate/flowgate/pkg/actions/createproject"
	"github.com/flowgate/flowgate/pkg/actions/movestage"
	"github.com/flowgate/flowgate/pkg/actions/notification"
	"github.com/flowgate/flowgate/pkg/actions/webhook"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/protocol"
	"github.com/flowgate/flowgate/pkg/registry"
)

// NewRegistry builds the action executor registry with every native
// action kind installed. Sender and creator may be nil; logging stand-ins
// are used so automations still resolve in deployments without the
// external integrations.
func NewRegistry(logger *slog.Logger, sender protocol.NotificationSender, creator protocol.ProjectCreator) *registry.Registry {
	if sender == nil {
		sender = &logSender{logger: logger}
	}

	if creator == nil {
		creator = &logProjectCreator{logger: logger}
	}

	reg := registry.NewRegistry(logger)
	reg.Register(movestage.NewExecutor())
	reg.Register(assignuser.NewExecutor())
	reg.Register(notification.NewExecutor(sender, logger))
	reg.Register(createproject.NewExecutor(creator, logger))
	reg.Register(webhook.NewExecutor(logger))

	return reg
}

// logSender writes notifications to the application log.
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(ctx context.Context, channel string, recipients []string, message string) error {
	s.logger.InfoContext(ctx, "Notification",
		"channel", channel, "recipients", recipients, "message", message)

	return nil
}

// logProjectCreator satisfies create_project actions with a generated id
// when no project service is wired in.
type logProjectCreator struct {
	logger *slog.Logger
}

func (c *logProjectCreator) CreateProject(ctx context.Context, name, projectTemplateID string, instance models.WorkflowInstance) (string, error) {
	projectID := fmt.Sprintf("proj-%s", uuid.New().String()[:8])

	c.logger.InfoContext(ctx, "Project created",
		"project_id", projectID, "name", name,
		"project_template_id", projectTemplateID, "instance_id", instance.ID)

	return projectID, nil
}
