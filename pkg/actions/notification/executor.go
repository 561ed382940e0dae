// Package notification bridges send_notification actions to the
// external notification sender. Sender failures are non-fatal to the
// workflow.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/protocol"
)

type Executor struct {
	sender protocol.NotificationSender
	logger *slog.Logger
}

func NewExecutor(sender protocol.NotificationSender, logger *slog.Logger) *Executor {
	return &Executor{sender: sender, logger: logger}
}

func (e *Executor) Kind() models.ActionType {
	return models.ActionSendNotification
}

func (e *Executor) Execute(ctx context.Context, action models.ActionSpec, instance models.WorkflowInstance) (bool, string, error) {
	cfg := action.Notification
	if cfg == nil {
		return false, "", fmt.Errorf("send_notification action has no config")
	}

	err := e.sender.Send(ctx, cfg.Channel, cfg.Recipients, cfg.Message)
	if err != nil {
		e.logger.WarnContext(ctx, "Notification delivery failed",
			"instance_id", instance.ID, "channel", cfg.Channel, "error", err)

		return false, fmt.Sprintf("notification to %s failed", cfg.Channel), err
	}

	return true, fmt.Sprintf("notified %d recipient(s) via %s", len(cfg.Recipients), cfg.Channel), nil
}
