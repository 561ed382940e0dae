// Package webhook delivers webhook actions over HTTP with bounded
// retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowgate/flowgate/pkg/models"
)

const defaultTimeout = 30 * time.Second

type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

func (e *Executor) Kind() models.ActionType {
	return models.ActionWebhook
}

// Execute posts an instance snapshot to the configured URL. Attempts are
// bounded by the action's retry config; the final outcome is reported to
// the caller for the audit trail.
func (e *Executor) Execute(ctx context.Context, action models.ActionSpec, instance models.WorkflowInstance) (bool, string, error) {
	cfg := action.Webhook
	if cfg == nil {
		return false, "", fmt.Errorf("webhook action has no config")
	}

	payload, err := json.Marshal(map[string]any{
		"instance_id":   instance.ID,
		"template_id":   instance.TemplateID,
		"status":        instance.Status,
		"current_stage": instance.CurrentStage,
		"data":          instance.Data,
		"sent_at":       time.Now().UTC(),
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	attempts := cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := time.Duration(cfg.Retry.DelaySeconds) * time.Second

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = e.deliver(ctx, method, cfg, payload)
		if lastErr == nil {
			return true, fmt.Sprintf("delivered to %s after %d attempt(s)", cfg.URL, attempt), nil
		}

		e.logger.WarnContext(ctx, "Webhook delivery failed",
			"url", cfg.URL, "attempt", attempt, "error", lastErr)

		if attempt < attempts && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false, "", ctx.Err()
			}
		}
	}

	return false, fmt.Sprintf("gave up on %s after %d attempt(s)", cfg.URL, attempts), lastErr
}

func (e *Executor) deliver(ctx context.Context, method string, cfg *models.WebhookConfig, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.logger.Warn("Failed to close webhook response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	return nil
}
