package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/sirupsen/logrus"
)

// Notifier delivers task completion and failure callbacks. A task-level
// callback URL wins over the configured default; with neither, callbacks
// are silently skipped.
type Notifier struct {
	client     *http.Client
	defaultURL string
}

func NewNotifier(cfg config.WebhookConfig) *Notifier {
	return &Notifier{
		client:     &http.Client{Timeout: cfg.Timeout()},
		defaultURL: cfg.CallbackURL,
	}
}

func (n *Notifier) Notify(ctx context.Context, callbackURL string, payload models.WebhookPayload) error {
	target := callbackURL
	if target == "" {
		target = n.defaultURL
	}
	if target == "" {
		logrus.WithField("task_id", payload.TaskID).Warn("No webhook URL configured, skipping callback")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return newJobError(ErrTypeWebhook, payload.TaskID, "notify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return newJobError(ErrTypeWebhook, payload.TaskID, "notify",
			fmt.Errorf("callback returned %d", resp.StatusCode))
	}

	logrus.WithFields(logrus.Fields{
		"task_id": payload.TaskID,
		"status":  payload.Status,
	}).Info("Webhook delivered")
	return nil
}
