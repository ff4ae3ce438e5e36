package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []models.WebhookPayload
	status   int
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var payload models.WebhookPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		r.mu.Unlock()

		status := r.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) received() []models.WebhookPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.WebhookPayload(nil), r.payloads...)
}

func TestNotifierDeliversPayload(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	notifier := NewNotifier(config.WebhookConfig{TimeoutSeconds: 5})
	payload := models.WebhookPayload{
		Status:      "completed",
		TaskID:      "t-1",
		ChannelName: "Channel",
		Videos: []models.WebhookVideo{
			{Platform: "tiktok", VideoURL: "https://cdn.example/v.mp4"},
		},
	}

	require.NoError(t, notifier.Notify(context.Background(), server.URL, payload))

	received := rec.received()
	require.Len(t, received, 1)
	assert.Equal(t, "completed", received[0].Status)
	assert.Equal(t, "t-1", received[0].TaskID)
	require.Len(t, received[0].Videos, 1)
	assert.Equal(t, "tiktok", received[0].Videos[0].Platform)
}

func TestNotifierFallsBackToDefaultURL(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	notifier := NewNotifier(config.WebhookConfig{CallbackURL: server.URL, TimeoutSeconds: 5})
	require.NoError(t, notifier.Notify(context.Background(), "", models.WebhookPayload{TaskID: "t-2"}))

	require.Len(t, rec.received(), 1)
}

func TestNotifierSkipsWithoutURL(t *testing.T) {
	notifier := NewNotifier(config.WebhookConfig{TimeoutSeconds: 5})
	assert.NoError(t, notifier.Notify(context.Background(), "", models.WebhookPayload{TaskID: "t-3"}))
}

func TestNotifierSurfacesHTTPErrors(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	notifier := NewNotifier(config.WebhookConfig{TimeoutSeconds: 5})
	err := notifier.Notify(context.Background(), server.URL, models.WebhookPayload{TaskID: "t-4"})
	require.Error(t, err)

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, ErrTypeWebhook, jobErr.Type)
}
