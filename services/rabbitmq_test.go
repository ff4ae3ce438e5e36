package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntakeService(t *testing.T, handler TaskHandler) (*RabbitMQService, *TaskStore, *WorkerPool) {
	t.Helper()

	tasks := NewTaskStore()
	pool := NewWorkerPool(config.WorkerConfig{Count: 1, QueueSize: 4, TimeoutSeconds: 5}, handler)
	pool.Start()

	return &RabbitMQService{tasks: tasks, pool: pool}, tasks, pool
}

func shutdownPool(t *testing.T, pool *WorkerPool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestIntakeAcceptsValidJob(t *testing.T) {
	handler := newStubHandler()
	done := make(chan struct{}, 1)
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		done <- struct{}{}
	}

	intake, tasks, pool := newIntakeService(t, handler)

	body, err := json.Marshal(models.GenerateRequest{
		Videos:      fourVideos(audioDataURL()),
		ChannelName: "Queue Channel",
	})
	require.NoError(t, err)

	task, err := intake.accept(body)
	require.NoError(t, err)
	require.NotNil(t, task)

	got, ok := tasks.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, "Queue Channel", got.ChannelName)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued job never reached a worker")
	}

	shutdownPool(t, pool)
}

func TestIntakeRejectsMalformedMessage(t *testing.T) {
	intake, _, pool := newIntakeService(t, newStubHandler())

	_, err := intake.accept([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse queued job")

	shutdownPool(t, pool)
}

func TestIntakeRejectsWrongVideoCount(t *testing.T) {
	intake, _, pool := newIntakeService(t, newStubHandler())

	body, err := json.Marshal(models.GenerateRequest{
		Videos: fourVideos(audioDataURL())[:2],
	})
	require.NoError(t, err)

	_, err = intake.accept(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 4")

	shutdownPool(t, pool)
}

func TestIntakeFailsJobWhenPoolClosed(t *testing.T) {
	intake, tasks, pool := newIntakeService(t, newStubHandler())
	shutdownPool(t, pool)

	body, err := json.Marshal(models.GenerateRequest{
		Videos: fourVideos(audioDataURL()),
	})
	require.NoError(t, err)

	task, err := intake.accept(body)
	require.ErrorIs(t, err, ErrPoolClosed)
	require.NotNil(t, task)

	// The rejected job stays visible as failed rather than stuck queued.
	got, ok := tasks.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, models.TaskFailed, got.Status)
}
