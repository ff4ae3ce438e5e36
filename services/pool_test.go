package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	mu       sync.Mutex
	handled  []string
	failed   map[string]error
	handleFn func(ctx context.Context, task *models.Task)
}

func newStubHandler() *stubHandler {
	return &stubHandler{failed: make(map[string]error)}
}

func (h *stubHandler) Handle(ctx context.Context, task *models.Task) {
	if h.handleFn != nil {
		h.handleFn(ctx, task)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, task.ID)
}

func (h *stubHandler) Fail(task *models.Task, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[task.ID] = err
}

func (h *stubHandler) handledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func poolConfig(count, queue int) config.WorkerConfig {
	return config.WorkerConfig{Count: count, QueueSize: queue, TimeoutSeconds: 1}
}

func TestWorkerPoolProcessesSubmittedTasks(t *testing.T) {
	handler := newStubHandler()
	done := make(chan struct{}, 1)
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		done <- struct{}{}
	}

	pool := NewWorkerPool(poolConfig(1, 4), handler)
	pool.Start()

	require.NoError(t, pool.Submit(&models.Task{ID: "task-1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was never handled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestWorkerPoolEnforcesTimeout(t *testing.T) {
	handler := newStubHandler()
	expired := make(chan error, 1)
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		// Simulates a long external tool run: blocks until the job
		// deadline kills it.
		<-ctx.Done()
		expired <- ctx.Err()
	}

	pool := NewWorkerPool(poolConfig(1, 1), handler)
	pool.Start()

	require.NoError(t, pool.Submit(&models.Task{ID: "slow"}))

	select {
	case err := <-expired:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("job context never expired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestWorkerPoolSurvivesPanics(t *testing.T) {
	handler := newStubHandler()
	calls := 0
	done := make(chan struct{}, 1)
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		calls++
		if calls == 1 {
			panic("tool runner exploded")
		}
		done <- struct{}{}
	}

	pool := NewWorkerPool(poolConfig(1, 4), handler)
	pool.Start()

	require.NoError(t, pool.Submit(&models.Task{ID: "boom"}))
	require.NoError(t, pool.Submit(&models.Task{ID: "after"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover after panic")
	}

	handler.mu.Lock()
	panicErr := handler.failed["boom"]
	handler.mu.Unlock()
	require.Error(t, panicErr)
	assert.Contains(t, panicErr.Error(), "panic")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestWorkerPoolRunsJobsConcurrently(t *testing.T) {
	handler := newStubHandler()
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		started.Done()
		<-release
	}

	pool := NewWorkerPool(poolConfig(2, 4), handler)
	pool.Start()

	require.NoError(t, pool.Submit(&models.Task{ID: "a"}))
	require.NoError(t, pool.Submit(&models.Task{ID: "b"}))

	waitDone := make(chan struct{})
	go func() {
		started.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		// Both jobs are in flight at once.
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not run concurrently")
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestWorkerPoolRejectsWhenQueueFull(t *testing.T) {
	handler := newStubHandler()
	// No workers started, so the queue fills immediately.
	pool := NewWorkerPool(poolConfig(0, 1), handler)

	require.NoError(t, pool.Submit(&models.Task{ID: "fits"}))
	assert.ErrorIs(t, pool.Submit(&models.Task{ID: "overflow"}), ErrQueueFull)
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(poolConfig(1, 4), newStubHandler())
	pool.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.ErrorIs(t, pool.Submit(&models.Task{ID: "late"}), ErrPoolClosed)
	assert.ErrorIs(t, pool.Enqueue(&models.Task{ID: "later"}), ErrPoolClosed)
}

func TestWorkerPoolShutdownWithBlockedEnqueue(t *testing.T) {
	handler := newStubHandler()
	release := make(chan struct{})
	handler.handleFn = func(ctx context.Context, task *models.Task) {
		<-release
	}

	pool := NewWorkerPool(poolConfig(1, 1), handler)
	pool.Start()

	// One task in the worker and one filling the queue, so the next
	// Enqueue has to block.
	require.NoError(t, pool.Submit(&models.Task{ID: "running"}))
	require.NoError(t, pool.Submit(&models.Task{ID: "waiting"}))

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- pool.Enqueue(&models.Task{ID: "blocked"})
	}()

	shutdownDone := make(chan error, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		shutdownDone <- pool.Shutdown(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	close(release)

	// The blocked send either lands once a worker frees a slot, or loses
	// the race and is refused; either way it must not panic.
	select {
	case err := <-enqueued:
		if err != nil {
			assert.ErrorIs(t, err, ErrPoolClosed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Enqueue never returned")
	}

	select {
	case err := <-shutdownDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown never completed")
	}
}
