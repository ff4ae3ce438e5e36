package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// TaskHandler processes one task at a time. Handle owns status transitions
// and callbacks for the task; Fail is invoked by the pool when Handle never
// got the chance to report (worker panic).
type TaskHandler interface {
	Handle(ctx context.Context, task *models.Task)
	Fail(task *models.Task, err error)
}

// WorkerPool runs a fixed number of workers over a bounded job queue. Each
// job gets a wall-clock deadline; on expiry the job's context cancels, which
// kills any external tool invocation in flight. Workers survive job panics
// and keep consuming.
type WorkerPool struct {
	jobs    chan *models.Task
	wg      sync.WaitGroup
	count   int
	timeout time.Duration
	handler TaskHandler

	// mu guards closed and fences sends on jobs against Shutdown closing
	// the channel under a producer.
	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(cfg config.WorkerConfig, handler TaskHandler) *WorkerPool {
	return &WorkerPool{
		jobs:    make(chan *models.Task, cfg.QueueSize),
		count:   cfg.Count,
		timeout: cfg.Timeout(),
		handler: handler,
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logrus.WithFields(logrus.Fields{
		"workers": p.count,
		"timeout": p.timeout,
	}).Info("Worker pool started")
}

// Submit enqueues a task without blocking; a full queue is the caller's
// problem to surface.
func (p *WorkerPool) Submit(task *models.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Enqueue blocks until the queue accepts the task. The AMQP intake uses it
// so a full pool backpressures the broker instead of dropping messages. A
// blocked Enqueue holds off Shutdown until a worker frees a queue slot.
func (p *WorkerPool) Enqueue(task *models.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.jobs <- task
	return nil
}

// Shutdown stops accepting work and drains in-flight jobs until ctx expires.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown with jobs in flight: %w", ctx.Err())
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	log := logrus.WithField("worker", id)
	log.Debug("Worker started")

	for task := range p.jobs {
		p.runTask(log, task)
	}

	log.Debug("Worker stopped")
}

func (p *WorkerPool) runTask(log *logrus.Entry, task *models.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("task_id", task.ID).Errorf("Worker recovered from panic: %v", r)
			p.handler.Fail(task, newJobError(ErrTypeSystem, task.ID, "worker", fmt.Errorf("panic: %v", r)))
		}
	}()

	p.handler.Handle(ctx, task)
}
