package services

import (
	"maps"
	"sync"
	"time"

	"github.com/resoul/shortsgen/models"
)

// TaskStore is the in-memory task registry backing the status API. Tasks
// have no persistence; a restart forgets them.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*models.Task)}
}

func (s *TaskStore) Add(task *models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// Get returns a copy of the task so callers never observe in-flight writes.
func (s *TaskStore) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}

	snapshot := *task
	if task.VideoURLs != nil {
		snapshot.VideoURLs = maps.Clone(task.VideoURLs)
	}
	return snapshot, true
}

func (s *TaskStore) MarkProcessing(id string) {
	s.update(id, func(task *models.Task) {
		task.Status = models.TaskProcessing
		task.StartedAt = time.Now()
	})
}

func (s *TaskStore) MarkCompleted(id string, videoURLs map[string]string) {
	s.update(id, func(task *models.Task) {
		task.Status = models.TaskCompleted
		task.VideoURLs = videoURLs
		task.FinishedAt = time.Now()
	})
}

func (s *TaskStore) MarkFailed(id, errMsg string) {
	s.update(id, func(task *models.Task) {
		task.Status = models.TaskFailed
		task.Error = errMsg
		task.FinishedAt = time.Now()
	})
}

// Prune drops finished tasks older than maxAge and reports how many went.
func (s *TaskStore) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, task := range s.tasks {
		if task.Status != models.TaskCompleted && task.Status != models.TaskFailed {
			continue
		}
		if task.FinishedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

func (s *TaskStore) update(id string, fn func(*models.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[id]; ok {
		fn(task)
	}
}
