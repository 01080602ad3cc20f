// Package store wraps the persistent task repository with the in-memory
// fallback. Callers never see a backend failure: writes degrade silently
// (logged and counted) and reads fall through persistent -> memory ->
// synthetic unknown record.
package store

import (
	"context"
	"log"

	"github.com/vmeassist/opsd/internal/metrics"
	"github.com/vmeassist/opsd/internal/repository"
	"github.com/vmeassist/opsd/internal/task"
)

type Store struct {
	repo repository.TaskRepository // nil when Postgres is not configured
	mem  *repository.MemoryRepository
}

// New builds a Store over an optional persistent repository. The in-memory
// fallback always exists; tasks created there during a backend outage stay
// invisible to the backend if it comes back.
func New(repo repository.TaskRepository) *Store {
	return &Store{
		repo: repo,
		mem:  repository.NewMemoryRepository(),
	}
}

// Persistent reports whether a persistent backend was configured at
// startup.
func (s *Store) Persistent() bool {
	return s.repo != nil
}

// Create inserts a task and returns its id. A persistent-insert failure
// falls back to the in-memory repository so submission never fails over
// backend health.
func (s *Store) Create(ctx context.Context, title, body string) int64 {
	if s.repo != nil {
		id, err := s.repo.CreateTask(ctx, title, body)
		if err == nil {
			return id
		}
		log.Printf("Failed to persist task, falling back to in-memory store: %v", err)
		metrics.BackendErrors.WithLabelValues("create_task").Inc()
	}

	id, _ := s.mem.CreateTask(ctx, title, body)

	return id
}

// UpdateStatus is best-effort against both backends. Task execution must
// not fail merely because status bookkeeping failed.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status task.Status, upd repository.StatusUpdate) {
	if s.repo != nil {
		if err := s.repo.UpdateTaskStatus(ctx, id, status, upd); err != nil {
			log.Printf("Failed to persist status %q for task %d: %v", status, id, err)
			metrics.BackendErrors.WithLabelValues("update_status").Inc()
		}
	}

	if err := s.mem.UpdateTaskStatus(ctx, id, status, upd); err != nil && err != repository.ErrNotFound {
		log.Printf("Failed to update in-memory status for task %d: %v", id, err)
	}
}

// Get returns the task record, or a synthetic record with status unknown
// when neither backend knows the id. Callers always get a 200-shaped
// record.
func (s *Store) Get(ctx context.Context, id int64) *task.Task {
	if s.repo != nil {
		t, err := s.repo.GetTask(ctx, id)
		if err == nil {
			return t
		}
		if err != repository.ErrNotFound {
			log.Printf("Failed to read task %d from backend: %v", id, err)
			metrics.BackendErrors.WithLabelValues("get_task").Inc()
		}
	}

	if t, err := s.mem.GetTask(ctx, id); err == nil {
		return t
	}

	return &task.Task{ID: id, Status: task.StatusUnknown}
}

// List returns up to limit tasks, newest first.
func (s *Store) List(ctx context.Context, limit int) []*task.Task {
	if s.repo != nil {
		tasks, err := s.repo.ListTasks(ctx, limit)
		if err == nil {
			return tasks
		}
		log.Printf("Failed to list tasks from backend: %v", err)
		metrics.BackendErrors.WithLabelValues("list_tasks").Inc()
	}

	tasks, _ := s.mem.ListTasks(ctx, limit)

	return tasks
}
