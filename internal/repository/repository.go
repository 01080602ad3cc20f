// Package repository provides persistence for tasks and task events.
// The Postgres implementation is used when a DSN is configured and
// reachable; the in-memory implementation is the standing fallback.
package repository

import (
	"context"
	"errors"

	"github.com/vmeassist/opsd/internal/task"
)

// ErrNotFound is returned by Get when a task id is unknown to the backend.
var ErrNotFound = errors.New("task not found")

// StatusUpdate carries the optional fields written alongside a status
// transition.
type StatusUpdate struct {
	Branch   string
	PRNumber *int
	Error    string
}

type TaskRepository interface {
	CreateTask(ctx context.Context, title, body string) (int64, error)
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	ListTasks(ctx context.Context, limit int) ([]*task.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status task.Status, upd StatusUpdate) error
}

// EventRepository persists the append-only task event log. Only the
// Postgres backend implements it; without one, events live solely in the
// in-process buffers.
type EventRepository interface {
	InsertEvent(ctx context.Context, ev *task.Event) error
	ListEvents(ctx context.Context, taskID int64) ([]*task.Event, error)
}
