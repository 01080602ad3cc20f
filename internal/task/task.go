// Package task defines the core task domain model shared by the queue,
// runner, and persistence layers. It contains task metadata, status and
// event-kind definitions, and serialization helpers.
package task

import (
	"encoding/json"
	"time"
)

type (
	Status    string
	EventKind string
)

// Task is a unit of background work submitted through the ops API.
type Task struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	Branch    string     `json:"branch,omitempty"`
	PRNumber  *int       `json:"pr_number,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

const (
	KindTick  EventKind = "tick"
	KindLog   EventKind = "log"
	KindDone  EventKind = "done"
	KindError EventKind = "error"
)

// Event is a small timestamped progress record emitted while a task runs.
type Event struct {
	TaskID    int64          `json:"task_id"`
	Kind      EventKind      `json:"kind"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Terminal reports whether a status can no longer change through normal
// worker transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}

	return false
}

func NewTask(title, body string) *Task {
	return &Task{
		Title:     title,
		Body:      body,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func FromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}
