// Package events keeps the in-process, bounded, per-task event buffers that
// feed live SSE subscribers. Appends are mirrored to the persistent event
// table best-effort; the buffer is authoritative for liveness, the table for
// history.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vmeassist/opsd/internal/metrics"
	"github.com/vmeassist/opsd/internal/repository"
	"github.com/vmeassist/opsd/internal/task"
)

// maxBuffered caps each task's buffer; the oldest entries are dropped
// first. This is the only eviction policy in the system.
const maxBuffered = 200

// Log fans task events out to the persistent store and the in-process
// buffers. Safe for concurrent use; the worker appends while HTTP handlers
// drain.
type Log struct {
	mu      sync.Mutex
	buffers map[int64][]*task.Event
	repo    repository.EventRepository
}

// NewLog creates a Log. repo may be nil when no persistent backend is
// configured; events then live only in the buffers.
func NewLog(repo repository.EventRepository) *Log {
	return &Log{
		buffers: make(map[int64][]*task.Event),
		repo:    repo,
	}
}

// Append records an event for taskID. The persistent write is best-effort:
// a failure is logged and counted but never surfaced, so a slow or down
// database cannot stall task execution or hide events from live
// subscribers.
func (l *Log) Append(taskID int64, kind task.EventKind, data map[string]any) {
	ev := &task.Event{
		TaskID:    taskID,
		Kind:      kind,
		Data:      data,
		CreatedAt: time.Now(),
	}

	if l.repo != nil {
		if err := l.repo.InsertEvent(context.Background(), ev); err != nil {
			log.Printf("Failed to persist event for task %d: %v", taskID, err)
			metrics.BackendErrors.WithLabelValues("insert_event").Inc()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buf := append(l.buffers[taskID], ev)
	if len(buf) > maxBuffered {
		buf = buf[len(buf)-maxBuffered:]
	}
	l.buffers[taskID] = buf

	metrics.TaskEvents.WithLabelValues(string(kind)).Inc()
}

// Drain returns a snapshot of the buffered events for taskID without
// consuming them, so multiple subscribers can replay the same buffer.
func (l *Log) Drain(taskID int64) []*task.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.buffers[taskID]
	out := make([]*task.Event, len(buf))
	copy(out, buf)

	return out
}
