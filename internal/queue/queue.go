// Package queue provides the FIFO queue the worker drains. The in-memory
// implementation is the default; the Redis implementation keeps queued
// tasks across a process restart when an address is configured.
package queue

import "github.com/vmeassist/opsd/internal/task"

// Item is the queue entry for a submitted task. The record of truth lives
// in the task store; the queue only carries what the executor needs.
type Item struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Queue is a FIFO of task items. Dequeue is non-blocking and returns nil
// when the queue is empty; the worker sleeps between polls. Queues are
// unbounded, there is no admission control.
type Queue interface {
	Enqueue(item *Item) error
	Dequeue() (*Item, error)
	Len() (int, error)
	Close() error
}

// NewItem builds a queue item for a stored task.
func NewItem(t *task.Task) *Item {
	return &Item{ID: t.ID, Title: t.Title, Body: t.Body}
}
