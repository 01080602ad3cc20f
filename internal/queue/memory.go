package queue

import "sync"

// MemoryQueue is a mutex-guarded in-process FIFO. Contents are abandoned on
// process exit.
type MemoryQueue struct {
	mu    sync.Mutex
	items []*Item
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)

	return nil
}

func (q *MemoryQueue) Dequeue() (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, nil
	}

	item := q.items[0]
	q.items = q.items[1:]

	return item, nil
}

func (q *MemoryQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items), nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
