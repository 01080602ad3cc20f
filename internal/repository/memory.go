package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vmeassist/opsd/internal/task"
)

// inprocIDBase keeps in-process ids above anything Postgres is likely to
// have assigned, so records created during a backend outage do not collide
// with persisted ones.
const inprocIDBase = 1000

// MemoryRepository is the in-process task store used when Postgres is not
// configured or a write to it fails. Contents are lost on restart and never
// migrated back to the persistent backend.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*task.Task
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID: inprocIDBase + 1,
		tasks:  make(map[int64]*task.Task),
	}
}

func (r *MemoryRepository) CreateTask(_ context.Context, title, body string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	t := task.NewTask(title, body)
	t.ID = id
	r.tasks[id] = t

	return id, nil
}

func (r *MemoryRepository) GetTask(_ context.Context, id int64) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *t

	return &cp, nil
}

func (r *MemoryRepository) ListTasks(_ context.Context, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		cp := *t
		tasks = append(tasks, &cp)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}

		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

func (r *MemoryRepository) UpdateTaskStatus(_ context.Context, id int64, status task.Status, upd StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}

	// An advisory cancel sticks: only another cancel may write over it.
	if t.Status == task.StatusCancelled && status != task.StatusCancelled {
		return nil
	}

	now := time.Now()
	t.Status = status
	if upd.Branch != "" {
		t.Branch = upd.Branch
	}
	if upd.PRNumber != nil {
		t.PRNumber = upd.PRNumber
	}
	if upd.Error != "" {
		t.Error = upd.Error
	}
	if status == task.StatusRunning {
		t.StartedAt = &now
	}
	if status.Terminal() {
		t.EndedAt = &now
	}

	return nil
}
