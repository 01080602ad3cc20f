// Package runner provides the single background worker that serially
// executes queued tasks, updating their status and emitting progress
// events as it goes.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmeassist/opsd/internal/events"
	"github.com/vmeassist/opsd/internal/metrics"
	"github.com/vmeassist/opsd/internal/queue"
	"github.com/vmeassist/opsd/internal/repository"
	"github.com/vmeassist/opsd/internal/store"
	"github.com/vmeassist/opsd/internal/task"
)

const defaultPollInterval = 200 * time.Millisecond

// EmitFunc records a progress event for the task currently executing.
type EmitFunc func(kind task.EventKind, data map[string]any)

// RunFunc executes a task body. It reports progress through emit and
// returns nil on success.
type RunFunc func(title, body string, emit EmitFunc) error

// Notifier is told about terminal task failures. Implemented by the
// SendGrid alert notifier.
type Notifier interface {
	TaskFailed(id int64, title, errMsg string)
}

// Runner owns the queue, the worker goroutine, and the wiring between
// task execution and the stores. At most one worker goroutine exists per
// Runner; it is started lazily on first submit.
type Runner struct {
	id       string
	queue    queue.Queue
	store    *store.Store
	events   *events.Log
	run      RunFunc
	notifier Notifier

	pollInterval time.Duration

	mu          sync.Mutex
	workerAlive bool
	stop        chan struct{}
	stopOnce    sync.Once
}

func New(q queue.Queue, s *store.Store, l *events.Log, run RunFunc) *Runner {
	return &Runner{
		id:           fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		queue:        q,
		store:        s,
		events:       l,
		run:          run,
		pollInterval: defaultPollInterval,
		stop:         make(chan struct{}),
	}
}

// SetNotifier installs an optional failure notifier.
func (r *Runner) SetNotifier(n Notifier) {
	r.notifier = n
}

// SetPollInterval overrides the idle sleep, used by tests to keep them
// fast.
func (r *Runner) SetPollInterval(d time.Duration) {
	r.pollInterval = d
}

// Submit enqueues a stored task for execution and makes sure the worker is
// running. There is no backpressure: the queue grows without bound while a
// single worker drains it.
func (r *Runner) Submit(t *task.Task) error {
	if err := r.queue.Enqueue(queue.NewItem(t)); err != nil {
		return fmt.Errorf("failed to enqueue task %d: %w", t.ID, err)
	}

	metrics.TasksSubmitted.Inc()
	r.ensureWorker()

	return nil
}

// ensureWorker starts the worker goroutine if it is not already alive.
func (r *Runner) ensureWorker() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.workerAlive {
		return
	}

	r.workerAlive = true
	go r.loop()
}

// Stop signals the worker to exit. Queued-but-not-started tasks are
// abandoned; there is no drain.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Runner) loop() {
	log.Printf("Worker %s started", r.id)

	defer func() {
		r.mu.Lock()
		r.workerAlive = false
		r.mu.Unlock()
		log.Printf("Worker %s stopped", r.id)
	}()

	for {
		select {
		case <-r.stop:
			return
		default:
			item, err := r.queue.Dequeue()
			if err != nil {
				log.Printf("Worker %s failed to dequeue: %v", r.id, err)
				metrics.BackendErrors.WithLabelValues("dequeue").Inc()
				time.Sleep(r.pollInterval)
				continue
			}
			if item == nil {
				time.Sleep(r.pollInterval)
				continue
			}

			r.process(item)
		}
	}
}

func (r *Runner) process(item *queue.Item) {
	log.Printf("Worker %s processing task %d (%s)", r.id, item.ID, item.Title)

	ctx := context.Background()
	r.store.UpdateStatus(ctx, item.ID, task.StatusRunning, repository.StatusUpdate{})

	emit := func(kind task.EventKind, data map[string]any) {
		r.events.Append(item.ID, kind, data)
	}

	start := time.Now()
	err := r.safeRun(item, emit)
	duration := time.Since(start)

	if err != nil {
		r.store.UpdateStatus(ctx, item.ID, task.StatusFailed, repository.StatusUpdate{Error: err.Error()})
		metrics.RecordTaskFinished(task.StatusFailed, duration)
		log.Printf("Worker %s: task %d failed: %v", r.id, item.ID, err)

		if r.notifier != nil {
			r.notifier.TaskFailed(item.ID, item.Title, err.Error())
		}

		return
	}

	r.store.UpdateStatus(ctx, item.ID, task.StatusSuccess, repository.StatusUpdate{})
	metrics.RecordTaskFinished(task.StatusSuccess, duration)
	log.Printf("Worker %s: task %d completed in %s", r.id, item.ID, duration.Round(time.Millisecond))
}

// safeRun invokes the task body, converting a panic into a failed status
// so one bad task cannot take down the worker.
func (r *Runner) safeRun(item *queue.Item, emit EmitFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()

	return r.run(item.Title, item.Body, emit)
}
