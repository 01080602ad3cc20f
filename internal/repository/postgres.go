package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/vmeassist/opsd/internal/task"
)

// PostgresRepository stores tasks in va_tasks and events in va_task_events.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) CreateTask(ctx context.Context, title, body string) (int64, error) {
	query := `
		INSERT INTO va_tasks (title, body, status, created_at)
		VALUES ($1, $2, 'queued', NOW())
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, title, nullable(body)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}

	return id, nil
}

func (r *PostgresRepository) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	query := `
		SELECT id, title, body, status, created_at, branch, pr_number, error, started_at, ended_at
		FROM va_tasks
		WHERE id = $1
	`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return t, nil
}

func (r *PostgresRepository) ListTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	query := `
		SELECT id, title, body, status, created_at, branch, pr_number, error, started_at, ended_at
		FROM va_tasks
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// UpdateTaskStatus writes a status transition. Any transition other than
// cancellation itself refuses to overwrite a cancelled task, so an advisory
// cancel is not clobbered by the worker's terminal write.
func (r *PostgresRepository) UpdateTaskStatus(ctx context.Context, id int64, status task.Status, upd StatusUpdate) error {
	query := `
		UPDATE va_tasks
		SET status = $1,
		    branch = COALESCE(NULLIF($2, ''), branch),
		    pr_number = COALESCE($3::int, pr_number),
		    error = COALESCE(NULLIF($4, ''), error),
		    started_at = CASE WHEN $1 = 'running' THEN NOW() ELSE started_at END,
		    ended_at = CASE WHEN $1 IN ('success', 'failed', 'cancelled') THEN NOW() ELSE ended_at END
		WHERE id = $5
	`
	if status != task.StatusCancelled {
		query += ` AND status <> 'cancelled'`
	}

	_, err := r.db.ExecContext(ctx, query, string(status), upd.Branch, upd.PRNumber, upd.Error, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	return nil
}

func (r *PostgresRepository) InsertEvent(ctx context.Context, ev *task.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO va_task_events (task_id, kind, data, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.db.ExecContext(ctx, query, ev.TaskID, string(ev.Kind), data); err != nil {
		return fmt.Errorf("failed to insert task event: %w", err)
	}

	return nil
}

// ListEvents returns the full event history for a task in ascending id
// order. SSE polling refetches this every iteration, so stable ordering
// matters more than efficiency here.
func (r *PostgresRepository) ListEvents(ctx context.Context, taskID int64) ([]*task.Event, error) {
	query := `
		SELECT task_id, kind, data, created_at
		FROM va_task_events
		WHERE task_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*task.Event
	for rows.Next() {
		var (
			ev  task.Event
			raw []byte
		)
		if err := rows.Scan(&ev.TaskID, &ev.Kind, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t       task.Task
		body    sql.NullString
		branch  sql.NullString
		pr      sql.NullInt64
		errMsg  sql.NullString
		started sql.NullTime
		ended   sql.NullTime
	)

	err := row.Scan(&t.ID, &t.Title, &body, &t.Status, &t.CreatedAt, &branch, &pr, &errMsg, &started, &ended)
	if err != nil {
		return nil, err
	}

	t.Body = body.String
	t.Branch = branch.String
	t.Error = errMsg.String
	if pr.Valid {
		n := int(pr.Int64)
		t.PRNumber = &n
	}
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if ended.Valid {
		t.EndedAt = &ended.Time
	}

	return &t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
