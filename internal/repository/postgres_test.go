package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmeassist/opsd/internal/task"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &PostgresRepository{db: db}

	return db, mock, repo
}

func TestNewPostgresRepository_ConnectionFailure(t *testing.T) {
	_, err := NewPostgresRepository("invalid connection string")
	assert.Error(t, err)
}

func TestPostgresCreateTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO va_tasks").
		WithArgs("deploy", "push it").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	id, err := repo.CreateTask(context.Background(), "deploy", "push it")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTask_EmptyBodyStoredAsNull(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO va_tasks").
		WithArgs("deploy", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(13)))

	id, err := repo.CreateTask(context.Background(), "deploy", "")
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	now := time.Now()
	cols := []string{"id", "title", "body", "status", "created_at", "branch", "pr_number", "error", "started_at", "ended_at"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM va_tasks").
			WithArgs(int64(12)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(int64(12), "deploy", "push it", "success", now, "ops/run-12", 4, nil, now, now))

		got, err := repo.GetTask(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, int64(12), got.ID)
		assert.Equal(t, task.StatusSuccess, got.Status)
		assert.Equal(t, "ops/run-12", got.Branch)
		require.NotNil(t, got.PRNumber)
		assert.Equal(t, 4, *got.PRNumber)
		require.NotNil(t, got.StartedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM va_tasks").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := repo.GetTask(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListTasks(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	now := time.Now()
	cols := []string{"id", "title", "body", "status", "created_at", "branch", "pr_number", "error", "started_at", "ended_at"}
	mock.ExpectQuery("SELECT (.+) FROM va_tasks").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), "b", nil, "queued", now, nil, nil, nil, nil, nil).
			AddRow(int64(1), "a", nil, "failed", now.Add(-time.Minute), nil, nil, "boom", nil, nil))

	tasks, err := repo.ListTasks(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(2), tasks[0].ID)
	assert.Equal(t, "boom", tasks[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateTaskStatus(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	t.Run("terminal write guards against cancel", func(t *testing.T) {
		mock.ExpectExec("UPDATE va_tasks SET (.+) AND status <> 'cancelled'").
			WithArgs("success", "", nil, "", int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateTaskStatus(context.Background(), 5, task.StatusSuccess, StatusUpdate{})
		assert.NoError(t, err)
	})

	t.Run("cancel write is unconditional", func(t *testing.T) {
		mock.ExpectExec("UPDATE va_tasks SET (.+) WHERE id = (.+)").
			WithArgs("cancelled", "", nil, "", int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateTaskStatus(context.Background(), 5, task.StatusCancelled, StatusUpdate{})
		assert.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertEvent(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO va_task_events").
		WithArgs(int64(7), "tick", []byte(`{"seq":1}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertEvent(context.Background(), &task.Event{
		TaskID: 7,
		Kind:   task.KindTick,
		Data:   map[string]any{"seq": 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEvents(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM va_task_events").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "kind", "data", "created_at"}).
			AddRow(int64(7), "tick", []byte(`{"seq":1,"msg":"tick 1"}`), now).
			AddRow(int64(7), "done", []byte(`{}`), now))

	events, err := repo.ListEvents(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, task.KindTick, events[0].Kind)
	assert.Equal(t, "tick 1", events[0].Data["msg"])
	assert.Equal(t, task.KindDone, events[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
