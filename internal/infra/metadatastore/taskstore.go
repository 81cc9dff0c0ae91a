package metadatastore

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// TaskStore is the single authority for durable task state; the worker pool
// and every polling HTTP caller both read and write through this repository.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore constructs the repository.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Create inserts a new task in PENDING state.
func (s *TaskStore) Create(ctx context.Context, task *ingest.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.State == "" {
		task.State = ingest.TaskStatePending
	}
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, kind, payload, state, progress, step, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NULL, NULL, NULL, now(), now())
		RETURNING created_at, updated_at
	`, task.ID, task.Kind, payload, task.State)
	return row.Scan(&task.CreatedAt, &task.UpdatedAt)
}

// Get fetches a task by id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (ingest.Task, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, payload, state, progress, step, result, error, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)

	var (
		task       ingest.Task
		payload    []byte
		result     []byte
		step       *string
		errMessage *string
	)
	if err := row.Scan(&task.ID, &task.Kind, &payload, &task.State, &task.Progress, &step, &result, &errMessage, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return ingest.Task{}, false, nil
		}
		return ingest.Task{}, false, err
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &task.Payload)
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &task.Result)
	}
	if step != nil {
		task.Step = *step
	}
	if errMessage != nil {
		task.Error = *errMessage
	}
	return task, true, nil
}

// UpdateProgress transitions a task's state/progress/step, used as each
// pipeline stage starts and as the embed batch loop reports percent complete.
func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, state ingest.TaskState, progress int, step string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $1, progress = $2, step = $3, updated_at = now() WHERE id = $4
	`, state, progress, nullIfEmpty(step), id)
	return err
}

// Complete marks a task SUCCESS and records its result payload.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE tasks SET state = $1, progress = 100, result = $2, updated_at = now() WHERE id = $3
	`, ingest.TaskStateSuccess, resultJSON, id)
	return err
}

// Fail marks a task FAILURE and records the error message.
func (s *TaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $1, error = $2, updated_at = now() WHERE id = $3
	`, ingest.TaskStateFailure, errMsg, id)
	return err
}

// Revoke marks a task REVOKED. The worker pool does not check this state
// while a task runs, so a running task is not stopped and its later
// Complete or Fail call overwrites REVOKED.
func (s *TaskStore) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $1, updated_at = now() WHERE id = $2
	`, ingest.TaskStateRevoked, id)
	return err
}

var _ ingest.TaskStore = (*TaskStore)(nil)
