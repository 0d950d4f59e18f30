package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain/entity"
)

const taskColumns = `id, task_type, status, pr_id, merge_id, job_id, file_path, result, error, created_at, updated_at`

type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the task. The job id is the task id, so the queue job can be addressed
// directly for cancellation.
func (r *TaskRepository) Create(ctx context.Context, task entity.Task) (entity.Task, error) {
	query := `
        INSERT INTO tasks (id, task_type, status, pr_id, merge_id, job_id, file_path)
        VALUES ($1, $2, $3, $4, $5, $1, $6)
        RETURNING ` + taskColumns

	var created entity.Task
	err := conn(ctx, r.db).GetContext(ctx, &created, query,
		task.Id, task.Type, task.Status, task.PrId, task.MergeId, task.FilePath)
	if err != nil {
		return entity.Task{}, mapError(err, "", fmt.Sprintf("failed to create task %s", task.Id))
	}
	return created, nil
}

func (r *TaskRepository) GetById(ctx context.Context, id string) (entity.Task, error) {
	return r.get(ctx, id, "")
}

func (r *TaskRepository) LockById(ctx context.Context, id string) (entity.Task, error) {
	return r.get(ctx, id, lockClause(ctx))
}

func (r *TaskRepository) get(ctx context.Context, id, suffix string) (entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1` + suffix

	var task entity.Task
	if err := conn(ctx, r.db).GetContext(ctx, &task, query, id); err != nil {
		return entity.Task{}, mapError(err, fmt.Sprintf("task %s not found", id), "failed to get task")
	}
	return task, nil
}

func (r *TaskRepository) LockActiveByMerge(ctx context.Context, mergeId int64) ([]entity.Task, error) {
	query := `
        SELECT ` + taskColumns + ` FROM tasks
        WHERE merge_id = $1 AND status = ANY($2::text[])
        ORDER BY created_at` + lockClause(ctx)

	var tasks []entity.Task
	if err := conn(ctx, r.db).SelectContext(ctx, &tasks, query, mergeId, statusArray(entity.ActiveTaskStatuses)); err != nil {
		return nil, mapError(err, "", "failed to list active tasks")
	}
	return tasks, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status entity.TaskStatus) error {
	query := `UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, status)
	if err != nil {
		return mapError(err, "", "failed to update task status")
	}
	return requireRow(res, fmt.Sprintf("task %s not found", id))
}

func (r *TaskRepository) Finish(ctx context.Context, id string, status entity.TaskStatus, result, errText *string) error {
	query := `UPDATE tasks SET status = $2, result = $3, error = $4, updated_at = now() WHERE id = $1`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, status, result, errText)
	if err != nil {
		return mapError(err, "", "failed to finish task")
	}
	return requireRow(res, fmt.Sprintf("task %s not found", id))
}

func (r *TaskRepository) ListStale(ctx context.Context, updatedBefore time.Time) ([]entity.Task, error) {
	query := `
        SELECT ` + taskColumns + ` FROM tasks
        WHERE status = ANY($1::text[]) AND updated_at < $2
        ORDER BY updated_at
        LIMIT 500`

	var tasks []entity.Task
	if err := conn(ctx, r.db).SelectContext(ctx, &tasks, query, statusArray(entity.ActiveTaskStatuses), updatedBefore); err != nil {
		return nil, mapError(err, "", "failed to list stale tasks")
	}
	return tasks, nil
}
