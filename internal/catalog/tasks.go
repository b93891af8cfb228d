package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shellac/internal/services"
)

const taskColumns = `id, source_path, target_path, status, attempts, error_message, created_at, started_at, completed_at`

func scanTask(scanner interface{ Scan(...any) error }) (*MigrationTask, error) {
	var (
		task         MigrationTask
		status       string
		errorMessage sql.NullString
		createdAt    string
		startedAt    sql.NullString
		completedAt  sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.SourcePath,
		&task.TargetPath,
		&status,
		&task.Attempts,
		&errorMessage,
		&createdAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	task.Status = TaskStatus(status)
	task.ErrorMessage = errorMessage.String
	task.CreatedAt = parseTimeString(createdAt)
	if startedAt.Valid {
		t := parseTimeString(startedAt.String)
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTimeString(completedAt.String)
		task.CompletedAt = &t
	}
	return &task, nil
}

// ReplacePlan swaps the stored migration plan for a new one inside a
// transaction. Completed tasks stay put so re-planning never forgets
// finished work; everything else, skips included, reflects the new plan.
// Tasks default to pending; skipped tasks are stored terminal with the skip
// reason in error_message.
func (s *Store) ReplacePlan(ctx context.Context, tasks []MigrationTask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM migration_tasks WHERE status IN (?, ?, ?, ?, ?)`,
		TaskPending, TaskCopying, TaskVerifying, TaskFailed, TaskSkipped,
	); err != nil {
		return fmt.Errorf("clear stale tasks: %w", err)
	}

	now := formatTime(time.Now())
	for _, task := range tasks {
		status := task.Status
		if status == "" {
			status = TaskPending
		}
		var completedAt any
		if status == TaskSkipped {
			completedAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO migration_tasks (source_path, target_path, status, error_message, completed_at, created_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(source_path) DO NOTHING`,
			task.SourcePath, task.TargetPath, status, nullableString(task.ErrorMessage), completedAt, now,
		); err != nil {
			return fmt.Errorf("insert task for %s: %w", task.SourcePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

// ClaimTask atomically moves one pending task to copying and returns it.
// Returns ErrNotFound when no pending work remains.
func (s *Store) ClaimTask(ctx context.Context) (*MigrationTask, error) {
	now := formatTime(time.Now())
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE migration_tasks
         SET status = ?, attempts = attempts + 1, started_at = ?
         WHERE id = (
             SELECT id FROM migration_tasks WHERE status = ? ORDER BY source_path LIMIT 1
         )
         RETURNING `+taskColumns,
		TaskCopying, now, TaskPending,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "claim", "no pending tasks", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus moves a claimed task between in-flight states.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, from, to TaskStatus) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE migration_tasks SET status = ? WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task status rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrOperationInProgress, "catalog", "update task",
			fmt.Sprintf("task %d is no longer %s", id, from), nil)
	}
	return nil
}

// CompleteTask marks a task finished in a terminal state.
func (s *Store) CompleteTask(ctx context.Context, id int64, status TaskStatus, message string) error {
	if status != TaskCompleted && status != TaskFailed && status != TaskSkipped {
		return services.Wrap(services.ErrConfiguration, "catalog", "complete task",
			fmt.Sprintf("%s is not a terminal task status", status), nil)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE migration_tasks SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		status, nullableString(message), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", "complete task",
			fmt.Sprintf("no task %d", id), nil)
	}
	return nil
}

// RequeueTask returns a failed or in-flight task to pending for a retry.
func (s *Store) RequeueTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE migration_tasks SET status = ?, started_at = NULL WHERE id = ? AND status IN (?, ?, ?)`,
		TaskPending, id, TaskCopying, TaskVerifying, TaskFailed,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", "requeue",
			fmt.Sprintf("task %d not requeueable", id), nil)
	}
	return nil
}

// GetTask loads a single task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*MigrationTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM migration_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get task", fmt.Sprintf("no task %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks in the given statuses ordered by source path.
// An empty status list returns everything.
func (s *Store) ListTasks(ctx context.Context, statuses ...TaskStatus) ([]*MigrationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM migration_tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY source_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*MigrationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskCounts reports how many tasks sit in each status.
func (s *Store) TaskCounts(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM migration_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[TaskStatus(status)] = count
	}
	return counts, rows.Err()
}
