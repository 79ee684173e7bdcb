package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// GetTask fetches a task row by id, or (nil, nil) if it does not exist.
func (s *Store) GetTask(ctx context.Context, id int32) (*model.Task, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var task model.Task
	err := s.db.GetContext(ctx, &task, `
		SELECT id, type, value, next_poll_at, last_polled_at, author_name
		FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get task %d: %w", id, err)
	}
	return &task, nil
}

// GetOrCreateTask returns the (type, value) task, creating it with an
// immediately-due next_poll_at if it does not already exist. Tasks are
// shared across every subscription polling the same upstream target.
func (s *Store) GetOrCreateTask(ctx context.Context, taskType model.TaskType, value string) (model.Task, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var task model.Task
	err := s.db.GetContext(ctx, &task, `
		INSERT INTO tasks (type, value, next_poll_at)
		VALUES ($1, $2, now())
		ON CONFLICT (type, value) DO UPDATE SET type = EXCLUDED.type
		RETURNING id, type, value, next_poll_at, last_polled_at, author_name`,
		taskType, value)
	if err != nil {
		return model.Task{}, fmt.Errorf("repository: get or create task %s/%s: %w", taskType, value, err)
	}
	return task, nil
}

// GetPendingTasksByType returns up to limit tasks of taskType whose
// next_poll_at has passed, oldest-due first.
func (s *Store) GetPendingTasksByType(ctx context.Context, taskType model.TaskType, limit int) ([]model.Task, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, type, value, next_poll_at, last_polled_at, author_name
		FROM tasks
		WHERE type = $1 AND next_poll_at <= now()
		ORDER BY next_poll_at ASC
		LIMIT $2`, taskType, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get pending %s tasks: %w", taskType, err)
	}
	return tasks, nil
}

// GetAllTasksByType returns every task of taskType regardless of due time,
// used by the wall-clock-triggered engines that run all their tasks at
// once rather than task-by-task.
func (s *Store) GetAllTasksByType(ctx context.Context, taskType model.TaskType) ([]model.Task, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, type, value, next_poll_at, last_polled_at, author_name
		FROM tasks WHERE type = $1`, taskType)
	if err != nil {
		return nil, fmt.Errorf("repository: get all %s tasks: %w", taskType, err)
	}
	return tasks, nil
}

// UpdateTaskAfterPoll stamps last_polled_at to now and sets the next due
// time.
func (s *Store) UpdateTaskAfterPoll(ctx context.Context, taskID int32, nextPollAt time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET last_polled_at = now(), next_poll_at = $2 WHERE id = $1`,
		taskID, nextPollAt)
	if err != nil {
		return fmt.Errorf("repository: update task %d after poll: %w", taskID, err)
	}
	return nil
}

// UpdateTaskAuthorName refreshes the cached display name for an author
// task. name is nil when the upstream lookup itself failed and the
// previous value should be left alone by the caller instead.
func (s *Store) UpdateTaskAuthorName(ctx context.Context, taskID int32, name *string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET author_name = $2 WHERE id = $1`, taskID, name)
	if err != nil {
		return fmt.Errorf("repository: update task %d author name: %w", taskID, err)
	}
	return nil
}

// DeleteTask removes a task row. Subscriptions hold a foreign key on
// task_id, so this is only safe once the caller has already deleted every
// subscription referencing it.
func (s *Store) DeleteTask(ctx context.Context, id int32) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete task %d: %w", id, err)
	}
	return nil
}
