package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/model"
)

type taskRow struct {
	ID          string        `db:"id"`
	OwnerID     string        `db:"owner_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	DueAt       sql.NullInt64 `db:"due_at"`
	Completed   bool          `db:"completed"`
	Priority    string        `db:"priority"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

const taskColumns = "id, owner_id, title, description, due_at, completed, priority, created_at, updated_at"

func (r taskRow) model() model.Task {
	t := model.Task{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		Priority:    model.Priority(r.Priority),
		CreatedAt:   fromUnix(r.CreatedAt),
		UpdatedAt:   fromUnix(r.UpdatedAt),
	}
	if r.DueAt.Valid {
		due := fromUnix(r.DueAt.Int64)
		t.DueAt = &due
	}
	return t
}

func normalizeTask(t *model.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	if t.Title == "" {
		return errors.New("task title is required")
	}
	p, err := model.ParsePriority(string(t.Priority))
	if err != nil {
		return err
	}
	t.Priority = p
	if t.DueAt != nil {
		due := t.DueAt.Truncate(time.Second)
		t.DueAt = &due
	}
	return nil
}

// CreateTask inserts t for its owner and returns it with id and timestamps set.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := normalizeTask(&t); err != nil {
		return model.Task{}, err
	}
	if _, err := s.GetOwner(ctx, t.OwnerID); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().Truncate(time.Second)
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Description, unixPtr(t.DueAt), t.Completed, string(t.Priority),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// UpdateTask rewrites title, description, due, priority and completion.
// A changed due timestamp makes the task eligible for a fresh reminder.
func (s *Store) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := normalizeTask(&t); err != nil {
		return model.Task{}, err
	}
	t.UpdatedAt = time.Now().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, due_at = ?, completed = ?, priority = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, unixPtr(t.DueAt), t.Completed, string(t.Priority), t.UpdatedAt.Unix(), t.ID,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Task{}, fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return s.GetTask(ctx, t.ID)
}

// GetTask returns ErrNotFound for unknown ids.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	var r taskRow
	err := s.db.GetContext(ctx, &r, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return r.model(), nil
}

// SetCompleted marks a task done or open again.
func (s *Store) SetCompleted(ctx context.Context, id string, done bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ?",
		done, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// QueryTasks returns an owner's tasks matching q, ordered by due time with
// undated tasks last. Due bounds are inclusive at second precision; when
// either bound is set, undated tasks are excluded.
func (s *Store) QueryTasks(ctx context.Context, owner string, q model.TaskQuery) ([]model.Task, error) {
	conds := []string{"owner_id = ?"}
	args := []any{owner}
	if q.Completed != nil {
		conds = append(conds, "completed = ?")
		args = append(args, *q.Completed)
	}
	if !q.DueAfter.IsZero() {
		conds = append(conds, "due_at IS NOT NULL AND due_at >= ?")
		args = append(args, q.DueAfter.Unix())
	}
	if !q.DueBefore.IsZero() {
		conds = append(conds, "due_at IS NOT NULL AND due_at <= ?")
		args = append(args, q.DueBefore.Unix())
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY due_at IS NULL, due_at, created_at, id"
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks for %s: %w", owner, err)
	}
	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
