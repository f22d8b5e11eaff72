package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

const taskColumns = `id,title,description,status,project_id,owner_id,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.ProjectID, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Status = domain.TaskStatus(status)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, x DBTX, t domain.Task) error {
	_, err := r.conn(x).ExecContext(ctx, r.q(`INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		t.ID, t.Title, t.Description, string(t.Status), t.ProjectID, t.OwnerID, t.CreatedAt, t.UpdatedAt)
	return err
}

// GetOwnedTask returns the task matching both id and owner.
func (r Repo) GetOwnedTask(ctx context.Context, x DBTX, id, ownerID string) (domain.Task, error) {
	return scanTask(r.conn(x).QueryRowContext(ctx, r.q(`SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner_id=?`), id, ownerID))
}

func (r Repo) CountTasks(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM tasks WHERE owner_id=?`), ownerID).Scan(&n)
	return n, err
}

func (r Repo) ListTasks(ctx context.Context, ownerID string, w Window) ([]domain.Task, error) {
	clause, extra := r.windowClause(w)
	args := append([]any{ownerID}, extra...)
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+taskColumns+` FROM tasks WHERE owner_id=? ORDER BY created_at, id`+clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasksByProject counts tasks of every owner referencing the project.
func (r Repo) CountTasksByProject(ctx context.Context, x DBTX, projectID string) (int, error) {
	var n int
	err := r.conn(x).QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM tasks WHERE project_id=?`), projectID).Scan(&n)
	return n, err
}

// UpdateOwnedTask applies patch to the task matching id and owner.
func (r Repo) UpdateOwnedTask(ctx context.Context, x DBTX, id, ownerID string, patch domain.TaskPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *patch.Description)
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*patch.Status))
	}
	if patch.ProjectID != nil {
		fields = append(fields, "project_id=?")
		args = append(args, *patch.ProjectID)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, ownerID)
	res, err := r.conn(x).ExecContext(ctx, r.q(fmt.Sprintf(`UPDATE tasks SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task by id alone.
func (r Repo) DeleteTask(ctx context.Context, x DBTX, id string) error {
	res, err := r.conn(x).ExecContext(ctx, r.q(`DELETE FROM tasks WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTasksByProject removes every task referencing the project, whoever owns it.
func (r Repo) DeleteTasksByProject(ctx context.Context, x DBTX, projectID string) (int64, error) {
	res, err := r.conn(x).ExecContext(ctx, r.q(`DELETE FROM tasks WHERE project_id=?`), projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
