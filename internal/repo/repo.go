package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskline/internal/db"
	"taskline/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

func (r Repo) conn(x DBTX) DBTX {
	if x == nil {
		return r.DB
	}
	return x
}

// Window bounds a listing. Limit 0 returns every row after Skip.
type Window struct {
	Skip  int
	Limit int
}

func (r Repo) windowClause(w Window) (string, []any) {
	switch {
	case w.Limit > 0:
		return " LIMIT ? OFFSET ?", []any{w.Limit, w.Skip}
	case w.Skip > 0 && r.Dialect == db.Postgres:
		return " OFFSET ?", []any{w.Skip}
	case w.Skip > 0:
		return " LIMIT -1 OFFSET ?", []any{w.Skip}
	default:
		return "", nil
	}
}

const projectColumns = `id,name,description,owner_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, x DBTX, p domain.Project) error {
	_, err := r.conn(x).ExecContext(ctx, r.q(`INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?)`),
		p.ID, p.Name, p.Description, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetOwnedProject returns the project matching both id and owner.
func (r Repo) GetOwnedProject(ctx context.Context, x DBTX, id, ownerID string) (domain.Project, error) {
	return scanProject(r.conn(x).QueryRowContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=? AND owner_id=?`), id, ownerID))
}

// ProjectExists checks existence regardless of owner.
func (r Repo) ProjectExists(ctx context.Context, x DBTX, id string) (bool, error) {
	var n int
	err := r.conn(x).QueryRowContext(ctx, r.q(`SELECT 1 FROM projects WHERE id=?`), id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) CountProjects(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM projects WHERE owner_id=?`), ownerID).Scan(&n)
	return n, err
}

func (r Repo) ListProjects(ctx context.Context, ownerID string, w Window) ([]domain.Project, error) {
	clause, extra := r.windowClause(w)
	args := append([]any{ownerID}, extra...)
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE owner_id=? ORDER BY created_at, id`+clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateOwnedProject applies patch to the project matching id and owner.
func (r Repo) UpdateOwnedProject(ctx context.Context, x DBTX, id, ownerID string, patch domain.ProjectPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *patch.Description)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, ownerID)
	res, err := r.conn(x).ExecContext(ctx, r.q(fmt.Sprintf(`UPDATE projects SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOwnedProject(ctx context.Context, x DBTX, id, ownerID string) error {
	res, err := r.conn(x).ExecContext(ctx, r.q(`DELETE FROM projects WHERE id=? AND owner_id=?`), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
