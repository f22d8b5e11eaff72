package repo_test

import (
	"context"
	"errors"
	"testing"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Dialect: dialect}
}

func insertProject(t *testing.T, r repo.Repo, id, owner string) {
	t.Helper()
	p := domain.Project{ID: id, Name: id, Description: "d", OwnerID: owner, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertProject(context.Background(), nil, p); err != nil {
		t.Fatalf("insert project %s: %v", id, err)
	}
}

func insertTask(t *testing.T, r repo.Repo, id, projectID, owner string) {
	t.Helper()
	task := domain.Task{ID: id, Title: id, Status: domain.StatusTodo, ProjectID: projectID, OwnerID: owner, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertTask(context.Background(), nil, task); err != nil {
		t.Fatalf("insert task %s: %v", id, err)
	}
}

func TestOwnedProjectLookup(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertProject(t, r, "p1", "alice")

	if _, err := r.GetOwnedProject(ctx, nil, "p1", "bob"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	p, err := r.GetOwnedProject(ctx, nil, "p1", "alice")
	if err != nil {
		t.Fatalf("get owned: %v", err)
	}
	if p.OwnerID != "alice" {
		t.Fatalf("unexpected owner %q", p.OwnerID)
	}
	ok, err := r.ProjectExists(ctx, nil, "p1")
	if err != nil || !ok {
		t.Fatalf("expected project to exist regardless of owner: %v %v", ok, err)
	}
	ok, err = r.ProjectExists(ctx, nil, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing project: %v %v", ok, err)
	}
}

func TestListWindow(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		insertProject(t, r, id, "alice")
	}
	insertProject(t, r, "other", "bob")

	n, err := r.CountProjects(ctx, "alice")
	if err != nil || n != 5 {
		t.Fatalf("count: %d %v", n, err)
	}
	all, err := r.ListProjects(ctx, "alice", repo.Window{})
	if err != nil || len(all) != 5 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	page, err := r.ListProjects(ctx, "alice", repo.Window{Skip: 2, Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("list page: %d %v", len(page), err)
	}
	tail, err := r.ListProjects(ctx, "alice", repo.Window{Skip: 4})
	if err != nil || len(tail) != 1 {
		t.Fatalf("list tail: %d %v", len(tail), err)
	}
}

func TestDeleteTasksByProjectIgnoresOwner(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertProject(t, r, "p1", "alice")
	insertProject(t, r, "p2", "alice")
	insertTask(t, r, "t1", "p1", "alice")
	insertTask(t, r, "t2", "p1", "bob")
	insertTask(t, r, "t3", "p2", "bob")

	n, err := r.DeleteTasksByProject(ctx, nil, "p1")
	if err != nil {
		t.Fatalf("delete by project: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tasks removed, got %d", n)
	}
	left, err := r.CountTasksByProject(ctx, nil, "p2")
	if err != nil || left != 1 {
		t.Fatalf("expected p2 task untouched: %d %v", left, err)
	}
}

func TestUpdateOwnedTaskScopesByOwner(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertProject(t, r, "p1", "alice")
	insertTask(t, r, "t1", "p1", "alice")

	title := "renamed"
	patch := domain.TaskPatch{Title: &title}
	if err := r.UpdateOwnedTask(ctx, nil, "t1", "bob", patch, "2024-01-02T00:00:00Z"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	if err := r.UpdateOwnedTask(ctx, nil, "t1", "alice", patch, "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := r.GetOwnedTask(ctx, nil, "t1", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" || got.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Fatalf("unexpected task after update: %+v", got)
	}
	if err := r.DeleteTask(ctx, nil, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteTask(ctx, nil, "t1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
