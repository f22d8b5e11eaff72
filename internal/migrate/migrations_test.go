package migrate

import (
	"context"
	"testing"

	"taskline/internal/db"
	"taskline/internal/logger"
)

func TestUpDownRoundTrip(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	r := New(conn, dialect, logger.Discard())

	if err := r.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	// Re-running is a no-op.
	if err := r.Up(ctx); err != nil {
		t.Fatalf("second up: %v", err)
	}
	v, err := r.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 3 {
		t.Fatalf("expected version 3, got %d", v)
	}

	if err := r.Down(ctx, 1); err != nil {
		t.Fatalf("down: %v", err)
	}
	v, err = r.Version(ctx)
	if err != nil {
		t.Fatalf("version after down: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
	if _, err := conn.ExecContext(ctx, `SELECT 1 FROM users`); err == nil {
		t.Fatalf("users table should be gone")
	}
	if _, err := conn.ExecContext(ctx, `SELECT 1 FROM projects`); err != nil {
		t.Fatalf("projects table should remain: %v", err)
	}
}
