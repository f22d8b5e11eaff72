package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"taskline/internal/db"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

// Runner applies the embedded goose migrations for one dialect.
type Runner struct {
	db      *sql.DB
	dialect db.Dialect
	log     *slog.Logger
}

func New(conn *sql.DB, dialect db.Dialect, log *slog.Logger) Runner {
	if log == nil {
		log = slog.Default()
	}
	return Runner{db: conn, dialect: dialect, log: log}
}

func (r Runner) prepare() (string, error) {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: r.log})
	switch r.dialect {
	case db.Postgres:
		if err := goose.SetDialect("postgres"); err != nil {
			return "", fmt.Errorf("configure goose: %w", err)
		}
		return "sql/postgres", nil
	default:
		if err := goose.SetDialect("sqlite3"); err != nil {
			return "", fmt.Errorf("configure goose: %w", err)
		}
		return "sql/sqlite", nil
	}
}

// Up applies pending migrations.
func (r Runner) Up(ctx context.Context) error {
	dir, err := r.prepare()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := goose.UpContext(runCtx, r.db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.log.Debug("migrations applied", "dialect", r.dialect)
	return nil
}

// Version returns the current schema version.
func (r Runner) Version(ctx context.Context) (int64, error) {
	if _, err := r.prepare(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Status prints applied and pending migrations through the runner's logger at info level.
func (r Runner) Status(ctx context.Context) error {
	dir, err := r.prepare()
	if err != nil {
		return err
	}
	goose.SetLogger(statusLogger{gooseLogger{log: r.log}})
	if err := goose.StatusContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Down rolls back either the latest migration or down to targetVersion when positive.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	dir, err := r.prepare()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if err := goose.DownToContext(runCtx, r.db, dir, targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
		return nil
	}
	r.log.Info("rolling back latest migration")
	if err := goose.DownContext(runCtx, r.db, dir); err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
	os.Exit(1)
}

type statusLogger struct {
	gooseLogger
}

func (l statusLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

// Migrate applies embedded migrations in order.
func Migrate(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
	return New(conn, dialect, nil).Up(ctx)
}
