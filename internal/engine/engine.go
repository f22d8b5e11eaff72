package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"taskline/internal/db"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// timestampLayout is fixed-width so lexical order matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Engine hosts the project and task resource managers.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
	NewID  func() string
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{Dialect: dialect},
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(timestampLayout)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Page is one window of a listing.
type Page[T any] struct {
	Items      []T
	Total      int
	TotalPages int
	Page       int // 0 means "all"
	Limit      int // 0 means "all"
}
