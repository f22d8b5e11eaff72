package engine

import (
	"errors"
	"fmt"

	"taskline/internal/engine/auth"
	"taskline/internal/repo"
)

var (
	// ErrNotFound reports that no record matched the id (and owner, where scoped).
	ErrNotFound = repo.ErrNotFound
	// ErrProjectNotFound reports a task referencing a project that does not exist.
	ErrProjectNotFound = fmt.Errorf("project %w", repo.ErrNotFound)
	// ErrEmptyPage reports a listing whose requested page holds no records.
	ErrEmptyPage = errors.New("empty page")
	// ErrInvalidStatus reports a task status outside todo, in-progress and done.
	ErrInvalidStatus = errors.New("invalid task status")
)

// InvalidInputError reports a missing or malformed field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// InternalError wraps a store failure with the operation that hit it.
type InternalError struct {
	Op  string
	Err error
}

func (e InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e InternalError) Unwrap() error { return e.Err }

// classify passes domain errors through and wraps everything else as InternalError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	var ie InvalidInputError
	var ce InternalError
	switch {
	case errors.As(err, &fe), errors.As(err, &ie), errors.As(err, &ce):
		return err
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, ErrEmptyPage), errors.Is(err, ErrInvalidStatus):
		return err
	}
	return InternalError{Op: op, Err: err}
}
