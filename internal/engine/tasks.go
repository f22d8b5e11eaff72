package engine

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	ProjectID   string
}

func (o TaskCreateOptions) validate() error {
	switch {
	case strings.TrimSpace(o.Title) == "":
		return InvalidInputError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(o.Description) == "":
		return InvalidInputError{Field: "description", Reason: "is required"}
	case !o.Status.Valid():
		return ErrInvalidStatus
	}
	return nil
}

// CreateTask stores a task owned by the caller. The referenced project must exist but may
// belong to anyone; a missing project is reported before any other field problem.
func (e Engine) CreateTask(ctx context.Context, id auth.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return domain.Task{}, InvalidInputError{Field: "projectId", Reason: "is required"}
	}
	now := e.stamp()
	t := domain.Task{
		ID:          e.newID(),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		ProjectID:   opts.ProjectID,
		OwnerID:     id.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := e.Repo.ProjectExists(ctx, tx, opts.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProjectNotFound
		}
		if err := opts.validate(); err != nil {
			return err
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, id.UserID, events.EventPayload{
			"project_id": t.ProjectID,
			"status":     string(t.Status),
		})
	})
	if err != nil {
		return domain.Task{}, classify("creating task", err)
	}
	return t, nil
}

// ListTasks returns the caller's tasks, optionally paged.
func (e Engine) ListTasks(ctx context.Context, id auth.Identity, page, limit *int) (Page[domain.Task], error) {
	total, err := e.Repo.CountTasks(ctx, id.UserID)
	if err != nil {
		return Page[domain.Task]{}, classify("fetching tasks", err)
	}
	w := Paginate(total, page, limit)
	items, err := e.Repo.ListTasks(ctx, id.UserID, repo.Window{Skip: w.Skip, Limit: w.Limit})
	if err != nil {
		return Page[domain.Task]{}, classify("fetching tasks", err)
	}
	if len(items) == 0 {
		return Page[domain.Task]{}, ErrEmptyPage
	}
	return Page[domain.Task]{Items: items, Total: total, TotalPages: w.TotalPages, Page: w.Page, Limit: w.PageLimit}, nil
}

// GetTask returns a task only if the caller owns it.
func (e Engine) GetTask(ctx context.Context, id auth.Identity, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetOwnedTask(ctx, nil, taskID, id.UserID)
	if err != nil {
		return domain.Task{}, classify("fetching task", err)
	}
	return t, nil
}

// UpdateTask patches one of the caller's tasks. A missing task is reported before an invalid
// status, and an invalid status is rejected before anything is written.
func (e Engine) UpdateTask(ctx context.Context, id auth.Identity, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	var updated domain.Task
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOwnedTask(ctx, tx, taskID, id.UserID); err != nil {
			return err
		}
		if patch.Status != nil && !patch.Status.Valid() {
			return ErrInvalidStatus
		}
		if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
			return InvalidInputError{Field: "title", Reason: "must not be empty"}
		}
		if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
			return InvalidInputError{Field: "description", Reason: "must not be empty"}
		}
		if patch.ProjectID != nil {
			ok, err := e.Repo.ProjectExists(ctx, tx, *patch.ProjectID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrProjectNotFound
			}
		}
		if err := e.Repo.UpdateOwnedTask(ctx, tx, taskID, id.UserID, patch, e.stamp()); err != nil {
			return err
		}
		t, err := e.Repo.GetOwnedTask(ctx, tx, taskID, id.UserID)
		if err != nil {
			return err
		}
		updated = t
		return e.Events.Append(ctx, tx, events.TaskUpdated, "task", t.ID, id.UserID, taskPatchPayload(patch))
	})
	if err != nil {
		return domain.Task{}, classify("updating task", err)
	}
	return updated, nil
}

// DeleteTask removes any task by id, regardless of owner. Admin only.
func (e Engine) DeleteTask(ctx context.Context, id auth.Identity, taskID string) error {
	if err := id.RequireAdmin("delete tasks"); err != nil {
		return err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskDeleted, "task", taskID, id.UserID, nil)
	})
	return classify("deleting task", err)
}

func taskPatchPayload(p domain.TaskPatch) events.EventPayload {
	payload := events.EventPayload{}
	if p.Title != nil {
		payload["title"] = *p.Title
	}
	if p.Description != nil {
		payload["description"] = *p.Description
	}
	if p.Status != nil {
		payload["status"] = string(*p.Status)
	}
	if p.ProjectID != nil {
		payload["project_id"] = *p.ProjectID
	}
	return payload
}
