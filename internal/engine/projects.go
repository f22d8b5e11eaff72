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

// CreateProject stores a project owned by the caller. Admin only.
func (e Engine) CreateProject(ctx context.Context, id auth.Identity, name, description string) (domain.Project, error) {
	if err := id.RequireAdmin("create projects"); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, InvalidInputError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(description) == "" {
		return domain.Project{}, InvalidInputError{Field: "description", Reason: "is required"}
	}
	now := e.stamp()
	p := domain.Project{
		ID:          e.newID(),
		Name:        name,
		Description: description,
		OwnerID:     id.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ProjectCreated, "project", p.ID, id.UserID, events.EventPayload{"name": p.Name})
	})
	if err != nil {
		return domain.Project{}, classify("creating project", err)
	}
	return p, nil
}

// ListProjects returns the caller's projects, optionally paged.
func (e Engine) ListProjects(ctx context.Context, id auth.Identity, page, limit *int) (Page[domain.Project], error) {
	total, err := e.Repo.CountProjects(ctx, id.UserID)
	if err != nil {
		return Page[domain.Project]{}, classify("fetching projects", err)
	}
	w := Paginate(total, page, limit)
	items, err := e.Repo.ListProjects(ctx, id.UserID, repo.Window{Skip: w.Skip, Limit: w.Limit})
	if err != nil {
		return Page[domain.Project]{}, classify("fetching projects", err)
	}
	if len(items) == 0 {
		return Page[domain.Project]{}, ErrEmptyPage
	}
	return Page[domain.Project]{Items: items, Total: total, TotalPages: w.TotalPages, Page: w.Page, Limit: w.PageLimit}, nil
}

// GetProject returns a project only if the caller owns it.
func (e Engine) GetProject(ctx context.Context, id auth.Identity, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetOwnedProject(ctx, nil, projectID, id.UserID)
	if err != nil {
		return domain.Project{}, classify("fetching project", err)
	}
	return p, nil
}

// UpdateProject patches one of the caller's projects and returns the stored result. Admin only.
func (e Engine) UpdateProject(ctx context.Context, id auth.Identity, projectID string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := id.RequireAdmin("update projects"); err != nil {
		return domain.Project{}, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Project{}, InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	var updated domain.Project
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateOwnedProject(ctx, tx, projectID, id.UserID, patch, e.stamp()); err != nil {
			return err
		}
		p, err := e.Repo.GetOwnedProject(ctx, tx, projectID, id.UserID)
		if err != nil {
			return err
		}
		updated = p
		return e.Events.Append(ctx, tx, events.ProjectUpdated, "project", p.ID, id.UserID, projectPatchPayload(patch))
	})
	if err != nil {
		return domain.Project{}, classify("updating project", err)
	}
	return updated, nil
}

// DeleteProject removes one of the caller's projects along with every task that references it,
// whoever owns those tasks. Admin only. Both deletes commit together.
func (e Engine) DeleteProject(ctx context.Context, id auth.Identity, projectID string) (int64, error) {
	if err := id.RequireAdmin("delete projects"); err != nil {
		return 0, err
	}
	var removed int64
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteOwnedProject(ctx, tx, projectID, id.UserID); err != nil {
			return err
		}
		n, err := e.Repo.DeleteTasksByProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		removed = n
		return e.Events.Append(ctx, tx, events.ProjectDeleted, "project", projectID, id.UserID, events.EventPayload{"tasks_deleted": n})
	})
	if err != nil {
		return 0, classify("deleting project", err)
	}
	return removed, nil
}

func projectPatchPayload(p domain.ProjectPatch) events.EventPayload {
	payload := events.EventPayload{}
	if p.Name != nil {
		payload["name"] = *p.Name
	}
	if p.Description != nil {
		payload["description"] = *p.Description
	}
	return payload
}
