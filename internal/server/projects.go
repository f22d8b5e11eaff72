package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

type idPath struct {
	ID string `path:"id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/api/projects",
		Summary:       "Create project (admin)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectMessage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, id, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err, "project")
		}
		return &struct {
			Body ProjectMessage `json:"body"`
		}{Body: ProjectMessage{Message: "Project created successfully", Data: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/api/projects",
		Summary:     "List own projects",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *PageQuery) (*struct {
		Body ProjectPage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListProjects(ctx, id, engine.ParseQuery(input.Page), engine.ParseQuery(input.Limit))
		if err != nil {
			return nil, handleError(err, "project")
		}
		return &struct {
			Body ProjectPage `json:"body"`
		}{Body: projectPage(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/api/projects/{id}",
		Summary:     "Get own project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, id, input.ID)
		if err != nil {
			return nil, handleError(err, "project")
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/api/projects/{id}",
		Summary:     "Update own project (admin)",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		idPath
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectMessage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, id, input.ID, domain.ProjectPatch{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err, "project")
		}
		return &struct {
			Body ProjectMessage `json:"body"`
		}{Body: ProjectMessage{Message: "Project updated successfully", Data: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/api/projects/{id}",
		Summary:     "Delete own project and every task referencing it (admin)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.DeleteProject(ctx, id, input.ID); err != nil {
			return nil, handleError(err, "project")
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Project and related tasks deleted successfully"}}, nil
	})
}
