package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/api/tasks",
		Summary:       "Create task in any existing project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskMessage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, id, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      domain.TaskStatus(input.Body.Status),
			ProjectID:   input.Body.ProjectID,
		})
		if err != nil {
			return nil, handleError(err, "task")
		}
		return &struct {
			Body TaskMessage `json:"body"`
		}{Body: TaskMessage{Message: "Task created successfully", Data: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/api/tasks",
		Summary:     "List own tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *PageQuery) (*struct {
		Body TaskPage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListTasks(ctx, id, engine.ParseQuery(input.Page), engine.ParseQuery(input.Limit))
		if err != nil {
			return nil, handleError(err, "task")
		}
		return &struct {
			Body TaskPage `json:"body"`
		}{Body: taskPage(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/api/tasks/{id}",
		Summary:     "Get own task",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, id, input.ID)
		if err != nil {
			return nil, handleError(err, "task")
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/api/tasks/{id}",
		Summary:     "Update own task",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		idPath
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskMessage `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, id, input.ID, taskPatch(input.Body))
		if err != nil {
			return nil, handleError(err, "task")
		}
		return &struct {
			Body TaskMessage `json:"body"`
		}{Body: TaskMessage{Message: "Task updated successfully", Data: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/api/tasks/{id}",
		Summary:     "Delete any task (admin)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		id, authErr := callerIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, id, input.ID); err != nil {
			return nil, handleError(err, "task")
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Task deleted successfully"}}, nil
	})
}
