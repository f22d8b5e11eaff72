package server

import (
	"taskline/internal/domain"
	"taskline/internal/engine"
)

// Request payloads. Fields are optional in the schema; the engine reports what is missing.

type LoginRequest struct {
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
}

type CreateProjectRequest struct {
	Name        string `json:"name,omitempty" example:"Website relaunch"`
	Description string `json:"description,omitempty" example:"Q3 marketing site"`
}

type UpdateProjectRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type CreateTaskRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty" example:"todo"`
	ProjectID   string `json:"projectId,omitempty"`
}

type UpdateTaskRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" example:"in-progress"`
	ProjectID   *string  `json:"projectId,omitempty"`
}

type PageQuery struct {
	Page  string `query:"page" doc:"1-based page number; paging applies only with limit"`
	Limit string `query:"limit" doc:"page size; paging applies only with page"`
}

// Response payloads

type LoginResponse struct {
	Message string `json:"message" example:"Login successful"`
	Token   string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ProjectMessage struct {
	Message string         `json:"message"`
	Data    domain.Project `json:"data"`
}

type TaskMessage struct {
	Message string      `json:"message"`
	Data    domain.Task `json:"data"`
}

// ProjectPage reports page and limit as numbers, or "all" when the listing is unpaged.
type ProjectPage struct {
	Page          any              `json:"page"`
	Limit         any              `json:"limit"`
	TotalPages    int              `json:"totalPages"`
	TotalProjects int              `json:"totalProjects"`
	Projects      []domain.Project `json:"projects"`
}

type TaskPage struct {
	Page       any           `json:"page"`
	Limit      any           `json:"limit"`
	TotalPages int           `json:"totalPages"`
	TotalTasks int           `json:"totalTasks"`
	Tasks      []domain.Task `json:"tasks"`
}

func pageValue(n int) any {
	if n == 0 {
		return "all"
	}
	return n
}

func projectPage(p engine.Page[domain.Project]) ProjectPage {
	return ProjectPage{
		Page:          pageValue(p.Page),
		Limit:         pageValue(p.Limit),
		TotalPages:    p.TotalPages,
		TotalProjects: p.Total,
		Projects:      p.Items,
	}
}

func taskPage(p engine.Page[domain.Task]) TaskPage {
	return TaskPage{
		Page:       pageValue(p.Page),
		Limit:      pageValue(p.Limit),
		TotalPages: p.TotalPages,
		TotalTasks: p.Total,
		Tasks:      p.Items,
	}
}

func taskPatch(req UpdateTaskRequest) domain.TaskPatch {
	patch := domain.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
	}
	if req.Status != nil {
		s := domain.TaskStatus(*req.Status)
		patch.Status = &s
	}
	return patch
}
