package tasklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

type Project struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type Task struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ProjectID   string `json:"projectId"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// ProjectUpdate carries the fields to change; nil leaves a field as is.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	ProjectID   *string `json:"projectId,omitempty"`
}

// PageInfo echoes the paging that was applied. Page and Limit are 0 when the listing is unpaged.
type PageInfo struct {
	Page       int
	Limit      int
	TotalPages int
	Total      int
}

type pageHeader struct {
	Page       json.RawMessage `json:"page"`
	Limit      json.RawMessage `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

func (h pageHeader) info(total int) PageInfo {
	info := PageInfo{TotalPages: h.TotalPages, Total: total}
	_ = json.Unmarshal(h.Page, &info.Page)
	_ = json.Unmarshal(h.Limit, &info.Limit)
	return info
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error: status=%d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("api error: status=%d %s", e.StatusCode, e.Message)
}

// Login exchanges credentials for a token and stores it on the client. newPassword is only
// needed when the account must change its password.
func (c *Client) Login(ctx context.Context, username, password, newPassword string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	if newPassword != "" {
		body["newPassword"] = newPassword
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp struct {
		Data Project `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "api/projects", map[string]string{"name": name, "description": description}, &resp)
	return resp.Data, err
}

// ListProjects lists the caller's projects. Paging applies only when page and limit are both positive.
func (c *Client) ListProjects(ctx context.Context, page, limit int) ([]Project, PageInfo, error) {
	var resp struct {
		pageHeader
		TotalProjects int       `json:"totalProjects"`
		Projects      []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, pagePath("api/projects", page, limit), nil, &resp); err != nil {
		return nil, PageInfo{}, err
	}
	return resp.Projects, resp.info(resp.TotalProjects), nil
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "api/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (Project, error) {
	var resp struct {
		Data Project `json:"data"`
	}
	err := c.do(ctx, http.MethodPut, "api/projects/"+url.PathEscape(id), update, &resp)
	return resp.Data, err
}

// DeleteProject removes the project and every task referencing it.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/projects/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateTask(ctx context.Context, task Task) (Task, error) {
	body := map[string]string{
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"projectId":   task.ProjectID,
	}
	var resp struct {
		Data Task `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "api/tasks", body, &resp)
	return resp.Data, err
}

func (c *Client) ListTasks(ctx context.Context, page, limit int) ([]Task, PageInfo, error) {
	var resp struct {
		pageHeader
		TotalTasks int    `json:"totalTasks"`
		Tasks      []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, pagePath("api/tasks", page, limit), nil, &resp); err != nil {
		return nil, PageInfo{}, err
	}
	return resp.Tasks, resp.info(resp.TotalTasks), nil
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "api/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, update TaskUpdate) (Task, error) {
	var resp struct {
		Data Task `json:"data"`
	}
	err := c.do(ctx, http.MethodPut, "api/tasks/"+url.PathEscape(id), update, &resp)
	return resp.Data, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/tasks/"+url.PathEscape(id), nil, nil)
}

func pagePath(p string, page, limit int) string {
	if page <= 0 || limit <= 0 {
		return p
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	return p + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Message = envelope.Message
			apiErr.Detail = envelope.Error
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
