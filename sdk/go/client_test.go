package tasklinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "fresh", body["newPassword"])
		w.Write([]byte(`{"message":"Login successful","token":"tok-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "")
	tok, err := c.Login(context.Background(), "bob", "temp", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, "tok-1", c.BearerToken)
}

func TestListProjectsPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Query().Get("page") == "" {
			w.Write([]byte(`{"page":"all","limit":"all","totalPages":1,"totalProjects":1,"projects":[{"_id":"p1","name":"A","ownerId":"u"}]}`))
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"page":2,"limit":5,"totalPages":3,"totalProjects":11,"projects":[{"_id":"p6","name":"F","ownerId":"u"}]}`))
	}))
	defer srv.Close()
	c := New(srv.URL, "tok")

	items, info, err := c.ListProjects(context.Background(), 2, 5)
	require.NoError(t, err)
	if diff := cmp.Diff(PageInfo{Page: 2, Limit: 5, TotalPages: 3, Total: 11}, info); diff != "" {
		t.Fatalf("page info mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, items, 1)
	assert.Equal(t, "p6", items[0].ID)

	_, info, err = c.ListProjects(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, PageInfo{TotalPages: 1, Total: 1}, info)
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Status not valid. only: 'todo', 'in-progress', 'done'"}`))
	}))
	defer srv.Close()

	status := "blocked"
	_, err := New(srv.URL, "tok").UpdateTask(context.Background(), "t/1", TaskUpdate{Status: &status})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Status not valid")
}

func TestDeleteTaskEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{"message":"Task deleted successfully"}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "tok").DeleteTask(context.Background(), "a/b"))
	assert.Equal(t, "/api/tasks/a%2Fb", gotPath)
}
