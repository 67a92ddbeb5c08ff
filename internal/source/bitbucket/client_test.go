package bitbucket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHeaders(t *testing.T) {
	var got http.Header
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	require.NoError(t, c.Post(context.Background(), "/x", nil, nil))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "no-check", got.Get("X-Atlassian-Token"))
}

func TestClientPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	var out map[string]interface{}
	err := c.Get(context.Background(), "/rest/api/1.0/x", &out)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "gateway down", apiErr.Body)
	assert.Equal(t, "unexpected status 502 on GET /rest/api/1.0/x: gateway down", err.Error())
	assert.False(t, IsNotFound(err))
}

func TestClientDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	err := c.Get(context.Background(), "/x", nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetAllPagesStopsWithoutNextPageStart(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isLastPage": false, "values": [{"id": 1}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	prs, err := c.GetAllPRPages(context.Background(), "/rest/api/1.0/dashboard/pull-requests", 0)
	require.NoError(t, err)

	assert.Len(t, prs, 1)
	assert.Equal(t, 1, calls)
}
