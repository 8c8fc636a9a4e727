package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListWorkflows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("X-N8N-API-KEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","name":"Sync CRM","active":true,"tags":[{"id":"t1","name":"crm"}]},{"id":"2","name":"Digest","active":false}],"nextCursor":null}`))
	}))
	defer srv.Close()

	c := NewN8NClient(time.Second, zap.NewNop())
	wfs, err := c.ListWorkflows(context.Background(), srv.URL+"/", "key-123")
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, "Sync CRM", wfs[0].Name)
	assert.True(t, wfs[0].Active)
	assert.Equal(t, "crm", wfs[0].Tags[0].Name)
	assert.False(t, wfs[1].Active)
}

func TestListWorkflowsEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	wfs, err := NewN8NClient(time.Second, zap.NewNop()).ListWorkflows(context.Background(), srv.URL, "k")
	require.NoError(t, err)
	assert.NotNil(t, wfs)
	assert.Empty(t, wfs)
}

func TestSetWorkflowActive(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"id":"42","name":"Digest","active":true}`))
	}))
	defer srv.Close()

	c := NewN8NClient(time.Second, zap.NewNop())
	wf, err := c.SetWorkflowActive(context.Background(), srv.URL, "k", "42", true)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/workflows/42/activate", gotPath)
	assert.True(t, wf.Active)

	_, err = c.SetWorkflowActive(context.Background(), srv.URL, "k", "42", false)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/workflows/42/deactivate", gotPath)
}

func TestN8NErrorPassesStatusThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
	}))
	defer srv.Close()

	_, err := NewN8NClient(time.Second, zap.NewNop()).SetWorkflowActive(context.Background(), srv.URL, "bad", "1", true)
	var n8nErr *N8NError
	require.True(t, errors.As(err, &n8nErr))
	assert.Equal(t, http.StatusUnauthorized, n8nErr.StatusCode)
	assert.Equal(t, `{"message":"unauthorized"}`, n8nErr.Body)
}

func TestN8NUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewN8NClient(time.Second, zap.NewNop()).ListWorkflows(context.Background(), url, "k")
	assert.ErrorIs(t, err, ErrN8NUnavailable)
}
