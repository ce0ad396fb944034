package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/internal/queue"
)

func TestClient_Process(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/v1/queue/4/process":
			_ = json.NewEncoder(w).Encode(models.Failed("blog 9 does not exist"))
		case "/api/v1/queue/5/process":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"queue item is leased by another worker"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)

	res, err := c.Process(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "blog 9 does not exist", res.Data.Message)

	_, err = c.Process(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.Contains(t, err.Error(), "leased")

	_, err = c.Process(context.Background(), 6)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
}

func TestClient_Stuck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/queue", r.URL.Path)
		assert.Equal(t, "stuck", r.URL.Query().Get("status"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"id":3,"status":"init"},{"id":8,"status":"failed"}]}`))
	}))
	defer srv.Close()

	ids, err := New(srv.URL, time.Second).Stuck(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 8}, ids)
}

func TestClient_Counts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"counts":{"scheduled":12,"started":0,"completed":3,"failed":1}}`))
	}))
	defer srv.Close()

	counts, err := New(srv.URL, time.Second).Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Scheduled: 12, Completed: 3, Failed: 1}, counts)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr, time.Second).Process(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, IsStatus(err, http.StatusNotFound))
}
