package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	healthy = PingFunc(func(context.Context) error { return nil })
	down    = PingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name    string
		storage Pinger
		cache   Pinger
		want    string
	}{
		{"all healthy", healthy, healthy, StatusHealthy},
		{"cache down", healthy, down, StatusDegraded},
		{"storage down", down, healthy, StatusUnhealthy},
		{"everything down", down, down, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("test").
				Require("storage", tt.storage).
				Optional("cache", tt.cache)

			status := checker.Check(context.Background())

			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Dependencies, 2)
		})
	}
}

func TestHealthChecker_NoDependencies(t *testing.T) {
	status := NewHealthChecker("").Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Dependencies)
}

func TestHealthChecker_Message(t *testing.T) {
	status := NewHealthChecker("v1").Require("storage", down).Check(context.Background())
	assert.Equal(t, "connection refused", status.Dependencies["storage"].Message)
	assert.Equal(t, "v1", status.Version)
}

func TestHealthChecker_Names(t *testing.T) {
	checker := NewHealthChecker("").Require("storage", healthy).Optional("cache", healthy)
	assert.Equal(t, []string{"cache", "storage"}, checker.Names())
}

func TestHealthRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	redisPinger := PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	checker := NewHealthChecker("test").Require("storage", healthy).Optional("cache", redisPinger)

	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	get := func(path string) (*httptest.ResponseRecorder, HealthStatus) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var status HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		return w, status
	}

	w, status := get("/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusHealthy, status.Status)

	mr.Close()
	w, status = get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusDegraded, status.Status)

	w, status = get("/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusHealthy, status.Status)
}

func TestReadinessUnhealthy(t *testing.T) {
	checker := NewHealthChecker("").Require("storage", down)
	w := httptest.NewRecorder()

	checker.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
