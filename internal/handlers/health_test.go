package handlers_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/stretchr/testify/assert"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func healthy(ctx context.Context) error { return nil }

func TestHealth_AllUp(t *testing.T) {
	h := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": checkFunc(healthy),
		"redis":    checkFunc(healthy),
	}, slog.Default())

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]string
	handlers.AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "up", body["database"])
	assert.Equal(t, "up", body["redis"])
}

func TestHealth_DependencyDown(t *testing.T) {
	h := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": checkFunc(healthy),
		"redis": checkFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}),
	}, slog.Default())

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]string
	handlers.AssertJSONResponse(t, w, http.StatusServiceUnavailable, &body)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "up", body["database"])
	assert.Equal(t, "down", body["redis"])
}
