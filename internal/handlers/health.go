package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// HealthChecker is satisfied by database.DB and session.RedisStore.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports whether the service's backing stores are reachable.
type HealthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(checks map[string]HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: logger}
}

// Health returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "healthy"}
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
			body[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "up"
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}

	pkghttp.WriteJSON(w, status, body)
}
