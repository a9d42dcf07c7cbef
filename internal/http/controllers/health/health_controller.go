// Package health contiene los controllers de liveness y readiness.
package health

import (
	"context"
	"net/http"
	"time"

	dto "github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/http/helpers"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// Check es un probe de un componente (store, redis, ...).
type Check func(ctx context.Context) error

type Controller struct {
	version string
	checks  map[string]Check
	timeout time.Duration
}

func NewController(version string, checks map[string]Check) *Controller {
	return &Controller{version: version, checks: checks, timeout: 2 * time.Second}
}

// Healthz maneja GET /healthz. Sólo indica que el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Version: c.version})
}

// Readyz maneja GET /readyz. 503 si algún componente falla.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ready", Version: c.version, Components: map[string]dto.ComponentStatus{}}
	status := http.StatusOK
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			resp.Components[name] = dto.ComponentStatus{Status: "down", Error: err.Error()}
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = dto.ComponentStatus{Status: "up"}
	}

	logger.From(ctx).Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)
	helpers.WriteJSON(w, status, resp)
}
