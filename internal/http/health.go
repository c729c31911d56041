package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/identity"
)

const providerCheckTimeout = 3 * time.Second

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type HealthController struct {
	db       *database.Database
	provider HealthChecker
	version  string
}

func NewHealthController(db *database.Database, provider HealthChecker, version string) *HealthController {
	return &HealthController{
		db:       db,
		provider: provider,
		version:  version,
	}
}

// Status handles GET /health. Any failing check turns the response into a 503.
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	checks["identity_provider"] = h.checkProvider(c.Request.Context())
	if checks["identity_provider"] != "ok" && checks["identity_provider"] != "not configured" {
		status = "unhealthy"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

func (h *HealthController) checkProvider(ctx context.Context) string {
	if h.provider == nil {
		return "not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()

	err := h.provider.Health(ctx)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, identity.ErrNotConfigured):
		return "not configured"
	default:
		return "error: " + err.Error()
	}
}
