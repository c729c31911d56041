package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/database"
)

// HealthChecker reports whether the identity provider is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TaskQueue enqueues maintenance tasks and reports their status.
type TaskQueue interface {
	Enqueue(ctx context.Context, tasks ...backlite.Task) ([]string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// MaintenanceRunner enqueues every maintenance task at once.
type MaintenanceRunner interface {
	RunNow(ctx context.Context) ([]string, error)
}

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Provider HealthChecker

	// Authentication
	AuthService *auth.Service
	AuthConfig  config.Auth
	CSRFKey     []byte // 32 bytes; CSRF protection is off when empty
	HSTSMaxAge  int    // Seconds; 0 disables Strict-Transport-Security

	// Audit log (optional)
	AuditService *audit.Service

	// Task queue (optional)
	TaskClient  TaskQueue
	Maintenance MaintenanceRunner

	// UI paths
	TemplatesPath string
	StaticPath    string

	// Application info
	Version        string
	MetricsEnabled bool
}
