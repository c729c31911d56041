package interfaces

// This file contains compile-time interface implementation checks.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/http"
	"github.com/mrlokans/gatekeeper/internal/identity"
	"github.com/mrlokans/gatekeeper/internal/scheduler"
	"github.com/mrlokans/gatekeeper/internal/tasks"
)

// =============================================================================
// Identity Provider
// =============================================================================

var _ auth.IdentityClient = (*identity.Client)(nil)
var _ http.HealthChecker = (*identity.Client)(nil)

// =============================================================================
// Persistence
// =============================================================================

var _ auth.UserMirror = (*users.Repository)(nil)
var _ auth.AuditLogger = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.UserMirrorPruner = (*users.Repository)(nil)
var _ tasks.SystemLogger = (*audit.Service)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ scheduler.TaskSource = (*tasks.Maintenance)(nil)
var _ http.MaintenanceRunner = (*scheduler.MaintenanceScheduler)(nil)
