package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	auditservice "github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/database/audit"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

const (
	defaultAuditLimit = 25
	maxAuditLimit     = 100
)

// AuditController exposes the caller's own audit trail. Admins may look at
// any account through the email query parameter.
type AuditController struct {
	auditService *auditservice.Service
	authConfig   config.Auth
}

func NewAuditController(auditService *auditservice.Service, authConfig config.Auth) *AuditController {
	return &AuditController{
		auditService: auditService,
		authConfig:   authConfig,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?action=sign_in&limit=25&offset=0
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not signed in")
		return
	}

	filter := audit.Filter{
		Email:  caller.Email,
		Action: c.Query("action"),
	}
	if eventType := c.Query("type"); eventType != "" {
		filter.EventType = entities.AuditEventType(eventType)
	}
	if email := strings.TrimSpace(c.Query("email")); email != "" && ac.authConfig.IsAdmin(caller.Email) {
		filter.Email = strings.ToLower(email)
	}

	limit, offset := parsePagination(c, defaultAuditLimit, maxAuditLimit)
	events, total, err := ac.auditService.GetEvents(filter, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(events, total, limit, offset))
}

// GetAuditEvent returns a single event. Events of other accounts read as
// missing unless the caller is an admin.
// GET /api/audit/:id
func (ac *AuditController) GetAuditEvent(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not signed in")
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	event, err := ac.auditService.GetEvent(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "audit event")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get audit event")
		return
	}

	if !strings.EqualFold(event.Email, caller.Email) && !ac.authConfig.IsAdmin(caller.Email) {
		respondNotFound(c, "audit event")
		return
	}

	c.JSON(http.StatusOK, event)
}
