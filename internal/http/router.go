package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/metrics"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.HSTSMaxAge > 0 {
		router.Use(auth.StrictTransportSecurityMiddleware(cfg.HSTSMaxAge))
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFKey) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFKey, cfg.AuthConfig.SecureCookies))
	}

	var sessions *auth.SessionManager
	if cfg.AuthService != nil {
		sessions = cfg.AuthService.Sessions()
		// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
		router.Use(sessions.SessionLoadSave())
		router.Use(auth.NewMiddleware(cfg.AuthService).Handler())
	}

	// Serve static files
	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	if cfg.AuthService != nil {
		authController, err := auth.NewAuthController(cfg.AuthService, cfg.TemplatesPath)
		if err == nil {
			authController.RegisterRoutes(router)
		}
		auth.NewAPIController(cfg.AuthService).RegisterRoutes(router)
	}

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Provider, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	if cfg.MetricsEnabled {
		router.GET("/metrics", metrics.Handler())
	}

	if cfg.AuditService != nil {
		auditController := NewAuditController(cfg.AuditService, cfg.AuthConfig)
		router.GET("/api/audit", auditController.GetAuditEvents)
		router.GET("/api/audit/:id", auditController.GetAuditEvent)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		NewTasksController(cfg.TaskClient, cfg.Maintenance, cfg.AuthConfig).RegisterRoutes(router)
	}

	// UI routes
	home := NewHomeController(sessions, cfg.TemplatesPath)
	router.GET("/", home.HomePage)

	return router
}
