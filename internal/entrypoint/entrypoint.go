// Package entrypoint wires the gatekeeper server together and runs it.
package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/crypto"
	"github.com/mrlokans/gatekeeper/internal/database"
	auditrepo "github.com/mrlokans/gatekeeper/internal/database/audit"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	http_controllers "github.com/mrlokans/gatekeeper/internal/http"
	"github.com/mrlokans/gatekeeper/internal/identity"
	"github.com/mrlokans/gatekeeper/internal/scheduler"
	"github.com/mrlokans/gatekeeper/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	// Background work stops after the last request has been served.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

// applicationSecret returns the configured secret, or a random one that only
// lives as long as the process.
func applicationSecret(cfg config.Auth) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return crypto.ParseSecret(cfg.SessionSecret), nil
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, err
	}
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to keep sessions across restarts)")
	return secret, nil
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Gatekeeper v%s", version)

	if !cfg.Identity.IsConfigured() {
		log.Printf("WARNING: identity provider is not configured. Set IDENTITY_URL and IDENTITY_API_KEY; auth operations will fail until then.")
	}
	if cfg.Maintenance.Schedule != "" {
		if err := scheduler.ValidateSchedule(cfg.Maintenance.Schedule); err != nil {
			log.Fatalf("Invalid MAINTENANCE_SCHEDULE %q: %v", cfg.Maintenance.Schedule, err)
		}
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	secret, err := applicationSecret(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to prepare session secret: %v", err)
	}
	sealer, err := crypto.NewSealer(secret)
	if err != nil {
		log.Fatalf("Failed to create token sealer: %v", err)
	}
	csrfKey, err := crypto.DeriveKey(secret, crypto.CSRFKeyInfo)
	if err != nil {
		log.Fatalf("Failed to derive CSRF key: %v", err)
	}

	sqlDB, err := db.SQL()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth, sealer)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	provider := identity.NewClient(identity.Config{
		BaseURL: cfg.Identity.URL,
		APIKey:  cfg.Identity.APIKey,
		Timeout: cfg.Identity.Timeout,
	})

	userRepo := users.NewRepository(db.DB)
	auditService := audit.NewService(auditrepo.NewRepository(db.DB))

	authService := auth.NewService(provider, sessionManager, cfg.Identity, cfg.Auth).
		WithUserMirror(userRepo).
		WithAudit(auditService)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var maintenanceScheduler *scheduler.MaintenanceScheduler
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.ConfigFrom(cfg)
		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		maintenance := tasks.NewMaintenance(taskCfg, auditService, userRepo, auditService)
		taskClient.Register(maintenance.Queues()...)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		taskClient.Start(taskCtx)

		maintenanceScheduler = scheduler.NewMaintenanceScheduler(taskClient, maintenance, cfg.Maintenance.Schedule)
		if err := maintenanceScheduler.Start(taskCtx); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	} else {
		log.Printf("Task queue disabled; audit cleanup and mirror pruning will not run")
	}

	routerCfg := http_controllers.RouterConfig{
		Database:       db,
		Provider:       provider,
		AuthService:    authService,
		AuthConfig:     cfg.Auth,
		CSRFKey:        csrfKey,
		HSTSMaxAge:     cfg.HTTP.HSTSMaxAge,
		AuditService:   auditService,
		TemplatesPath:  cfg.UI.TemplatesPath,
		StaticPath:     cfg.UI.StaticPath,
		Version:        version,
		MetricsEnabled: cfg.Metrics.Enabled,
	}
	// Typed nils would defeat the router's optional checks.
	if taskClient != nil {
		routerCfg.TaskClient = taskClient
		routerCfg.Maintenance = maintenanceScheduler
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if maintenanceScheduler != nil {
			maintenanceScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		auditService.Wait()
	}

	Serve(router, cfg, onShutdown)
}
