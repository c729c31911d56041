package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/tasks"
)

const taskStatusTimeout = 5 * time.Second

// TasksController lets admins trigger and inspect maintenance tasks.
type TasksController struct {
	client      TaskQueue
	maintenance MaintenanceRunner
	authConfig  config.Auth
}

// NewTasksController creates a new TasksController. maintenance may be nil.
func NewTasksController(client TaskQueue, maintenance MaintenanceRunner, authConfig config.Auth) *TasksController {
	return &TasksController{
		client:      client,
		maintenance: maintenance,
		authConfig:  authConfig,
	}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// RunTaskRequest is the request body for running a task.
type RunTaskRequest struct {
	// RetentionDays overrides the configured retention; 0 keeps it.
	RetentionDays int `json:"retention_days,omitempty" form:"retention_days" binding:"gte=0"`
}

// RequireAdmin rejects callers not listed in AUTH_ADMIN_EMAILS.
func (tc *TasksController) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := currentCaller(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "not signed in"})
			return
		}
		if !tc.authConfig.IsAdmin(caller.Email) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin access required"})
			return
		}
		c.Next()
	}
}

// RegisterRoutes registers the /api/tasks endpoints behind RequireAdmin.
func (tc *TasksController) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/tasks", tc.RequireAdmin())
	group.GET("/types", tc.ListTaskTypes)
	group.POST("/maintenance/run", tc.RunMaintenance)
	group.GET("/:id", tc.GetTaskStatus)
	group.POST("/:type/run", tc.RunTask)
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{
			Type:        tasks.QueueCleanupAuditEvents,
			Description: "Delete audit events older than the retention window",
			Queue:       tasks.QueueCleanupAuditEvents,
		},
		{
			Type:        tasks.QueuePruneUserMirror,
			Description: "Delete mirrored users not seen within the retention window",
			Queue:       tasks.QueuePruneUserMirror,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"task_types": types,
	})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), taskStatusTimeout)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&req); err != nil {
			respondBadRequest(c, "retention_days must be zero or positive")
			return
		}
	}

	var task backlite.Task
	switch taskType {
	case tasks.QueueCleanupAuditEvents:
		task = tasks.CleanupAuditEventsTask{RetentionDays: req.RetentionDays}
	case tasks.QueuePruneUserMirror:
		task = tasks.PruneUserMirrorTask{RetentionDays: req.RetentionDays}
	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	ids, err := tc.client.Enqueue(c.Request.Context(), task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"task_ids": ids,
		"type":     taskType,
		"message":  "task enqueued",
	})
}

// RunMaintenance handles POST /api/tasks/maintenance/run and enqueues every
// maintenance task with the configured retention.
func (tc *TasksController) RunMaintenance(c *gin.Context) {
	if tc.maintenance == nil {
		respondError(c, http.StatusServiceUnavailable, "maintenance is not configured")
		return
	}

	ids, err := tc.maintenance.RunNow(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "run maintenance")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"task_ids": ids,
		"message":  "maintenance enqueued",
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
