package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/tasks"
)

// TasksController handles task queue management endpoints.
type TasksController struct {
	queue TaskQueue
}

func NewTasksController(queue TaskQueue) *TasksController {
	return &TasksController{queue: queue}
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"task_types": tasks.Types(),
	})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == "not_found" {
		respondNotFound(c, "task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": status,
	})
}

// RunTask handles POST /api/tasks/:type/run
// Supports both JSON API and HTMX (form) requests.
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var params tasks.RunParams
	// Try to bind from form data first (for HTMX), then JSON
	if c.ContentType() == "application/x-www-form-urlencoded" || c.ContentType() == "multipart/form-data" {
		_ = c.ShouldBind(&params)
	} else if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&params)
	}
	params.ActorID = auth.GetUserID(c)

	task, err := tasks.NewTask(taskType, params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tasks.ErrUnknownTaskType) {
			status = http.StatusNotFound
		}
		tc.respondTaskError(c, status, err.Error())
		return
	}

	taskID, err := tc.queue.Enqueue(task)
	if err != nil {
		tc.respondTaskError(c, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	tc.respondTaskSuccess(c, taskID, taskType)
}

func (tc *TasksController) respondTaskSuccess(c *gin.Context, taskID, taskType string) {
	if isHTMXRequest(c) {
		c.Header("Content-Type", "text/html")
		c.String(http.StatusOK, fmt.Sprintf(`<div class="task-result task-success"><span>Task enqueued</span><p class="task-id">ID: %s</p></div>`,
			template.HTMLEscapeString(taskID)))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task_id": taskID,
		"type":    taskType,
		"message": "task enqueued",
	})
}

func (tc *TasksController) respondTaskError(c *gin.Context, status int, errorMsg string) {
	if isHTMXRequest(c) {
		c.Header("Content-Type", "text/html")
		c.String(http.StatusOK, fmt.Sprintf(`<div class="task-result task-error"><span>Failed</span><p>%s</p></div>`,
			template.HTMLEscapeString(errorMsg)))
		return
	}

	c.JSON(status, ErrorResponse{Error: errorMsg})
}
