package httpapi

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/godspeedsystems/ingestor-sdk/pkg/manager"
	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
)

// Handlers exposes the lifecycle manager over HTTP
type Handlers struct {
	manager *manager.Manager
}

// NewHandlers creates the HTTP handler set
func NewHandlers(m *manager.Manager) *Handlers {
	return &Handlers{manager: m}
}

// RegisterRoutes registers all routes on the echo instance
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.POST("/tasks", h.ScheduleTask)
	e.GET("/tasks", h.ListTasks)
	e.GET("/tasks/:id", h.GetTask)
	e.PATCH("/tasks/:id", h.UpdateTask)
	e.DELETE("/tasks/:id", h.DeleteTask)
	e.POST("/tasks/:id/enable", h.EnableTask)
	e.POST("/tasks/:id/disable", h.DisableTask)
	e.POST("/tasks/:id/trigger", h.TriggerTask)
	e.POST("/hooks/:endpoint", h.HandleWebhook)
	e.POST("/cron/tick", h.CronTick)
}

// errorResponse maps manager errors onto the HTTP error taxonomy
func errorResponse(c echo.Context, err error) error {
	var (
		notFound    task.ErrTaskNotFound
		exists      task.ErrTaskExists
		invalid     task.ErrInvalidTask
		disabled    task.ErrTaskDisabled
		running     task.ErrTaskRunning
		missingCfg  manager.ErrMissingConfig
		unsupported manager.ErrUnsupportedSource
	)
	switch {
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &exists), errors.As(err, &running):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &invalid), errors.As(err, &missingCfg), errors.As(err, &unsupported):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &disabled):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// ScheduleTask handles POST /tasks
func (h *Handlers) ScheduleTask(c echo.Context) error {
	var t task.Task
	if err := c.Bind(&t); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	created, err := h.manager.ScheduleTask(c.Request().Context(), &t)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListTasks handles GET /tasks
func (h *Handlers) ListTasks(c echo.Context) error {
	tasks, err := h.manager.ListTasks(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// GetTask handles GET /tasks/:id
func (h *Handlers) GetTask(c echo.Context) error {
	t, err := h.manager.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// taskPatchRequest is the JSON shape of a partial task update
type taskPatchRequest struct {
	Name        *string         `json:"name,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Source      *task.PluginRef `json:"source,omitempty"`
	Destination *task.PluginRef `json:"destination,omitempty"`
	Trigger     *task.Trigger   `json:"trigger,omitempty"`
}

// UpdateTask handles PATCH /tasks/:id
func (h *Handlers) UpdateTask(c echo.Context) error {
	var req taskPatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	patch := store.TaskPatch{
		Name:        req.Name,
		Enabled:     req.Enabled,
		Source:      req.Source,
		Destination: req.Destination,
		Trigger:     req.Trigger,
	}
	updated, err := h.manager.UpdateTask(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteTask handles DELETE /tasks/:id
func (h *Handlers) DeleteTask(c echo.Context) error {
	if err := h.manager.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "task deleted"})
}

// EnableTask handles POST /tasks/:id/enable
func (h *Handlers) EnableTask(c echo.Context) error {
	t, err := h.manager.EnableTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// DisableTask handles POST /tasks/:id/disable
func (h *Handlers) DisableTask(c echo.Context) error {
	t, err := h.manager.DisableTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// TriggerTask handles POST /tasks/:id/trigger (manual trigger)
func (h *Handlers) TriggerTask(c echo.Context) error {
	var payload map[string]any
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&payload); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}

	result, err := h.manager.TriggerManual(c.Request().Context(), c.Param("id"), payload)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleWebhook handles POST /hooks/:endpoint
func (h *Handlers) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Printf("[HTTP] Failed to read webhook body: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	result, err := h.manager.TriggerWebhook(c.Request().Context(), c.Param("endpoint"), body, c.Request().Header)
	if err != nil {
		log.Printf("[HTTP] Webhook dispatch failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error during dispatch"})
	}
	return c.JSON(result.Code, result)
}

// cronTickRequest optionally carries the tick time from the external scheduler
type cronTickRequest struct {
	Time string `json:"time,omitempty"`
}

// CronTick handles POST /cron/tick
func (h *Handlers) CronTick(c echo.Context) error {
	now := time.Now()
	if c.Request().ContentLength > 0 {
		var req cronTickRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if req.Time != "" {
			parsed, err := time.Parse(time.RFC3339, req.Time)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tick time"})
			}
			now = parsed
		}
	}

	runs, err := h.manager.TriggerDueCronTasks(c.Request().Context(), now)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
