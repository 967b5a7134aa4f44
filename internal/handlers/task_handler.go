package handlers

import (
	"errors"
	"net/http"

	"flowboard/internal/services"

	"github.com/gin-gonic/gin"
)

// TaskHandler is the task-update surface: mutations here are what feed the
// workflow runner with change contexts.
type TaskHandler struct {
	service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// taskResponse carries the task plus whatever automations the mutation fired,
// so callers can surface or ignore workflow outcomes.
type taskResponse struct {
	Task      interface{}                `json:"task"`
	Workflows []services.ExecutionResult `json:"workflows,omitempty"`
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req services.TaskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	task, err := h.service.NewTask(c.Request.Context(), &req, actorID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create task", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	task, err := h.service.GetTask(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get task", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask mutates task fields and reports the automations the change
// triggered. The mutation is never blocked or rolled back by automation
// failures; those show up as partial_failure results.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.TaskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	task, results, err := h.service.UpdateTask(c.Request.Context(), id, &req, actorID(c))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update task", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, taskResponse{Task: task, Workflows: results})
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req services.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	tasks, total, err := h.service.ListTasks(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list tasks", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     tasks,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete task", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// AddLabel attaches a label to a task; fires "labeled" workflows.
func (h *TaskHandler) AddLabel(c *gin.Context) {
	taskID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	labelID, err := parseID(c, "labelId")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid label id", Message: err.Error()})
		return
	}
	results, err := h.service.AddLabel(c.Request.Context(), taskID, labelID, actorID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to add label", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, taskResponse{Workflows: results})
}

// RemoveLabel detaches a label from a task.
func (h *TaskHandler) RemoveLabel(c *gin.Context) {
	taskID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	labelID, err := parseID(c, "labelId")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid label id", Message: err.Error()})
		return
	}
	results, err := h.service.RemoveLabel(c.Request.Context(), taskID, labelID, actorID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to remove label", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, taskResponse{Workflows: results})
}

// RegisterTaskRoutes mounts the task endpoints.
func RegisterTaskRoutes(r *gin.RouterGroup, handler *TaskHandler) {
	tasks := r.Group("/tasks")
	{
		tasks.GET("", handler.ListTasks)
		tasks.POST("", handler.CreateTask)
		tasks.GET(":id", handler.GetTask)
		tasks.PUT(":id", handler.UpdateTask)
		tasks.DELETE(":id", handler.DeleteTask)
		tasks.POST(":id/labels/:labelId", handler.AddLabel)
		tasks.DELETE(":id/labels/:labelId", handler.RemoveLabel)
	}
}

// actorID reads the authenticated user set by the auth middleware.
func actorID(c *gin.Context) uint {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
