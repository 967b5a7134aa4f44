package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"flowboard/internal/services"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler manages automation rules: CRUD, the audit trail and manual
// re-runs. Trigger/action payloads are validated by the service at save-time.
type WorkflowHandler struct {
	service *services.WorkflowService
	runner  *services.WorkflowRunner
}

func NewWorkflowHandler(service *services.WorkflowService, runner *services.WorkflowRunner) *WorkflowHandler {
	return &WorkflowHandler{service: service, runner: runner}
}

// ListWorkflows returns a project's rules.
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	workflows, err := h.service.ListWorkflows(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list workflows", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow creates a rule in the project.
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	var req services.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	wf, err := h.service.CreateWorkflow(c.Request.Context(), projectID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create workflow", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// UpdateWorkflow edits a rule; the trigger kind cannot change.
func (h *WorkflowHandler) UpdateWorkflow(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	wf, err := h.service.UpdateWorkflow(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrWorkflowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update workflow", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a rule.
func (h *WorkflowHandler) DeleteWorkflow(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteWorkflow(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrWorkflowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete workflow", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListLogs pages through a workflow's audit entries, newest first.
func (h *WorkflowHandler) ListLogs(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.WorkflowLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	logs, total, err := h.service.ListLogs(c.Request.Context(), id, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list logs", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     logs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// ListExecutions returns a workflow's execution records.
func (h *WorkflowHandler) ListExecutions(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	execs, err := h.service.ListExecutions(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execs)
}

type workflowRunRequest struct {
	TaskID uint `json:"task_id" binding:"required"`
}

// RunWorkflow manually re-triggers one rule against one task, bypassing the matcher.
func (h *WorkflowHandler) RunWorkflow(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req workflowRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	result, err := h.runner.RunWorkflow(c.Request.Context(), id, req.TaskID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to run workflow", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterWorkflowRoutes mounts the automation endpoints.
func RegisterWorkflowRoutes(r *gin.RouterGroup, handler *WorkflowHandler) {
	r.GET("/projects/:id/workflows", handler.ListWorkflows)
	r.POST("/projects/:id/workflows", handler.CreateWorkflow)

	wf := r.Group("/workflows")
	{
		wf.PUT(":id", handler.UpdateWorkflow)
		wf.DELETE(":id", handler.DeleteWorkflow)
		wf.GET(":id/logs", handler.ListLogs)
		wf.GET(":id/executions", handler.ListExecutions)
		wf.POST(":id/run", handler.RunWorkflow)
	}
}

func parseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
