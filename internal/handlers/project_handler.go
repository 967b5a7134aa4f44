package handlers

import (
	"errors"
	"net/http"

	"flowboard/internal/services"

	"github.com/gin-gonic/gin"
)

// ProjectHandler manages boards: projects, columns, labels, members.
type ProjectHandler struct {
	service *services.ProjectService
}

func NewProjectHandler(service *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context(), actorID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list projects", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req services.ProjectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	project, err := h.service.CreateProject(c.Request.Context(), &req, actorID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create project", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	project, err := h.service.GetProject(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get project", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteProject(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete project", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *ProjectHandler) CreateColumn(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	var req services.ColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	col, err := h.service.CreateColumn(c.Request.Context(), projectID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create column", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (h *ProjectHandler) DeleteColumn(c *gin.Context) {
	id, err := parseID(c, "columnId")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid column id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteColumn(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to delete column", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *ProjectHandler) ListLabels(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	labels, err := h.service.ListLabels(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list labels", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, labels)
}

func (h *ProjectHandler) CreateLabel(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	var req services.LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	label, err := h.service.CreateLabel(c.Request.Context(), projectID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create label", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, label)
}

func (h *ProjectHandler) DeleteLabel(c *gin.Context) {
	id, err := parseID(c, "labelId")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid label id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteLabel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to delete label", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

type memberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

func (h *ProjectHandler) AddMember(c *gin.Context) {
	projectID, err := parseID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project id", Message: err.Error()})
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if err := h.service.AddProjectMember(c.Request.Context(), projectID, req.UserID, req.Role); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to add member", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "added"})
}

// RegisterProjectRoutes mounts the board endpoints.
func RegisterProjectRoutes(r *gin.RouterGroup, handler *ProjectHandler) {
	projects := r.Group("/projects")
	{
		projects.GET("", handler.ListProjects)
		projects.POST("", handler.CreateProject)
		projects.GET(":id", handler.GetProject)
		projects.DELETE(":id", handler.DeleteProject)
		projects.POST(":id/columns", handler.CreateColumn)
		projects.DELETE(":id/columns/:columnId", handler.DeleteColumn)
		projects.GET(":id/labels", handler.ListLabels)
		projects.POST(":id/labels", handler.CreateLabel)
		projects.DELETE(":id/labels/:labelId", handler.DeleteLabel)
		projects.POST(":id/members", handler.AddMember)
	}
}
