package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/service"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
	"github.com/kerane/projectdesk-api/pkg/response"
)

// TaskDependencyHandler exposes task dependency endpoints.
type TaskDependencyHandler struct {
	deps *service.TaskDependencyService
}

// NewTaskDependencyHandler constructs TaskDependencyHandler.
func NewTaskDependencyHandler(deps *service.TaskDependencyService) *TaskDependencyHandler {
	return &TaskDependencyHandler{deps: deps}
}

// List godoc
// @Summary List task dependencies
// @Tags Tasks
// @Produce json
// @Param task_id query string false "Filter by dependent task"
// @Success 200 {object} response.Envelope
// @Router /task-dependencies [get]
func (h *TaskDependencyHandler) List(c *gin.Context) {
	deps, err := h.deps.List(c.Request.Context(), c.Query("task_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deps, nil)
}

// Create godoc
// @Summary Link a task to a prerequisite task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaskDependencyRequest true "Dependency to create"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /task-dependencies [post]
func (h *TaskDependencyHandler) Create(c *gin.Context) {
	var req dto.CreateTaskDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	dep, err := h.deps.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dep)
}

// Delete godoc
// @Summary Remove a task dependency
// @Tags Tasks
// @Produce json
// @Param id path string true "Dependency ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /task-dependencies/{id} [delete]
func (h *TaskDependencyHandler) Delete(c *gin.Context) {
	if err := h.deps.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
