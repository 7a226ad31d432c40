package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/service"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
	"github.com/kerane/projectdesk-api/pkg/response"
)

// StageHandler exposes stage endpoints.
type StageHandler struct {
	stages *service.StageService
}

// NewStageHandler constructs StageHandler.
func NewStageHandler(stages *service.StageService) *StageHandler {
	return &StageHandler{stages: stages}
}

// ListByProject godoc
// @Summary List stages of a project
// @Tags Stages
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/stages [get]
func (h *StageHandler) ListByProject(c *gin.Context) {
	stages, err := h.stages.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stages, nil)
}

// Get godoc
// @Summary Get stage detail
// @Tags Stages
// @Produce json
// @Param id path string true "Stage ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stages/{id} [get]
func (h *StageHandler) Get(c *gin.Context) {
	stage, err := h.stages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stage, nil)
}

// Create godoc
// @Summary Create stage
// @Tags Stages
// @Accept json
// @Produce json
// @Param payload body dto.CreateStageRequest true "Stage payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /stages [post]
func (h *StageHandler) Create(c *gin.Context) {
	var req dto.CreateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	stage, err := h.stages.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stage)
}

// Update godoc
// @Summary Update stage
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Stage ID"
// @Param payload body dto.UpdateStageRequest true "Stage payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stages/{id} [put]
func (h *StageHandler) Update(c *gin.Context) {
	var req dto.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	stage, err := h.stages.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stage, nil)
}

// Complete godoc
// @Summary Complete stage
// @Description Mark a stage completed; all its tasks must be completed first. Activates the next stage and may complete the project.
// @Tags Stages
// @Produce json
// @Param id path string true "Stage ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stages/{id}/complete [post]
func (h *StageHandler) Complete(c *gin.Context) {
	result, err := h.stages.Complete(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete stage
// @Tags Stages
// @Produce json
// @Param id path string true "Stage ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stages/{id} [delete]
func (h *StageHandler) Delete(c *gin.Context) {
	if err := h.stages.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
