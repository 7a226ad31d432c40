package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/internal/service"
	"github.com/kerane/projectdesk-api/pkg/response"
)

// ActivityHandler exposes the audit trail.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List activity log entries
// @Description Admins see all entries; other roles see their own.
// @Tags Activity
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param entity_type query string false "Filter by entity type"
// @Param entity_id query string false "Filter by entity"
// @Param action query string false "Filter by action"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var filter models.ActivityFilter
	filter.UserID = c.Query("user_id")
	filter.EntityType = c.Query("entity_type")
	filter.EntityID = c.Query("entity_id")
	filter.Action = c.Query("action")
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	entries, err := h.activity.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
