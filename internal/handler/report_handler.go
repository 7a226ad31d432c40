package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/internal/service"
	"github.com/kerane/projectdesk-api/pkg/response"
)

// ReportHandler serves CSV/PDF exports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ProjectReport godoc
// @Summary Export one project's stages and tasks
// @Tags Reports
// @Produce text/csv
// @Param id path string true "Project ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200
// @Failure 404 {object} response.Envelope
// @Router /reports/projects/{id} [get]
func (h *ReportHandler) ProjectReport(c *gin.Context) {
	file, err := h.reports.ProjectReport(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveReport(c, file)
}

// ProjectsOverview godoc
// @Summary Export a projects overview
// @Tags Reports
// @Produce text/csv
// @Param status query string false "Filter by status"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200
// @Router /reports/projects [get]
func (h *ReportHandler) ProjectsOverview(c *gin.Context) {
	var filter models.ProjectFilter
	filter.Status = c.Query("status")
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "500")); err == nil {
		filter.Limit = limit
	}

	file, err := h.reports.ProjectsOverview(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveReport(c, file)
}

func serveReport(c *gin.Context, file *service.ReportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
