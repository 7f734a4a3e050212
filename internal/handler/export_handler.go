package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// ExportHandler streams generated schedule and route documents.
type ExportHandler struct {
	exports *service.ExportService
	routes  *service.RouteService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports *service.ExportService, routes *service.RouteService) *ExportHandler {
	return &ExportHandler{exports: exports, routes: routes}
}

// DaySchedule godoc
// @Summary Export one day's schedule as CSV or PDF
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param date query string true "Day (YYYY-MM-DD)"
// @Param format query string false "csv or pdf (default csv)"
// @Param tenantId query string false "Tenant scope"
// @Success 200 {file} binary
// @Router /exports/schedule [get]
func (h *ExportHandler) DaySchedule(c *gin.Context) {
	date, ok := parseCalendarDate(c.Query("date"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.exports.DaySchedule(c.Request.Context(), date, c.Query("tenantId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDocument(c, result)
}

type routeManifestRequest struct {
	Route  routeDefinition `json:"route" binding:"required"`
	Format string          `json:"format"`
}

type routeDefinition struct {
	ID     string                    `json:"id"`
	Name   string                    `json:"name"`
	Points []models.RoutePoint       `json:"points" binding:"required"`
	Method models.OptimizationMethod `json:"method"`
}

// RouteManifest godoc
// @Summary Export a route manifest as CSV or PDF
// @Tags Exports
// @Accept json
// @Produce text/csv
// @Produce application/pdf
// @Param payload body routeManifestRequest true "Route and format"
// @Success 200 {file} binary
// @Router /exports/route-manifest [post]
func (h *ExportHandler) RouteManifest(c *gin.Context) {
	var req routeManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Format == "" {
		req.Format = "csv"
	}

	route, err := h.routes.BuildRoute(req.Route.ID, req.Route.Name, req.Route.Points, req.Route.Method, false)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.RouteManifest(route, service.ExportFormat(req.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDocument(c, result)
}

func serveDocument(c *gin.Context, doc *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}
