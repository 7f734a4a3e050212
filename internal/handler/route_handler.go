package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/geo"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// RouteHandler exposes route optimization.
type RouteHandler struct {
	service *service.RouteService
}

// NewRouteHandler constructs handler.
func NewRouteHandler(svc *service.RouteService) *RouteHandler {
	return &RouteHandler{service: svc}
}

type optimizeRouteRequest struct {
	Points        []models.RoutePoint       `json:"points" binding:"required"`
	Method        models.OptimizationMethod `json:"method"`
	Vehicle       geo.Vehicle               `json:"vehicle"`
	AvoidHighways *bool                     `json:"avoid_highways"`
}

// Optimize godoc
// @Summary Optimize the ordering of route waypoints
// @Tags Routes
// @Accept json
// @Produce json
// @Param payload body optimizeRouteRequest true "Route points and method"
// @Success 200 {object} response.Envelope
// @Router /routes/optimize [post]
func (h *RouteHandler) Optimize(c *gin.Context) {
	var req optimizeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Method == "" {
		req.Method = models.MethodBalanced
	}
	result, err := h.service.Optimize(service.OptimizeRequest{
		Points:        req.Points,
		Method:        req.Method,
		Vehicle:       req.Vehicle,
		AvoidHighways: req.AvoidHighways,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type buildRouteRequest struct {
	ID     string                    `json:"id"`
	Name   string                    `json:"name"`
	Points []models.RoutePoint       `json:"points" binding:"required"`
	Method models.OptimizationMethod `json:"method"`
}

// Build godoc
// @Summary Assemble a route with computed distance and duration
// @Tags Routes
// @Accept json
// @Produce json
// @Param payload body buildRouteRequest true "Route definition"
// @Success 200 {object} response.Envelope
// @Router /routes [post]
func (h *RouteHandler) Build(c *gin.Context) {
	var req buildRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	route, err := h.service.BuildRoute(req.ID, req.Name, req.Points, req.Method, false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, route, nil)
}
