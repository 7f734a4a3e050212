package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// SyncHandler exposes calendar sync coordination.
type SyncHandler struct {
	service *service.SyncService
}

// NewSyncHandler constructs handler.
func NewSyncHandler(svc *service.SyncService) *SyncHandler {
	return &SyncHandler{service: svc}
}

// Providers godoc
// @Summary List configured calendar providers
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/providers [get]
func (h *SyncHandler) Providers(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Providers(), nil)
}

// Configure godoc
// @Summary Configure a calendar provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body models.ProviderConfig true "Provider settings"
// @Success 200 {object} response.Envelope
// @Router /sync/providers [put]
func (h *SyncHandler) Configure(c *gin.Context) {
	var cfg models.ProviderConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.Configure(cfg); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Request godoc
// @Summary Request a background sync pass for a provider
// @Tags Sync
// @Produce json
// @Param provider path string true "Calendar provider"
// @Success 202 {object} response.Envelope
// @Router /sync/{provider} [post]
func (h *SyncHandler) Request(c *gin.Context) {
	provider := models.CalendarProvider(c.Param("provider"))
	if err := h.service.RequestSync(provider); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"provider": provider, "queued": true}, nil)
}

// Report godoc
// @Summary Last sync report for a provider
// @Tags Sync
// @Produce json
// @Param provider path string true "Calendar provider"
// @Success 200 {object} response.Envelope
// @Router /sync/{provider}/report [get]
func (h *SyncHandler) Report(c *gin.Context) {
	provider := models.CalendarProvider(c.Param("provider"))
	report, ok := h.service.LastReport(provider)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no sync pass has run for that provider"))
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Conflicts godoc
// @Summary List sync conflicts
// @Tags Sync
// @Produce json
// @Param unresolved query bool false "Only unresolved conflicts"
// @Success 200 {object} response.Envelope
// @Router /sync/conflicts [get]
func (h *SyncHandler) Conflicts(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Conflicts(queryBool(c, "unresolved")), nil)
}

type resolveConflictRequest struct {
	AppointmentID string                  `json:"appointment_id" binding:"required"`
	Provider      models.CalendarProvider `json:"provider" binding:"required"`
}

// Resolve godoc
// @Summary Resolve a sync conflict and requeue the appointment
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body resolveConflictRequest true "Conflict reference"
// @Success 200 {object} response.Envelope
// @Router /sync/conflicts/resolve [post]
func (h *SyncHandler) Resolve(c *gin.Context) {
	var req resolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.ResolveConflict(c.Request.Context(), req.AppointmentID, req.Provider); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resolved": true}, nil)
}
