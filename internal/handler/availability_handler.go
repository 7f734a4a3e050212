package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// AvailabilityHandler exposes the slot search.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Slots godoc
// @Summary Search open time slots on a day
// @Tags Availability
// @Produce json
// @Param date query string true "Day (YYYY-MM-DD)"
// @Param duration query int false "Appointment length in minutes"
// @Param staff query string false "Staff IDs, comma separated"
// @Param location query string false "Location kind"
// @Param serviceLocation query string false "Service location"
// @Param tenantId query string false "Tenant scope"
// @Success 200 {object} response.Envelope
// @Router /availability/slots [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	date, ok := parseCalendarDate(c.Query("date"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	minutes := queryInt(c, "duration", 60)
	if minutes <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be positive"))
		return
	}

	slots, err := h.service.Slots(c.Request.Context(), service.SlotsRequest{
		Date:            date,
		Duration:        time.Duration(minutes) * time.Minute,
		Staff:           splitCSV(c.Query("staff")),
		Location:        models.LocationKind(c.Query("location")),
		ServiceLocation: c.Query("serviceLocation"),
		TenantID:        c.Query("tenantId"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	available := 0
	for _, s := range slots {
		if s.Available {
			available++
		}
	}
	response.JSON(c, http.StatusOK, slots, nil, map[string]interface{}{
		"date":      date.Format("2006-01-02"),
		"total":     len(slots),
		"available": available,
	})
}
