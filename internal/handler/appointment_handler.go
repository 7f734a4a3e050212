package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// AppointmentHandler manages appointment endpoints.
type AppointmentHandler struct {
	service *service.AppointmentService
}

// NewAppointmentHandler constructs handler.
func NewAppointmentHandler(svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: svc}
}

// Create godoc
// @Summary Create appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req service.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, conflicts, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	envelope := response.Envelope{Data: appt}
	if len(conflicts) > 0 {
		envelope.Conflicts = conflicts
	}
	c.JSON(http.StatusCreated, envelope)
}

// Get godoc
// @Summary Get appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appt, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Search godoc
// @Summary Search appointments
// @Tags Appointments
// @Produce json
// @Param from query string false "Start of window (RFC 3339)"
// @Param to query string false "End of window (RFC 3339)"
// @Param status query string false "Statuses, comma separated"
// @Param type query string false "Types, comma separated"
// @Param staff query string false "Staff IDs, comma separated"
// @Param customerId query string false "Customer ID"
// @Param q query string false "Free-text search"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Param offset query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) Search(c *gin.Context) {
	var filter models.AppointmentFilter

	from, ok := parseTimestamp(c.Query("from"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC 3339"))
		return
	}
	to, ok := parseTimestamp(c.Query("to"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC 3339"))
		return
	}
	filter.From = from
	filter.To = to
	for _, s := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, models.AppointmentStatus(s))
	}
	for _, t := range splitCSV(c.Query("type")) {
		filter.Types = append(filter.Types, models.AppointmentType(t))
	}
	filter.Staff = splitCSV(c.Query("staff"))
	filter.CustomerID = c.Query("customerId")
	filter.Search = c.Query("q")
	filter.TenantID = c.Query("tenantId")
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	filter.Offset = queryInt(c, "offset", 0)
	filter.Limit = queryInt(c, "limit", 20)

	result, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{
		Offset:     filter.Offset,
		Limit:      filter.Limit,
		TotalCount: result.Total,
		HasMore:    result.HasMore,
	}
	response.JSON(c, http.StatusOK, result.Items, pagination)
}

// Update godoc
// @Summary Update appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UpdateAppointmentRequest true "Partial appointment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [patch]
func (h *AppointmentHandler) Update(c *gin.Context) {
	var req service.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, conflicts, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	envelope := response.Envelope{Data: appt}
	if len(conflicts) > 0 {
		envelope.Conflicts = conflicts
	}
	c.JSON(http.StatusOK, envelope)
}

// Delete godoc
// @Summary Delete appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Param cascade query bool false "Also delete recurring instances"
// @Success 204
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Delete(c *gin.Context) {
	cascade := queryBool(c, "cascade")
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), cascade); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type updateStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required"`
	Note   string                   `json:"note"`
}

// UpdateStatus godoc
// @Summary Update appointment status
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body updateStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/status [patch]
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// CheckConflicts godoc
// @Summary Check a time window for conflicts without booking
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body models.ConflictRequest true "Window to check"
// @Success 200 {object} response.Envelope
// @Router /appointments/conflicts [post]
func (h *AppointmentHandler) CheckConflicts(c *gin.Context) {
	var req models.ConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflicts, err := h.service.CheckConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"conflicts":    conflicts,
		"has_critical": models.HasCritical(conflicts),
	}, nil)
}

// Statistics godoc
// @Summary Appointment statistics
// @Tags Appointments
// @Produce json
// @Param tenantId query string false "Tenant scope"
// @Success 200 {object} response.Envelope
// @Router /appointments/statistics [get]
func (h *AppointmentHandler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context(), c.Query("tenantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
