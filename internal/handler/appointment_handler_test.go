package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	"github.com/noah-isme/fieldops-api/internal/service"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

func newAppointmentHandler(t *testing.T) (*repository.MemoryAppointmentStore, *AppointmentHandler) {
	t.Helper()
	store := repository.NewMemoryAppointmentStore()
	conflicts := service.NewConflictService(store, nil)
	recurrence := service.NewRecurrenceService(service.RecurrenceConfig{}, nil)
	svc := service.NewAppointmentService(store, conflicts, recurrence, nil, nil, nil, nil, 0, nil)
	return store, NewAppointmentHandler(svc)
}

func createPayload(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"title":          "Boiler inspection",
		"start_time":     start.Format(time.RFC3339),
		"end_time":       start.Add(time.Hour).Format(time.RFC3339),
		"customer":       map[string]string{"id": "cust-1", "name": "Acme Heating"},
		"assigned_staff": []string{"tech-1"},
		"location":       "customer_location",
		"type":           "inspection",
	}
}

func postJSON(t *testing.T, payload interface{}, path string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return w, c
}

func TestAppointmentHandlerCreate(t *testing.T) {
	_, handler := newAppointmentHandler(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	w, c := postJSON(t, createPayload(start), "/appointments")
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "scheduled", data["status"])
	assert.NotEmpty(t, data["sequence"])
}

func TestAppointmentHandlerCreateInvalidBody(t *testing.T) {
	_, handler := newAppointmentHandler(t)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppointmentHandlerCreateConflict(t *testing.T) {
	_, handler := newAppointmentHandler(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	w, c := postJSON(t, createPayload(start), "/appointments")
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	// Same staff, overlapping window.
	w, c = postJSON(t, createPayload(start.Add(30*time.Minute)), "/appointments")
	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Conflicts []models.AppointmentConflict `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Conflicts)
	assert.Equal(t, models.ConflictStaff, envelope.Conflicts[0].Type)
}

func TestAppointmentHandlerGetNotFound(t *testing.T) {
	_, handler := newAppointmentHandler(t)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppointmentHandlerSearchPagination(t *testing.T) {
	store, handler := newAppointmentHandler(t)
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(context.Background(), &models.Appointment{
			ID: fmt.Sprintf("a%d", i), Title: "visit",
			StartTime: base.Add(time.Duration(i) * time.Hour), EndTime: base.Add(time.Duration(i+1) * time.Hour),
			Status: models.StatusScheduled, Type: models.TypeService,
		}))
	}

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/appointments?limit=2", nil)
	c.Request = req

	handler.Search(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data       []models.Appointment `json:"data"`
		Pagination models.Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, 3, envelope.Pagination.TotalCount)
	assert.True(t, envelope.Pagination.HasMore)
}

func TestAppointmentHandlerUpdateStatusMissingStatus(t *testing.T) {
	_, handler := newAppointmentHandler(t)

	w, c := postJSON(t, map[string]string{"note": "no status"}, "/appointments/a1/status")
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.UpdateStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
