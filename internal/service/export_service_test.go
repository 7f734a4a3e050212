package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
)

func newExportFixture(t *testing.T) (*repository.MemoryAppointmentStore, *ExportService) {
	t.Helper()
	store := repository.NewMemoryAppointmentStore()
	return store, NewExportService(store, nil)
}

func TestDayScheduleCSV(t *testing.T) {
	store, svc := newExportFixture(t)
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(context.Background(), &models.Appointment{
		ID: "a1", Sequence: "APT-20260312-0001", Title: "Boiler service",
		StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour),
		Customer: models.Customer{Name: "Acme Heating"}, AssignedStaff: []string{"tech-1", "tech-2"},
		Status: models.StatusScheduled, Type: models.TypeService, Priority: models.PriorityNormal,
		Location: models.LocationCustomer,
	}))
	// A cancelled booking stays off the schedule.
	require.NoError(t, store.Create(context.Background(), &models.Appointment{
		ID: "a2", Title: "Cancelled visit",
		StartTime: day.Add(11 * time.Hour), EndTime: day.Add(12 * time.Hour),
		Status: models.StatusCancelled, Type: models.TypeService,
	}))
	// Next day is out of range.
	require.NoError(t, store.Create(context.Background(), &models.Appointment{
		ID: "a3", Title: "Tomorrow",
		StartTime: day.AddDate(0, 0, 1).Add(9 * time.Hour), EndTime: day.AddDate(0, 0, 1).Add(10 * time.Hour),
		Status: models.StatusScheduled, Type: models.TypeService,
	}))

	res, err := svc.DaySchedule(context.Background(), day, "", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", res.ContentType)
	assert.Equal(t, "schedule-2026-03-12.csv", res.Filename)

	body := string(res.Content)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sequence,Title,Start,End,Customer,Staff,Type,Status,Priority,Location", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "APT-20260312-0001")
	assert.Contains(t, lines[1], "09:00")
	assert.Contains(t, lines[1], "Acme Heating")
	assert.Contains(t, lines[1], "tech-1, tech-2")
	assert.NotContains(t, body, "Cancelled visit")
	assert.NotContains(t, body, "Tomorrow")
}

func TestDaySchedulePDF(t *testing.T) {
	store, svc := newExportFixture(t)
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(context.Background(), &models.Appointment{
		ID: "a1", Title: "Inspection",
		StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour),
		Status: models.StatusScheduled, Type: models.TypeInspection,
	}))

	res, err := svc.DaySchedule(context.Background(), day, "", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, "schedule-2026-03-12.pdf", res.Filename)
	assert.True(t, strings.HasPrefix(string(res.Content), "%PDF"))
}

func TestDayScheduleUnsupportedFormat(t *testing.T) {
	_, svc := newExportFixture(t)
	_, err := svc.DaySchedule(context.Background(), time.Now(), "", "xlsx")
	assert.Error(t, err)
}

func TestRouteManifestCSV(t *testing.T) {
	_, svc := newExportFixture(t)

	eta := time.Date(2026, 3, 12, 10, 30, 0, 0, time.UTC)
	route := &models.Route{
		Name: "Morning Run",
		Points: []models.RoutePoint{
			{ID: "s", Name: "Depot", Latitude: 52.50, Longitude: 13.40, Type: models.PointStart},
			{ID: "w", Name: "Acme Heating", Address: "Main St 1", Latitude: 52.55, Longitude: 13.40,
				Type: models.PointStop, Priority: models.RoutePriorityHigh, EstimatedArrival: &eta},
			{ID: "d", Name: "Depot", Latitude: 52.50, Longitude: 13.40, Type: models.PointDestination},
		},
		TotalDistance:     11120,
		EstimatedDuration: 45,
	}

	res, err := svc.RouteManifest(route, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "route-morning-run.csv", res.Filename)

	lines := strings.Split(strings.TrimSpace(string(res.Content)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Leg (km)")
	// The first point has no inbound leg.
	assert.True(t, strings.HasPrefix(lines[1], "1,Depot,"))
	assert.Contains(t, lines[2], "Acme Heating")
	assert.Contains(t, lines[2], "5.6")
	assert.Contains(t, lines[2], "10:30")
}

func TestRouteManifestRequiresPoints(t *testing.T) {
	_, svc := newExportFixture(t)

	_, err := svc.RouteManifest(nil, FormatCSV)
	assert.Error(t, err)

	_, err = svc.RouteManifest(&models.Route{Name: "empty"}, FormatCSV)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "morning-run", sanitizeFilename("Morning Run"))
	assert.Equal(t, "route-7", sanitizeFilename("  Route #7! "))
	assert.Equal(t, "a-b", sanitizeFilename("A_B"))
}
