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
	"github.com/noah-isme/fieldops-api/pkg/events"
)

func newAppointmentFixture(t *testing.T) (*repository.MemoryAppointmentStore, *events.Bus, *AppointmentService) {
	t.Helper()
	store := repository.NewMemoryAppointmentStore()
	bus := events.NewBus(nil)
	conflicts := NewConflictService(store, nil)
	recurrence := NewRecurrenceService(RecurrenceConfig{ExceptionsConsumeBudget: true}, nil)
	svc := NewAppointmentService(store, conflicts, recurrence, nil, bus, nil, nil, 0, nil)
	return store, bus, svc
}

func validCreateRequest(start time.Time) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		Title:         "Boiler inspection",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Customer:      models.Customer{ID: "cust-1", Name: "Acme Heating"},
		AssignedStaff: []string{"tech-1"},
		Location:      models.LocationCustomer,
		Type:          models.TypeInspection,
	}
}

func TestCreateAppointment(t *testing.T) {
	store, bus, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	var created int
	bus.Subscribe(events.AppointmentCreated, func(events.Event) { created++ })

	appt, conflicts, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, "APT-20260115-0001", appt.Sequence)
	assert.Equal(t, models.StatusScheduled, appt.Status)
	assert.Equal(t, models.PriorityNormal, appt.Priority)
	assert.Equal(t, models.SyncStatusPending, appt.SyncStatus)
	assert.Equal(t, 1, appt.Version)
	assert.Equal(t, 1, created)

	stored, err := store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.Sequence, stored.Sequence)
}

func TestCreateSequenceIncrements(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	first, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)
	second, _, err := svc.Create(context.Background(), validCreateRequest(start.Add(2*time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, "APT-20260115-0001", first.Sequence)
	assert.Equal(t, "APT-20260115-0002", second.Sequence)
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	req := validCreateRequest(start)
	req.EndTime = start.Add(-time.Hour)
	_, _, err := svc.Create(context.Background(), req)
	assert.Error(t, err)
}

func TestCreateBlockedByCriticalConflict(t *testing.T) {
	store, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	_, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	// Same staff, overlapping window.
	req := validCreateRequest(start.Add(30 * time.Minute))
	_, _, err = svc.Create(context.Background(), req)
	require.Error(t, err)

	confErr, ok := err.(*models.ConflictError)
	require.True(t, ok, "expected a conflict error, got %T", err)
	require.NotEmpty(t, confErr.Conflicts)
	assert.Equal(t, models.ConflictStaff, confErr.Conflicts[0].Type)

	// Nothing was persisted for the blocked create.
	all, err := store.ListByTenant(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateSoftConflictIsAdvisory(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	_, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	// Same customer, different staff: medium severity, booking proceeds.
	req := validCreateRequest(start.Add(30 * time.Minute))
	req.AssignedStaff = []string{"tech-2"}
	appt, conflicts, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, appt)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictCustomerBusy, conflicts[0].Type)
}

func TestCreateRecurringPersistsSeriesAtomically(t *testing.T) {
	store, bus, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	var seriesEvents int
	bus.Subscribe(events.RecurringAppointmentsCreated, func(events.Event) { seriesEvents++ })

	req := validCreateRequest(start)
	req.Recurrence = &models.RecurringPattern{
		Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 4,
	}
	appt, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, appt.IsRecurring)
	assert.Equal(t, 1, seriesEvents)

	all, err := store.ListByTenant(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 5)

	instances := 0
	for _, a := range all {
		if a.ParentAppointmentID == appt.ID {
			instances++
			assert.True(t, strings.HasPrefix(a.Sequence, appt.Sequence+"-R"))
		}
	}
	assert.Equal(t, 4, instances)
}

func TestUpdateMergesPartialFields(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	title := "Boiler inspection and descale"
	updated, conflicts, err := svc.Update(context.Background(), appt.ID, UpdateAppointmentRequest{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, models.SyncStatusPending, updated.SyncStatus)
	// Untouched fields survive.
	assert.Equal(t, appt.StartTime, updated.StartTime)
	assert.Equal(t, appt.AssignedStaff, updated.AssignedStaff)
}

func TestUpdateNoopKeepsVersion(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	updated, _, err := svc.Update(context.Background(), appt.ID, UpdateAppointmentRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)
}

func TestUpdateVersionMismatch(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	title := "renamed"
	_, _, err = svc.Update(context.Background(), appt.ID, UpdateAppointmentRequest{
		Title:           &title,
		ExpectedVersion: 99,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestUpdateRescheduleReRunsConflictCheck(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	blocker, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)
	_ = blocker

	req := validCreateRequest(start.Add(3 * time.Hour))
	victim, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	// Move the second booking onto the first one's window.
	newStart := start.Add(15 * time.Minute)
	newEnd := newStart.Add(time.Hour)
	_, _, err = svc.Update(context.Background(), victim.ID, UpdateAppointmentRequest{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	require.Error(t, err)
	_, ok := err.(*models.ConflictError)
	assert.True(t, ok)

	// The victim is unchanged after the blocked update.
	current, err := svc.Get(context.Background(), victim.ID)
	require.NoError(t, err)
	assert.Equal(t, victim.StartTime, current.StartTime)
	assert.Equal(t, 1, current.Version)
}

func TestUpdateRescheduleDoesNotConflictWithSelf(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	// Shift by 15 minutes; the new window still overlaps the old one.
	newStart := start.Add(15 * time.Minute)
	newEnd := newStart.Add(time.Hour)
	updated, conflicts, err := svc.Update(context.Background(), appt.ID, UpdateAppointmentRequest{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, newStart, updated.StartTime)
}

func TestUpdateMissingAppointment(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	title := "x"
	_, _, err := svc.Update(context.Background(), "ghost", UpdateAppointmentRequest{Title: &title})
	assert.Error(t, err)
}

func TestDeleteCascadesRecurringInstances(t *testing.T) {
	store, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	req := validCreateRequest(start)
	req.Recurrence = &models.RecurringPattern{Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 3}
	appt, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), appt.ID, true))

	all, err := store.ListByTenant(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteWithoutCascadeKeepsInstances(t *testing.T) {
	store, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	req := validCreateRequest(start)
	req.Recurrence = &models.RecurringPattern{Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 3}
	appt, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), appt.ID, false))

	all, err := store.ListByTenant(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStatusTransitions(t *testing.T) {
	_, bus, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	var changes int
	bus.Subscribe(events.StatusChanged, func(events.Event) { changes++ })

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	confirmed, err := svc.UpdateStatus(context.Background(), appt.ID, models.StatusConfirmed, "customer confirmed by phone")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, 2, confirmed.Version)
	require.NotEmpty(t, confirmed.Notifications)
	assert.Contains(t, confirmed.Notifications[0].Message, "scheduled to confirmed")

	inProgress, err := svc.UpdateStatus(context.Background(), appt.ID, models.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, inProgress.Status)

	done, err := svc.UpdateStatus(context.Background(), appt.ID, models.StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 3, changes)
}

func TestStatusTerminalRejectsFurtherTransitions(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), appt.ID, models.StatusCancelled, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), appt.ID, models.StatusScheduled, "")
	assert.Error(t, err)
}

func TestStatusIllegalTransition(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	appt, _, err := svc.Create(context.Background(), validCreateRequest(start))
	require.NoError(t, err)

	// scheduled cannot jump straight to completed.
	_, err = svc.UpdateStatus(context.Background(), appt.ID, models.StatusCompleted, "")
	assert.Error(t, err)
}

func TestSearchPaginationHasMore(t *testing.T) {
	_, _, svc := newAppointmentFixture(t)
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		req := validCreateRequest(base.Add(time.Duration(i*2) * time.Hour))
		req.AssignedStaff = []string{"tech-1"}
		_, _, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
	}

	page, err := svc.Search(context.Background(), models.AppointmentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	lastPage, err := svc.Search(context.Background(), models.AppointmentFilter{Offset: 4, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, lastPage.Items, 1)
	assert.False(t, lastPage.HasMore)
}

// limitRecordingStore captures the filter the service hands to List.
type limitRecordingStore struct {
	*repository.MemoryAppointmentStore
	gotLimit int
}

func (s *limitRecordingStore) List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, int, error) {
	s.gotLimit = filter.Limit
	return s.MemoryAppointmentStore.List(ctx, filter)
}

func TestSearchClampsOversizedLimit(t *testing.T) {
	store := &limitRecordingStore{MemoryAppointmentStore: repository.NewMemoryAppointmentStore()}
	conflicts := NewConflictService(store.MemoryAppointmentStore, nil)
	recurrence := NewRecurrenceService(RecurrenceConfig{ExceptionsConsumeBudget: true}, nil)
	svc := NewAppointmentService(store, conflicts, recurrence, nil, events.NewBus(nil), nil, nil, 0, nil)
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		req := validCreateRequest(base.Add(time.Duration(i*2) * time.Hour))
		_, _, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
	}

	page, err := svc.Search(context.Background(), models.AppointmentFilter{Limit: 200})
	require.NoError(t, err)
	assert.Equal(t, 100, store.gotLimit)
	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasMore)
}

func TestStatistics(t *testing.T) {
	store, _, svc := newAppointmentFixture(t)
	now := time.Now()

	today := validCreateRequest(time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location()))
	_, _, err := svc.Create(context.Background(), today)
	require.NoError(t, err)

	conflicted := &models.Appointment{
		ID: "sync-conflict", StartTime: now.AddDate(0, 1, 0), EndTime: now.AddDate(0, 1, 0).Add(time.Hour),
		Status: models.StatusScheduled, Type: models.TypeService, Priority: models.PriorityHigh,
		SyncStatus: models.SyncStatusConflict,
	}
	require.NoError(t, store.Create(context.Background(), conflicted))

	stats, err := svc.Statistics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[string(models.StatusScheduled)])
	assert.Equal(t, 1, stats.ByType[string(models.TypeService)])
	assert.Equal(t, 1, stats.ByPriority[string(models.PriorityHigh)])
	assert.Equal(t, 1, stats.Unsynced)
	assert.Equal(t, 1, stats.Conflicted)
	assert.GreaterOrEqual(t, stats.Today, 1)
}

func TestCleanupRemovesOldTerminalAppointments(t *testing.T) {
	store, bus, svc := newAppointmentFixture(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var cleanups int
	bus.Subscribe(events.CleanupCompleted, func(events.Event) { cleanups++ })

	old := &models.Appointment{
		ID: "old", StartTime: cutoff.AddDate(0, -2, 0), EndTime: cutoff.AddDate(0, -2, 0).Add(time.Hour),
		Status: models.StatusCompleted,
	}
	require.NoError(t, store.Create(context.Background(), old))

	removed, err := svc.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cleanups)
}
