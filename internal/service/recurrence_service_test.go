package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
)

func recurringParent(start time.Time, pattern models.RecurringPattern) *models.Appointment {
	return &models.Appointment{
		ID:          "parent-1",
		Sequence:    "APT-20260105-0001",
		Title:       "Weekly maintenance",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		IsRecurring: true,
		Recurrence:  &pattern,
		Status:      models.StatusScheduled,
	}
}

func TestExpandDailyBudget(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 1, Occurrences: 5,
	}))
	require.NoError(t, err)
	require.Len(t, instances, 5)

	for i, inst := range instances {
		expected := start.AddDate(0, 0, i+1)
		assert.Equal(t, expected, inst.StartTime)
		assert.Equal(t, expected.Add(time.Hour), inst.EndTime)
		assert.Equal(t, "parent-1", inst.ParentAppointmentID)
		assert.False(t, inst.IsRecurring)
		assert.Nil(t, inst.Recurrence)
		assert.Equal(t, 1, inst.Version)
		assert.Equal(t, models.SyncStatusPending, inst.SyncStatus)
	}
	assert.Equal(t, "APT-20260105-0001-R1", instances[0].Sequence)
	assert.Equal(t, "APT-20260105-0001-R5", instances[4].Sequence)
}

func TestExpandParentStartNeverReemitted(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 2, Occurrences: 3,
	}))
	require.NoError(t, err)
	for _, inst := range instances {
		assert.True(t, inst.StartTime.After(start))
	}
}

func TestExpandWeeklyOnSpecificDays(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	// Monday 2026-01-05.
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type:        models.RecurrenceWeekly,
		Interval:    1,
		DaysOfWeek:  []time.Weekday{time.Monday, time.Thursday},
		Occurrences: 4,
	}))
	require.NoError(t, err)
	require.Len(t, instances, 4)

	assert.Equal(t, time.Thursday, instances[0].StartTime.Weekday())
	assert.Equal(t, time.Monday, instances[1].StartTime.Weekday())
	assert.Equal(t, time.Thursday, instances[2].StartTime.Weekday())
	assert.Equal(t, time.Monday, instances[3].StartTime.Weekday())
}

func TestExpandMonthlyPinsDayOfMonth(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceMonthly, Interval: 1, DayOfMonth: 15, Occurrences: 3,
	}))
	require.NoError(t, err)
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.Equal(t, 15, inst.StartTime.Day())
		assert.Equal(t, 14, inst.StartTime.Hour())
	}
	assert.Equal(t, time.February, instances[0].StartTime.Month())
}

func TestExpandEndDateCapsSeries(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	endDate := start.AddDate(0, 0, 3)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 1, Occurrences: 10, EndDate: &endDate,
	}))
	require.NoError(t, err)
	assert.Len(t, instances, 3)
}

func TestExpandDefaultBudgetCapsUnboundedSeries(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{MaxOccurrences: 52}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 1,
	}))
	require.NoError(t, err)
	assert.Len(t, instances, 52)
}

func TestExpandExplicitOccurrencesExceedDefaultBudget(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 1, Occurrences: 60,
	}))
	require.NoError(t, err)
	require.Len(t, instances, 60)
	assert.Equal(t, start.AddDate(0, 0, 60), instances[59].StartTime)
}

func TestExpandExceptionsSkipDatesAndConsumeBudget(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{ExceptionsConsumeBudget: true}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	skipped := start.AddDate(0, 0, 2)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type:        models.RecurrenceDaily,
		Interval:    1,
		Occurrences: 4,
		Exceptions:  []time.Time{skipped},
	}))
	require.NoError(t, err)
	// The skipped date still counts, so only three concrete instances emerge.
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.False(t, models.SameCalendarDay(inst.StartTime, skipped))
	}
}

func TestExpandExceptionsPreserveBudgetWhenConfigured(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{ExceptionsConsumeBudget: false}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	skipped := start.AddDate(0, 0, 2)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type:        models.RecurrenceDaily,
		Interval:    1,
		Occurrences: 4,
		Exceptions:  []time.Time{skipped},
	}))
	require.NoError(t, err)
	require.Len(t, instances, 4)
}

func TestExpandRejectsNonPositiveInterval(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	_, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceDaily, Interval: 0,
	}))
	assert.Error(t, err)
}

func TestExpandNonRecurringParentIsNoop(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	instances, err := svc.Expand(&models.Appointment{ID: "plain"})
	require.NoError(t, err)
	assert.Nil(t, instances)
}

func TestExpandCustomBehavesLikeDailyWithInterval(t *testing.T) {
	svc := NewRecurrenceService(RecurrenceConfig{}, nil)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	instances, err := svc.Expand(recurringParent(start, models.RecurringPattern{
		Type: models.RecurrenceCustom, Interval: 3, Occurrences: 2,
	}))
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, start.AddDate(0, 0, 3), instances[0].StartTime)
	assert.Equal(t, start.AddDate(0, 0, 6), instances[1].StartTime)
}
