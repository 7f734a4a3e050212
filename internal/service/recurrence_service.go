package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// RecurrenceConfig bounds series expansion.
type RecurrenceConfig struct {
	Horizon        time.Duration
	MaxOccurrences int
	// ExceptionsConsumeBudget controls whether a skipped exception date still
	// counts against the occurrence budget. The legacy scheduler consumed
	// budget for skipped dates, so that is the default.
	ExceptionsConsumeBudget bool
}

// RecurrenceService expands a recurring parent appointment into concrete
// instances. Expansion is pure; persistence of the batch is the manager's
// job so a failure never leaves a half-written series.
type RecurrenceService struct {
	cfg    RecurrenceConfig
	logger *zap.Logger
}

// NewRecurrenceService constructs the service.
func NewRecurrenceService(cfg RecurrenceConfig, logger *zap.Logger) *RecurrenceService {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 365 * 24 * time.Hour
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = 52
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecurrenceService{cfg: cfg, logger: logger}
}

// Expand generates recurrence instances for the parent, bounded by the
// pattern's end date, its occurrence budget and the configured horizon,
// whichever bites first. The parent's own start is never re-emitted.
func (s *RecurrenceService) Expand(parent *models.Appointment) ([]*models.Appointment, error) {
	if parent == nil || !parent.IsRecurring || parent.Recurrence == nil {
		return nil, nil
	}
	pattern := parent.Recurrence
	if pattern.Interval <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence interval must be positive")
	}

	horizon := parent.StartTime.Add(s.cfg.Horizon)
	if pattern.EndDate != nil && pattern.EndDate.Before(horizon) {
		horizon = *pattern.EndDate
	}
	// MaxOccurrences is the default budget for open-ended patterns, not a
	// ceiling on an explicit request. The horizon still bounds runaway series.
	budget := pattern.Occurrences
	if budget <= 0 {
		budget = s.cfg.MaxOccurrences
	}

	duration := parent.EndTime.Sub(parent.StartTime)
	var instances []*models.Appointment

	current := parent.StartTime
	consumed := 0
	// Guard against patterns that never advance past the horizon.
	for iter := 0; iter < budget*366; iter++ {
		next, ok := nextOccurrence(current, pattern)
		if !ok || next.After(horizon) {
			break
		}
		current = next

		if isException(next, pattern.Exceptions) {
			if s.cfg.ExceptionsConsumeBudget {
				consumed++
				if consumed >= budget {
					break
				}
			}
			continue
		}

		instances = append(instances, s.instantiate(parent, next, duration, len(instances)+1))
		consumed++
		if consumed >= budget {
			break
		}
	}

	return instances, nil
}

func (s *RecurrenceService) instantiate(parent *models.Appointment, start time.Time, duration time.Duration, index int) *models.Appointment {
	now := time.Now().UTC()
	instance := parent.Clone()
	instance.ID = uuid.NewString()
	instance.Sequence = sequenceSuffix(parent.Sequence, index)
	instance.StartTime = start
	instance.EndTime = start.Add(duration)
	instance.ParentAppointmentID = parent.ID
	instance.IsRecurring = false
	instance.Recurrence = nil
	instance.Version = 1
	instance.SyncStatus = models.SyncStatusPending
	instance.LastSynced = nil
	instance.CreatedAt = now
	instance.UpdatedAt = now
	return instance
}

func nextOccurrence(current time.Time, pattern *models.RecurringPattern) (time.Time, bool) {
	switch pattern.Type {
	case models.RecurrenceDaily, models.RecurrenceCustom:
		return current.AddDate(0, 0, pattern.Interval), true
	case models.RecurrenceWeekly:
		if len(pattern.DaysOfWeek) == 0 {
			return current.AddDate(0, 0, 7*pattern.Interval), true
		}
		for offset := 1; offset <= 7; offset++ {
			candidate := current.AddDate(0, 0, offset)
			if weekdayIn(candidate.Weekday(), pattern.DaysOfWeek) {
				return candidate, true
			}
		}
		return time.Time{}, false
	case models.RecurrenceMonthly:
		next := current.AddDate(0, pattern.Interval, 0)
		if pattern.DayOfMonth > 0 {
			next = time.Date(next.Year(), next.Month(), pattern.DayOfMonth,
				next.Hour(), next.Minute(), next.Second(), next.Nanosecond(), next.Location())
		}
		return next, true
	case models.RecurrenceYearly:
		return current.AddDate(pattern.Interval, 0, 0), true
	}
	return time.Time{}, false
}

func weekdayIn(day time.Weekday, set []time.Weekday) bool {
	for _, d := range set {
		if d == day {
			return true
		}
	}
	return false
}

func isException(date time.Time, exceptions []time.Time) bool {
	for _, ex := range exceptions {
		if models.SameCalendarDay(date, ex) {
			return true
		}
	}
	return false
}

func sequenceSuffix(parentSequence string, index int) string {
	if parentSequence == "" {
		return ""
	}
	return fmt.Sprintf("%s-R%d", parentSequence, index)
}
