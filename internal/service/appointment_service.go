package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/events"
)

type appointmentRepository interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, appt *models.Appointment) error
	CreateBatch(ctx context.Context, appts []*models.Appointment) error
	Update(ctx context.Context, appt *models.Appointment) error
	Delete(ctx context.Context, id string) error
	DeleteByParent(ctx context.Context, parentID string) (int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, int, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Appointment, error)
}

// allowedTransitions makes the status state machine explicit. Completed,
// cancelled and no_show are terminal.
var allowedTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.StatusPendingConfirmation: {models.StatusScheduled, models.StatusConfirmed, models.StatusCancelled, models.StatusNoShow},
	models.StatusScheduled:           {models.StatusConfirmed, models.StatusInProgress, models.StatusRescheduled, models.StatusCancelled, models.StatusNoShow},
	models.StatusConfirmed:           {models.StatusInProgress, models.StatusCompleted, models.StatusRescheduled, models.StatusCancelled, models.StatusNoShow},
	models.StatusInProgress:          {models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
	models.StatusRescheduled:         {models.StatusScheduled, models.StatusConfirmed, models.StatusCancelled, models.StatusNoShow},
}

func transitionAllowed(from, to models.AppointmentStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AppointmentService owns the canonical appointment set: it validates,
// conflict-checks, persists and emits domain events. All mutations run to
// completion before returning; the version counter is the only concurrency
// signal exposed to callers.
type AppointmentService struct {
	repo       appointmentRepository
	conflicts  *ConflictService
	recurrence *RecurrenceService
	cache      *repository.CacheRepository
	bus        *events.Bus
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger

	statsTTL time.Duration
	seq      uint64
}

// NewAppointmentService constructs the service.
func NewAppointmentService(
	repo appointmentRepository,
	conflicts *ConflictService,
	recurrence *RecurrenceService,
	cache *repository.CacheRepository,
	bus *events.Bus,
	metrics *MetricsService,
	validate *validator.Validate,
	statsTTL time.Duration,
	logger *zap.Logger,
) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{
		repo:       repo,
		conflicts:  conflicts,
		recurrence: recurrence,
		cache:      cache,
		bus:        bus,
		metrics:    metrics,
		validator:  validate,
		statsTTL:   statsTTL,
		logger:     logger,
	}
}

// CreateAppointmentRequest describes the create payload.
type CreateAppointmentRequest struct {
	Title           string                     `json:"title" validate:"required"`
	Description     string                     `json:"description"`
	StartTime       time.Time                  `json:"start_time" validate:"required"`
	EndTime         time.Time                  `json:"end_time" validate:"required"`
	TimeZone        string                     `json:"time_zone"`
	AllDay          bool                       `json:"all_day"`
	Customer        models.Customer            `json:"customer" validate:"required"`
	AssignedStaff   []string                   `json:"assigned_staff" validate:"required,min=1"`
	Location        models.LocationKind        `json:"location" validate:"required"`
	ServiceLocation string                     `json:"service_location"`
	Type            models.AppointmentType    `json:"type" validate:"required"`
	Priority        models.AppointmentPriority `json:"priority"`
	Category        string                     `json:"category"`
	Tags            []string                   `json:"tags"`
	Recurrence      *models.RecurringPattern   `json:"recurrence"`
	Reminders       []models.Reminder          `json:"reminders"`
	TenantID        string                     `json:"tenant_id"`
	CreatedBy       string                     `json:"created_by"`
}

// Create validates and conflict-checks a new appointment. A critical
// conflict blocks the create and nothing is persisted; non-critical
// conflicts are returned alongside the created appointment as advisories.
// A recurring parent is persisted atomically with all its instances.
func (s *AppointmentService) Create(ctx context.Context, req CreateAppointmentRequest) (*models.Appointment, []models.AppointmentConflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	if req.Customer.Name == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "customer name is required")
	}

	conflicts, err := s.conflicts.Check(ctx, models.ConflictRequest{
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AssignedStaff:   req.AssignedStaff,
		Location:        req.Location,
		ServiceLocation: req.ServiceLocation,
		CustomerID:      req.Customer.ID,
		TenantID:        req.TenantID,
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordConflicts(conflicts)
	if models.HasCritical(conflicts) {
		s.metrics.RecordAppointmentOp("create", "conflict")
		return nil, conflicts, &models.ConflictError{Conflicts: conflicts}
	}

	now := time.Now().UTC()
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	appt := &models.Appointment{
		ID:              uuid.NewString(),
		Sequence:        s.nextSequence(req.StartTime),
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TimeZone:        req.TimeZone,
		AllDay:          req.AllDay,
		Customer:        req.Customer,
		AssignedStaff:   req.AssignedStaff,
		Location:        req.Location,
		ServiceLocation: req.ServiceLocation,
		Type:            req.Type,
		Status:          models.StatusScheduled,
		Priority:        priority,
		Category:        req.Category,
		Tags:            req.Tags,
		IsRecurring:     req.Recurrence != nil,
		Recurrence:      req.Recurrence,
		Reminders:       req.Reminders,
		SyncStatus:      models.SyncStatusPending,
		Version:         1,
		TenantID:        req.TenantID,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if appt.IsRecurring {
		instances, err := s.recurrence.Expand(appt)
		if err != nil {
			return nil, conflicts, err
		}
		batch := append([]*models.Appointment{appt}, instances...)
		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			s.metrics.RecordAppointmentOp("create", "error")
			return nil, conflicts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist recurring series")
		}
		s.publish(events.AppointmentCreated, appt.Clone())
		if len(instances) > 0 {
			s.publish(events.RecurringAppointmentsCreated, instances)
		}
	} else {
		if err := s.repo.Create(ctx, appt); err != nil {
			s.metrics.RecordAppointmentOp("create", "error")
			return nil, conflicts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist appointment")
		}
		s.publish(events.AppointmentCreated, appt.Clone())
	}

	s.metrics.RecordAppointmentOp("create", "ok")
	s.invalidateCaches(ctx, appt.TenantID)
	return appt, conflicts, nil
}

// UpdateAppointmentRequest carries partial fields; nil pointers leave the
// stored value untouched. ExpectedVersion, when non-zero, enables the
// optimistic-lock check.
type UpdateAppointmentRequest struct {
	Title           *string                     `json:"title"`
	Description     *string                     `json:"description"`
	StartTime       *time.Time                  `json:"start_time"`
	EndTime         *time.Time                  `json:"end_time"`
	Customer        *models.Customer            `json:"customer"`
	AssignedStaff   []string                    `json:"assigned_staff"`
	Location        *models.LocationKind        `json:"location"`
	ServiceLocation *string                     `json:"service_location"`
	Type            *models.AppointmentType     `json:"type"`
	Priority        *models.AppointmentPriority `json:"priority"`
	Category        *string                     `json:"category"`
	Tags            []string                    `json:"tags"`
	Reminders       []models.Reminder           `json:"reminders"`
	ExpectedVersion int                         `json:"expected_version"`
}

func (r UpdateAppointmentRequest) touchesSchedule() bool {
	return r.StartTime != nil || r.EndTime != nil || r.AssignedStaff != nil
}

// Update merges partial fields onto the stored appointment. Time or staff
// changes re-run conflict detection against the merged values; a critical
// conflict blocks the update and no partial mutation is applied.
func (s *AppointmentService) Update(ctx context.Context, id string, req UpdateAppointmentRequest) (*models.Appointment, []models.AppointmentConflict, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	if req.ExpectedVersion > 0 && req.ExpectedVersion != current.Version {
		return nil, nil, appErrors.Clone(appErrors.ErrVersionMismatch,
			fmt.Sprintf("expected version %d, have %d", req.ExpectedVersion, current.Version))
	}

	merged := current.Clone()
	diff := applyUpdate(merged, req)
	if len(diff) == 0 {
		return current, nil, nil
	}
	if !merged.EndTime.After(merged.StartTime) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	var conflicts []models.AppointmentConflict
	if req.touchesSchedule() {
		conflicts, err = s.conflicts.Check(ctx, models.ConflictRequest{
			StartTime:       merged.StartTime,
			EndTime:         merged.EndTime,
			AssignedStaff:   merged.AssignedStaff,
			Location:        merged.Location,
			ServiceLocation: merged.ServiceLocation,
			CustomerID:      merged.Customer.ID,
			TenantID:        merged.TenantID,
			ExcludeID:       merged.ID,
		})
		if err != nil {
			return nil, nil, err
		}
		s.recordConflicts(conflicts)
		if models.HasCritical(conflicts) {
			s.metrics.RecordAppointmentOp("update", "conflict")
			return nil, conflicts, &models.ConflictError{Conflicts: conflicts}
		}
	}

	merged.Version = current.Version + 1
	merged.SyncStatus = models.SyncStatusPending
	merged.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, merged); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conflicts, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		s.metrics.RecordAppointmentOp("update", "error")
		return nil, conflicts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}

	s.metrics.RecordAppointmentOp("update", "ok")
	s.invalidateCaches(ctx, merged.TenantID)
	s.publish(events.AppointmentUpdated, map[string]interface{}{
		"appointment": merged.Clone(),
		"diff":        diff,
	})
	return merged, conflicts, nil
}

func applyUpdate(appt *models.Appointment, req UpdateAppointmentRequest) map[string]interface{} {
	diff := make(map[string]interface{})
	if req.Title != nil && *req.Title != appt.Title {
		diff["title"] = *req.Title
		appt.Title = *req.Title
	}
	if req.Description != nil && *req.Description != appt.Description {
		diff["description"] = *req.Description
		appt.Description = *req.Description
	}
	if req.StartTime != nil && !req.StartTime.Equal(appt.StartTime) {
		diff["start_time"] = *req.StartTime
		appt.StartTime = *req.StartTime
	}
	if req.EndTime != nil && !req.EndTime.Equal(appt.EndTime) {
		diff["end_time"] = *req.EndTime
		appt.EndTime = *req.EndTime
	}
	if req.Customer != nil {
		diff["customer"] = *req.Customer
		appt.Customer = *req.Customer
	}
	if req.AssignedStaff != nil {
		diff["assigned_staff"] = req.AssignedStaff
		appt.AssignedStaff = req.AssignedStaff
	}
	if req.Location != nil && *req.Location != appt.Location {
		diff["location"] = *req.Location
		appt.Location = *req.Location
	}
	if req.ServiceLocation != nil && *req.ServiceLocation != appt.ServiceLocation {
		diff["service_location"] = *req.ServiceLocation
		appt.ServiceLocation = *req.ServiceLocation
	}
	if req.Type != nil && *req.Type != appt.Type {
		diff["type"] = *req.Type
		appt.Type = *req.Type
	}
	if req.Priority != nil && *req.Priority != appt.Priority {
		diff["priority"] = *req.Priority
		appt.Priority = *req.Priority
	}
	if req.Category != nil && *req.Category != appt.Category {
		diff["category"] = *req.Category
		appt.Category = *req.Category
	}
	if req.Tags != nil {
		diff["tags"] = req.Tags
		appt.Tags = req.Tags
	}
	if req.Reminders != nil {
		diff["reminders"] = req.Reminders
		appt.Reminders = req.Reminders
	}
	return diff
}

// Get returns one appointment by id.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// Delete removes an appointment. With cascadeRecurring, every instance whose
// parent is the target is removed first.
func (s *AppointmentService) Delete(ctx context.Context, id string, cascadeRecurring bool) error {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	cascaded := 0
	if cascadeRecurring && target.IsRecurring {
		cascaded, err = s.repo.DeleteByParent(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete recurrence instances")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		s.metrics.RecordAppointmentOp("delete", "error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete appointment")
	}

	s.metrics.RecordAppointmentOp("delete", "ok")
	s.invalidateCaches(ctx, target.TenantID)
	s.publish(events.AppointmentDeleted, map[string]interface{}{
		"appointment": target,
		"cascaded":    cascaded,
	})
	return nil
}

// UpdateStatus transitions the appointment lifecycle. Terminal states accept
// no further transitions; an illegal transition is a validation error.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id string, newStatus models.AppointmentStatus, note string) (*models.Appointment, error) {
	if !newStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", newStatus))
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	if current.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("appointment is %s; no further transitions allowed", current.Status))
	}
	if !transitionAllowed(current.Status, newStatus) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot transition from %s to %s", current.Status, newStatus))
	}

	updated := current.Clone()
	oldStatus := updated.Status
	updated.Status = newStatus
	message := fmt.Sprintf("status changed from %s to %s", oldStatus, newStatus)
	if note != "" {
		message += ": " + note
	}
	updated.Notifications = append(updated.Notifications, models.Notification{
		Type:      "status_change",
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	updated.Version = current.Version + 1
	updated.SyncStatus = models.SyncStatusPending
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, updated); err != nil {
		s.metrics.RecordAppointmentOp("status", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	s.metrics.RecordAppointmentOp("status", "ok")
	s.invalidateCaches(ctx, updated.TenantID)
	s.publish(events.StatusChanged, map[string]interface{}{
		"appointment": updated.Clone(),
		"old_status":  oldStatus,
		"new_status":  newStatus,
	})
	return updated, nil
}

// Search filters, sorts and paginates appointments.
func (s *AppointmentService) Search(ctx context.Context, filter models.AppointmentFilter) (*models.SearchResult, error) {
	// One clamp for every backend, so the page size and HasMore agree no
	// matter which store serves the query.
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search appointments")
	}
	return &models.SearchResult{
		Items:   items,
		Total:   total,
		HasMore: filter.Offset+filter.Limit < total,
	}, nil
}

// CheckConflicts exposes the detector for what-if queries.
func (s *AppointmentService) CheckConflicts(ctx context.Context, req models.ConflictRequest) ([]models.AppointmentConflict, error) {
	return s.conflicts.Check(ctx, req)
}

// Statistics aggregates appointment counts for a tenant. Results are cached
// briefly; any mutation invalidates the cache.
func (s *AppointmentService) Statistics(ctx context.Context, tenantID string) (*models.Statistics, error) {
	cacheKey := "statistics:" + tenantID
	if s.cache != nil {
		var cached models.Statistics
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	appts, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	stats := &models.Statistics{
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}
	now := time.Now()
	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	for _, appt := range appts {
		stats.Total++
		stats.ByStatus[string(appt.Status)]++
		stats.ByType[string(appt.Type)]++
		stats.ByPriority[string(appt.Priority)]++
		if appt.SyncStatus == models.SyncStatusPending || appt.SyncStatus == models.SyncStatusFailed {
			stats.Unsynced++
		}
		if appt.SyncStatus == models.SyncStatusConflict {
			stats.Conflicted++
		}
		if models.SameCalendarDay(now, appt.StartTime) {
			stats.Today++
		}
		if !appt.StartTime.Before(weekStart) && appt.StartTime.Before(weekEnd) {
			stats.ThisWeek++
		}
	}

	if s.cache != nil && s.statsTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, stats, s.statsTTL); err != nil {
			s.logger.Warn("failed to cache statistics", zap.Error(err))
		}
	}
	return stats, nil
}

// Cleanup removes terminal appointments older than the retention cutoff and
// reports how many were dropped.
func (s *AppointmentService) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	removed, err := s.repo.DeleteTerminalBefore(ctx, olderThan)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cleanup failed")
	}
	if removed > 0 {
		s.invalidateCaches(ctx, "")
	}
	s.publish(events.CleanupCompleted, map[string]interface{}{
		"removed":    removed,
		"older_than": olderThan,
	})
	return removed, nil
}

// nextSequence yields a human-readable booking number. The counter resets
// per process, not per day; uniqueness comes from the date prefix plus the
// monotonic suffix.
func (s *AppointmentService) nextSequence(start time.Time) string {
	n := atomic.AddUint64(&s.seq, 1)
	return fmt.Sprintf("APT-%s-%04d", start.Format("20060102"), n)
}

func (s *AppointmentService) recordConflicts(conflicts []models.AppointmentConflict) {
	byType := make(map[string]int)
	for _, c := range conflicts {
		byType[string(c.Type)]++
	}
	for t, n := range byType {
		s.metrics.RecordConflicts(t, n)
	}
}

func (s *AppointmentService) invalidateCaches(ctx context.Context, _ string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "availability:*"); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, "statistics:*"); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}

func (s *AppointmentService) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, Payload: payload})
}

// startOfWeek returns midnight Monday of the week containing t.
func startOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}
