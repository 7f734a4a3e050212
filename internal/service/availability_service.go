package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// AvailabilityConfig shapes the business day sliced by the slot search.
type AvailabilityConfig struct {
	DayStart string
	DayEnd   string
	SlotStep time.Duration
	CacheTTL time.Duration
}

// AvailabilityService classifies fixed-size slots of a business day as free
// or taken. Unlike the blocking create path, any conflict at all makes a
// slot unavailable; a slot with a soft conflict is not genuinely free.
type AvailabilityService struct {
	conflicts *ConflictService
	cache     *repository.CacheRepository
	metrics   *MetricsService
	cfg       AvailabilityConfig
	logger    *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(conflicts *ConflictService, cache *repository.CacheRepository, metrics *MetricsService, cfg AvailabilityConfig, logger *zap.Logger) *AvailabilityService {
	if cfg.DayStart == "" {
		cfg.DayStart = "08:00"
	}
	if cfg.DayEnd == "" {
		cfg.DayEnd = "18:00"
	}
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{conflicts: conflicts, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// SlotsRequest describes one availability search.
type SlotsRequest struct {
	Date            time.Time
	Duration        time.Duration
	Staff           []string
	Location        models.LocationKind
	ServiceLocation string
	TenantID        string
}

// Slots walks the business day in fixed steps and classifies each candidate
// window. Every call recomputes unless a cached copy is still fresh.
func (s *AvailabilityService) Slots(ctx context.Context, req SlotsRequest) ([]models.TimeSlot, error) {
	if req.Duration <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}

	dayStart, err := atClock(req.Date, s.cfg.DayStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid business day start")
	}
	dayEnd, err := atClock(req.Date, s.cfg.DayEnd)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid business day end")
	}
	s.metrics.RecordSlotSearch()

	cacheKey := s.cacheKey(req)
	if s.cache != nil {
		var cached []models.TimeSlot
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	var slots []models.TimeSlot
	for step := dayStart; ; step = step.Add(s.cfg.SlotStep) {
		candidateEnd := step.Add(req.Duration)
		if candidateEnd.After(dayEnd) {
			break
		}

		conflicts, err := s.conflicts.Check(ctx, models.ConflictRequest{
			StartTime:       step,
			EndTime:         candidateEnd,
			AssignedStaff:   req.Staff,
			Location:        req.Location,
			ServiceLocation: req.ServiceLocation,
			TenantID:        req.TenantID,
		})
		if err != nil {
			return nil, err
		}

		slot := models.TimeSlot{Start: step, End: candidateEnd, Available: len(conflicts) == 0}
		if !slot.Available {
			slot.Reason = conflicts[0].Description
		}
		slots = append(slots, slot)
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, slots, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache availability", zap.Error(err))
		}
	}

	return slots, nil
}

func (s *AvailabilityService) cacheKey(req SlotsRequest) string {
	return fmt.Sprintf("availability:%s:%s:%d:%s:%s:%s",
		req.TenantID,
		req.Date.Format("2006-01-02"),
		int(req.Duration/time.Minute),
		strings.Join(req.Staff, ","),
		req.Location,
		req.ServiceLocation,
	)
}

// atClock pins a HH:MM clock value onto the given date, in its location.
func atClock(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, date.Location()), nil
}
