package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
)

type conflictScanRepository interface {
	ListActiveBetween(ctx context.Context, from, to time.Time, tenantID string) ([]*models.Appointment, error)
}

// ConflictService detects scheduling collisions for a candidate time window.
// Conflicts are computed on demand and never persisted.
type ConflictService struct {
	repo   conflictScanRepository
	logger *zap.Logger
}

// NewConflictService constructs the service.
func NewConflictService(repo conflictScanRepository, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{repo: repo, logger: logger}
}

// Check scans all non-cancelled appointments overlapping the candidate
// window and reports one conflict per colliding dimension. An empty result
// means the window is clear. Result order follows store iteration order.
func (s *ConflictService) Check(ctx context.Context, req models.ConflictRequest) ([]models.AppointmentConflict, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, nil
	}

	existing, err := s.repo.ListActiveBetween(ctx, req.StartTime, req.EndTime, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("scan appointments for conflicts: %w", err)
	}

	var conflicts []models.AppointmentConflict
	for _, other := range existing {
		if other.ID == req.ExcludeID {
			continue
		}
		if !models.Overlaps(req.StartTime, req.EndTime, other.StartTime, other.EndTime) {
			continue
		}

		if staff := sharedStaff(req.AssignedStaff, other.AssignedStaff); len(staff) > 0 {
			conflicts = append(conflicts, models.AppointmentConflict{
				Type:                models.ConflictStaff,
				Severity:            models.SeverityCritical,
				ConflictingID:       other.ID,
				ConflictingSequence: other.Sequence,
				Description: fmt.Sprintf("staff %v already booked on %s from %s to %s",
					staff, other.Sequence,
					other.StartTime.Format("15:04"), other.EndTime.Format("15:04")),
				AutoResolvable:      false,
				SuggestedResolution: "reassign staff or pick a different time window",
			})
		}

		if req.Location.Physical() &&
			req.Location == other.Location &&
			req.ServiceLocation != "" &&
			req.ServiceLocation == other.ServiceLocation {
			conflicts = append(conflicts, models.AppointmentConflict{
				Type:                models.ConflictLocation,
				Severity:            models.SeverityHigh,
				ConflictingID:       other.ID,
				ConflictingSequence: other.Sequence,
				Description: fmt.Sprintf("location %q already occupied by %s",
					req.ServiceLocation, other.Sequence),
				AutoResolvable:      true,
				SuggestedResolution: "use a different room or shift the window",
			})
		}

		if req.CustomerID != "" && req.CustomerID == other.Customer.ID {
			conflicts = append(conflicts, models.AppointmentConflict{
				Type:                models.ConflictCustomerBusy,
				Severity:            models.SeverityMedium,
				ConflictingID:       other.ID,
				ConflictingSequence: other.Sequence,
				Description: fmt.Sprintf("customer already has appointment %s in this window",
					other.Sequence),
				AutoResolvable:      true,
				SuggestedResolution: "confirm the double booking with the customer",
			})
		}
	}

	return conflicts, nil
}

func sharedStaff(a, b []string) []string {
	var shared []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				shared = append(shared, x)
				break
			}
		}
	}
	return shared
}
