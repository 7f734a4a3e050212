package models

import "time"

// ConflictType identifies the colliding dimension.
type ConflictType string

const (
	ConflictTimeOverlap  ConflictType = "time_overlap"
	ConflictStaff        ConflictType = "staff_unavailable"
	ConflictLocation     ConflictType = "location_unavailable"
	ConflictCustomerBusy ConflictType = "customer_conflict"
)

// ConflictSeverity ranks how blocking a conflict is. Only critical conflicts
// stop a create or update.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// AppointmentConflict is a transient record computed on demand; conflicts are
// never persisted.
type AppointmentConflict struct {
	Type                ConflictType     `json:"type"`
	Severity            ConflictSeverity `json:"severity"`
	ConflictingID       string           `json:"conflicting_id"`
	ConflictingSequence string           `json:"conflicting_sequence,omitempty"`
	Description         string           `json:"description"`
	AutoResolvable      bool             `json:"auto_resolvable"`
	SuggestedResolution string           `json:"suggested_resolution,omitempty"`
}

// ConflictRequest is the candidate window checked against existing
// appointments.
type ConflictRequest struct {
	StartTime       time.Time
	EndTime         time.Time
	AssignedStaff   []string
	Location        LocationKind
	ServiceLocation string
	CustomerID      string
	TenantID        string
	ExcludeID       string
}

// HasCritical reports whether any conflict in the list blocks a mutation.
func HasCritical(conflicts []AppointmentConflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ConflictError is raised when a critical conflict blocks a create or update.
// It carries the full conflict list so callers can offer resolutions.
type ConflictError struct {
	Conflicts []AppointmentConflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Conflicts) == 1 {
		return "scheduling conflict: " + e.Conflicts[0].Description
	}
	return "scheduling conflicts detected"
}
