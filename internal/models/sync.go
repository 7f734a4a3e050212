package models

import "time"

// CalendarProvider names a supported external calendar service.
type CalendarProvider string

const (
	ProviderGoogle  CalendarProvider = "google"
	ProviderOutlook CalendarProvider = "outlook"
	ProviderApple   CalendarProvider = "apple"
	ProviderCalDAV  CalendarProvider = "caldav"
)

// Valid reports whether the provider is supported.
func (p CalendarProvider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderOutlook, ProviderApple, ProviderCalDAV:
		return true
	}
	return false
}

// SyncDirection controls which way appointments flow during a sync pass.
type SyncDirection string

const (
	SyncImport        SyncDirection = "import"
	SyncExport        SyncDirection = "export"
	SyncBidirectional SyncDirection = "bidirectional"
)

// ProviderConfig is the per-provider sync configuration tracked by the
// coordinator.
type ProviderConfig struct {
	Provider   CalendarProvider `json:"provider"`
	CalendarID string           `json:"calendar_id"`
	Direction  SyncDirection    `json:"direction"`
	Enabled    bool             `json:"enabled"`
	LastSync   *time.Time       `json:"last_sync,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

// SyncConflict records a bidirectional sync disagreement for later
// resolution.
type SyncConflict struct {
	AppointmentID string           `json:"appointment_id"`
	Provider      CalendarProvider `json:"provider"`
	Detail        string           `json:"detail"`
	DetectedAt    time.Time        `json:"detected_at"`
	Resolved      bool             `json:"resolved"`
}

// SyncReport summarises one completed sync pass.
type SyncReport struct {
	Provider  CalendarProvider `json:"provider"`
	Synced    int              `json:"synced"`
	Failed    int              `json:"failed"`
	Conflicts int              `json:"conflicts"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}
