package models

import "time"

// AppointmentType classifies the kind of work being scheduled.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeService      AppointmentType = "service"
	TypeFollowup     AppointmentType = "followup"
	TypeEstimate     AppointmentType = "estimate"
	TypeInspection   AppointmentType = "inspection"
	TypeDelivery     AppointmentType = "delivery"
	TypePickup       AppointmentType = "pickup"
	TypeMaintenance  AppointmentType = "maintenance"
	TypeEmergency    AppointmentType = "emergency"
	TypeMeeting      AppointmentType = "meeting"
	TypeTraining     AppointmentType = "training"
	TypeOther        AppointmentType = "other"
)

// AppointmentStatus tracks an appointment through its lifecycle.
type AppointmentStatus string

const (
	StatusScheduled           AppointmentStatus = "scheduled"
	StatusConfirmed           AppointmentStatus = "confirmed"
	StatusInProgress          AppointmentStatus = "in_progress"
	StatusCompleted           AppointmentStatus = "completed"
	StatusCancelled           AppointmentStatus = "cancelled"
	StatusNoShow              AppointmentStatus = "no_show"
	StatusRescheduled         AppointmentStatus = "rescheduled"
	StatusPendingConfirmation AppointmentStatus = "pending_confirmation"
)

// Terminal reports whether no further status transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle state.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled, StatusPendingConfirmation:
		return true
	}
	return false
}

// AppointmentPriority orders appointments by urgency.
type AppointmentPriority string

const (
	PriorityLow       AppointmentPriority = "low"
	PriorityNormal    AppointmentPriority = "normal"
	PriorityHigh      AppointmentPriority = "high"
	PriorityUrgent    AppointmentPriority = "urgent"
	PriorityEmergency AppointmentPriority = "emergency"
)

// Ordinal maps priority to a sortable rank, low first.
func (p AppointmentPriority) Ordinal() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	case PriorityEmergency:
		return 4
	}
	return 1
}

// LocationKind describes where the appointment takes place.
type LocationKind string

const (
	LocationOnSite     LocationKind = "on_site"
	LocationOffice     LocationKind = "office"
	LocationVirtual    LocationKind = "virtual"
	LocationCustomer   LocationKind = "customer_location"
	LocationThirdParty LocationKind = "third_party"
)

// Physical reports whether two appointments at this kind of location can
// collide over the same service location. Virtual, on-site and third-party
// visits never contend for a room.
func (k LocationKind) Physical() bool {
	return k == LocationOffice || k == LocationCustomer
}

// SyncStatus tracks reconciliation with external calendar providers.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusFailed   SyncStatus = "failed"
)

// RecurrenceType selects the stepping rule for recurring appointments.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
	RecurrenceCustom  RecurrenceType = "custom"
)

// RecurringPattern describes how a recurring appointment repeats.
type RecurringPattern struct {
	Type        RecurrenceType `db:"-" json:"type"`
	Interval    int            `db:"-" json:"interval"`
	DaysOfWeek  []time.Weekday `db:"-" json:"days_of_week,omitempty"`
	DayOfMonth  int            `db:"-" json:"day_of_month,omitempty"`
	EndDate     *time.Time     `db:"-" json:"end_date,omitempty"`
	Occurrences int            `db:"-" json:"occurrences,omitempty"`
	Exceptions  []time.Time    `db:"-" json:"exceptions,omitempty"`
}

// Customer identifies the party the appointment serves.
type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Reminder is a scheduled pre-appointment notification.
type Reminder struct {
	Channel       string `json:"channel"`
	MinutesBefore int    `json:"minutes_before"`
	Sent          bool   `json:"sent"`
}

// Notification is a message attached to the appointment timeline.
type Notification struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Appointment is the central scheduling entity.
type Appointment struct {
	ID       string `json:"id"`
	Sequence string `json:"sequence"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	TimeZone  string    `json:"time_zone,omitempty"`
	AllDay    bool      `json:"all_day"`

	Customer      Customer `json:"customer"`
	AssignedStaff []string `json:"assigned_staff"`

	Location        LocationKind `json:"location"`
	ServiceLocation string       `json:"service_location,omitempty"`

	Type     AppointmentType     `json:"type"`
	Status   AppointmentStatus   `json:"status"`
	Priority AppointmentPriority `json:"priority"`
	Category string              `json:"category,omitempty"`
	Tags     []string            `json:"tags,omitempty"`

	IsRecurring         bool              `json:"is_recurring"`
	Recurrence          *RecurringPattern `json:"recurrence,omitempty"`
	ParentAppointmentID string            `json:"parent_appointment_id,omitempty"`

	Reminders     []Reminder     `json:"reminders,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`

	SyncStatus SyncStatus `json:"sync_status"`
	Version    int        `json:"version"`
	LastSynced *time.Time `json:"last_synced,omitempty"`

	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationMinutes derives the appointment length from its time window.
func (a *Appointment) DurationMinutes() int {
	return int(a.EndTime.Sub(a.StartTime) / time.Minute)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	out := *a
	out.AssignedStaff = append([]string(nil), a.AssignedStaff...)
	out.Tags = append([]string(nil), a.Tags...)
	out.Reminders = append([]Reminder(nil), a.Reminders...)
	out.Notifications = append([]Notification(nil), a.Notifications...)
	if a.Recurrence != nil {
		rec := *a.Recurrence
		rec.DaysOfWeek = append([]time.Weekday(nil), a.Recurrence.DaysOfWeek...)
		rec.Exceptions = append([]time.Time(nil), a.Recurrence.Exceptions...)
		out.Recurrence = &rec
	}
	if a.LastSynced != nil {
		ts := *a.LastSynced
		out.LastSynced = &ts
	}
	return &out
}

// AppointmentFilter describes query params for searching appointments.
type AppointmentFilter struct {
	From       *time.Time
	To         *time.Time
	Statuses   []AppointmentStatus
	Types      []AppointmentType
	Staff      []string
	CustomerID string
	Search     string
	TenantID   string
	SortBy     string
	SortOrder  string
	Offset     int
	Limit      int
}

// SearchResult is a page of appointments plus paging metadata.
type SearchResult struct {
	Items   []*Appointment `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// Statistics aggregates appointment counts for a tenant.
type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByType     map[string]int `json:"by_type"`
	ByPriority map[string]int `json:"by_priority"`
	Unsynced   int            `json:"unsynced"`
	Conflicted int            `json:"conflicted"`
	Today      int            `json:"today"`
	ThisWeek   int            `json:"this_week"`
}
