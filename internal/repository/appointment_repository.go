package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/fieldops-api/internal/models"
)

// AppointmentRepository manages appointment persistence in PostgreSQL.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs an AppointmentRepository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, sequence, title, description, start_time, end_time, time_zone, all_day,
customer, assigned_staff, location, service_location, type, status, priority, category, tags,
is_recurring, recurrence, parent_appointment_id, reminders, notifications,
sync_status, version, last_synced, tenant_id, created_by, created_at, updated_at`

type appointmentRow struct {
	ID                  string          `db:"id"`
	Sequence            string          `db:"sequence"`
	Title               string          `db:"title"`
	Description         string          `db:"description"`
	StartTime           time.Time       `db:"start_time"`
	EndTime             time.Time       `db:"end_time"`
	TimeZone            string          `db:"time_zone"`
	AllDay              bool            `db:"all_day"`
	Customer            types.JSONText  `db:"customer"`
	AssignedStaff       pq.StringArray  `db:"assigned_staff"`
	Location            string          `db:"location"`
	ServiceLocation     string          `db:"service_location"`
	Type                string          `db:"type"`
	Status              string          `db:"status"`
	Priority            string          `db:"priority"`
	Category            string          `db:"category"`
	Tags                pq.StringArray  `db:"tags"`
	IsRecurring         bool            `db:"is_recurring"`
	Recurrence          *types.JSONText `db:"recurrence"`
	ParentAppointmentID string          `db:"parent_appointment_id"`
	Reminders           types.JSONText  `db:"reminders"`
	Notifications       types.JSONText  `db:"notifications"`
	SyncStatus          string          `db:"sync_status"`
	Version             int             `db:"version"`
	LastSynced          *time.Time      `db:"last_synced"`
	TenantID            string          `db:"tenant_id"`
	CreatedBy           string          `db:"created_by"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

func toRow(appt *models.Appointment) (*appointmentRow, error) {
	customer, err := json.Marshal(appt.Customer)
	if err != nil {
		return nil, fmt.Errorf("marshal customer: %w", err)
	}
	reminders, err := json.Marshal(appt.Reminders)
	if err != nil {
		return nil, fmt.Errorf("marshal reminders: %w", err)
	}
	notifications, err := json.Marshal(appt.Notifications)
	if err != nil {
		return nil, fmt.Errorf("marshal notifications: %w", err)
	}
	row := &appointmentRow{
		ID:                  appt.ID,
		Sequence:            appt.Sequence,
		Title:               appt.Title,
		Description:         appt.Description,
		StartTime:           appt.StartTime,
		EndTime:             appt.EndTime,
		TimeZone:            appt.TimeZone,
		AllDay:              appt.AllDay,
		Customer:            types.JSONText(customer),
		AssignedStaff:       pq.StringArray(appt.AssignedStaff),
		Location:            string(appt.Location),
		ServiceLocation:     appt.ServiceLocation,
		Type:                string(appt.Type),
		Status:              string(appt.Status),
		Priority:            string(appt.Priority),
		Category:            appt.Category,
		Tags:                pq.StringArray(appt.Tags),
		IsRecurring:         appt.IsRecurring,
		ParentAppointmentID: appt.ParentAppointmentID,
		Reminders:           types.JSONText(reminders),
		Notifications:       types.JSONText(notifications),
		SyncStatus:          string(appt.SyncStatus),
		Version:             appt.Version,
		LastSynced:          appt.LastSynced,
		TenantID:            appt.TenantID,
		CreatedBy:           appt.CreatedBy,
		CreatedAt:           appt.CreatedAt,
		UpdatedAt:           appt.UpdatedAt,
	}
	if appt.Recurrence != nil {
		rec, err := json.Marshal(appt.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("marshal recurrence: %w", err)
		}
		jt := types.JSONText(rec)
		row.Recurrence = &jt
	}
	return row, nil
}

func fromRow(row *appointmentRow) (*models.Appointment, error) {
	appt := &models.Appointment{
		ID:                  row.ID,
		Sequence:            row.Sequence,
		Title:               row.Title,
		Description:         row.Description,
		StartTime:           row.StartTime,
		EndTime:             row.EndTime,
		TimeZone:            row.TimeZone,
		AllDay:              row.AllDay,
		AssignedStaff:       []string(row.AssignedStaff),
		Location:            models.LocationKind(row.Location),
		ServiceLocation:     row.ServiceLocation,
		Type:                models.AppointmentType(row.Type),
		Status:              models.AppointmentStatus(row.Status),
		Priority:            models.AppointmentPriority(row.Priority),
		Category:            row.Category,
		Tags:                []string(row.Tags),
		IsRecurring:         row.IsRecurring,
		ParentAppointmentID: row.ParentAppointmentID,
		SyncStatus:          models.SyncStatus(row.SyncStatus),
		Version:             row.Version,
		LastSynced:          row.LastSynced,
		TenantID:            row.TenantID,
		CreatedBy:           row.CreatedBy,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if len(row.Customer) > 0 {
		if err := json.Unmarshal(row.Customer, &appt.Customer); err != nil {
			return nil, fmt.Errorf("unmarshal customer: %w", err)
		}
	}
	if len(row.Reminders) > 0 {
		if err := json.Unmarshal(row.Reminders, &appt.Reminders); err != nil {
			return nil, fmt.Errorf("unmarshal reminders: %w", err)
		}
	}
	if len(row.Notifications) > 0 {
		if err := json.Unmarshal(row.Notifications, &appt.Notifications); err != nil {
			return nil, fmt.Errorf("unmarshal notifications: %w", err)
		}
	}
	if row.Recurrence != nil && len(*row.Recurrence) > 0 {
		appt.Recurrence = &models.RecurringPattern{}
		if err := json.Unmarshal(*row.Recurrence, appt.Recurrence); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence: %w", err)
		}
	}
	return appt, nil
}

// Get loads one appointment by id.
func (r *AppointmentRepository) Get(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1", appointmentColumns)
	var row appointmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return fromRow(&row)
}

const insertAppointment = `INSERT INTO appointments (` + appointmentColumns + `) VALUES
($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

func insertArgs(row *appointmentRow) []interface{} {
	var recurrence interface{}
	if row.Recurrence != nil {
		recurrence = *row.Recurrence
	}
	return []interface{}{
		row.ID, row.Sequence, row.Title, row.Description, row.StartTime, row.EndTime,
		row.TimeZone, row.AllDay, row.Customer, row.AssignedStaff, row.Location,
		row.ServiceLocation, row.Type, row.Status, row.Priority, row.Category, row.Tags,
		row.IsRecurring, recurrence, row.ParentAppointmentID, row.Reminders,
		row.Notifications, row.SyncStatus, row.Version, row.LastSynced, row.TenantID,
		row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	}
}

// Create inserts a single appointment.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	row, err := toRow(appt)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertAppointment, insertArgs(row)...); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// CreateBatch inserts a parent and its recurrence instances in one
// transaction so a failure never leaves a partially-expanded series.
func (r *AppointmentRepository) CreateBatch(ctx context.Context, appts []*models.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	for _, appt := range appts {
		row, err := toRow(appt)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, insertAppointment, insertArgs(row)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert appointment %s: %w", appt.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

// Update rewrites every mutable column of an appointment.
func (r *AppointmentRepository) Update(ctx context.Context, appt *models.Appointment) error {
	row, err := toRow(appt)
	if err != nil {
		return err
	}
	var recurrence interface{}
	if row.Recurrence != nil {
		recurrence = *row.Recurrence
	}
	query := `UPDATE appointments SET
sequence = $2, title = $3, description = $4, start_time = $5, end_time = $6,
time_zone = $7, all_day = $8, customer = $9, assigned_staff = $10, location = $11,
service_location = $12, type = $13, status = $14, priority = $15, category = $16,
tags = $17, is_recurring = $18, recurrence = $19, parent_appointment_id = $20,
reminders = $21, notifications = $22, sync_status = $23, version = $24,
last_synced = $25, updated_at = $26
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		row.ID, row.Sequence, row.Title, row.Description, row.StartTime, row.EndTime,
		row.TimeZone, row.AllDay, row.Customer, row.AssignedStaff, row.Location,
		row.ServiceLocation, row.Type, row.Status, row.Priority, row.Category, row.Tags,
		row.IsRecurring, recurrence, row.ParentAppointmentID, row.Reminders,
		row.Notifications, row.SyncStatus, row.Version, row.LastSynced, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an appointment by id.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM appointments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByParent removes all recurrence instances of a parent.
func (r *AppointmentRepository) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM appointments WHERE parent_appointment_id = $1", parentID)
	if err != nil {
		return 0, fmt.Errorf("delete recurrence instances: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete recurrence instances rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteTerminalBefore removes terminal appointments that ended before the
// cutoff.
func (r *AppointmentRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := "DELETE FROM appointments WHERE status IN ('completed', 'cancelled', 'no_show') AND end_time < $1"
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup appointments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup appointments rows affected: %w", err)
	}
	return int(affected), nil
}

// ListActiveBetween returns non-cancelled appointments overlapping
// [from, to), ordered by creation for deterministic conflict scans.
func (r *AppointmentRepository) ListActiveBetween(ctx context.Context, from, to time.Time, tenantID string) ([]*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments
WHERE status <> 'cancelled' AND start_time < $2 AND end_time > $1`, appointmentColumns)
	args := []interface{}{from, to}
	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}
	query += " ORDER BY created_at ASC"
	return r.selectAppointments(ctx, query, args...)
}

// ListByTenant returns every appointment, optionally scoped to a tenant.
func (r *AppointmentRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments", appointmentColumns)
	var args []interface{}
	if tenantID != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenantID)
	}
	query += " ORDER BY created_at ASC"
	return r.selectAppointments(ctx, query, args...)
}

// ListBySyncStatus returns appointments in any of the given sync states.
func (r *AppointmentRepository) ListBySyncStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE sync_status = ANY($1) ORDER BY created_at ASC", appointmentColumns)
	return r.selectAppointments(ctx, query, pq.StringArray(values))
}

// List filters, sorts and paginates appointments along with a total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, int, error) {
	base := "FROM appointments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("end_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			values[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.StringArray(values))
	}
	if len(filter.Types) > 0 {
		values := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			values[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)+1))
		args = append(args, pq.StringArray(values))
	}
	if len(filter.Staff) > 0 {
		conditions = append(conditions, fmt.Sprintf("assigned_staff && $%d", len(args)+1))
		args = append(args, pq.StringArray(filter.Staff))
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("customer->>'id' = $%d", len(args)+1))
		args = append(args, filter.CustomerID)
	}
	if filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)+1))
		args = append(args, filter.TenantID)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d OR LOWER(customer->>'name') LIKE $%d OR LOWER(ARRAY_TO_STRING(tags, ' ')) LIKE $%d)",
			idx, idx, idx, idx))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_time"
	}
	allowedSorts := map[string]string{
		"start_time": "start_time",
		"created_at": "created_at",
		"updated_at": "updated_at",
		"status":     "status",
		"priority": "CASE priority WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2 " +
			"WHEN 'urgent' THEN 3 WHEN 'emergency' THEN 4 ELSE 1 END",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "start_time"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		appointmentColumns, base, column, order, limit, offset)
	items, err := r.selectAppointments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return items, total, nil
}

func (r *AppointmentRepository) selectAppointments(ctx context.Context, query string, args ...interface{}) ([]*models.Appointment, error) {
	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	out := make([]*models.Appointment, 0, len(rows))
	for i := range rows {
		appt, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, nil
}
