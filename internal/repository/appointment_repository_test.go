package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
)

func newAppointmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var appointmentCols = []string{
	"id", "sequence", "title", "description", "start_time", "end_time", "time_zone", "all_day",
	"customer", "assigned_staff", "location", "service_location", "type", "status", "priority",
	"category", "tags", "is_recurring", "recurrence", "parent_appointment_id", "reminders",
	"notifications", "sync_status", "version", "last_synced", "tenant_id", "created_by",
	"created_at", "updated_at",
}

func addAppointmentRow(rows *sqlmock.Rows, id string, start, end time.Time) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, "APT-20260115-0001", "Boiler inspection", "", start, end, "UTC", false,
		[]byte(`{"id":"cust-1","name":"Acme Heating"}`), "{tech-1}", "office", "", "inspection",
		"scheduled", "normal", "", "{}", false, nil, "", []byte(`[]`),
		[]byte(`[]`), "pending", 1, nil, "", "", now, now,
	)
}

func TestAppointmentRepositoryGet(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	rows := addAppointmentRow(sqlmock.NewRows(appointmentCols), "apt-1", start, start.Add(time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs("apt-1").
		WillReturnRows(rows)

	appt, err := repo.Get(context.Background(), "apt-1")
	require.NoError(t, err)
	assert.Equal(t, "apt-1", appt.ID)
	assert.Equal(t, "Acme Heating", appt.Customer.Name)
	assert.Equal(t, []string{"tech-1"}, appt.AssignedStaff)
	assert.Equal(t, models.SyncStatusPending, appt.SyncStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryGetMiss(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	appt := &models.Appointment{
		ID:            "apt-1",
		Sequence:      "APT-20260115-0001",
		Title:         "Boiler inspection",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Customer:      models.Customer{ID: "cust-1", Name: "Acme Heating"},
		AssignedStaff: []string{"tech-1"},
		Location:      models.LocationOffice,
		Type:          models.TypeInspection,
		Status:        models.StatusScheduled,
		Priority:      models.PriorityNormal,
		SyncStatus:    models.SyncStatusPending,
		Version:       1,
	}

	mock.ExpectExec("INSERT INTO appointments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), appt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreateBatchRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	parent := &models.Appointment{ID: "parent", StartTime: start, EndTime: start.Add(time.Hour)}
	child := &models.Appointment{ID: "child", StartTime: start.AddDate(0, 0, 7), EndTime: start.AddDate(0, 0, 7).Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO appointments").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), []*models.Appointment{parent, child})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUpdateMissReturnsNoRows(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("UPDATE appointments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	err := repo.Update(context.Background(), &models.Appointment{ID: "ghost", StartTime: start, EndTime: start.Add(time.Hour)})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryDeleteByParent(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE parent_appointment_id = $1")).
		WithArgs("parent").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := repo.DeleteByParent(context.Background(), "parent")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryDeleteTerminalBefore(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM appointments WHERE status IN").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListActiveBetween(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	to := from.Add(10 * time.Hour)
	rows := addAppointmentRow(sqlmock.NewRows(appointmentCols), "apt-1", from.Add(time.Hour), from.Add(2*time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM appointments\\s+WHERE status <> 'cancelled' AND start_time < \\$2 AND end_time > \\$1").
		WithArgs(from, to).
		WillReturnRows(rows)

	appts, err := repo.ListActiveBetween(context.Background(), from, to, "")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListWithFiltersAndCount(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	rows := addAppointmentRow(sqlmock.NewRows(appointmentCols), "apt-1", start, start.Add(time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE 1=1 AND status = ANY\\(\\$1\\)").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM appointments WHERE 1=1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	appts, total, err := repo.List(context.Background(), models.AppointmentFilter{
		Statuses: []models.AppointmentStatus{models.StatusScheduled},
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, appts, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
