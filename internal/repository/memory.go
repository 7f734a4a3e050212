package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/fieldops-api/internal/models"
)

// MemoryAppointmentStore keeps appointments in a mutex-guarded map. It backs
// tests and single-process deployments where no database is configured, and
// returns sql.ErrNoRows on misses so services treat both stores uniformly.
type MemoryAppointmentStore struct {
	mu    sync.RWMutex
	items map[string]*models.Appointment
	order []string
}

// NewMemoryAppointmentStore constructs an empty store.
func NewMemoryAppointmentStore() *MemoryAppointmentStore {
	return &MemoryAppointmentStore{items: make(map[string]*models.Appointment)}
}

// Get returns a copy of the stored appointment.
func (s *MemoryAppointmentStore) Get(ctx context.Context, id string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return appt.Clone(), nil
}

// Create inserts a new appointment.
func (s *MemoryAppointmentStore) Create(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(appt)
	return nil
}

// CreateBatch inserts a parent and its recurrence instances in one step, so a
// partially-expanded series is never observable.
func (s *MemoryAppointmentStore) CreateBatch(ctx context.Context, appts []*models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, appt := range appts {
		s.insertLocked(appt)
	}
	return nil
}

func (s *MemoryAppointmentStore) insertLocked(appt *models.Appointment) {
	if _, exists := s.items[appt.ID]; !exists {
		s.order = append(s.order, appt.ID)
	}
	s.items[appt.ID] = appt.Clone()
}

// Update replaces a stored appointment.
func (s *MemoryAppointmentStore) Update(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[appt.ID]; !ok {
		return sql.ErrNoRows
	}
	s.items[appt.ID] = appt.Clone()
	return nil
}

// Delete removes an appointment by id.
func (s *MemoryAppointmentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	s.dropFromOrderLocked(id)
	return nil
}

// DeleteByParent removes every recurrence instance of the given parent and
// returns how many were removed.
func (s *MemoryAppointmentStore) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		if appt := s.items[id]; appt != nil && appt.ParentAppointmentID == parentID {
			delete(s.items, id)
			s.dropFromOrderLocked(id)
			removed++
		}
	}
	return removed, nil
}

// DeleteTerminalBefore removes completed/cancelled/no-show appointments that
// ended before the cutoff.
func (s *MemoryAppointmentStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		appt := s.items[id]
		if appt == nil || !appt.Status.Terminal() {
			continue
		}
		if appt.EndTime.Before(cutoff) {
			delete(s.items, id)
			s.dropFromOrderLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryAppointmentStore) dropFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// ListActiveBetween returns non-cancelled appointments whose window overlaps
// [from, to), in insertion order.
func (s *MemoryAppointmentStore) ListActiveBetween(ctx context.Context, from, to time.Time, tenantID string) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, id := range s.order {
		appt := s.items[id]
		if appt == nil || appt.Status == models.StatusCancelled {
			continue
		}
		if tenantID != "" && appt.TenantID != tenantID {
			continue
		}
		if models.Overlaps(from, to, appt.StartTime, appt.EndTime) {
			out = append(out, appt.Clone())
		}
	}
	return out, nil
}

// ListByTenant returns every appointment for a tenant (all when empty), in
// insertion order.
func (s *MemoryAppointmentStore) ListByTenant(ctx context.Context, tenantID string) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, id := range s.order {
		appt := s.items[id]
		if appt == nil {
			continue
		}
		if tenantID != "" && appt.TenantID != tenantID {
			continue
		}
		out = append(out, appt.Clone())
	}
	return out, nil
}

// ListBySyncStatus returns appointments in any of the given sync states.
func (s *MemoryAppointmentStore) ListBySyncStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[models.SyncStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}
	var out []*models.Appointment
	for _, id := range s.order {
		appt := s.items[id]
		if appt == nil {
			continue
		}
		if _, ok := wanted[appt.SyncStatus]; ok {
			out = append(out, appt.Clone())
		}
	}
	return out, nil
}

// List filters, sorts and paginates appointments, returning the page and the
// total match count.
func (s *MemoryAppointmentStore) List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, int, error) {
	s.mu.RLock()
	var matched []*models.Appointment
	for _, id := range s.order {
		appt := s.items[id]
		if appt != nil && matchesFilter(appt, filter) {
			matched = append(matched, appt.Clone())
		}
	}
	s.mu.RUnlock()

	sortAppointments(matched, filter.SortBy, filter.SortOrder)

	total := len(matched)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matchesFilter(appt *models.Appointment, filter models.AppointmentFilter) bool {
	if filter.From != nil && appt.StartTime.Before(*filter.From) {
		return false
	}
	if filter.To != nil && appt.EndTime.After(*filter.To) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, appt.Status) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, appt.Type) {
		return false
	}
	if len(filter.Staff) > 0 && !anyStaffMatch(filter.Staff, appt.AssignedStaff) {
		return false
	}
	if filter.CustomerID != "" && appt.Customer.ID != filter.CustomerID {
		return false
	}
	if filter.TenantID != "" && appt.TenantID != filter.TenantID {
		return false
	}
	if filter.Search != "" && !matchesSearch(appt, filter.Search) {
		return false
	}
	return true
}

func containsStatus(set []models.AppointmentStatus, s models.AppointmentStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsType(set []models.AppointmentType, t models.AppointmentType) bool {
	for _, candidate := range set {
		if candidate == t {
			return true
		}
	}
	return false
}

func anyStaffMatch(wanted, assigned []string) bool {
	for _, w := range wanted {
		for _, a := range assigned {
			if w == a {
				return true
			}
		}
	}
	return false
}

func matchesSearch(appt *models.Appointment, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(appt.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(appt.Description), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(appt.Customer.Name), needle) {
		return true
	}
	for _, tag := range appt.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func sortAppointments(appts []*models.Appointment, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc")
	less := func(a, b *models.Appointment) bool { return a.StartTime.Before(b.StartTime) }
	switch sortBy {
	case "created_at":
		less = func(a, b *models.Appointment) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b *models.Appointment) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "priority":
		less = func(a, b *models.Appointment) bool { return a.Priority.Ordinal() < b.Priority.Ordinal() }
	case "status":
		less = func(a, b *models.Appointment) bool { return a.Status < b.Status }
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if desc {
			return less(appts[j], appts[i])
		}
		return less(appts[i], appts[j])
	})
}
