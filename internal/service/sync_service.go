package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/events"
	"github.com/noah-isme/fieldops-api/pkg/jobs"
)

// syncRepository lists and updates appointments by sync state.
type syncRepository interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	Update(ctx context.Context, appt *models.Appointment) error
	ListBySyncStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Appointment, error)
}

// Connector pushes one appointment to an external calendar. Implementations
// wrap the provider SDK or protocol client; PushAppointment must be safe for
// concurrent use since the queue runs several workers.
type Connector interface {
	Provider() models.CalendarProvider
	PushAppointment(ctx context.Context, cfg models.ProviderConfig, appt *models.Appointment) error
}

// NoopConnector accepts every push without talking to anything. Used for
// providers that are configured but not yet wired to a real client, and in
// tests.
type NoopConnector struct {
	Kind models.CalendarProvider
}

func (c NoopConnector) Provider() models.CalendarProvider { return c.Kind }

func (c NoopConnector) PushAppointment(ctx context.Context, cfg models.ProviderConfig, appt *models.Appointment) error {
	return nil
}

// SyncServiceConfig tunes the coordinator's queue and timeouts.
type SyncServiceConfig struct {
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
	SyncTimeout time.Duration
}

// SyncService reconciles locally stored appointments with external calendar
// providers. Sync passes run on a background queue so API calls never block
// on provider latency; a keyed job per provider keeps repeated requests from
// stacking up.
type SyncService struct {
	repo    syncRepository
	bus     *events.Bus
	metrics *MetricsService
	logger  *zap.Logger
	cfg     SyncServiceConfig

	queue *jobs.Queue

	mu         sync.RWMutex
	providers  map[models.CalendarProvider]models.ProviderConfig
	connectors map[models.CalendarProvider]Connector
	conflicts  []models.SyncConflict
	lastReport map[models.CalendarProvider]models.SyncReport
}

// NewSyncService constructs the coordinator. Start must be called before
// RequestSync will accept work.
func NewSyncService(repo syncRepository, bus *events.Bus, metrics *MetricsService, cfg SyncServiceConfig, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 30 * time.Second
	}
	s := &SyncService{
		repo:       repo,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		providers:  make(map[models.CalendarProvider]models.ProviderConfig),
		connectors: make(map[models.CalendarProvider]Connector),
		lastReport: make(map[models.CalendarProvider]models.SyncReport),
	}
	s.queue = jobs.NewQueue("calendar-sync", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *SyncService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *SyncService) Stop() {
	s.queue.Stop()
}

// RegisterConnector installs the client used for a provider. Later
// registrations replace earlier ones.
func (s *SyncService) RegisterConnector(c Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectors[c.Provider()] = c
}

// Configure records the per-provider sync settings.
func (s *SyncService) Configure(cfg models.ProviderConfig) error {
	if !cfg.Provider.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported calendar provider %q", cfg.Provider))
	}
	if cfg.Direction == "" {
		cfg.Direction = models.SyncExport
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[cfg.Provider] = cfg
	return nil
}

// Providers returns the configured providers.
func (s *SyncService) Providers() []models.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProviderConfig, 0, len(s.providers))
	for _, cfg := range s.providers {
		out = append(out, cfg)
	}
	return out
}

// RequestSync enqueues a sync pass for one provider. The call returns as
// soon as the job is accepted; results surface through events and reports.
// A pass already in flight for the provider makes this a no-op.
func (s *SyncService) RequestSync(provider models.CalendarProvider) error {
	s.mu.RLock()
	cfg, ok := s.providers[provider]
	s.mu.RUnlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("calendar provider %q is not configured", provider))
	}
	if !cfg.Enabled {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("calendar provider %q is disabled", provider))
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      fmt.Sprintf("sync-%s-%d", provider, time.Now().UnixNano()),
		Type:    "sync_pass",
		Key:     string(provider),
		Payload: provider,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Sugar().Debugw("sync pass already in flight", "provider", provider)
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, "could not schedule sync pass")
	}
	return nil
}

func (s *SyncService) handleJob(ctx context.Context, job jobs.Job) error {
	provider, ok := job.Payload.(models.CalendarProvider)
	if !ok {
		s.logger.Sugar().Errorw("sync job carries no provider", "job_id", job.ID)
		return nil
	}
	_, err := s.RunPass(ctx, provider)
	return err
}

// RunPass synchronously pushes every pending or failed appointment to one
// provider. Exposed for callers that want a blocking sync, such as a CLI
// flag or a test; API traffic goes through RequestSync instead.
func (s *SyncService) RunPass(ctx context.Context, provider models.CalendarProvider) (*models.SyncReport, error) {
	s.mu.RLock()
	cfg, configured := s.providers[provider]
	connector := s.connectors[provider]
	s.mu.RUnlock()
	if !configured {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("calendar provider %q is not configured", provider))
	}
	if connector == nil {
		connector = NoopConnector{Kind: provider}
	}

	started := time.Now().UTC()
	report := models.SyncReport{Provider: provider, StartedAt: started}

	pending, err := s.repo.ListBySyncStatus(ctx, models.SyncStatusPending, models.SyncStatusFailed)
	if err != nil {
		s.recordFailure(provider, report, err)
		return nil, appErrors.Wrap(err, appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, "could not list unsynced appointments")
	}

	for _, appt := range pending {
		if err := ctx.Err(); err != nil {
			s.recordFailure(provider, report, err)
			return nil, err
		}
		pushCtx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
		pushErr := connector.PushAppointment(pushCtx, cfg, appt)
		cancel()

		if pushErr != nil {
			report.Failed++
			s.markFailed(ctx, appt, provider, pushErr)
			continue
		}
		report.Synced++
		s.markSynced(ctx, appt)
	}

	report.Duration = time.Since(started)
	report.Conflicts = s.unresolvedConflicts(provider)

	now := time.Now().UTC()
	s.mu.Lock()
	cfg.LastSync = &now
	cfg.LastError = ""
	s.providers[provider] = cfg
	s.lastReport[provider] = report
	s.mu.Unlock()

	outcome := "success"
	if report.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.RecordSyncPass(string(provider), outcome)
	s.publish(events.CalendarSyncCompleted, report)
	s.logger.Sugar().Infow("sync pass finished",
		"provider", provider, "synced", report.Synced, "failed", report.Failed, "duration", report.Duration)
	return &report, nil
}

// markSynced stamps LastSynced without bumping the version; syncing does not
// change the appointment itself.
func (s *SyncService) markSynced(ctx context.Context, appt *models.Appointment) {
	updated := appt.Clone()
	now := time.Now().UTC()
	updated.SyncStatus = models.SyncStatusSynced
	updated.LastSynced = &now
	if err := s.repo.Update(ctx, updated); err != nil {
		s.logger.Sugar().Warnw("could not record sync success", "appointment_id", appt.ID, "error", err)
	}
}

func (s *SyncService) markFailed(ctx context.Context, appt *models.Appointment, provider models.CalendarProvider, cause error) {
	updated := appt.Clone()
	updated.SyncStatus = models.SyncStatusFailed
	if err := s.repo.Update(ctx, updated); err != nil {
		s.logger.Sugar().Warnw("could not record sync failure", "appointment_id", appt.ID, "error", err)
	}
	s.logger.Sugar().Warnw("appointment push failed",
		"appointment_id", appt.ID, "provider", provider, "error", cause)
}

// RecordConflict stores a bidirectional disagreement for later resolution
// and flags the appointment so it surfaces in statistics.
func (s *SyncService) RecordConflict(ctx context.Context, appointmentID string, provider models.CalendarProvider, detail string) error {
	appt, err := s.repo.Get(ctx, appointmentID)
	if err == nil {
		updated := appt.Clone()
		updated.SyncStatus = models.SyncStatusConflict
		if uerr := s.repo.Update(ctx, updated); uerr != nil {
			s.logger.Sugar().Warnw("could not flag sync conflict", "appointment_id", appointmentID, "error", uerr)
		}
	}
	conflict := models.SyncConflict{
		AppointmentID: appointmentID,
		Provider:      provider,
		Detail:        detail,
		DetectedAt:    time.Now().UTC(),
	}
	s.mu.Lock()
	s.conflicts = append(s.conflicts, conflict)
	s.mu.Unlock()
	s.publish(events.CalendarSyncFailed, conflict)
	return nil
}

// ResolveConflict marks a stored conflict resolved and resets the
// appointment for the next pass.
func (s *SyncService) ResolveConflict(ctx context.Context, appointmentID string, provider models.CalendarProvider) error {
	s.mu.Lock()
	found := false
	for i := range s.conflicts {
		c := &s.conflicts[i]
		if c.AppointmentID == appointmentID && c.Provider == provider && !c.Resolved {
			c.Resolved = true
			found = true
		}
	}
	s.mu.Unlock()
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "no unresolved conflict for that appointment and provider")
	}

	appt, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "appointment not found")
	}
	updated := appt.Clone()
	updated.SyncStatus = models.SyncStatusPending
	return s.repo.Update(ctx, updated)
}

// Conflicts returns recorded conflicts, optionally only unresolved ones.
func (s *SyncService) Conflicts(unresolvedOnly bool) []models.SyncConflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SyncConflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if unresolvedOnly && c.Resolved {
			continue
		}
		out = append(out, c)
	}
	return out
}

// LastReport returns the most recent pass report for a provider.
func (s *SyncService) LastReport(provider models.CalendarProvider) (models.SyncReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.lastReport[provider]
	return report, ok
}

func (s *SyncService) unresolvedConflicts(provider models.CalendarProvider) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.conflicts {
		if c.Provider == provider && !c.Resolved {
			n++
		}
	}
	return n
}

func (s *SyncService) recordFailure(provider models.CalendarProvider, report models.SyncReport, cause error) {
	s.mu.Lock()
	cfg := s.providers[provider]
	cfg.LastError = cause.Error()
	s.providers[provider] = cfg
	s.mu.Unlock()
	s.metrics.RecordSyncPass(string(provider), "failure")
	s.publish(events.CalendarSyncFailed, report)
}

func (s *SyncService) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, Payload: payload})
}
