package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling
// engine and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	appointmentOps *prometheus.CounterVec
	conflictsFound *prometheus.CounterVec
	routeRuns      *prometheus.CounterVec
	syncPasses     *prometheus.CounterVec
	slotSearches   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	appointmentOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_operations_total",
		Help: "Appointment mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	conflictsFound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_conflicts_total",
		Help: "Scheduling conflicts detected, by type",
	}, []string{"type"})

	routeRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_optimizations_total",
		Help: "Route optimization runs, by method",
	}, []string{"method"})

	syncPasses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_total",
		Help: "Calendar sync passes, by provider and outcome",
	}, []string{"provider", "outcome"})

	slotSearches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_searches_total",
		Help: "Availability slot searches executed",
	})

	registry.MustRegister(requestDuration, requestTotal, appointmentOps,
		conflictsFound, routeRuns, syncPasses, slotSearches)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		appointmentOps:  appointmentOps,
		conflictsFound:  conflictsFound,
		routeRuns:       routeRuns,
		syncPasses:      syncPasses,
		slotSearches:    slotSearches,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return promhttp.Handler()
	}
	return s.handler
}

// ObserveHTTPRequest records one request's latency and status.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordAppointmentOp counts one appointment mutation.
func (s *MetricsService) RecordAppointmentOp(operation, outcome string) {
	if s == nil {
		return
	}
	s.appointmentOps.WithLabelValues(operation, outcome).Inc()
}

// RecordConflicts counts detected conflicts by type.
func (s *MetricsService) RecordConflicts(conflictType string, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.conflictsFound.WithLabelValues(conflictType).Add(float64(n))
}

// RecordRouteOptimization counts one optimization run.
func (s *MetricsService) RecordRouteOptimization(method string) {
	if s == nil {
		return
	}
	s.routeRuns.WithLabelValues(method).Inc()
}

// RecordSyncPass counts one calendar sync pass.
func (s *MetricsService) RecordSyncPass(provider, outcome string) {
	if s == nil {
		return
	}
	s.syncPasses.WithLabelValues(provider, outcome).Inc()
}

// RecordSlotSearch counts one availability search.
func (s *MetricsService) RecordSlotSearch() {
	if s == nil {
		return
	}
	s.slotSearches.Inc()
}
