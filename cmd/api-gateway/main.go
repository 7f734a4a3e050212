package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fieldops-api/api/swagger"
	"github.com/noah-isme/fieldops-api/internal/handler"
	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	"github.com/noah-isme/fieldops-api/internal/service"
	"github.com/noah-isme/fieldops-api/pkg/cache"
	"github.com/noah-isme/fieldops-api/pkg/config"
	"github.com/noah-isme/fieldops-api/pkg/database"
	"github.com/noah-isme/fieldops-api/pkg/events"
	"github.com/noah-isme/fieldops-api/pkg/geo"
	"github.com/noah-isme/fieldops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/requestid"
)

// @title FieldOps API
// @version 0.1.0
// @description Appointment scheduling, availability search, route optimization and calendar sync
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Storage: Postgres when configured, in-memory otherwise. Both satisfy
	// the same interfaces so the services never know the difference.
	var store appointmentStore
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
		}
		defer db.Close()
		store = repository.NewAppointmentRepository(db)
		logr.Sugar().Infow("using postgres storage", "host", cfg.Database.Host, "db", cfg.Database.Name)
	} else {
		store = repository.NewMemoryAppointmentStore()
		logr.Sugar().Infow("using in-memory storage")
	}

	var cacheRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	bus := events.NewBus(logr)
	metrics := service.NewMetricsService()

	conflictSvc := service.NewConflictService(store, logr)
	availabilitySvc := service.NewAvailabilityService(conflictSvc, cacheRepo, metrics, service.AvailabilityConfig{
		DayStart: cfg.Scheduling.BusinessDayStart,
		DayEnd:   cfg.Scheduling.BusinessDayEnd,
		SlotStep: cfg.Scheduling.SlotStep,
		CacheTTL: cfg.Scheduling.AvailabilityCacheTTL,
	}, logr)
	recurrenceSvc := service.NewRecurrenceService(service.RecurrenceConfig{
		Horizon:                 cfg.Scheduling.RecurrenceHorizon,
		MaxOccurrences:          cfg.Scheduling.RecurrenceMaxOccurrences,
		ExceptionsConsumeBudget: cfg.Scheduling.ExceptionsConsumeBudget,
	}, logr)
	appointmentSvc := service.NewAppointmentService(
		store, conflictSvc, recurrenceSvc, cacheRepo, bus, metrics,
		nil, cfg.Scheduling.StatisticsCacheTTL, logr,
	)
	routeSvc := service.NewRouteService(service.RouteConfig{
		DefaultVehicle:     geo.Vehicle(cfg.Routing.DefaultVehicle),
		AvoidHighways:      cfg.Routing.AvoidHighways,
		FuelKmPerLiter:     cfg.Routing.FuelKmPerLiter,
		DefaultStopMinutes: cfg.Routing.DefaultStopMinutes,
	}, metrics, logr)
	exportSvc := service.NewExportService(store, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var syncSvc *service.SyncService
	if cfg.Sync.Enabled {
		syncSvc = service.NewSyncService(store, bus, metrics, service.SyncServiceConfig{
			Workers:     cfg.Sync.Workers,
			MaxRetries:  cfg.Sync.MaxRetries,
			RetryDelay:  cfg.Sync.RetryDelay,
			SyncTimeout: cfg.Sync.SyncTimeout,
		}, logr)
		for _, p := range []models.CalendarProvider{
			models.ProviderGoogle, models.ProviderOutlook, models.ProviderApple, models.ProviderCalDAV,
		} {
			syncSvc.RegisterConnector(service.NoopConnector{Kind: p})
		}
		syncSvc.Start(rootCtx)
		defer syncSvc.Stop()
	}

	if cfg.Cleanup.Enabled {
		go runCleanup(rootCtx, appointmentSvc, cfg.Cleanup, logr)
	}

	appointmentHdl := handler.NewAppointmentHandler(appointmentSvc)
	availabilityHdl := handler.NewAvailabilityHandler(availabilitySvc)
	routeHdl := handler.NewRouteHandler(routeSvc)
	exportHdl := handler.NewExportHandler(exportSvc, routeSvc)
	metricsHdl := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHdl.Health)
	r.GET("/ready", metricsHdl.Health)
	r.GET("/metrics", metricsHdl.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/appointments", appointmentHdl.Create)
		api.GET("/appointments", appointmentHdl.Search)
		api.GET("/appointments/statistics", appointmentHdl.Statistics)
		api.POST("/appointments/conflicts", appointmentHdl.CheckConflicts)
		api.GET("/appointments/:id", appointmentHdl.Get)
		api.PATCH("/appointments/:id", appointmentHdl.Update)
		api.DELETE("/appointments/:id", appointmentHdl.Delete)
		api.PATCH("/appointments/:id/status", appointmentHdl.UpdateStatus)

		api.GET("/availability/slots", availabilityHdl.Slots)

		api.POST("/routes", routeHdl.Build)
		api.POST("/routes/optimize", routeHdl.Optimize)

		if syncSvc != nil {
			syncHdl := handler.NewSyncHandler(syncSvc)
			api.GET("/sync/providers", syncHdl.Providers)
			api.PUT("/sync/providers", syncHdl.Configure)
			api.GET("/sync/conflicts", syncHdl.Conflicts)
			api.POST("/sync/conflicts/resolve", syncHdl.Resolve)
			api.POST("/sync/:provider", syncHdl.Request)
			api.GET("/sync/:provider/report", syncHdl.Report)
		}

		if cfg.Exports.Enabled {
			api.GET("/exports/schedule", exportHdl.DaySchedule)
			api.POST("/exports/route-manifest", exportHdl.RouteManifest)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("forced shutdown", "error", err)
	}
}

// appointmentStore is the union of the repository interfaces the services
// declare, so main can treat both storage backends uniformly.
type appointmentStore interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, appt *models.Appointment) error
	CreateBatch(ctx context.Context, appts []*models.Appointment) error
	Update(ctx context.Context, appt *models.Appointment) error
	Delete(ctx context.Context, id string) error
	DeleteByParent(ctx context.Context, parentID string) (int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	ListActiveBetween(ctx context.Context, from, to time.Time, tenantID string) ([]*models.Appointment, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Appointment, error)
	ListBySyncStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, int, error)
}

// runCleanup periodically removes terminal appointments past the retention
// window.
func runCleanup(ctx context.Context, svc *service.AppointmentService, cfg config.CleanupConfig, logr *zap.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-cfg.Retention)
			removed, err := svc.Cleanup(ctx, cutoff)
			if err != nil {
				logr.Sugar().Warnw("cleanup pass failed", "error", err)
				continue
			}
			if removed > 0 {
				logr.Sugar().Infow("cleanup pass finished", "removed", removed, "cutoff", cutoff)
			}
		}
	}
}
