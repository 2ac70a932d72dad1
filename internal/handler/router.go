// Package handler provides the HTTP API of the contract storage service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/service"
)

// BackupAPI is the backup surface served over HTTP.
type BackupAPI interface {
	CreateBackup(ctx context.Context, input service.CreateBackupInput) service.BackupResult
	CreateDailyBackup(ctx context.Context, organizationID string) service.BatchResult
	RestoreBackup(ctx context.Context, backupID uuid.UUID, organizationID string) service.RestoreResult
}

// VersionAPI is the versioning surface served over HTTP.
type VersionAPI interface {
	CreateVersion(ctx context.Context, documentID, organizationID string) service.BackupResult
	RestoreVersion(ctx context.Context, backupID uuid.UUID, organizationID string) service.RestoreResult
	ListVersions(ctx context.Context, documentID, organizationID string, limit int) ([]*domain.Backup, error)
}

// MigrationAPI is the migration surface served over HTTP.
type MigrationAPI interface {
	MigrateDocument(ctx context.Context, input service.MigrateInput) service.MigrationResult
	MigrateAllDocuments(ctx context.Context, input service.MigrateAllInput) service.BatchResult
	ListMigrations(ctx context.Context, organizationID string, limit int) ([]*domain.Migration, error)
}

// UsageAPI is the usage surface served over HTTP.
type UsageAPI interface {
	UpdateUsage(ctx context.Context, organizationID string) (*domain.UsageRecord, error)
	GetUsage(ctx context.Context, organizationID string) (*service.UsageSummary, error)
	GetUsageHistory(ctx context.Context, organizationID string, limit int) ([]*service.UsageSummary, error)
	UpdateAllOrganizations(ctx context.Context) service.BatchResult
}

// BillingAPI is the billing surface served over HTTP.
type BillingAPI interface {
	CalculateBilling(ctx context.Context, organizationID string, start, end time.Time) (*domain.BillingRecord, error)
	CalculateAllBillings(ctx context.Context) service.BatchResult
	ListBillings(ctx context.Context, organizationID string, limit int) ([]*domain.BillingRecord, error)
}

// HealthChecker reports whether the record store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router handles HTTP routing for the contract storage API.
type Router struct {
	backups     BackupAPI
	versions    VersionAPI
	migrations  MigrationAPI
	usage       UsageAPI
	billing     BillingAPI
	health      HealthChecker
	metrics     http.Handler
	metricsPath string
	maxBodySize int64
	now         func() time.Time
	logger      zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Backups    BackupAPI
	Versions   VersionAPI
	Migrations MigrationAPI
	Usage      UsageAPI
	Billing    BillingAPI
	Health     HealthChecker

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	MaxBodySize int64
	Logger      zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	path := config.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Router{
		backups:     config.Backups,
		versions:    config.Versions,
		migrations:  config.Migrations,
		usage:       config.Usage,
		billing:     config.Billing,
		health:      config.Health,
		metrics:     config.Metrics,
		metricsPath: path,
		maxBodySize: config.MaxBodySize,
		now:         time.Now,
		logger:      config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(rt.logger))
	r.Use(middleware.Recoverer)
	r.Use(limitBody(rt.maxBodySize))

	r.Get("/health", rt.handleHealth)
	if rt.metrics != nil {
		r.Handle(rt.metricsPath, rt.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Route("/documents/{documentID}", func(r chi.Router) {
				r.Post("/backups", rt.handleCreateBackup)
				r.Post("/versions", rt.handleCreateVersion)
				r.Get("/versions", rt.handleListVersions)
				r.Post("/migrations", rt.handleMigrateDocument)
			})

			r.Post("/backups/daily", rt.handleDailyBackup)
			r.Post("/backups/{backupID}/restore", rt.handleRestoreBackup)
			r.Post("/versions/{backupID}/restore", rt.handleRestoreVersion)

			r.Post("/migrations", rt.handleMigrateAll)
			r.Get("/migrations", rt.handleListMigrations)

			r.Post("/usage", rt.handleUpdateUsage)
			r.Get("/usage", rt.handleGetUsage)
			r.Get("/usage/history", rt.handleUsageHistory)

			r.Post("/billing", rt.handleCalculateBilling)
			r.Get("/billing", rt.handleListBillings)
		})

		r.Post("/jobs/usage", rt.handleUsageJob)
		r.Post("/jobs/billing", rt.handleBillingJob)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.NewDomainError(domain.ErrSourceNotFound, "no route for "+r.URL.Path, ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{
			Failure:   service.FailureInvalidRequest,
			Error:     "method not allowed",
			RequestID: middleware.GetReqID(r.Context()),
		})
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := rt.health.Health(ctx); err != nil {
			rt.logger.Error().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func orgParam(r *http.Request) string {
	return chi.URLParam(r, "orgID")
}

func documentParam(r *http.Request) string {
	return chi.URLParam(r, "documentID")
}

func backupParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "backupID"))
	if err != nil {
		return uuid.Nil, invalid("backup id must be a UUID")
	}
	return id, nil
}
