package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/repository"
)

// Scheduler runs the periodic batch jobs inside the server process.
type Scheduler struct {
	organizations repository.OrganizationRepository
	backups       *BackupService
	usage         *UsageService
	billing       *BillingService
	logger        zerolog.Logger
	config        SchedulerConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// SchedulerConfig contains scheduler configuration.
// A non-positive interval disables that job.
type SchedulerConfig struct {
	DailyBackupInterval time.Duration
	UsageInterval       time.Duration
	BillingInterval     time.Duration
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DailyBackupInterval: 24 * time.Hour,
		UsageInterval:       6 * time.Hour,
		BillingInterval:     24 * time.Hour,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(
	organizations repository.OrganizationRepository,
	backups *BackupService,
	usage *UsageService,
	billing *BillingService,
	logger zerolog.Logger,
	config SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		organizations: organizations,
		backups:       backups,
		usage:         usage,
		billing:       billing,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		config:        config,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// SchedulerRun contains the results of one pass over every job.
type SchedulerRun struct {
	Backups []BatchResult `json:"backups"`
	Usage   *BatchResult  `json:"usage,omitempty"`
	Billing *BatchResult  `json:"billing,omitempty"`
}

// Start begins running jobs on their intervals.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("daily_backup_interval", s.config.DailyBackupInterval).
		Dur("usage_interval", s.config.UsageInterval).
		Dur("billing_interval", s.config.BillingInterval).
		Msg("Starting scheduler")

	go s.runLoop()
}

// Stop stops the scheduler and waits for the running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	s.logger.Info().Msg("Scheduler stopped")
}

// runLoop is the main scheduling loop.
func (s *Scheduler) runLoop() {
	defer close(s.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	backupC, stopBackup := ticker(s.config.DailyBackupInterval)
	defer stopBackup()
	usageC, stopUsage := ticker(s.config.UsageInterval)
	defer stopUsage()
	billingC, stopBilling := ticker(s.config.BillingInterval)
	defer stopBilling()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-backupC:
			s.runBackups(ctx)
		case <-usageC:
			s.runUsage(ctx)
		case <-billingC:
			s.runBilling(ctx)
		case <-s.stopChan:
			return
		}
	}
}

// ticker returns a tick channel, or nil when d disables the job.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// RunOnce executes every enabled job once.
// This can be called manually or by the scheduler.
func (s *Scheduler) RunOnce(ctx context.Context) SchedulerRun {
	var run SchedulerRun
	if s.config.DailyBackupInterval > 0 {
		run.Backups = s.runBackups(ctx)
	}
	if s.config.UsageInterval > 0 {
		r := s.runUsage(ctx)
		run.Usage = &r
	}
	if s.config.BillingInterval > 0 {
		r := s.runBilling(ctx)
		run.Billing = &r
	}
	return run
}

// runBackups runs the daily backup of every active organization in turn.
func (s *Scheduler) runBackups(ctx context.Context) []BatchResult {
	orgs, err := activeOrganizations(s.organizations)(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list organizations for backup")
		return nil
	}

	results := make([]BatchResult, 0, len(orgs))
	for _, org := range orgs {
		if ctx.Err() != nil {
			break
		}
		r := s.backups.CreateDailyBackup(ctx, org)
		s.logger.Debug().Str("organization_id", org).Msg(r.String())
		results = append(results, r)
	}
	return results
}

func (s *Scheduler) runUsage(ctx context.Context) BatchResult {
	r := s.usage.UpdateAllOrganizations(ctx)
	s.logger.Debug().Msg(r.String())
	return r
}

func (s *Scheduler) runBilling(ctx context.Context) BatchResult {
	r := s.billing.CalculateAllBillings(ctx)
	s.logger.Debug().Msg(r.String())
	return r
}
