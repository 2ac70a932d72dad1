package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
)

// Batch job names, used for logging, metrics and result labels.
const (
	JobDailyBackup = "daily_backup"
	JobMigrateAll  = "migrate_all"
	JobUsageAll    = "usage_all"
	JobBillingAll  = "billing_all"
)

// BatchConfig contains batch execution settings.
type BatchConfig struct {
	// Workers is the number of items processed concurrently. 1 runs sequentially.
	Workers int

	// LockTTL is how long a job lock lives without renewal. A running job
	// extends it every LockTTL/2.
	LockTTL time.Duration
}

// DefaultBatchConfig returns sensible defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Workers: 4,
		LockTTL: 30 * time.Minute,
	}
}

// BatchRunner runs per-item work over a list under a job lock.
// One item failing never stops the others.
type BatchRunner struct {
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  BatchConfig
}

// NewBatchRunner creates a new BatchRunner. A nil locker disables job locking.
func NewBatchRunner(locker lock.Locker, m *metrics.Metrics, logger zerolog.Logger, config BatchConfig) *BatchRunner {
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultBatchConfig().LockTTL
	}
	return &BatchRunner{
		locker:  locker,
		metrics: m,
		logger:  logger.With().Str("component", "batch").Logger(),
		config:  config,
	}
}

// itemFunc processes one item. A nil error counts as success.
type itemFunc func(ctx context.Context, id string) error

// listFunc builds the item list once the job lock is held.
type listFunc func(ctx context.Context) ([]string, error)

// run executes fn for every id from list. Errors keep the order of the list.
func (b *BatchRunner) run(ctx context.Context, job, lockKey string, list listFunc, fn itemFunc) BatchResult {
	start := time.Now()
	result := BatchResult{Job: job}
	logger := b.logger.With().Str("job", job).Logger()

	jobLock := lock.NewLock(b.locker, lockKey)
	acquired, err := jobLock.Acquire(ctx, b.config.LockTTL)
	if err != nil {
		logger.Error().Err(err).Str("lock", lockKey).Msg("Failed to acquire job lock")
	}
	if err != nil || !acquired {
		logger.Info().Str("lock", lockKey).Msg("Job lock held elsewhere, skipping run")
		result.Skipped = true
		result.Duration = time.Since(start)
		b.metrics.RecordBatch(job, 0, 0, true, result.Duration)
		return result
	}
	defer func() {
		if err := jobLock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error().Err(err).Str("lock", lockKey).Msg("Failed to release job lock")
		}
	}()
	defer b.keepAlive(ctx, jobLock, logger)()

	ids, err := list(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list batch items")
		result.Error = err.Error()
		result.Duration = time.Since(start)
		b.metrics.RecordBatch(job, 0, 0, false, result.Duration)
		return result
	}

	slots := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(b.config.Workers)
	for i, id := range ids {
		g.Go(func() error {
			slots[i] = fn(ctx, id)
			if slots[i] != nil {
				logger.Warn().Err(slots[i]).Str("id", id).Msg("Batch item failed")
			} else {
				logger.Debug().Str("id", id).Msg("Batch item succeeded")
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Total = len(ids)
	for i, err := range slots {
		if err == nil {
			result.Success++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, ItemError{
			ID:      ids[i],
			Failure: Classify(err),
			Message: err.Error(),
		})
	}
	result.Duration = time.Since(start)
	b.metrics.RecordBatch(job, result.Success, result.Failed, false, result.Duration)

	logger.Info().
		Int("total", result.Total).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Batch run finished")

	return result
}

// keepAlive extends l every half TTL until the returned stop func is called.
// stop waits for the renewal goroutine, so l may be released right after.
func (b *BatchRunner) keepAlive(ctx context.Context, l *lock.Lock, logger zerolog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(b.config.LockTTL/2, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := l.Extend(ctx, b.config.LockTTL); err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("Failed to extend job lock")
				}
				continue
			}
			if !l.IsHeld() {
				logger.Warn().Msg("Job lock expired before the run finished")
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
