// Package jobs runs the periodic background work under a per-job lock,
// timeout and retry policy.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/metrics"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
	LockTTL  time.Duration
	Lock     string
	Run      func(ctx context.Context) error
}

// lockName is the lock the job runs under; Lock defaults to Name.
func (j Job) lockName() string {
	if j.Lock != "" {
		return j.Lock
	}

	return j.Name
}

// NewJob builds a Job from its configuration.
func NewJob(name string, cfg *config.JobConfig, run func(ctx context.Context) error) Job {
	return Job{
		Name:     name,
		Interval: cfg.Interval.Std(),
		Timeout:  cfg.Timeout.Std(),
		Attempts: cfg.Attempts,
		Backoff:  cfg.Backoff.Std(),
		LockTTL:  cfg.LockTTL.Std(),
		Run:      run,
	}
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Runner executes jobs.
type Runner struct {
	locker Locker
	hooks  []FailedHook
	logger *slog.Logger
}

func NewRunner(locker Locker, logger *slog.Logger, hooks ...FailedHook) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{locker: locker, hooks: hooks, logger: logger.With("component", "jobs")}
}

// Run executes job once. A run that cannot take the lock returns
// ErrJobLocked and does nothing. The job is retried with a constant
// backoff up to its attempt count, all within its timeout.
func (r *Runner) Run(ctx context.Context, job Job) error {
	ttl := job.LockTTL
	if ttl <= 0 {
		ttl = job.Timeout + time.Minute
	}

	lock, err := r.locker.Acquire(ctx, job.lockName(), ttl)
	if err != nil {
		if errors.Is(err, ErrJobLocked) {
			metrics.JobRuns.WithLabelValues(job.Name, "locked").Inc()
			r.logger.Info("job skipped, already running", "job", job.Name)
		}

		return err
	}

	defer func() {
		// The run context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := lock.Release(releaseCtx); err != nil {
			r.logger.Warn("failed to release job lock", "job", job.Name, "err", err)
		}
	}()

	runCtx := ctx

	if job.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	attempts := max(job.Attempts, 1)
	start := time.Now()
	tries := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(job.Backoff), uint64(attempts-1)), runCtx)

	err = backoff.Retry(func() error {
		tries++

		if err := r.safeRun(runCtx, job); err != nil {
			r.logger.Warn("job attempt failed", "job", job.Name, "attempt", tries, "of", attempts, "err", err)

			return err
		}

		return nil
	}, policy)

	metrics.JobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "failed").Inc()

		for _, hook := range r.hooks {
			hook(ctx, job.Name, tries, err)
		}

		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	metrics.JobRuns.WithLabelValues(job.Name, "success").Inc()
	r.logger.Info("job complete", "job", job.Name, "attempts", tries, "duration", time.Since(start))

	return nil
}

func (*Runner) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = backoff.Permanent(fmt.Errorf("job %s panicked: %v", job.Name, rec))
		}
	}()

	return job.Run(ctx)
}
