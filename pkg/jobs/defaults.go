package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/retention"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

const (
	JobHealthCheck       = "health_check"
	JobForcedHealthCheck = "health_check_forced"
	JobUsageAggregation  = "usage_aggregation"
	JobRetentionCleanup  = "retention_cleanup"
)

// HealthChecker runs batch health checks.
type HealthChecker interface {
	CheckDue(ctx context.Context, opts health.CheckOptions) (*health.BatchResult, error)
}

// UsageAggregator rebuilds daily rollups.
type UsageAggregator interface {
	AggregateAll(ctx context.Context, date string) (*usage.BatchResult, error)
	Yesterday(now time.Time) string
}

// RetentionCleaner purges old data.
type RetentionCleaner interface {
	Run(ctx context.Context, opts retention.Options) (*retention.Report, error)
}

// DefaultJobs returns the enabled periodic jobs.
func DefaultJobs(cfg *config.JobsConfig, h HealthChecker, u UsageAggregator, r RetentionCleaner) []Job {
	var jobs []Job

	add := func(name string, jc *config.JobConfig, run func(ctx context.Context) error) {
		if jc.IsEnabled() {
			job := NewJob(name, jc, run)

			// Both health jobs write the same client rows.
			if name == JobForcedHealthCheck {
				job.Lock = JobHealthCheck
			}

			jobs = append(jobs, job)
		}
	}

	add(JobHealthCheck, &cfg.HealthCheck, func(ctx context.Context) error {
		_, err := h.CheckDue(ctx, health.CheckOptions{})
		return err
	})

	add(JobForcedHealthCheck, &cfg.ForcedHealthCheck, func(ctx context.Context) error {
		_, err := h.CheckDue(ctx, health.CheckOptions{Force: true})
		return err
	})

	add(JobUsageAggregation, &cfg.UsageAggregation, func(ctx context.Context) error {
		res, err := u.AggregateAll(ctx, u.Yesterday(time.Now()))
		if err != nil {
			return err
		}

		// Retry the whole day; rollups are upserts.
		if len(res.Failed) > 0 {
			return fmt.Errorf("usage aggregation failed for %d clients", len(res.Failed))
		}

		return nil
	})

	add(JobRetentionCleanup, &cfg.RetentionCleanup, func(ctx context.Context) error {
		report, err := r.Run(ctx, retention.Options{})
		if err != nil {
			return Permanent(err)
		}

		return report.Err()
	})

	return jobs
}
