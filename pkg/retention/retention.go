// Package retention purges old rows tier by tier in bounded batches.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/metrics"
)

const (
	day                = 24 * time.Hour
	minUsageRetention  = 365 * day
	defaultBatchSize   = 1000
	usageRetentionMult = 4
)

var (
	ErrUnknownTarget = errors.New("unknown retention target")
	ErrInvalidDays   = errors.New("retention days must be positive")
)

// Tier names a retention category.
type Tier string

const (
	TierTokens         Tier = "tokens"
	TierEvents         Tier = "events"
	TierCriticalEvents Tier = "critical_events"
	TierUsage          Tier = "usage"
	TierOrphans        Tier = "orphans"
	TierNotifications  Tier = "notifications"
)

// AllTiers lists every tier in the order they run.
func AllTiers() []Tier {
	return []Tier{TierTokens, TierEvents, TierCriticalEvents, TierUsage, TierOrphans, TierNotifications}
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range AllTiers() {
		if string(t) == s {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Cutoff returns the time before which tier data is purged.
func (t Tier) Cutoff(now time.Time, retentionDays int) time.Time {
	r := time.Duration(retentionDays) * day

	switch t {
	case TierTokens, TierOrphans:
		return now
	case TierEvents:
		return now.Add(-r)
	case TierCriticalEvents, TierNotifications:
		return now.Add(-2 * r)
	case TierUsage:
		return now.Add(-max(usageRetentionMult*r, minUsageRetention))
	default:
		panic("retention: unhandled tier " + string(t))
	}
}

func (t Tier) targets() []db.PurgeTarget {
	switch t {
	case TierTokens:
		return []db.PurgeTarget{db.PurgeTokens}
	case TierEvents:
		return []db.PurgeTarget{db.PurgeEvents}
	case TierCriticalEvents:
		return []db.PurgeTarget{db.PurgeCriticalEvents}
	case TierUsage:
		return []db.PurgeTarget{db.PurgeUsage}
	case TierOrphans:
		return []db.PurgeTarget{db.PurgeOrphanEvents, db.PurgeOrphanUsage}
	case TierNotifications:
		return []db.PurgeTarget{db.PurgeAcknowledgedNotifications}
	default:
		panic("retention: unhandled tier " + string(t))
	}
}

// Store deletes or counts rows per purge predicate.
type Store interface {
	DeleteBatch(ctx context.Context, target db.PurgeTarget, cutoff time.Time, limit int) (int64, error)
	CountPurgeable(ctx context.Context, target db.PurgeTarget, cutoff time.Time) (int64, error)
}

// Options select what a run purges. Zero RetentionDays uses the configured value.
type Options struct {
	DryRun        bool
	RetentionDays int
	Targets       []Tier
}

// TierResult is the outcome of one tier.
type TierResult struct {
	Tier    Tier      `json:"tier"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
	Err     error     `json:"-"`
	Error   string    `json:"error,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	DryRun        bool          `json:"dry_run"`
	RetentionDays int           `json:"retention_days"`
	Tiers         []TierResult  `json:"tiers"`
	Duration      time.Duration `json:"duration"`
}

// Total returns the rows deleted (or matched, in a dry run) across tiers.
func (r *Report) Total() int64 {
	var total int64

	for _, t := range r.Tiers {
		total += t.Deleted
	}

	return total
}

// Failed returns the tiers that ended in an error.
func (r *Report) Failed() []TierResult {
	var failed []TierResult

	for _, t := range r.Tiers {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}

	return failed
}

// Err joins the tier errors.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Tiers))

	for _, t := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", t.Tier, t.Err))
	}

	return errors.Join(errs...)
}

// Cleaner runs retention tiers.
type Cleaner struct {
	store         Store
	retentionDays int
	batchSize     int
	logger        *slog.Logger
	now           func() time.Time
}

func NewCleaner(cfg *config.RetentionConfig, store Store, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &Cleaner{
		store:         store,
		retentionDays: cfg.RetentionDays,
		batchSize:     batch,
		logger:        logger.With("component", "retention"),
		now:           time.Now,
	}
}

// Run purges each selected tier. One tier's failure does not stop the
// others; failures are reported per tier.
func (c *Cleaner) Run(ctx context.Context, opts Options) (*Report, error) {
	days := opts.RetentionDays
	if days == 0 {
		days = c.retentionDays
	}

	if days <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}

	tiers := opts.Targets
	if len(tiers) == 0 {
		tiers = AllTiers()
	}

	start := time.Now()
	now := c.now()
	report := &Report{DryRun: opts.DryRun, RetentionDays: days}

	for _, tier := range tiers {
		res := TierResult{Tier: tier, Cutoff: tier.Cutoff(now, days)}

		for _, target := range tier.targets() {
			n, err := c.purge(ctx, target, res.Cutoff, opts.DryRun)
			res.Deleted += n

			if err != nil {
				res.Err = err
				res.Error = err.Error()

				break
			}
		}

		if res.Err != nil {
			c.logger.Error("retention tier failed",
				"tier", tier, "cutoff", res.Cutoff, "deleted", res.Deleted, "err", res.Err)
		} else {
			c.logger.Info("retention tier complete",
				"tier", tier, "cutoff", res.Cutoff, "deleted", res.Deleted, "dry_run", opts.DryRun)
		}

		if !opts.DryRun {
			metrics.RetentionDeleted.WithLabelValues(string(tier)).Add(float64(res.Deleted))
		}

		report.Tiers = append(report.Tiers, res)
	}

	report.Duration = time.Since(start)

	return report, nil
}

// purge deletes in batches until a batch comes back short.
func (c *Cleaner) purge(ctx context.Context, target db.PurgeTarget, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		return c.store.CountPurgeable(ctx, target, cutoff)
	}

	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := c.store.DeleteBatch(ctx, target, cutoff, c.batchSize)
		total += n

		if err != nil {
			return total, err
		}

		if n < int64(c.batchSize) {
			return total, nil
		}
	}
}
