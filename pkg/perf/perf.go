// Package perf samples query timings, cache presence and process memory and
// turns breached thresholds into recommendations.
package perf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/mfreeman451/clientradar/pkg/cache"
	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
)

var ErrUnknownSection = errors.New("unknown report section")

// Section is one part of the report.
type Section string

const (
	SectionQueries Section = "queries"
	SectionCache   Section = "cache"
	SectionMemory  Section = "memory"
)

// ParseSection validates a section name.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionQueries, SectionCache, SectionMemory:
		return Section(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
}

// QueryReport summarizes recent store queries.
type QueryReport struct {
	Samples       int                  `json:"samples"`
	AverageMs     float64              `json:"average_ms"`
	SlowThreshold time.Duration        `json:"slow_threshold"`
	Slow          []models.QuerySample `json:"slow,omitempty"`
}

// CacheReport is the share of tracked keys currently cached.
type CacheReport struct {
	TrackedKeys int      `json:"tracked_keys"`
	Present     int      `json:"present"`
	Missing     []string `json:"missing,omitempty"`
	HitRatio    float64  `json:"hit_ratio"`
	Target      float64  `json:"target"`
}

// MemoryReport compares process RSS to the configured limit.
type MemoryReport struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	LimitBytes uint64  `json:"limit_bytes"`
	UsageRatio float64 `json:"usage_ratio"`
}

// Report is the performance report payload.
type Report struct {
	Queries         *QueryReport            `json:"queries,omitempty"`
	Cache           *CacheReport            `json:"cache,omitempty"`
	Memory          *MemoryReport           `json:"memory,omitempty"`
	Recommendations []models.Recommendation `json:"recommendations"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// MemoryReader returns the resident set size of the process.
type MemoryReader func(ctx context.Context) (uint64, error)

// ProcessRSS reads this process's RSS.
func ProcessRSS(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return 0, err
	}

	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return info.RSS, nil
}

// Monitor builds performance reports.
type Monitor struct {
	cfg     config.PerformanceConfig
	queries metrics.QueryStore
	cache   cache.Cache
	keys    []string
	memory  MemoryReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewMonitor creates a Monitor. keys are sampled for the cache section when
// the configuration names none.
func NewMonitor(
	cfg *config.PerformanceConfig, queries metrics.QueryStore, c cache.Cache, keys []string, logger *slog.Logger,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	if len(cfg.TrackedKeys) > 0 {
		keys = cfg.TrackedKeys
	}

	return &Monitor{
		cfg:     *cfg,
		queries: queries,
		cache:   c,
		keys:    keys,
		memory:  ProcessRSS,
		logger:  logger.With("component", "perf"),
		now:     time.Now,
	}
}

// Report builds the requested sections, all of them when none are given.
// A section that cannot be measured is left out and logged.
func (m *Monitor) Report(ctx context.Context, sections ...Section) (*Report, error) {
	if len(sections) == 0 {
		sections = []Section{SectionQueries, SectionCache, SectionMemory}
	}

	r := &Report{GeneratedAt: m.now().UTC(), Recommendations: []models.Recommendation{}}

	for _, s := range sections {
		switch s {
		case SectionQueries:
			r.Queries = m.queryReport()
			r.Recommendations = append(r.Recommendations, m.queryRecommendations(r.Queries)...)
		case SectionCache:
			cr, err := m.cacheReport(ctx)
			if err != nil {
				m.logger.Warn("cache section unavailable", "err", err)

				continue
			}

			r.Cache = cr
			r.Recommendations = append(r.Recommendations, m.cacheRecommendations(cr)...)
		case SectionMemory:
			mr, err := m.memoryReport(ctx)
			if err != nil {
				m.logger.Warn("memory section unavailable", "err", err)

				continue
			}

			r.Memory = mr
			r.Recommendations = append(r.Recommendations, m.memoryRecommendations(mr)...)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSection, s)
		}
	}

	return r, nil
}

func (m *Monitor) queryReport() *QueryReport {
	qr := &QueryReport{SlowThreshold: m.cfg.SlowQueryThreshold.Std()}

	if m.queries == nil {
		return qr
	}

	samples := m.queries.Samples()
	qr.Samples = len(samples)

	var total time.Duration

	for _, s := range samples {
		total += s.Duration

		if s.Duration > qr.SlowThreshold {
			qr.Slow = append(qr.Slow, s)
		}
	}

	if len(samples) > 0 {
		qr.AverageMs = float64(total) / float64(len(samples)) / float64(time.Millisecond)
	}

	return qr
}

func (m *Monitor) queryRecommendations(qr *QueryReport) []models.Recommendation {
	var recs []models.Recommendation

	if len(qr.Slow) > 0 {
		recs = append(recs, models.Recommendation{
			Type:     "slow_query",
			Priority: models.PriorityHigh,
			Title:    "Slow queries detected",
			Description: fmt.Sprintf("%d of the last %d queries took longer than %s (slowest: %s)",
				len(qr.Slow), qr.Samples, qr.SlowThreshold, slowest(qr.Slow).Name),
			Action: "Review indexes for the slow queries and check database lock contention",
		})
	}

	avgLimit := float64(m.cfg.AvgQueryThreshold.Std()) / float64(time.Millisecond)
	if qr.Samples > 0 && qr.AverageMs > avgLimit {
		recs = append(recs, models.Recommendation{
			Type:        "average_query_time",
			Priority:    models.PriorityMedium,
			Title:       "High average query time",
			Description: fmt.Sprintf("Average query time is %.1fms, above %.0fms", qr.AverageMs, avgLimit),
			Action:      "Reduce batch sizes or move heavy aggregation off peak hours",
		})
	}

	return recs
}

func slowest(samples []models.QuerySample) models.QuerySample {
	var worst models.QuerySample

	for _, s := range samples {
		if s.Duration > worst.Duration {
			worst = s
		}
	}

	return worst
}

func (m *Monitor) cacheReport(ctx context.Context) (*CacheReport, error) {
	cr := &CacheReport{TrackedKeys: len(m.keys), Target: m.cfg.HitRatioTarget}

	if m.cache == nil || len(m.keys) == 0 {
		return cr, nil
	}

	for _, k := range m.keys {
		ok, err := m.cache.Has(ctx, k)
		if err != nil {
			return nil, err
		}

		if ok {
			cr.Present++
		} else {
			cr.Missing = append(cr.Missing, k)
		}
	}

	cr.HitRatio = float64(cr.Present) / float64(cr.TrackedKeys)

	return cr, nil
}

func (*Monitor) cacheRecommendations(cr *CacheReport) []models.Recommendation {
	if cr.TrackedKeys == 0 || cr.HitRatio >= cr.Target {
		return nil
	}

	return []models.Recommendation{{
		Type:     "cache_hit_ratio",
		Priority: models.PriorityMedium,
		Title:    "Low cache hit ratio",
		Description: fmt.Sprintf("%.0f%% of tracked dashboard keys are cached, target is %.0f%%",
			cr.HitRatio*100, cr.Target*100),
		Action: "Increase cache TTLs or warm the dashboard views after invalidation",
	}}
}

func (m *Monitor) memoryReport(ctx context.Context) (*MemoryReport, error) {
	rss, err := m.memory(ctx)
	if err != nil {
		return nil, err
	}

	mr := &MemoryReport{RSSBytes: rss, LimitBytes: m.cfg.MemoryLimitBytes}
	if mr.LimitBytes > 0 {
		mr.UsageRatio = float64(rss) / float64(mr.LimitBytes)
	}

	return mr, nil
}

func (m *Monitor) memoryRecommendations(mr *MemoryReport) []models.Recommendation {
	if mr.LimitBytes == 0 || mr.UsageRatio <= m.cfg.MemoryWarnRatio {
		return nil
	}

	return []models.Recommendation{{
		Type:     "memory_usage",
		Priority: models.PriorityHigh,
		Title:    "High memory usage",
		Description: fmt.Sprintf("Resident memory is %d MiB, %.0f%% of the %d MiB limit",
			mr.RSSBytes>>20, mr.UsageRatio*100, mr.LimitBytes>>20),
		Action: "Lower the health check concurrency or the query sample size, or raise the memory limit",
	}}
}
