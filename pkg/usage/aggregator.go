package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/models"
)

// DateLayout is the rollup date format.
const DateLayout = "2006-01-02"

// BatchResult summarizes a fleet aggregation.
type BatchResult struct {
	Days       []string         `json:"days"`
	Aggregated int              `json:"aggregated"`
	Failed     map[string]error `json:"-"`
	Duration   time.Duration    `json:"duration"`
}

// Aggregator rebuilds daily usage rollups from the event log.
type Aggregator struct {
	store       Store
	alerts      AlertProcessor
	invalidator Invalidator
	logger      *slog.Logger
	loc         *time.Location
	factor      float64
}

// NewAggregator creates an Aggregator. alerts and invalidator may be nil.
func NewAggregator(
	cfg *config.UsageConfig, store Store, alerts AlertProcessor, invalidator Invalidator, logger *slog.Logger,
) (*Aggregator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		store:       store,
		alerts:      alerts,
		invalidator: invalidator,
		logger:      logger.With("component", "usage"),
		loc:         loc,
		factor:      cfg.PeakConcurrencyFactor,
	}, nil
}

// Day returns the bounds of date in the aggregator's timezone. end is the
// last nanosecond of the day.
func (a *Aggregator) Day(date string) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(DateLayout, date, a.loc)
	if err != nil {
		return start, end, fmt.Errorf("%w %q: %w", ErrInvalidDate, date, err)
	}

	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// Yesterday returns the date before now in the aggregator's timezone.
func (a *Aggregator) Yesterday(now time.Time) string {
	return now.In(a.loc).AddDate(0, 0, -1).Format(DateLayout)
}

// Aggregate recomputes and stores the rollup for one client and day.
// Running it again for the same key replaces the row.
func (a *Aggregator) Aggregate(ctx context.Context, clientID, date string) (*models.UsageRollup, error) {
	start, end, err := a.Day(date)
	if err != nil {
		return nil, err
	}

	events, err := a.store.ListEvents(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}

	users, err := a.store.CountUsers(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}

	rollup := summarize(clientID, date, events)
	rollup.UniqueUsers = users.Unique
	rollup.ActiveUsers = users.Active
	rollup.PeakConcurrentUsers = int64(math.Round(float64(users.Unique) * a.factor))

	if err := a.store.UpsertUsageRollup(ctx, rollup); err != nil {
		return nil, err
	}

	if a.invalidator != nil {
		a.invalidator.InvalidateUsage(ctx, clientID)
	}

	if a.alerts != nil {
		a.alerts.ProcessUsage(ctx, rollup)
	}

	return rollup, nil
}

// AggregateAll aggregates date for every client. Failing clients are
// logged and recorded, the rest still aggregate.
func (a *Aggregator) AggregateAll(ctx context.Context, date string) (*BatchResult, error) {
	return a.AggregateRange(ctx, date, date)
}

// AggregateRange aggregates every day in [from, to] for every client.
func (a *Aggregator) AggregateRange(ctx context.Context, from, to string) (*BatchResult, error) {
	days, err := a.days(from, to)
	if err != nil {
		return nil, err
	}

	ids, err := a.store.ListClientIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	start := time.Now()
	result := &BatchResult{Days: days, Failed: make(map[string]error)}

	for _, day := range days {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if _, err := a.Aggregate(ctx, id, day); err != nil {
				a.logger.Error("usage aggregation failed", "client_id", id, "date", day, "err", err)
				result.Failed[id+"/"+day] = err

				continue
			}

			result.Aggregated++
		}
	}

	result.Duration = time.Since(start)

	a.logger.Info("usage aggregation complete",
		"from", from, "to", to, "aggregated", result.Aggregated, "failed", len(result.Failed),
		"duration", result.Duration)

	return result, nil
}

func (a *Aggregator) days(from, to string) ([]string, error) {
	start, _, err := a.Day(from)
	if err != nil {
		return nil, err
	}

	last, _, err := a.Day(to)
	if err != nil {
		return nil, err
	}

	if last.Before(start) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange, from, to)
	}

	var days []string

	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}

	return days, nil
}

// summarize counts events into a rollup. User counts are filled by the caller.
func summarize(clientID, date string, events []*models.Event) *models.UsageRollup {
	r := &models.UsageRollup{ClientID: clientID, Date: date}

	var (
		responseTotal float64
		responseCount int
	)

	for _, e := range events {
		switch e.Type {
		case models.EventAuthorizationRequest:
			r.AuthorizationRequests++
		case models.EventAuthorizationGranted:
			r.SuccessfulAuthorizations++
		case models.EventAuthorizationDenied:
			r.FailedAuthorizations++
		case models.EventTokenIssued, models.EventTokenRefreshed:
			r.TokenRequests++
			r.SuccessfulTokens++
		case models.EventTokenFailed:
			r.TokenRequests++
			r.FailedTokens++
		case models.EventAPICall:
			r.APICalls++
		case models.EventHealthCheck:
			if ms, ok := number(e.Metadata["response_time_ms"]); ok {
				responseTotal += ms
				responseCount++
			}
		case models.EventError, models.EventSecurity, models.EventMaintenance,
			models.EventRecovery, models.EventConfigChange:
		}

		if e.Severity.AtLeast(models.SeverityHigh) {
			r.ErrorCount++
		}

		if r.LastActivityAt == nil || e.OccurredAt.After(*r.LastActivityAt) {
			at := e.OccurredAt
			r.LastActivityAt = &at
		}
	}

	if responseCount > 0 {
		r.AvgResponseTimeMs = responseTotal / float64(responseCount)
	}

	return r
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
