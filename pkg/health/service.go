/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
)

// Check is the result of probing one client.
type Check struct {
	Client        *models.Client         `json:"client"`
	StatusCode    int                    `json:"status_code,omitempty"`
	ResponseTime  time.Duration          `json:"response_time"`
	Outcome       Outcome                `json:"outcome"`
	Transition    Transition             `json:"-"`
	Notifications []*models.Notification `json:"notifications,omitempty"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Checked       int              `json:"checked"`
	Skipped       int              `json:"skipped"`
	Unhealthy     int              `json:"unhealthy"`
	Notifications int              `json:"notifications"`
	Failed        map[string]error `json:"-"`
	Duration      time.Duration    `json:"duration"`

	mu sync.Mutex
}

func (b *BatchResult) record(id string, check *Check, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.Failed[id] = err

		return
	}

	b.Checked++
	b.Notifications += len(check.Notifications)

	if check.Client.Status.IsFailure() {
		b.Unhealthy++
	}
}

// Service probes clients and applies the outcome.
type Service struct {
	store       Store
	prober      Prober
	events      EventAppender
	alerts      AlertProcessor
	invalidator Invalidator
	logger      *slog.Logger
	now         Clock

	concurrency int
	delay       time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInvalidator sets the cache invalidation hook.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithClock overrides time.Now.
func WithClock(now Clock) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a health Service.
func NewService(
	cfg *config.HealthConfig,
	store Store,
	prober Prober,
	events EventAppender,
	alerts AlertProcessor,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:       store,
		prober:      prober,
		events:      events,
		alerts:      alerts,
		logger:      logger.With("component", "health"),
		now:         time.Now,
		concurrency: cfg.Concurrency,
		delay:       cfg.InterProbeDelay.Std(),
	}

	if s.concurrency < 1 {
		s.concurrency = 1
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CheckClient probes one client if it is due under opts.
func (s *Service) CheckClient(ctx context.Context, id string, opts CheckOptions) (*Check, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.HealthCheckURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoProbeURL, id)
	}

	if !NeedsCheck(c, s.now(), opts) {
		return nil, fmt.Errorf("%w: %s", ErrNotDue, id)
	}

	return s.check(ctx, c)
}

// CheckDue probes every due client. A failing client is recorded in
// BatchResult.Failed and does not stop the others.
func (s *Service) CheckDue(ctx context.Context, opts CheckOptions) (*BatchResult, error) {
	start := time.Now()

	clients, err := s.store.ListHealthCheckCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list health check candidates: %w", err)
	}

	result := &BatchResult{Failed: make(map[string]error)}

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}

	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group

	g.SetLimit(s.concurrency)

	now := s.now()

	for _, c := range clients {
		if !NeedsCheck(c, now, opts) {
			result.Skipped++

			continue
		}

		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				result.record(c.ID, nil, err)

				return nil
			}

			check, err := s.check(ctx, c)
			if err != nil {
				s.logger.Error("health check failed", "client_id", c.ID, "err", err)
			}

			result.record(c.ID, check, err)

			return nil
		})
	}

	_ = g.Wait()

	result.Duration = time.Since(start)

	s.logger.Info("health check batch complete",
		"checked", result.Checked,
		"skipped", result.Skipped,
		"unhealthy", result.Unhealthy,
		"failed", len(result.Failed),
		"notifications", result.Notifications,
		"duration", result.Duration)

	return result, nil
}

// check runs probe, state update, event and alert evaluation for c.
func (s *Service) check(ctx context.Context, c *models.Client) (*Check, error) {
	res := s.prober.Probe(ctx, c.HealthCheckURL)
	now := s.now()
	tr := Track(c, res, now)

	metrics.ProbesTotal.WithLabelValues(string(res.Outcome)).Inc()

	if tr.Changed() {
		metrics.HealthTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}

	// The stored counter wins over the one Track derived from a possibly stale read.
	if err := s.store.RecordProbe(ctx, c, !res.Success()); err != nil {
		return nil, fmt.Errorf("failed to update health of %s: %w", c.ID, err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateClient(ctx, c.ID)
	}

	s.appendEvent(ctx, probeEvent(c, res, now))

	check := &Check{
		Client:       c,
		StatusCode:   res.StatusCode,
		ResponseTime: res.ResponseTime,
		Outcome:      res.Outcome,
		Transition:   tr,
	}

	switch {
	case tr.Recovered:
		s.logger.Info("client recovered",
			"client_id", c.ID, "from", tr.From, "response_time", res.ResponseTime)
		s.appendEvent(ctx, &models.Event{
			ClientID:   c.ID,
			Type:       models.EventRecovery,
			Severity:   models.SeverityLow,
			Name:       "health_recovered",
			OccurredAt: now,
			Metadata:   models.Metadata{"previous_status": string(tr.From)},
		})
	case c.Status.IsFailure():
		if tr.Degraded {
			s.logger.Warn("client degraded",
				"client_id", c.ID, "status", c.Status, "err", res.Err)
		}

		if !c.MaintenanceMode && s.alerts != nil {
			check.Notifications = s.alerts.Process(ctx, models.TriggerHealthCheckFailed, c, failureFacts(c, res, tr))
		}
	}

	return check, nil
}

func (s *Service) appendEvent(ctx context.Context, e *models.Event) {
	if s.events == nil {
		return
	}

	if err := s.events.Append(ctx, e); err != nil {
		s.logger.Warn("failed to record event", "client_id", e.ClientID, "type", e.Type, "err", err)
	}
}

func probeEvent(c *models.Client, res Result, now time.Time) *models.Event {
	severity := models.SeverityLow

	switch res.Outcome {
	case OutcomeHTTPFailure:
		severity = models.SeverityMedium
	case OutcomeTransportFailure:
		severity = models.SeverityHigh
	case OutcomeSuccess:
	}

	meta := models.Metadata{
		"status":           string(c.Status),
		"success":          res.Success(),
		"response_time_ms": durationMillis(res.ResponseTime),
	}

	if res.StatusCode != 0 {
		meta["status_code"] = res.StatusCode
	}

	if res.Err != nil {
		meta["error"] = res.ErrorMessage()
	}

	return &models.Event{
		ClientID:   c.ID,
		Type:       models.EventHealthCheck,
		Severity:   severity,
		Name:       "health_check_" + string(res.Outcome),
		OccurredAt: now,
		Metadata:   meta,
	}
}

func failureFacts(c *models.Client, res Result, tr Transition) map[string]any {
	return map[string]any{
		"client_id":            c.ID,
		"status":               string(c.Status),
		"previous_status":      string(tr.From),
		"consecutive_failures": c.ConsecutiveFailures,
		"status_code":          res.StatusCode,
		"response_time_ms":     durationMillis(res.ResponseTime),
		"error_message":        c.LastErrorMessage,
		"transition":           tr.String(),
	}
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
