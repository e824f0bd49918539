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

// Package core assembles the clientradar components from configuration.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/mfreeman451/clientradar/pkg/alerts"
	"github.com/mfreeman451/clientradar/pkg/api"
	"github.com/mfreeman451/clientradar/pkg/cache"
	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/dashboard"
	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/eventlog"
	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/jobs"
	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/notifications"
	"github.com/mfreeman451/clientradar/pkg/perf"
	"github.com/mfreeman451/clientradar/pkg/retention"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

const sentryFlushTimeout = 2 * time.Second

// Server owns every component and the resources behind them.
type Server struct {
	config *config.Config
	logger *slog.Logger

	db         *db.DB
	queries    *metrics.QueryBuffer
	events     *eventlog.Log
	dispatcher *notifications.Dispatcher
	engine     *alerts.Engine
	health     *health.Service
	usage      *usage.Aggregator
	cleaner    *retention.Cleaner
	cache      cache.Cache
	dashboard  *dashboard.Service
	perf       *perf.Monitor
	scheduler  *jobs.Scheduler
	api        *api.APIServer

	closers   []func() error
	closeOnce sync.Once
	sentry    bool
}

// NewServer builds the component graph. Close releases everything it opened.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{config: cfg, logger: logger}

	if err := s.build(ctx); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			logger.Warn("cleanup after failed start", "err", closeErr)
		}

		return nil, err
	}

	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	cfg := s.config

	s.queries = metrics.NewQueryBuffer(cfg.Performance.SampleSize)

	database, err := db.New(ctx, cfg.Database.Path, db.WithQueryStore(s.queries), db.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	s.db = database
	s.addCloser(database.Close)

	if s.cache, err = cache.New(&cfg.Cache); err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	s.addCloser(s.cache.Close)

	s.dashboard = dashboard.NewService(&cfg.Cache, database, s.cache, s.logger)
	s.events = eventlog.New(database, s.logger)

	channels, err := s.buildChannels()
	if err != nil {
		return err
	}

	s.dispatcher = notifications.NewDispatcher(database, s.logger, channels...)
	s.dispatcher.SetInvalidator(s.dashboard)

	s.engine = alerts.NewEngine(database, s.dispatcher, s.logger)
	s.engine.SetDefaultCooldown(cfg.Alerts.DefaultCooldownMinutes)

	s.health = health.NewService(&cfg.Health, database, health.NewHTTPProber(&cfg.Health, nil),
		s.events, s.engine, s.logger, health.WithInvalidator(s.dashboard))

	if s.usage, err = usage.NewAggregator(&cfg.Usage, database, s.engine, s.dashboard, s.logger); err != nil {
		return fmt.Errorf("failed to create usage aggregator: %w", err)
	}

	s.cleaner = retention.NewCleaner(&cfg.Retention, database, s.logger)
	s.perf = perf.NewMonitor(&cfg.Performance, s.queries, s.cache, dashboard.TrackedKeys(), s.logger)

	locker, err := s.buildLocker()
	if err != nil {
		return err
	}

	hooks := []jobs.FailedHook{jobs.LogHook(s.logger)}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}

		s.sentry = true
		hooks = append(hooks, jobs.SentryHook())
	}

	runner := jobs.NewRunner(locker, s.logger, hooks...)
	s.scheduler = jobs.NewScheduler(runner, s.logger, jobs.DefaultJobs(&cfg.Jobs, s.health, s.usage, s.cleaner)...)

	s.api = api.NewAPIServer(s.dashboard, s.health, s.dispatcher, s.perf, s.logger)

	return nil
}

func (s *Server) buildLocker() (jobs.Locker, error) {
	if s.config.Jobs.LockBackend != config.CacheBackendRedis {
		return jobs.NewMemoryLocker(), nil
	}

	if r, ok := s.cache.(*cache.Redis); ok {
		return jobs.NewRedisLocker(r.Client(), s.config.Cache.KeyPrefix), nil
	}

	r, err := cache.NewRedis(s.config.Cache.RedisURL, s.config.Cache.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to connect job lock backend: %w", err)
	}

	s.addCloser(r.Close)

	return jobs.NewRedisLocker(r.Client(), s.config.Cache.KeyPrefix), nil
}

func (s *Server) addCloser(f func() error) {
	s.closers = append(s.closers, f)
}

// Start runs the scheduler until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting scheduler", "jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start(ctx)

	<-ctx.Done()

	return nil
}

// Stop waits for running jobs and releases resources.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		s.scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}

	return s.Close()
}

// Close releases resources in reverse order of acquisition.
func (s *Server) Close() error {
	var errs []error

	s.closeOnce.Do(func() {
		if s.sentry {
			sentry.Flush(sentryFlushTimeout)
		}

		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

func (s *Server) DB() *db.DB {
	return s.db
}

func (s *Server) Health() *health.Service {
	return s.health
}

func (s *Server) Usage() *usage.Aggregator {
	return s.usage
}

func (s *Server) Cleaner() *retention.Cleaner {
	return s.cleaner
}

func (s *Server) Perf() *perf.Monitor {
	return s.perf
}

func (s *Server) Dashboard() *dashboard.Service {
	return s.dashboard
}

func (s *Server) Dispatcher() *notifications.Dispatcher {
	return s.dispatcher
}

func (s *Server) Scheduler() *jobs.Scheduler {
	return s.scheduler
}

func (s *Server) Handler() http.Handler {
	return s.api
}
