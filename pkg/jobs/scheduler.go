package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs each job on its own ticker.
type Scheduler struct {
	runner *Runner
	jobs   []Job
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(runner *Runner, logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{runner: runner, jobs: jobs, logger: logger.With("component", "scheduler")}
}

// Jobs returns the scheduled jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Start launches one loop per job. Jobs with a zero interval are not scheduled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn("job has no interval, not scheduling", "job", job.Name)

			continue
		}

		s.wg.Add(1)

		go s.loop(ctx, job)
	}
}

// Stop cancels every loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
}

// RunNow runs the named job immediately under the normal runner rules.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.runner.Run(ctx, job)
		}
	}

	return errUnknownJob
}

var errUnknownJob = errors.New("unknown job")

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info("job scheduled", "job", job.Name, "interval", job.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runner.Run(ctx, job); err != nil && !errors.Is(err, ErrJobLocked) &&
				!errors.Is(err, context.Canceled) {
				s.logger.Debug("scheduled run failed", "job", job.Name, "err", err)
			}
		}
	}
}
