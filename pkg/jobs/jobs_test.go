package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/retention"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

var errTransient = errors.New("database is locked")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	lock, err := l.Acquire(t.Context(), "cleanup", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(t.Context(), "cleanup", time.Minute)
	require.ErrorIs(t, err, ErrJobLocked)

	_, err = l.Acquire(t.Context(), "other", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(t.Context()))

	again, err := l.Acquire(t.Context(), "cleanup", time.Minute)
	require.NoError(t, err)

	// An expired lock can be taken over and the stale holder cannot release it.
	now = now.Add(2 * time.Minute)

	_, err = l.Acquire(t.Context(), "cleanup", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(t.Context()))

	_, err = l.Acquire(t.Context(), "cleanup", time.Minute)
	require.ErrorIs(t, err, ErrJobLocked)
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("CLIENTRADAR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CLIENTRADAR_TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLocker(rdb, "clientradar-test:")

	lock, err := l.Acquire(t.Context(), "cleanup", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(t.Context(), "cleanup", time.Minute)
	require.ErrorIs(t, err, ErrJobLocked)

	require.NoError(t, lock.Release(t.Context()))

	lock, err = l.Acquire(t.Context(), "cleanup", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Release(t.Context()))
}

func TestRunnerRetries(t *testing.T) {
	var calls atomic.Int32

	var hooked []string

	hook := func(_ context.Context, job string, attempts int, err error) {
		hooked = append(hooked, job)
		assert.Equal(t, 3, attempts)
		require.ErrorIs(t, err, errTransient)
	}

	r := NewRunner(NewMemoryLocker(), quietLogger(), hook)

	err := r.Run(t.Context(), Job{
		Name:     "flaky",
		Attempts: 3,
		Timeout:  time.Second,
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errTransient
			}

			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, hooked)

	calls.Store(0)

	err = r.Run(t.Context(), Job{
		Name:     "broken",
		Attempts: 3,
		Run: func(context.Context) error {
			calls.Add(1)
			return errTransient
		},
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"broken"}, hooked)
}

func TestRunnerPermanentAndPanic(t *testing.T) {
	r := NewRunner(NewMemoryLocker(), quietLogger())

	var calls atomic.Int32

	err := r.Run(t.Context(), Job{
		Name:     "permanent",
		Attempts: 5,
		Run: func(context.Context) error {
			calls.Add(1)
			return Permanent(errTransient)
		},
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(1), calls.Load())

	err = r.Run(t.Context(), Job{
		Name:     "panics",
		Attempts: 5,
		Run:      func(context.Context) error { panic("nil map") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(NewMemoryLocker(), quietLogger())

	err := r.Run(t.Context(), Job{
		Name:     "slow",
		Attempts: 1,
		Timeout:  20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunnerSkipsLockedJob(t *testing.T) {
	locker := NewMemoryLocker()
	r := NewRunner(locker, quietLogger())

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_ = r.Run(t.Context(), Job{Name: "cleanup", Attempts: 1, Run: func(context.Context) error {
			close(started)
			<-release

			return nil
		}})
	}()

	<-started

	var ran bool

	err := r.Run(t.Context(), Job{Name: "cleanup", Attempts: 1, Run: func(context.Context) error {
		ran = true
		return nil
	}})
	require.ErrorIs(t, err, ErrJobLocked)
	assert.False(t, ran)

	close(release)
	wg.Wait()
}

func TestSchedulerStartStop(t *testing.T) {
	var runs atomic.Int32

	done := make(chan struct{})

	s := NewScheduler(NewRunner(NewMemoryLocker(), quietLogger()), quietLogger(),
		Job{Name: "tick", Interval: 5 * time.Millisecond, Attempts: 1, Run: func(context.Context) error {
			if runs.Add(1) == 3 {
				close(done)
			}

			return nil
		}},
		Job{Name: "disabled", Run: func(context.Context) error {
			t.Error("unscheduled job ran")
			return nil
		}},
	)

	s.Start(t.Context())
	s.Start(t.Context())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	s.Stop()
	s.Stop()

	require.ErrorIs(t, s.RunNow(t.Context(), "missing"), errUnknownJob)
}

type fakeHealth struct{ opts []health.CheckOptions }

func (f *fakeHealth) CheckDue(_ context.Context, opts health.CheckOptions) (*health.BatchResult, error) {
	f.opts = append(f.opts, opts)
	return &health.BatchResult{}, nil
}

type fakeUsage struct{ failed int }

func (f *fakeUsage) AggregateAll(context.Context, string) (*usage.BatchResult, error) {
	res := &usage.BatchResult{Failed: map[string]error{}}
	for range f.failed {
		res.Failed[time.Now().String()] = errTransient
	}

	return res, nil
}

func (*fakeUsage) Yesterday(time.Time) string { return "2026-03-01" }

type fakeCleaner struct{}

func (fakeCleaner) Run(context.Context, retention.Options) (*retention.Report, error) {
	return &retention.Report{}, nil
}

func TestDefaultJobs(t *testing.T) {
	disabled := false
	cfg := &config.JobsConfig{
		HealthCheck:       config.JobConfig{Interval: config.Duration(5 * time.Minute), Attempts: 1},
		ForcedHealthCheck: config.JobConfig{Interval: config.Duration(24 * time.Hour), Attempts: 1},
		UsageAggregation:  config.JobConfig{Interval: config.Duration(24 * time.Hour), Attempts: 1},
		RetentionCleanup:  config.JobConfig{Enabled: &disabled},
	}

	h := &fakeHealth{}
	jobs := DefaultJobs(cfg, h, &fakeUsage{failed: 1}, fakeCleaner{})
	require.Len(t, jobs, 3)

	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
	}

	assert.Equal(t, []string{JobHealthCheck, JobForcedHealthCheck, JobUsageAggregation}, names)

	require.NoError(t, jobs[0].Run(t.Context()))
	require.NoError(t, jobs[1].Run(t.Context()))
	assert.Equal(t, []health.CheckOptions{{}, {Force: true}}, h.opts)

	require.Error(t, jobs[2].Run(t.Context()))
}

func TestHealthJobsShareLock(t *testing.T) {
	cfg := &config.JobsConfig{
		HealthCheck:       config.JobConfig{Interval: config.Duration(5 * time.Minute), Attempts: 1},
		ForcedHealthCheck: config.JobConfig{Interval: config.Duration(24 * time.Hour), Attempts: 1},
	}

	h := &fakeHealth{}
	jobs := DefaultJobs(cfg, h, &fakeUsage{}, fakeCleaner{})
	require.GreaterOrEqual(t, len(jobs), 2)
	assert.Equal(t, jobs[0].lockName(), jobs[1].lockName())

	locker := NewMemoryLocker()
	r := NewRunner(locker, quietLogger())

	lock, err := locker.Acquire(t.Context(), JobHealthCheck, time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, r.Run(t.Context(), jobs[1]), ErrJobLocked)
	assert.Empty(t, h.opts)

	require.NoError(t, lock.Release(t.Context()))
	require.NoError(t, r.Run(t.Context(), jobs[1]))
	assert.Equal(t, []health.CheckOptions{{Force: true}}, h.opts)
}
