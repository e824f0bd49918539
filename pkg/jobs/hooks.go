package jobs

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// FailedHook is called once when a job run fails after all attempts.
type FailedHook func(ctx context.Context, job string, attempts int, err error)

// LogHook logs failed runs.
func LogHook(logger *slog.Logger) FailedHook {
	return func(_ context.Context, job string, attempts int, err error) {
		logger.Error("job failed", "job", job, "attempts", attempts, "err", err)
	}
}

// SentryHook reports failed runs to Sentry. Sentry must be initialized.
func SentryHook() FailedHook {
	return func(ctx context.Context, job string, attempts int, err error) {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("job", job)
			scope.SetExtra("attempts", attempts)
			hub.CaptureException(err)
		})
	}
}
