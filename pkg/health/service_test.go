package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/mfreeman451/clientradar/pkg/alerts"
	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/eventlog"
	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/mfreeman451/clientradar/pkg/notifications"
)

type fixture struct {
	db      *db.DB
	service *Service
	prober  *MockProber
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) InvalidateClient(context.Context, string) {
	c.calls.Add(1)
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	database, err := db.New(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	dispatcher := notifications.NewDispatcher(database, logger, notifications.DatabaseChannel{})
	engine := alerts.NewEngine(database, dispatcher, logger)
	prober := NewMockProber(gomock.NewController(t))

	cfg := &config.HealthConfig{Concurrency: 4}

	return &fixture{
		db:      database,
		prober:  prober,
		service: NewService(cfg, database, prober, eventlog.New(database, logger), engine, logger, opts...),
	}
}

func (f *fixture) seedClient(t *testing.T, id string) {
	t.Helper()

	require.NoError(t, f.db.UpsertClient(t.Context(), &models.Client{
		ID:                 id,
		Name:               "client " + id,
		HealthCheckURL:     "https://" + id + ".example.com/health",
		HealthCheckSeconds: 300,
		HealthCheckEnabled: true,
		IsActive:           true,
	}))
}

func serverError() Result {
	return Result{StatusCode: http.StatusInternalServerError, ResponseTime: 20 * time.Millisecond,
		Outcome: OutcomeHTTPFailure, Err: ErrHTTPStatus}
}

func TestFailingClientAlertsOncePerCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.seedClient(t, "c1")
	require.NoError(t, f.db.InsertAlertRule(ctx, &models.AlertRule{
		Name:             "client down",
		TriggerType:      models.TriggerHealthCheckFailed,
		Conditions:       models.ConditionList{{Field: "consecutive_failures", Operator: ">=", Threshold: 3}},
		NotificationType: models.NotificationCritical,
		Channels:         models.StringList{"database"},
		CooldownMinutes:  30,
		IsActive:         true,
	}))

	f.prober.EXPECT().Probe(gomock.Any(), "https://c1.example.com/health").Return(serverError()).Times(4)

	// The first probe of a never checked client is due without forcing.
	check, err := f.service.CheckClient(ctx, "c1", CheckOptions{})
	require.NoError(t, err)
	assert.Empty(t, check.Notifications)

	_, err = f.service.CheckClient(ctx, "c1", CheckOptions{})
	require.ErrorIs(t, err, ErrNotDue)

	check, err = f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
	require.NoError(t, err)
	assert.Empty(t, check.Notifications)

	check, err = f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, check.Notifications, 1)
	assert.Equal(t, models.NotificationSent, check.Notifications[0].Status)

	c, err := f.db.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnhealthy, c.Status)
	assert.Equal(t, uint(3), c.ConsecutiveFailures)

	check, err = f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
	require.NoError(t, err)
	assert.Empty(t, check.Notifications)

	feed, err := f.db.ListNotifications(ctx, &models.NotificationFilter{ClientID: "c1"})
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	events, err := f.db.ListEvents(ctx, "c1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 4)

	for _, e := range events {
		assert.Equal(t, models.EventHealthCheck, e.Type)
		assert.Equal(t, models.SeverityMedium, e.Severity)
		assert.InDelta(t, 20.0, e.Metadata["response_time_ms"], 0.001)
	}
}

func TestRecoveryDoesNotAlert(t *testing.T) {
	inv := &countingInvalidator{}
	f := newFixture(t, WithInvalidator(inv))
	ctx := t.Context()

	f.seedClient(t, "c1")
	require.NoError(t, f.db.InsertAlertRule(ctx, &models.AlertRule{
		Name:        "any failure",
		TriggerType: models.TriggerHealthCheckFailed,
		Channels:    models.StringList{"database"},
		IsActive:    true,
	}))

	gomock.InOrder(
		f.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(serverError()),
		f.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(Result{StatusCode: 200, Outcome: OutcomeSuccess}),
	)

	check, err := f.service.CheckClient(ctx, "c1", CheckOptions{})
	require.NoError(t, err)
	assert.Len(t, check.Notifications, 1)

	check, err = f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, check.Transition.Recovered)
	assert.Empty(t, check.Notifications)
	assert.Equal(t, uint(0), check.Client.ConsecutiveFailures)
	assert.Equal(t, int32(2), inv.calls.Load())

	events, err := f.db.ListEvents(ctx, "c1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventRecovery, events[2].Type)
}

func TestCheckDueContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for _, id := range []string{"a", "b", "c"} {
		f.seedClient(t, id)
	}

	require.NoError(t, f.db.SetMaintenance(ctx, "c", true, "upgrade"))

	f.prober.EXPECT().Probe(gomock.Any(), "https://a.example.com/health").
		Return(Result{StatusCode: 200, Outcome: OutcomeSuccess})
	f.prober.EXPECT().Probe(gomock.Any(), "https://b.example.com/health").
		DoAndReturn(func(context.Context, string) Result {
			// Client b disappears between listing and the state write.
			_, err := f.db.ExecContext(ctx, `DELETE FROM clients WHERE id = 'b'`)
			require.NoError(t, err)

			return serverError()
		})

	res, err := f.service.CheckDue(ctx, CheckOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Failed, 1)
	require.ErrorIs(t, res.Failed["b"], db.ErrClientNotFound)

	a, err := f.db.GetClient(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusHealthy, a.Status)
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.seedClient(t, "c1")

	// Both checks load the client before either writes its outcome.
	var loaded sync.WaitGroup

	loaded.Add(2)

	f.prober.EXPECT().Probe(gomock.Any(), "https://c1.example.com/health").
		DoAndReturn(func(context.Context, string) Result {
			loaded.Done()
			loaded.Wait()

			return serverError()
		}).Times(2)

	var g errgroup.Group

	for range 2 {
		g.Go(func() error {
			_, err := f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
			return err
		})
	}

	require.NoError(t, g.Wait())

	c, err := f.db.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnhealthy, c.Status)
	assert.Equal(t, uint(2), c.ConsecutiveFailures)
}

func TestRecordProbeResetsOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.seedClient(t, "c1")

	gomock.InOrder(
		f.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(serverError()).Times(2),
		f.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(Result{StatusCode: 200, Outcome: OutcomeSuccess}),
	)

	for range 2 {
		_, err := f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
		require.NoError(t, err)
	}

	check, err := f.service.CheckClient(ctx, "c1", CheckOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, uint(0), check.Client.ConsecutiveFailures)
	assert.True(t, check.Transition.Recovered)
}
