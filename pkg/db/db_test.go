package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	db, err := New(t.Context(), ":memory:", opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedClient(t *testing.T, db *DB, id string) *models.Client {
	t.Helper()

	c := &models.Client{
		ID:                 id,
		Name:               "client " + id,
		HealthCheckURL:     "https://" + id + ".example.com/health",
		HealthCheckSeconds: 300,
		HealthCheckEnabled: true,
		IsActive:           true,
	}
	require.NoError(t, db.UpsertClient(t.Context(), c))

	return c
}

func TestClientRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	seedClient(t, db, "c1")

	c, err := db.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, c.Status)
	assert.Nil(t, c.LastCheckedAt)
	assert.Equal(t, 5*time.Minute, c.HealthCheckInterval())

	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Status = models.StatusUnhealthy
	c.ConsecutiveFailures = 2
	c.LastCheckedAt = &checked
	c.LastErrorMessage = "HTTP 500"
	require.NoError(t, db.UpdateClientHealth(ctx, c))

	got, err := db.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnhealthy, got.Status)
	assert.Equal(t, uint(2), got.ConsecutiveFailures)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, checked.Equal(*got.LastCheckedAt))

	// Re-registering keeps the health state.
	require.NoError(t, db.UpsertClient(ctx, &models.Client{ID: "c1", Name: "renamed", IsActive: true}))

	got, err = db.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, models.StatusUnhealthy, got.Status)

	_, err = db.GetClient(ctx, "missing")
	require.ErrorIs(t, err, ErrClientNotFound)
	require.ErrorIs(t, db.UpdateClientHealth(ctx, &models.Client{ID: "missing", Status: models.StatusHealthy}),
		ErrClientNotFound)
}

func TestListClientsFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		seedClient(t, db, fmt.Sprintf("c%d", i))
	}

	require.NoError(t, db.SetMaintenance(ctx, "c1", true, "upgrade"))

	c3, err := db.GetClient(ctx, "c3")
	require.NoError(t, err)

	c3.Status = models.StatusError
	require.NoError(t, db.UpdateClientHealth(ctx, c3))

	inMaintenance := true

	tests := []struct {
		name      string
		filter    models.ClientFilter
		wantTotal int
		wantLen   int
	}{
		{name: "all", filter: models.ClientFilter{}, wantTotal: 5, wantLen: 5},
		{name: "maintenance", filter: models.ClientFilter{Maintenance: &inMaintenance}, wantTotal: 1, wantLen: 1},
		{name: "status", filter: models.ClientFilter{Status: models.StatusError}, wantTotal: 1, wantLen: 1},
		{name: "second page", filter: models.ClientFilter{Page: 2, PerPage: 2}, wantTotal: 5, wantLen: 2},
		{name: "last page", filter: models.ClientFilter{Page: 3, PerPage: 2}, wantTotal: 5, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := db.ListClients(ctx, &tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Len(t, page.Clients, tt.wantLen)
		})
	}

	counts, err := db.CountClientsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Total)
	assert.Equal(t, 1, counts.Maintenance)
	assert.Equal(t, 1, counts.ByStatus[models.StatusError])
	assert.Equal(t, 4, counts.ByStatus[models.StatusUnknown])
}

func TestEventsAndUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{day.Add(-time.Minute), day.Add(time.Hour), day.Add(23 * time.Hour)} {
		require.NoError(t, db.AppendEvent(ctx, &models.Event{
			ClientID:   "c1",
			Type:       models.EventAPICall,
			Severity:   models.SeverityLow,
			Name:       fmt.Sprintf("call-%d", i),
			OccurredAt: at,
			Metadata:   models.Metadata{"path": "/userinfo"},
		}))
	}

	events, err := db.ListEvents(ctx, "c1", day, day.Add(24*time.Hour-time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "call-1", events[0].Name)
	assert.Equal(t, "/userinfo", events[0].Metadata["path"])

	tokens := []*models.Token{
		{ID: "t1", ClientID: "c1", UserID: "u1", Kind: models.TokenAccess, CreatedAt: day.Add(time.Hour), ExpiresAt: day.Add(2 * time.Hour)},
		{ID: "t2", ClientID: "c1", UserID: "u1", Kind: models.TokenRefresh, CreatedAt: day.Add(3 * time.Hour), ExpiresAt: day.Add(48 * time.Hour)},
		{ID: "t3", ClientID: "c1", UserID: "u2", Kind: models.TokenAccess, CreatedAt: day.Add(-12 * time.Hour), ExpiresAt: day.Add(time.Hour)},
		{ID: "t4", ClientID: "c1", UserID: "u3", Kind: models.TokenAccess, CreatedAt: day.Add(-48 * time.Hour), ExpiresAt: day.Add(-24 * time.Hour)},
	}

	for _, tok := range tokens {
		require.NoError(t, db.InsertToken(ctx, tok))
	}

	counts, err := db.CountUsers(ctx, "c1", day, day.Add(24*time.Hour-time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Unique)
	assert.Equal(t, int64(2), counts.Active)
}

func TestUsageRollupUpsertReplaces(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	rollup := &models.UsageRollup{ClientID: "c1", Date: "2026-03-01", APICalls: 10, UniqueUsers: 3}
	require.NoError(t, db.UpsertUsageRollup(ctx, rollup))

	rollup.APICalls = 7
	require.NoError(t, db.UpsertUsageRollup(ctx, rollup))

	got, err := db.GetUsageRollup(ctx, "c1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.APICalls)

	list, err := db.ListUsageRollups(ctx, "c1", "2026-02-01", "2026-03-31")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = db.GetUsageRollup(ctx, "c1", "2026-03-02")
	require.ErrorIs(t, err, ErrRollupNotFound)
}

func TestTriggerRuleCooldown(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	rule := &models.AlertRule{
		Name:            "down",
		TriggerType:     models.TriggerHealthCheckFailed,
		Channels:        models.StringList{"database"},
		CooldownMinutes: 15,
		IsActive:        true,
	}
	require.NoError(t, db.InsertAlertRule(ctx, rule))

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cooldown := rule.Cooldown()

	trigger := func(at time.Time) error {
		return db.TriggerRule(ctx, rule.ID, at, at.Add(-cooldown), &models.Notification{
			ClientID: "c1",
			RuleID:   &rule.ID,
			Type:     models.NotificationAlert,
			Message:  "down",
		})
	}

	require.NoError(t, trigger(t0))
	require.ErrorIs(t, trigger(t0.Add(time.Minute)), ErrRuleInCooldown)
	require.ErrorIs(t, trigger(t0.Add(cooldown-time.Second)), ErrRuleInCooldown)
	require.NoError(t, trigger(t0.Add(cooldown)))

	notifications, err := db.ListNotifications(ctx, &models.NotificationFilter{ClientID: "c1"})
	require.NoError(t, err)
	assert.Len(t, notifications, 2)

	got, err := db.GetAlertRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, t0.Add(cooldown).Equal(*got.LastTriggeredAt))
}

func TestTriggerRuleConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	rule := &models.AlertRule{Name: "race", TriggerType: models.TriggerHealthCheckFailed, CooldownMinutes: 60, IsActive: true}
	require.NoError(t, db.InsertAlertRule(ctx, rule))

	now := time.Now().UTC()

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := db.TriggerRule(ctx, rule.ID, now, now.Add(-time.Hour), &models.Notification{
				ClientID: "c1", RuleID: &rule.ID, Type: models.NotificationAlert, Message: "race",
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)

	notifications, err := db.ListNotifications(ctx, &models.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestTriggerInactiveRule(t *testing.T) {
	db := newTestDB(t)

	rule := &models.AlertRule{Name: "off", TriggerType: models.TriggerHealthCheckFailed, IsActive: false}
	require.NoError(t, db.InsertAlertRule(t.Context(), rule))

	now := time.Now()
	err := db.TriggerRule(t.Context(), rule.ID, now, now, &models.Notification{ClientID: "c1", Message: "x"})
	require.ErrorIs(t, err, ErrRuleInCooldown)
}

func TestNotificationLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	n := &models.Notification{
		ClientID: "c1",
		Type:     models.NotificationWarning,
		Message:  "slow",
		Channels: models.StringList{"webhook", "database"},
		Data:     models.Metadata{"response_time_ms": 1200},
	}
	require.NoError(t, db.InsertNotification(ctx, n))
	assert.Equal(t, models.NotificationPending, n.Status)

	sentAt := time.Now()
	require.NoError(t, db.CompleteNotification(ctx, n.ID, models.NotificationSent, []string{"database"}, sentAt))
	require.ErrorIs(t,
		db.CompleteNotification(ctx, n.ID, models.NotificationFailed, nil, sentAt), ErrNotificationCompleted)

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	acked, err := db.AcknowledgeNotification(ctx, n.ID, "alice", "looking", first)
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)

	again, err := db.AcknowledgeNotification(ctx, n.ID, "bob", "dup", first.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first.Equal(*again.AcknowledgedAt))
	assert.Equal(t, "alice", again.AcknowledgedBy)
	assert.Equal(t, models.NotificationSent, again.Status)
	assert.Equal(t, models.StringList{"database"}, again.ChannelsSent)

	_, err = db.AcknowledgeNotification(ctx, 999, "alice", "", first)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	unacked, err := db.ListNotifications(ctx, &models.NotificationFilter{Unacknowledged: true})
	require.NoError(t, err)
	assert.Empty(t, unacked)
}

func TestDeleteBatchTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	now := time.Now().UTC()

	for i := 0; i < 30; i++ {
		require.NoError(t, db.InsertToken(ctx, &models.Token{
			ID: fmt.Sprintf("expired-%d", i), ClientID: "c1", Kind: models.TokenAccess,
			CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour), Revoked: true,
		}))
	}

	// Expired but not revoked, and revoked but not expired, both stay.
	require.NoError(t, db.InsertToken(ctx, &models.Token{
		ID: "expired-live", ClientID: "c1", Kind: models.TokenAccess,
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, db.InsertToken(ctx, &models.Token{
		ID: "revoked-valid", ClientID: "c1", Kind: models.TokenRefresh,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour), Revoked: true,
	}))

	count, err := db.CountPurgeable(ctx, PurgeTokens, now)
	require.NoError(t, err)
	assert.Equal(t, int64(30), count)

	n, err := db.DeleteBatch(ctx, PurgeTokens, now, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)

	n, err = db.DeleteBatch(ctx, PurgeTokens, now, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	n, err = db.DeleteBatch(ctx, PurgeTokens, now, 20)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.DeleteBatch(ctx, PurgeTarget("sessions"), now, 20)
	require.ErrorIs(t, err, ErrUnknownPurgeTarget)
}

func TestDeleteBatchOrphans(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	now := time.Now().UTC()

	seedClient(t, db, "live")

	for _, id := range []string{"live", "gone"} {
		require.NoError(t, db.AppendEvent(ctx, &models.Event{
			ClientID: id, Type: models.EventAPICall, Severity: models.SeverityLow, OccurredAt: now,
		}))
		require.NoError(t, db.UpsertUsageRollup(ctx, &models.UsageRollup{ClientID: id, Date: "2026-03-01"}))
	}

	n, err := db.DeleteBatch(ctx, PurgeOrphanEvents, now, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.DeleteBatch(ctx, PurgeOrphanUsage, now, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetUsageRollup(ctx, "live", "2026-03-01")
	require.NoError(t, err)
}

func TestQueriesAreObserved(t *testing.T) {
	buf := metrics.NewQueryBuffer(16)
	db := newTestDB(t, WithQueryStore(buf))

	_, err := db.ListClientIDs(context.Background())
	require.NoError(t, err)

	samples := buf.Samples()
	require.NotEmpty(t, samples)
	assert.Equal(t, "list_client_ids", samples[0].Name)
}
