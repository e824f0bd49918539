package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfreeman451/clientradar/pkg/cache"
	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/dashboard"
	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/mfreeman451/clientradar/pkg/notifications"
	"github.com/mfreeman451/clientradar/pkg/perf"
)

type stubChecker struct {
	opts health.CheckOptions
	err  error
}

func (s *stubChecker) CheckClient(_ context.Context, id string, opts health.CheckOptions) (*health.Check, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}

	return &health.Check{
		Client:     &models.Client{ID: id, Status: models.StatusHealthy},
		StatusCode: http.StatusOK,
		Outcome:    health.OutcomeSuccess,
	}, nil
}

type stubReporter struct {
	sections []perf.Section
}

func (s *stubReporter) Report(_ context.Context, sections ...perf.Section) (*perf.Report, error) {
	s.sections = sections
	return &perf.Report{GeneratedAt: time.Now()}, nil
}

type fixture struct {
	server     *APIServer
	database   *db.DB
	dispatcher *notifications.Dispatcher
	checker    *stubChecker
	reporter   *stubReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	database, err := db.New(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	dash := dashboard.NewService(&config.CacheConfig{
		StatsTTL:    config.Duration(time.Minute),
		OverviewTTL: config.Duration(time.Minute),
	}, database, cache.NewMemory(), logger)

	dispatcher := notifications.NewDispatcher(database, logger, notifications.DatabaseChannel{})
	dispatcher.SetInvalidator(dash)

	f := &fixture{
		database:   database,
		dispatcher: dispatcher,
		checker:    &stubChecker{},
		reporter:   &stubReporter{},
	}
	f.server = NewAPIServer(dash, f.checker, dispatcher, f.reporter, logger)

	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	return rec
}

func (f *fixture) addClient(t *testing.T, id string, status models.HealthStatus) {
	t.Helper()

	c := &models.Client{ID: id, Name: id, IsActive: true}
	require.NoError(t, f.database.UpsertClient(t.Context(), c))

	c.Status = status
	require.NoError(t, f.database.UpdateClientHealth(t.Context(), c))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))

	return v
}

func TestClients(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "a", models.StatusHealthy)
	f.addClient(t, "b", models.StatusUnhealthy)

	rec := f.do(t, http.MethodGet, "/api/clients?status=unhealthy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	page := decode[models.ClientPage](t, rec)
	require.Len(t, page.Clients, 1)
	assert.Equal(t, "b", page.Clients[0].ID)

	rec = f.do(t, http.MethodGet, "/api/clients/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", decode[models.Client](t, rec).ID)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown client", http.MethodGet, "/api/clients/nope", "", http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/api/clients?status=sideways", "", http.StatusBadRequest},
		{"bad page", http.MethodGet, "/api/clients?page=-1", "", http.StatusBadRequest},
		{"bad maintenance", http.MethodGet, "/api/clients?maintenance=maybe", "", http.StatusBadRequest},
		{"bad usage date", http.MethodGet, "/api/clients/a/usage?from=2026-13-01&to=2026-01-01", "", http.StatusBadRequest},
		{"inverted usage range", http.MethodGet, "/api/clients/a/usage?from=2026-02-01&to=2026-01-01", "", http.StatusBadRequest},
		{"unknown section", http.MethodGet, "/api/performance?sections=disk", "", http.StatusBadRequest},
		{"unknown notification", http.MethodPost, "/api/notifications/42/acknowledge", `{"actor":"ops"}`, http.StatusNotFound},
		{"missing actor", http.MethodPost, "/api/notifications/42/acknowledge", `{}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/notifications/42/acknowledge", `{`, http.StatusBadRequest},
		{"bad since", http.MethodGet, "/api/notifications?since=yesterday", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestCheckClient(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/clients/a/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.checker.opts.Force)
	assert.False(t, f.checker.opts.IncludeMaintenance)

	rec = f.do(t, http.MethodPost, "/api/clients/a/check?force=false&include_maintenance=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.checker.opts.Force)
	assert.True(t, f.checker.opts.IncludeMaintenance)

	f.checker.err = health.ErrNotDue
	rec = f.do(t, http.MethodPost, "/api/clients/a/check?force=false", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUsage(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.database.UpsertUsageRollup(ctx, &models.UsageRollup{ClientID: "a", Date: "2026-03-01", APICalls: 3}))
	require.NoError(t, f.database.UpsertUsageRollup(ctx, &models.UsageRollup{ClientID: "a", Date: "2026-04-01", APICalls: 5}))

	rec := f.do(t, http.MethodGet, "/api/clients/a/usage?from=2026-03-01&to=2026-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rollups := decode[[]models.UsageRollup](t, rec)
	require.Len(t, rollups, 1)
	assert.Equal(t, int64(3), rollups[0].APICalls)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "a", models.StatusHealthy)
	f.addClient(t, "b", models.StatusError)

	rec := f.do(t, http.MethodGet, "/api/dashboard/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.DashboardStats](t, rec).Clients.Total)

	rec = f.do(t, http.MethodGet, "/api/dashboard/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)

	overview := decode[models.DashboardOverview](t, rec)
	require.Len(t, overview.UnhealthyClients, 1)
	assert.Equal(t, "b", overview.UnhealthyClients[0].ID)
}

func TestNotificationsAndAcknowledge(t *testing.T) {
	f := newFixture(t)

	n, err := f.dispatcher.Notify(t.Context(), &notifications.CreateRequest{
		ClientID: "a",
		Type:     models.NotificationAlert,
		Message:  "client a is failing",
		Channels: []string{"database"},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/notifications?unacknowledged=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]models.Notification](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/notifications/"+strconv.FormatInt(n.ID, 10)+"/acknowledge", `{"actor":"ops","note":"on it"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	acked := decode[models.Notification](t, rec)
	assert.Equal(t, "ops", acked.AcknowledgedBy)
	assert.Equal(t, "on it", acked.AckNote)
	assert.NotNil(t, acked.AcknowledgedAt)

	rec = f.do(t, http.MethodGet, "/api/notifications?unacknowledged=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Notification](t, rec))
}

func TestPerformanceSections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/performance?sections=queries,%20cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []perf.Section{perf.SectionQueries, perf.SectionCache}, f.reporter.sections)

	rec = f.do(t, http.MethodGet, "/api/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.reporter.sections)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPreflight(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/api/clients", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

type chanNotifier struct {
	updates    chan *models.Notification
	subscribed chan struct{}
	cancelled  chan struct{}
}

func (*chanNotifier) Acknowledge(context.Context, int64, string, string) (*models.Notification, error) {
	return nil, nil
}

func (c *chanNotifier) Subscribe() (<-chan *models.Notification, func()) {
	close(c.subscribed)
	return c.updates, func() { close(c.cancelled) }
}

func TestStreamNotifications(t *testing.T) {
	notifier := &chanNotifier{
		updates:    make(chan *models.Notification, 1),
		subscribed: make(chan struct{}),
		cancelled:  make(chan struct{}),
	}

	s := NewAPIServer(nil, nil, notifier, nil, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	select {
	case <-notifier.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never subscribed")
	}

	notifier.updates <- &models.Notification{ID: 7, ClientID: "a", Type: models.NotificationAlert, Message: "down"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got models.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "down", got.Message)

	require.NoError(t, conn.Close())

	select {
	case <-notifier.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not cancelled after close")
	}
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	s := NewAPIServer(nil, nil, &chanNotifier{}, nil, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/stream"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
