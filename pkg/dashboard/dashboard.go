// Package dashboard serves the cached read views of the fleet.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfreeman451/clientradar/pkg/cache"
	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const (
	StatsKey    = "dashboard:stats"
	OverviewKey = "dashboard:overview"

	viewStats         cache.View = "stats"
	viewOverview      cache.View = "overview"
	viewClients       cache.View = "clients"
	viewNotifications cache.View = "notifications"

	overviewLimit      = 50
	recentNotification = 20
	notificationWindow = 24 * time.Hour
)

// TrackedKeys are the keys whose presence the performance monitor samples.
func TrackedKeys() []string {
	return []string{StatsKey, OverviewKey}
}

// Store is the subset of the database the dashboard reads.
type Store interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context, filter *models.ClientFilter) (*models.ClientPage, error)
	CountClientsByStatus(ctx context.Context) (*models.StatusCounts, error)
	CountNotificationsByType(ctx context.Context, since time.Time) (map[models.NotificationType]int, error)
	DailyTotals(ctx context.Context, since time.Time) (*models.DailyTotals, error)
	ListUsageRollups(ctx context.Context, clientID, from, to string) ([]*models.UsageRollup, error)
	ListNotifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error)
}

// Service answers dashboard queries from the cache, falling back to the store.
type Service struct {
	store       Store
	cache       cache.Cache
	registry    *cache.Registry
	logger      *slog.Logger
	now         func() time.Time
	statsTTL    time.Duration
	overviewTTL time.Duration
}

func NewService(cfg *config.CacheConfig, store Store, c cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:       store,
		cache:       c,
		registry:    cache.RegistryFor(c),
		logger:      logger.With("component", "dashboard"),
		now:         time.Now,
		statsTTL:    cfg.StatsTTL.Std(),
		overviewTTL: cfg.OverviewTTL.Std(),
	}
}

// Cache returns the backing cache.
func (s *Service) Cache() cache.Cache {
	return s.cache
}

// cached loads key into dst, or fills it with load and stores it. A value
// loaded while its view was invalidated is dropped again after the write.
func cached[T any](ctx context.Context, s *Service, view cache.View, key string, ttl time.Duration,
	load func(context.Context) (T, error)) (T, error) {
	var v T

	ok, err := cache.GetJSON(ctx, s.cache, key, &v)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "err", err)
	}

	if ok {
		return v, nil
	}

	gen, genErr := s.registry.Generation(ctx, view)

	v, err = load(ctx)
	if err != nil {
		return v, err
	}

	if genErr != nil {
		s.logger.Warn("cache generation read failed", "view", view, "err", genErr)

		return v, nil
	}

	// Registered before the write so a concurrent invalidation can see the key.
	if err := s.registry.Register(ctx, view, key); err != nil {
		s.logger.Warn("cache register failed", "key", key, "err", err)

		return v, nil
	}

	if err := cache.SetJSON(ctx, s.cache, key, v, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)

		return v, nil
	}

	if now, err := s.registry.Generation(ctx, view); err != nil || now != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("stale cache entry not dropped", "key", key, "err", err)
		}
	}

	return v, nil
}

// Stats returns status counts, notification counts and today's totals.
func (s *Service) Stats(ctx context.Context) (*models.DashboardStats, error) {
	return cached(ctx, s, viewStats, StatsKey, s.statsTTL, s.loadStats)
}

func (s *Service) loadStats(ctx context.Context) (*models.DashboardStats, error) {
	now := s.now().UTC()

	counts, err := s.store.CountClientsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	byType, err := s.store.CountNotificationsByType(ctx, now.Add(-notificationWindow))
	if err != nil {
		return nil, err
	}

	today, err := s.store.DailyTotals(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &models.DashboardStats{
		Clients:       *counts,
		Notifications: byType,
		Today:         *today,
		GeneratedAt:   now,
	}, nil
}

// Overview returns unhealthy clients and the latest notifications.
func (s *Service) Overview(ctx context.Context) (*models.DashboardOverview, error) {
	return cached(ctx, s, viewOverview, OverviewKey, s.overviewTTL, s.loadOverview)
}

func (s *Service) loadOverview(ctx context.Context) (*models.DashboardOverview, error) {
	overview := &models.DashboardOverview{GeneratedAt: s.now().UTC()}

	for _, status := range []models.HealthStatus{models.StatusUnhealthy, models.StatusError} {
		page, err := s.store.ListClients(ctx, &models.ClientFilter{
			Status: status, ActiveOnly: true, PerPage: overviewLimit,
		})
		if err != nil {
			return nil, err
		}

		overview.UnhealthyClients = append(overview.UnhealthyClients, page.Clients...)
	}

	recent, err := s.store.ListNotifications(ctx, &models.NotificationFilter{Limit: recentNotification})
	if err != nil {
		return nil, err
	}

	overview.RecentNotifications = recent

	return overview, nil
}

// Clients returns one page of the client list.
func (s *Service) Clients(ctx context.Context, filter *models.ClientFilter) (*models.ClientPage, error) {
	maintenance := "any"
	if filter.Maintenance != nil {
		maintenance = fmt.Sprint(*filter.Maintenance)
	}

	key := fmt.Sprintf("clients:%s:%s:%t:%d:%d",
		filter.Status, maintenance, filter.ActiveOnly, filter.Page, filter.PerPage)

	return cached(ctx, s, viewClients, key, s.statsTTL, func(ctx context.Context) (*models.ClientPage, error) {
		return s.store.ListClients(ctx, filter)
	})
}

// Client returns one client.
func (s *Service) Client(ctx context.Context, id string) (*models.Client, error) {
	return cached(ctx, s, viewClients, "client:"+id, s.statsTTL, func(ctx context.Context) (*models.Client, error) {
		return s.store.GetClient(ctx, id)
	})
}

// Usage returns a client's rollups for [from, to].
func (s *Service) Usage(ctx context.Context, clientID, from, to string) ([]*models.UsageRollup, error) {
	key := fmt.Sprintf("usage:%s:%s:%s", clientID, from, to)

	return cached(ctx, s, usageView(clientID), key, s.overviewTTL,
		func(ctx context.Context) ([]*models.UsageRollup, error) {
			return s.store.ListUsageRollups(ctx, clientID, from, to)
		})
}

// Notifications returns the notification feed.
func (s *Service) Notifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error) {
	since := ""
	if filter.Since != nil {
		since = filter.Since.UTC().Format(time.RFC3339)
	}

	key := fmt.Sprintf("notifications:%s:%s:%s:%t:%s:%d:%d",
		filter.ClientID, filter.Type, filter.Status, filter.Unacknowledged, since, filter.Limit, filter.Offset)

	return cached(ctx, s, viewNotifications, key, s.statsTTL,
		func(ctx context.Context) ([]*models.Notification, error) {
			return s.store.ListNotifications(ctx, filter)
		})
}

// InvalidateClient drops the views that include client state.
func (s *Service) InvalidateClient(ctx context.Context, id string) {
	s.invalidate(ctx, "client", id, viewClients, viewStats, viewOverview)
}

// InvalidateNotifications drops the views that include notifications.
func (s *Service) InvalidateNotifications(ctx context.Context) {
	s.invalidate(ctx, "notifications", "", viewNotifications, viewStats, viewOverview)
}

// InvalidateUsage drops a client's cached usage series.
func (s *Service) InvalidateUsage(ctx context.Context, clientID string) {
	s.invalidate(ctx, "usage", clientID, usageView(clientID))
}

func (s *Service) invalidate(ctx context.Context, reason, id string, views ...cache.View) {
	if err := s.registry.Invalidate(ctx, s.cache, views...); err != nil {
		s.logger.Warn("cache invalidation failed", "reason", reason, "id", id, "err", err)
	}
}

func usageView(clientID string) cache.View {
	return cache.View("usage:" + clientID)
}
