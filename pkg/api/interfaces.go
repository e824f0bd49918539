package api

import (
	"context"

	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/mfreeman451/clientradar/pkg/perf"
)

// Dashboard serves the cached read views.
type Dashboard interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
	Overview(ctx context.Context) (*models.DashboardOverview, error)
	Clients(ctx context.Context, filter *models.ClientFilter) (*models.ClientPage, error)
	Client(ctx context.Context, id string) (*models.Client, error)
	Usage(ctx context.Context, clientID, from, to string) ([]*models.UsageRollup, error)
	Notifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error)
}

// Checker runs an on-demand health check.
type Checker interface {
	CheckClient(ctx context.Context, id string, opts health.CheckOptions) (*health.Check, error)
}

// Notifier acknowledges and streams notifications.
type Notifier interface {
	Acknowledge(ctx context.Context, id int64, actor, note string) (*models.Notification, error)
	Subscribe() (<-chan *models.Notification, func())
}

// Reporter builds performance reports.
type Reporter interface {
	Report(ctx context.Context, sections ...perf.Section) (*perf.Report, error)
}
