// Package db pkg/db/interfaces.go
package db

import (
	"context"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// Service represents all database operations.
type Service interface {
	Close() error

	// Client operations.

	UpsertClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context, filter *models.ClientFilter) (*models.ClientPage, error)
	ListClientIDs(ctx context.Context) ([]string, error)
	ListHealthCheckCandidates(ctx context.Context) ([]*models.Client, error)
	UpdateClientHealth(ctx context.Context, c *models.Client) error
	RecordProbe(ctx context.Context, c *models.Client, failed bool) error
	SetMaintenance(ctx context.Context, id string, enabled bool, message string) error

	// Event log and token operations.

	AppendEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, clientID string, from, to time.Time) ([]*models.Event, error)
	InsertToken(ctx context.Context, t *models.Token) error
	CountUsers(ctx context.Context, clientID string, from, to time.Time) (UserCounts, error)

	// Usage operations.

	UpsertUsageRollup(ctx context.Context, u *models.UsageRollup) error
	GetUsageRollup(ctx context.Context, clientID, date string) (*models.UsageRollup, error)
	ListUsageRollups(ctx context.Context, clientID, from, to string) ([]*models.UsageRollup, error)

	// Alert rule and notification operations.

	InsertAlertRule(ctx context.Context, r *models.AlertRule) error
	GetAlertRule(ctx context.Context, id int64) (*models.AlertRule, error)
	ListActiveRules(ctx context.Context, trigger models.TriggerType, clientID string) ([]*models.AlertRule, error)
	TriggerRule(ctx context.Context, ruleID int64, now, cutoff time.Time, n *models.Notification) error
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	ListNotifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error)
	CompleteNotification(ctx context.Context, id int64, status models.NotificationStatus, channelsSent []string, sentAt time.Time) error
	AcknowledgeNotification(ctx context.Context, id int64, actor, note string, at time.Time) (*models.Notification, error)

	// Maintenance operations.

	DeleteBatch(ctx context.Context, target PurgeTarget, cutoff time.Time, limit int) (int64, error)
	CountPurgeable(ctx context.Context, target PurgeTarget, cutoff time.Time) (int64, error)

	// Dashboard aggregates.

	CountClientsByStatus(ctx context.Context) (*models.StatusCounts, error)
	CountNotificationsByType(ctx context.Context, since time.Time) (map[models.NotificationType]int, error)
	DailyTotals(ctx context.Context, since time.Time) (*models.DailyTotals, error)
}

var _ Service = (*DB)(nil)
