package alerts

import (
	"context"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

//go:generate mockgen -destination=mock_alerts.go -package=alerts github.com/mfreeman451/clientradar/pkg/alerts Store,Sender

// Store loads rules and performs the atomic trigger.
type Store interface {
	ListActiveRules(ctx context.Context, trigger models.TriggerType, clientID string) ([]*models.AlertRule, error)
	TriggerRule(ctx context.Context, ruleID int64, now, cutoff time.Time, n *models.Notification) error
}

// Sender delivers a created notification.
type Sender interface {
	Send(ctx context.Context, n *models.Notification)
}
