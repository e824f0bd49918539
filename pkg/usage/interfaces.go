package usage

import (
	"context"
	"time"

	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/models"
)

// Store is the subset of the database the aggregator reads and writes.
type Store interface {
	ListClientIDs(ctx context.Context) ([]string, error)
	ListEvents(ctx context.Context, clientID string, from, to time.Time) ([]*models.Event, error)
	CountUsers(ctx context.Context, clientID string, from, to time.Time) (db.UserCounts, error)
	UpsertUsageRollup(ctx context.Context, u *models.UsageRollup) error
}

// AlertProcessor evaluates usage rules against a fresh rollup.
type AlertProcessor interface {
	ProcessUsage(ctx context.Context, rollup *models.UsageRollup) []*models.Notification
}

// Invalidator drops cached usage series of a client.
type Invalidator interface {
	InvalidateUsage(ctx context.Context, clientID string)
}
