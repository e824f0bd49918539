package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// CountClientsByStatus returns the fleet breakdown by health status.
func (db *DB) CountClientsByStatus(ctx context.Context) (*models.StatusCounts, error) {
	defer db.observe("count_clients_by_status", time.Now())

	var rows []struct {
		Status      models.HealthStatus `db:"health_status"`
		Count       int                 `db:"n"`
		Maintenance int                 `db:"maintenance"`
	}

	err := db.SelectContext(ctx, &rows, `
		SELECT health_status, COUNT(*) AS n, SUM(maintenance_mode) AS maintenance
		FROM clients WHERE is_active = 1
		GROUP BY health_status`)
	if err != nil {
		return nil, fmt.Errorf("%w client status counts: %w", ErrFailedToQuery, err)
	}

	counts := &models.StatusCounts{
		ByStatus: map[models.HealthStatus]int{
			models.StatusHealthy:   0,
			models.StatusUnhealthy: 0,
			models.StatusError:     0,
			models.StatusUnknown:   0,
		},
	}

	for _, r := range rows {
		counts.ByStatus[r.Status] = r.Count
		counts.Maintenance += r.Maintenance
		counts.Total += r.Count
	}

	return counts, nil
}

// CountNotificationsByType counts notifications created since the given time.
func (db *DB) CountNotificationsByType(ctx context.Context, since time.Time) (map[models.NotificationType]int, error) {
	defer db.observe("count_notifications_by_type", time.Now())

	var rows []struct {
		Type  models.NotificationType `db:"type"`
		Count int                     `db:"n"`
	}

	err := db.SelectContext(ctx, &rows, `
		SELECT type, COUNT(*) AS n FROM notifications
		WHERE created_at >= ? GROUP BY type`, utc(since))
	if err != nil {
		return nil, fmt.Errorf("%w notification counts: %w", ErrFailedToQuery, err)
	}

	counts := map[models.NotificationType]int{
		models.NotificationInfo:     0,
		models.NotificationWarning:  0,
		models.NotificationAlert:    0,
		models.NotificationCritical: 0,
	}

	for _, r := range rows {
		counts[r.Type] = r.Count
	}

	return counts, nil
}

// DailyTotals counts events, probes and notifications since the given time.
func (db *DB) DailyTotals(ctx context.Context, since time.Time) (*models.DailyTotals, error) {
	defer db.observe("daily_totals", time.Now())

	totals := &models.DailyTotals{Since: since}
	s := utc(since)

	err := db.GetContext(ctx, totals, `
		SELECT
			(SELECT COUNT(*) FROM events WHERE occurred_at >= ?) AS events,
			(SELECT COUNT(*) FROM events WHERE occurred_at >= ? AND type = 'health_check') AS health_checks,
			(SELECT COUNT(*) FROM events
				WHERE occurred_at >= ? AND type = 'health_check' AND severity != 'low') AS failed_health_checks,
			(SELECT COUNT(*) FROM notifications WHERE created_at >= ?) AS notifications`,
		s, s, s, s)
	if err != nil {
		return nil, fmt.Errorf("%w daily totals: %w", ErrFailedToQuery, err)
	}

	return totals, nil
}
