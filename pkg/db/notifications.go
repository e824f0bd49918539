package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

const (
	notificationColumns = `id, client_id, rule_id, type, title, message, data, channels,
		recipients, status, channels_sent, created_at, sent_at, acknowledged_at,
		acknowledged_by, ack_note`

	defaultNotificationLimit = 50
)

// InsertNotification persists a notification outside of a rule trigger.
func (db *DB) InsertNotification(ctx context.Context, n *models.Notification) error {
	defer db.observe("insert_notification", time.Now())

	return insertNotification(ctx, db.DB, n)
}

// GetNotification loads one notification.
func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	defer db.observe("get_notification", time.Now())

	var n models.Notification

	err := db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotificationNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w notification %d: %w", ErrFailedToQuery, id, err)
	}

	return &n, nil
}

// ListNotifications returns notifications matching filter, newest first.
func (db *DB) ListNotifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error) {
	defer db.observe("list_notifications", time.Now())

	query, args := buildNotificationQuery(filter)

	notifications := []*models.Notification{}

	if err := db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("%w notifications: %w", ErrFailedToQuery, err)
	}

	return notifications, nil
}

func buildNotificationQuery(filter *models.NotificationFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if filter.Unacknowledged {
		conditions = append(conditions, "acknowledged_at IS NULL")
	}

	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, utc(*filter.Since))
	}

	var b strings.Builder

	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications`)

	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}

	b.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	args = append(args, limit, max(filter.Offset, 0))

	return b.String(), args
}

// CompleteNotification moves a pending notification to its final status. A
// notification that already left pending is not touched and
// ErrNotificationCompleted is returned.
func (db *DB) CompleteNotification(
	ctx context.Context, id int64, status models.NotificationStatus, channelsSent []string, sentAt time.Time) error {
	defer db.observe("complete_notification", time.Now())

	res, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, channels_sent = ?, sent_at = ?
		WHERE id = ? AND status = ?`,
		status, models.StringList(channelsSent), utc(sentAt), id, models.NotificationPending)
	if err != nil {
		return fmt.Errorf("%w notification %d: %w", ErrFailedToUpdate, id, err)
	}

	return requireAffected(res, fmt.Errorf("%w: %d", ErrNotificationCompleted, id))
}

// AcknowledgeNotification sets the acknowledgment once. Later calls leave the
// first acknowledgment in place. The current row is returned either way.
func (db *DB) AcknowledgeNotification(
	ctx context.Context, id int64, actor, note string, at time.Time) (*models.Notification, error) {
	defer db.observe("acknowledge_notification", time.Now())

	_, err := db.ExecContext(ctx, `
		UPDATE notifications SET acknowledged_at = ?, acknowledged_by = ?, ack_note = ?
		WHERE id = ? AND acknowledged_at IS NULL`, utc(at), actor, note, id)
	if err != nil {
		return nil, fmt.Errorf("%w acknowledge %d: %w", ErrFailedToUpdate, id, err)
	}

	return db.GetNotification(ctx, id)
}
