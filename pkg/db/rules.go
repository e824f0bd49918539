package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const ruleColumns = `id, name, client_id, trigger_type, conditions, notification_type,
	channels, recipients, cooldown_minutes, last_triggered_at, is_active, created_at`

// InsertAlertRule stores a new rule and sets its id.
func (db *DB) InsertAlertRule(ctx context.Context, r *models.AlertRule) error {
	defer db.observe("insert_alert_rule", time.Now())

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if r.NotificationType == "" {
		r.NotificationType = models.NotificationAlert
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO alert_rules (name, client_id, trigger_type, conditions, notification_type,
			channels, recipients, cooldown_minutes, last_triggered_at, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.ClientID, r.TriggerType, r.Conditions, r.NotificationType,
		r.Channels, r.Recipients, r.CooldownMinutes, utcPtr(r.LastTriggeredAt), r.IsActive, utc(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("%w alert rule: %w", ErrFailedToInsert, err)
	}

	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("%w alert rule id: %w", ErrFailedToInsert, err)
	}

	return nil
}

// GetAlertRule loads one rule.
func (db *DB) GetAlertRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	defer db.observe("get_alert_rule", time.Now())

	var r models.AlertRule

	err := db.GetContext(ctx, &r, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w alert rule %d: %w", ErrFailedToQuery, id, err)
	}

	return &r, nil
}

// ListActiveRules returns active rules of the trigger type that apply to the
// client, either directly or globally.
func (db *DB) ListActiveRules(ctx context.Context, trigger models.TriggerType, clientID string) ([]*models.AlertRule, error) {
	defer db.observe("list_active_rules", time.Now())

	var rules []*models.AlertRule

	err := db.SelectContext(ctx, &rules, `
		SELECT `+ruleColumns+` FROM alert_rules
		WHERE is_active = 1 AND trigger_type = ? AND (client_id IS NULL OR client_id = ?)
		ORDER BY id`, trigger, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w alert rules: %w", ErrFailedToQuery, err)
	}

	return rules, nil
}

// TriggerRule atomically claims the rule's cooldown window and creates the
// notification. The claim succeeds only when the rule is active and was last
// triggered at or before cutoff (now minus the cooldown); otherwise
// ErrRuleInCooldown is returned and nothing is written.
func (db *DB) TriggerRule(
	ctx context.Context, ruleID int64, now, cutoff time.Time, n *models.Notification) (err error) {
	defer db.observe("trigger_rule", time.Now())

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			rollbackOnError(tx, db.logger)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE alert_rules SET last_triggered_at = ?
		WHERE id = ? AND is_active = 1
			AND (last_triggered_at IS NULL OR last_triggered_at <= ?)`,
		utc(now), ruleID, utc(cutoff))
	if err != nil {
		return fmt.Errorf("%w rule %d: %w", ErrFailedToUpdate, ruleID, err)
	}

	if err = requireAffected(res, ErrRuleInCooldown); err != nil {
		return err
	}

	if err = insertNotification(ctx, tx, n); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit rule trigger: %w", ErrFailedToUpdate, err)
	}

	return nil
}

func insertNotification(ctx context.Context, ext sqlx.ExtContext, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if n.Status == "" {
		n.Status = models.NotificationPending
	}

	if n.ChannelsSent == nil {
		n.ChannelsSent = models.StringList{}
	}

	res, err := ext.ExecContext(ctx, `
		INSERT INTO notifications (client_id, rule_id, type, title, message, data, channels,
			recipients, status, channels_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ClientID, n.RuleID, n.Type, n.Title, n.Message, n.Data, n.Channels,
		n.Recipients, n.Status, n.ChannelsSent, utc(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("%w notification: %w", ErrFailedToInsert, err)
	}

	if n.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("%w notification id: %w", ErrFailedToInsert, err)
	}

	return nil
}
