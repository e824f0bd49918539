package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

const usageColumns = `client_id, date, authorization_requests, successful_authorizations,
	failed_authorizations, token_requests, successful_tokens, failed_tokens, api_calls,
	unique_users, active_users, peak_concurrent_users, error_count, avg_response_time_ms,
	last_activity_at, updated_at`

// UpsertUsageRollup writes the rollup for (client_id, date), replacing any
// previous values.
func (db *DB) UpsertUsageRollup(ctx context.Context, u *models.UsageRollup) error {
	defer db.observe("upsert_usage_rollup", time.Now())

	u.UpdatedAt = time.Now().UTC()

	row := *u
	row.LastActivityAt = utcPtr(row.LastActivityAt)

	_, err := db.NamedExecContext(ctx, `
		INSERT INTO usage_rollups (`+usageColumns+`)
		VALUES (:client_id, :date, :authorization_requests, :successful_authorizations,
			:failed_authorizations, :token_requests, :successful_tokens, :failed_tokens, :api_calls,
			:unique_users, :active_users, :peak_concurrent_users, :error_count, :avg_response_time_ms,
			:last_activity_at, :updated_at)
		ON CONFLICT(client_id, date) DO UPDATE SET
			authorization_requests = excluded.authorization_requests,
			successful_authorizations = excluded.successful_authorizations,
			failed_authorizations = excluded.failed_authorizations,
			token_requests = excluded.token_requests,
			successful_tokens = excluded.successful_tokens,
			failed_tokens = excluded.failed_tokens,
			api_calls = excluded.api_calls,
			unique_users = excluded.unique_users,
			active_users = excluded.active_users,
			peak_concurrent_users = excluded.peak_concurrent_users,
			error_count = excluded.error_count,
			avg_response_time_ms = excluded.avg_response_time_ms,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at`, &row)
	if err != nil {
		return fmt.Errorf("%w usage rollup %s/%s: %w", ErrFailedToInsert, u.ClientID, u.Date, err)
	}

	return nil
}

// GetUsageRollup loads the rollup for one client and day.
func (db *DB) GetUsageRollup(ctx context.Context, clientID, date string) (*models.UsageRollup, error) {
	defer db.observe("get_usage_rollup", time.Now())

	var u models.UsageRollup

	err := db.GetContext(ctx, &u,
		`SELECT `+usageColumns+` FROM usage_rollups WHERE client_id = ? AND date = ?`, clientID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrRollupNotFound, clientID, date)
	}

	if err != nil {
		return nil, fmt.Errorf("%w usage rollup: %w", ErrFailedToQuery, err)
	}

	return &u, nil
}

// ListUsageRollups returns a client's rollups for dates in [from, to]
// (YYYY-MM-DD, inclusive), oldest first.
func (db *DB) ListUsageRollups(ctx context.Context, clientID, from, to string) ([]*models.UsageRollup, error) {
	defer db.observe("list_usage_rollups", time.Now())

	rollups := []*models.UsageRollup{}

	err := db.SelectContext(ctx, &rollups, `
		SELECT `+usageColumns+` FROM usage_rollups
		WHERE client_id = ? AND date >= ? AND date <= ?
		ORDER BY date`, clientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w usage rollups %s: %w", ErrFailedToQuery, clientID, err)
	}

	return rollups, nil
}
