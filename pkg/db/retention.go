package db

import (
	"context"
	"fmt"
	"time"
)

// PurgeTarget names a retention predicate.
type PurgeTarget string

const (
	PurgeTokens                    PurgeTarget = "tokens"
	PurgeEvents                    PurgeTarget = "events"
	PurgeCriticalEvents            PurgeTarget = "critical_events"
	PurgeUsage                     PurgeTarget = "usage"
	PurgeOrphanEvents              PurgeTarget = "orphan_events"
	PurgeOrphanUsage               PurgeTarget = "orphan_usage"
	PurgeAcknowledgedNotifications PurgeTarget = "notifications"
)

type purgeQuery struct {
	table string
	key   string
	where string
	args  func(cutoff time.Time) []interface{}
}

func cutoffArg(cutoff time.Time) []interface{} {
	return []interface{}{utc(cutoff)}
}

func dateArg(cutoff time.Time) []interface{} {
	return []interface{}{cutoff.UTC().Format(time.DateOnly)}
}

func noArgs(time.Time) []interface{} {
	return nil
}

//nolint:gochecknoglobals // fixed predicate table
var purgeQueries = map[PurgeTarget]purgeQuery{
	PurgeTokens: {
		table: "tokens", key: "id",
		where: "revoked = 1 AND expires_at < ?",
		args:  cutoffArg,
	},
	PurgeEvents: {
		table: "events", key: "id",
		where: "occurred_at < ? AND severity != 'critical' AND type != 'security'",
		args:  cutoffArg,
	},
	PurgeCriticalEvents: {
		table: "events", key: "id",
		where: "occurred_at < ? AND (severity = 'critical' OR type = 'security')",
		args:  cutoffArg,
	},
	PurgeUsage: {
		table: "usage_rollups", key: "rowid",
		where: "date < ?",
		args:  dateArg,
	},
	PurgeOrphanEvents: {
		table: "events", key: "id",
		where: "NOT EXISTS (SELECT 1 FROM clients c WHERE c.id = events.client_id)",
		args:  noArgs,
	},
	PurgeOrphanUsage: {
		table: "usage_rollups", key: "rowid",
		where: "NOT EXISTS (SELECT 1 FROM clients c WHERE c.id = usage_rollups.client_id)",
		args:  noArgs,
	},
	PurgeAcknowledgedNotifications: {
		table: "notifications", key: "id",
		where: "acknowledged_at IS NOT NULL AND acknowledged_at < ?",
		args:  cutoffArg,
	},
}

// DeleteBatch deletes at most limit rows matching target's predicate and
// returns how many were removed. Each call is its own short transaction.
func (db *DB) DeleteBatch(ctx context.Context, target PurgeTarget, cutoff time.Time, limit int) (int64, error) {
	q, ok := purgeQueries[target]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPurgeTarget, target)
	}

	defer db.observe("purge_"+string(target), time.Now())

	query := fmt.Sprintf(`DELETE FROM %[1]s WHERE %[2]s IN (SELECT %[2]s FROM %[1]s WHERE %[3]s LIMIT ?)`,
		q.table, q.key, q.where)

	res, err := db.ExecContext(ctx, query, append(q.args(cutoff), limit)...)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrFailedToClean, target, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrFailedToClean, target, err)
	}

	return n, nil
}

// CountPurgeable counts rows matching target's predicate without deleting.
func (db *DB) CountPurgeable(ctx context.Context, target PurgeTarget, cutoff time.Time) (int64, error) {
	q, ok := purgeQueries[target]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPurgeTarget, target)
	}

	defer db.observe("count_"+string(target), time.Now())

	var n int64

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, q.table, q.where)

	if err := db.GetContext(ctx, &n, query, q.args(cutoff)...); err != nil {
		return 0, fmt.Errorf("%w count %s: %w", ErrFailedToQuery, target, err)
	}

	return n, nil
}
