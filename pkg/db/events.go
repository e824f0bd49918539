package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// AppendEvent inserts an event and sets its id.
func (db *DB) AppendEvent(ctx context.Context, e *models.Event) error {
	defer db.observe("append_event", time.Now())

	if e.Metadata == nil {
		e.Metadata = models.Metadata{}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO events (client_id, type, severity, name, occurred_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ClientID, e.Type, e.Severity, e.Name, utc(e.OccurredAt), e.Metadata)
	if err != nil {
		return fmt.Errorf("%w event: %w", ErrFailedToInsert, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w event id: %w", ErrFailedToInsert, err)
	}

	e.ID = id

	return nil
}

// ListEvents returns a client's events with occurred_at in [from, to], oldest first.
func (db *DB) ListEvents(ctx context.Context, clientID string, from, to time.Time) ([]*models.Event, error) {
	defer db.observe("list_events", time.Now())

	var events []*models.Event

	err := db.SelectContext(ctx, &events, `
		SELECT id, client_id, type, severity, name, occurred_at, metadata
		FROM events
		WHERE client_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at, id`, clientID, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("%w events %s: %w", ErrFailedToQuery, clientID, err)
	}

	return events, nil
}

// InsertToken records an issued token or code.
func (db *DB) InsertToken(ctx context.Context, t *models.Token) error {
	defer db.observe("insert_token", time.Now())

	_, err := db.ExecContext(ctx, `
		INSERT INTO tokens (id, client_id, user_id, kind, created_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientID, t.UserID, t.Kind, utc(t.CreatedAt), utc(t.ExpiresAt), t.Revoked)
	if err != nil {
		return fmt.Errorf("%w token: %w", ErrFailedToInsert, err)
	}

	return nil
}

// UserCounts holds distinct user counts for a window.
type UserCounts struct {
	Unique int64 `db:"unique_users"`
	Active int64 `db:"active_users"`
}

// CountUsers counts distinct users that were issued tokens within [from, to]
// (unique) and users holding a token valid at any point of the window (active).
func (db *DB) CountUsers(ctx context.Context, clientID string, from, to time.Time) (UserCounts, error) {
	defer db.observe("count_users", time.Now())

	var counts UserCounts

	err := db.GetContext(ctx, &counts, `
		SELECT
			(SELECT COUNT(DISTINCT user_id) FROM tokens
				WHERE client_id = ? AND user_id != '' AND created_at >= ? AND created_at <= ?) AS unique_users,
			(SELECT COUNT(DISTINCT user_id) FROM tokens
				WHERE client_id = ? AND user_id != '' AND created_at <= ? AND expires_at >= ?) AS active_users`,
		clientID, utc(from), utc(to), clientID, utc(to), utc(from))
	if err != nil {
		return counts, fmt.Errorf("%w users %s: %w", ErrFailedToQuery, clientID, err)
	}

	return counts, nil
}
