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
	clientColumns = `id, name, owner_id, health_check_url, health_check_interval,
		health_check_enabled, maintenance_mode, maintenance_message, health_status,
		consecutive_failures, last_checked_at, last_error_message, revoked, is_active,
		created_at, updated_at`

	defaultPerPage = 25
	maxPerPage     = 200
)

// UpsertClient registers a client or updates its configuration. Health state
// columns are only written on insert.
func (db *DB) UpsertClient(ctx context.Context, c *models.Client) error {
	defer db.observe("upsert_client", time.Now())

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	c.UpdatedAt = now

	if c.Status == "" {
		c.Status = models.StatusUnknown
	}

	row := *c
	row.CreatedAt = utc(row.CreatedAt)
	row.LastCheckedAt = utcPtr(row.LastCheckedAt)

	_, err := db.NamedExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:id, :name, :owner_id, :health_check_url, :health_check_interval,
			:health_check_enabled, :maintenance_mode, :maintenance_message, :health_status,
			:consecutive_failures, :last_checked_at, :last_error_message, :revoked, :is_active,
			:created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			health_check_url = excluded.health_check_url,
			health_check_interval = excluded.health_check_interval,
			health_check_enabled = excluded.health_check_enabled,
			maintenance_mode = excluded.maintenance_mode,
			maintenance_message = excluded.maintenance_message,
			revoked = excluded.revoked,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`, &row)
	if err != nil {
		return fmt.Errorf("%w client %s: %w", ErrFailedToInsert, c.ID, err)
	}

	return nil
}

// GetClient loads one client.
func (db *DB) GetClient(ctx context.Context, id string) (*models.Client, error) {
	defer db.observe("get_client", time.Now())

	var c models.Client

	err := db.GetContext(ctx, &c, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w client %s: %w", ErrFailedToQuery, id, err)
	}

	return &c, nil
}

// ListHealthCheckCandidates returns active clients with health checks
// configured. Interval and maintenance gating happen in the caller.
func (db *DB) ListHealthCheckCandidates(ctx context.Context) ([]*models.Client, error) {
	defer db.observe("list_health_candidates", time.Now())

	var clients []*models.Client

	err := db.SelectContext(ctx, &clients, `
		SELECT `+clientColumns+` FROM clients
		WHERE health_check_enabled = 1
			AND health_check_url != ''
			AND is_active = 1
			AND revoked = 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w health check candidates: %w", ErrFailedToQuery, err)
	}

	return clients, nil
}

// ListClientIDs returns every registered client id.
func (db *DB) ListClientIDs(ctx context.Context) ([]string, error) {
	defer db.observe("list_client_ids", time.Now())

	var ids []string

	if err := db.SelectContext(ctx, &ids, `SELECT id FROM clients ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w client ids: %w", ErrFailedToQuery, err)
	}

	return ids, nil
}

// ListClients returns one page of clients matching filter and the total count.
func (db *DB) ListClients(ctx context.Context, filter *models.ClientFilter) (*models.ClientPage, error) {
	defer db.observe("list_clients", time.Now())

	var (
		conditions []string
		args       []interface{}
	)

	if filter.Status != "" {
		conditions = append(conditions, "health_status = ?")
		args = append(args, filter.Status)
	}

	if filter.Maintenance != nil {
		conditions = append(conditions, "maintenance_mode = ?")
		args = append(args, *filter.Maintenance)
	}

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = 1 AND revoked = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, perPage := normalizePage(filter.Page, filter.PerPage)

	var total int
	if err := db.GetContext(ctx, &total, `SELECT COUNT(*) FROM clients`+where, args...); err != nil {
		return nil, fmt.Errorf("%w client count: %w", ErrFailedToQuery, err)
	}

	clients := make([]*models.Client, 0, perPage)

	err := db.SelectContext(ctx, &clients,
		`SELECT `+clientColumns+` FROM clients`+where+` ORDER BY name, id LIMIT ? OFFSET ?`,
		append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, fmt.Errorf("%w clients: %w", ErrFailedToQuery, err)
	}

	return &models.ClientPage{Clients: clients, Total: total, Page: page, PerPage: perPage}, nil
}

// UpdateClientHealth persists the health state columns of c.
func (db *DB) UpdateClientHealth(ctx context.Context, c *models.Client) error {
	defer db.observe("update_client_health", time.Now())

	c.UpdatedAt = time.Now().UTC()

	res, err := db.ExecContext(ctx, `
		UPDATE clients
		SET health_status = ?,
			consecutive_failures = ?,
			last_checked_at = ?,
			last_error_message = ?,
			updated_at = ?
		WHERE id = ?`,
		c.Status, c.ConsecutiveFailures, utcPtr(c.LastCheckedAt), c.LastErrorMessage, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("%w client health %s: %w", ErrFailedToUpdate, c.ID, err)
	}

	return requireAffected(res, fmt.Errorf("%w: %s", ErrClientNotFound, c.ID))
}

// RecordProbe stores the outcome of one probe. The failure counter is
// incremented or reset in place, so concurrent probes of the same client
// never lose a failure; c.ConsecutiveFailures is set to the stored value.
func (db *DB) RecordProbe(ctx context.Context, c *models.Client, failed bool) error {
	defer db.observe("record_probe", time.Now())

	c.UpdatedAt = time.Now().UTC()

	var failures uint

	err := db.GetContext(ctx, &failures, `
		UPDATE clients
		SET health_status = ?,
			consecutive_failures = CASE WHEN ? THEN consecutive_failures + 1 ELSE 0 END,
			last_checked_at = ?,
			last_error_message = ?,
			updated_at = ?
		WHERE id = ?
		RETURNING consecutive_failures`,
		c.Status, failed, utcPtr(c.LastCheckedAt), c.LastErrorMessage, c.UpdatedAt, c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrClientNotFound, c.ID)
	}

	if err != nil {
		return fmt.Errorf("%w client probe %s: %w", ErrFailedToUpdate, c.ID, err)
	}

	c.ConsecutiveFailures = failures

	return nil
}

// SetMaintenance toggles maintenance mode for a client.
func (db *DB) SetMaintenance(ctx context.Context, id string, enabled bool, message string) error {
	defer db.observe("set_maintenance", time.Now())

	res, err := db.ExecContext(ctx, `
		UPDATE clients SET maintenance_mode = ?, maintenance_message = ?, updated_at = ?
		WHERE id = ?`, enabled, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w maintenance %s: %w", ErrFailedToUpdate, id, err)
	}

	return requireAffected(res, fmt.Errorf("%w: %s", ErrClientNotFound, id))
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToUpdate, err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func normalizePage(page, perPage int) (normalizedPage, normalizedPerPage int) {
	if page < 1 {
		page = 1
	}

	if perPage <= 0 {
		perPage = defaultPerPage
	}

	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return page, perPage
}
