// Package db pkg/db/db.go provides SQLite storage for clientradar.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/mfreeman451/clientradar/pkg/metrics"
)

const (
	memoryPath = ":memory:"

	// SQL statements for database initialization.
	createTablesSQL = `
	-- Registered OAuth clients and their health state
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		health_check_url TEXT NOT NULL DEFAULT '',
		health_check_interval INTEGER NOT NULL DEFAULT 300,
		health_check_enabled BOOLEAN NOT NULL DEFAULT 0,
		maintenance_mode BOOLEAN NOT NULL DEFAULT 0,
		maintenance_message TEXT NOT NULL DEFAULT '',
		health_status TEXT NOT NULL DEFAULT 'unknown'
			CHECK (health_status IN ('healthy', 'unhealthy', 'error', 'unknown')),
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_checked_at TIMESTAMP,
		last_error_message TEXT NOT NULL DEFAULT '',
		revoked BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- Append-only activity log
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'low',
		name TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMP NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	-- Issued tokens and authorization codes
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT 0
	);

	-- Per client per day usage counters
	CREATE TABLE IF NOT EXISTS usage_rollups (
		client_id TEXT NOT NULL,
		date TEXT NOT NULL,
		authorization_requests INTEGER NOT NULL DEFAULT 0,
		successful_authorizations INTEGER NOT NULL DEFAULT 0,
		failed_authorizations INTEGER NOT NULL DEFAULT 0,
		token_requests INTEGER NOT NULL DEFAULT 0,
		successful_tokens INTEGER NOT NULL DEFAULT 0,
		failed_tokens INTEGER NOT NULL DEFAULT 0,
		api_calls INTEGER NOT NULL DEFAULT 0,
		unique_users INTEGER NOT NULL DEFAULT 0,
		active_users INTEGER NOT NULL DEFAULT 0,
		peak_concurrent_users INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		avg_response_time_ms REAL NOT NULL DEFAULT 0,
		last_activity_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (client_id, date)
	);

	-- Alert rules
	CREATE TABLE IF NOT EXISTS alert_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		client_id TEXT,
		trigger_type TEXT NOT NULL,
		conditions TEXT NOT NULL DEFAULT '[]',
		notification_type TEXT NOT NULL DEFAULT 'alert',
		channels TEXT NOT NULL DEFAULT '[]',
		recipients TEXT NOT NULL DEFAULT '[]',
		cooldown_minutes INTEGER NOT NULL DEFAULT 0,
		last_triggered_at TIMESTAMP,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	-- Notifications produced by rule triggers
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		rule_id INTEGER,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		channels TEXT NOT NULL DEFAULT '[]',
		recipients TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		channels_sent TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		sent_at TIMESTAMP,
		acknowledged_at TIMESTAMP,
		acknowledged_by TEXT NOT NULL DEFAULT '',
		ack_note TEXT NOT NULL DEFAULT ''
	);

	-- Indexes for better query performance
	CREATE INDEX IF NOT EXISTS idx_events_client_time ON events(client_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(occurred_at);
	CREATE INDEX IF NOT EXISTS idx_tokens_client_created ON tokens(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_tokens_expires ON tokens(expires_at);
	CREATE INDEX IF NOT EXISTS idx_usage_date ON usage_rollups(date);
	CREATE INDEX IF NOT EXISTS idx_rules_trigger ON alert_rules(trigger_type, is_active);
	CREATE INDEX IF NOT EXISTS idx_notifications_client_time ON notifications(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
	`
)

// DB represents the database connection and operations.
type DB struct {
	*sqlx.DB
	queries metrics.QueryStore
	logger  *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithQueryStore records every query timing into qs.
func WithQueryStore(qs metrics.QueryStore) Option {
	return func(db *DB) {
		db.queries = qs
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// New creates a new database connection and initializes the schema.
func New(ctx context.Context, dbPath string, opts ...Option) (*DB, error) {
	sqlDB, err := sqlx.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	// Each in-memory connection is a separate database.
	if dbPath == memoryPath {
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, logger: slog.Default()}

	for _, opt := range opts {
		opt(db)
	}

	// Enable WAL mode for better concurrent access
	if dbPath != memoryPath {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = sqlDB.Close()

			return nil, fmt.Errorf("%w: %w", ErrFailedToEnableWAL, err)
		}
	}

	if err := db.initSchema(ctx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	return db, nil
}

func dsn(path string) string {
	if path == memoryPath {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	// Immediate transactions take the write lock up front so the rule trigger
	// compare-and-swap never upgrades a read lock.
	return "file:" + path + sep + "_busy_timeout=5000&_txlock=immediate"
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema(ctx context.Context) error {
	_, err := db.ExecContext(ctx, createTablesSQL)

	return err
}

// observe records the duration of a named query. Use with defer.
func (db *DB) observe(name string, start time.Time) {
	if db.queries == nil {
		return
	}

	db.queries.Observe(name, time.Since(start), start)
}

func rollbackOnError(tx *sqlx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil && !isTxDone(err) {
		logger.Error("failed to rollback transaction", "err", err)
	}
}

func isTxDone(err error) bool {
	return errors.Is(err, sql.ErrTxDone)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC()

	return &u
}
