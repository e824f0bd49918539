// Package db pkg/db/errors.go provides errors for the db package.

package db

import "errors"

var (
	// Core database errors.

	ErrFailedOpenDB      = errors.New("failed to open database")
	ErrFailedToInit      = errors.New("failed to initialize schema")
	ErrFailedToEnableWAL = errors.New("failed to enable WAL mode")
	ErrFailedToBeginTx   = errors.New("failed to begin transaction")

	// Operation errors.

	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToUpdate = errors.New("failed to update")
	ErrFailedToClean  = errors.New("failed to clean")

	// Domain errors.

	ErrClientNotFound        = errors.New("client not found")
	ErrRuleNotFound          = errors.New("alert rule not found")
	ErrRuleInCooldown        = errors.New("alert rule in cooldown or inactive")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrNotificationCompleted = errors.New("notification already completed")
	ErrRollupNotFound        = errors.New("usage rollup not found")
	ErrUnknownPurgeTarget    = errors.New("unknown purge target")
)
