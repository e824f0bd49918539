// Package eventlog is the append-only record of client activity.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
)

var (
	ErrMissingClient = errors.New("event has no client id")
	ErrMissingType   = errors.New("event has no type")
)

// Store persists events.
type Store interface {
	AppendEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, clientID string, from, to time.Time) ([]*models.Event, error)
}

// Log appends and reads events.
type Log struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Log backed by store.
func New(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{store: store, logger: logger, now: time.Now}
}

// Append validates and persists e. OccurredAt defaults to now and Severity
// to low.
func (l *Log) Append(ctx context.Context, e *models.Event) error {
	if e.ClientID == "" {
		return ErrMissingClient
	}

	if e.Type == "" {
		return ErrMissingType
	}

	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}

	if e.Severity == "" {
		e.Severity = models.SeverityLow
	}

	if e.Name == "" {
		e.Name = string(e.Type)
	}

	if err := l.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append %s event for %s: %w", e.Type, e.ClientID, err)
	}

	metrics.EventsTotal.WithLabelValues(string(e.Type), string(e.Severity)).Inc()

	l.logger.Debug("event appended",
		"client_id", e.ClientID, "type", e.Type, "severity", e.Severity, "event_id", e.ID)

	return nil
}

// Range returns a client's events within [from, to], oldest first.
func (l *Log) Range(ctx context.Context, clientID string, from, to time.Time) ([]*models.Event, error) {
	return l.store.ListEvents(ctx, clientID, from, to)
}
