/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const subscriberBuffer = 16

// CreateRequest describes a notification to persist.
type CreateRequest struct {
	ClientID   string
	RuleID     *int64
	Type       models.NotificationType
	Title      string
	Message    string
	Data       models.Metadata
	Channels   []string
	Recipients []string
}

// Dispatcher persists notifications and delivers them on their channels.
type Dispatcher struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time

	channels  map[string]Channel
	channelMu sync.RWMutex

	subscribers map[int]chan *models.Notification
	nextSubID   int
	subMu       sync.Mutex
}

// NewDispatcher creates a Dispatcher with the given channels registered.
func NewDispatcher(store Store, logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		store:       store,
		logger:      logger,
		now:         time.Now,
		channels:    make(map[string]Channel),
		subscribers: make(map[int]chan *models.Notification),
	}

	for _, ch := range channels {
		d.RegisterChannel(ch)
	}

	return d
}

// SetInvalidator sets the cache invalidation hook.
func (d *Dispatcher) SetInvalidator(inv Invalidator) {
	d.invalidator = inv
}

// RegisterChannel registers a channel under its name, replacing any previous one.
func (d *Dispatcher) RegisterChannel(ch Channel) {
	d.channelMu.Lock()
	defer d.channelMu.Unlock()

	d.channels[ch.Name()] = ch
}

func (d *Dispatcher) getChannel(name string) (Channel, error) {
	d.channelMu.RLock()
	defer d.channelMu.RUnlock()

	ch, ok := d.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, name)
	}

	return ch, nil
}

// Create persists a pending notification. Nothing is sent.
func (d *Dispatcher) Create(ctx context.Context, req *CreateRequest) (*models.Notification, error) {
	if req.ClientID == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: client id and message are required", ErrInvalidRequest)
	}

	kind := req.Type
	if kind == "" {
		kind = models.NotificationInfo
	}

	n := &models.Notification{
		ClientID:   req.ClientID,
		RuleID:     req.RuleID,
		Type:       kind,
		Title:      req.Title,
		Message:    req.Message,
		Data:       req.Data,
		Channels:   req.Channels,
		Recipients: req.Recipients,
		Status:     models.NotificationPending,
		CreatedAt:  d.now().UTC(),
	}

	if err := d.store.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	return n, nil
}

// Notify creates a notification and sends it. Only persistence failures are
// returned.
func (d *Dispatcher) Notify(ctx context.Context, req *CreateRequest) (*models.Notification, error) {
	n, err := d.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	d.Send(ctx, n)

	return n, nil
}

// Send attempts every channel of n independently and records the outcome.
// The notification ends up sent when at least one channel succeeded and
// failed otherwise. Errors are logged, never returned.
func (d *Dispatcher) Send(ctx context.Context, n *models.Notification) {
	sent := make([]string, 0, len(n.Channels))

	for _, name := range n.Channels {
		if err := d.sendOne(ctx, name, n); err != nil {
			d.logger.Warn("notification channel failed",
				"notification_id", n.ID, "client_id", n.ClientID, "channel", name, "err", err)
			metrics.NotificationsTotal.WithLabelValues(name, "failed").Inc()

			continue
		}

		metrics.NotificationsTotal.WithLabelValues(name, "sent").Inc()

		sent = append(sent, name)
	}

	status := models.NotificationFailed
	if len(sent) > 0 {
		status = models.NotificationSent
	}

	sentAt := d.now().UTC()

	if err := d.store.CompleteNotification(ctx, n.ID, status, sent, sentAt); err != nil {
		d.logger.Error("failed to record notification delivery",
			"notification_id", n.ID, "status", status, "err", err)
	} else {
		n.Status = status
		n.ChannelsSent = sent
		n.SentAt = &sentAt
	}

	d.logger.Info("notification dispatched",
		"notification_id", n.ID, "client_id", n.ClientID, "status", n.Status, "channels_sent", sent)

	if d.invalidator != nil {
		d.invalidator.InvalidateNotifications(ctx)
	}

	d.publish(n)
}

func (d *Dispatcher) sendOne(ctx context.Context, name string, n *models.Notification) (err error) {
	ch, err := d.getChannel(name)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrChannelError, name, r)
		}
	}()

	if err := ch.Send(ctx, n, n.Recipients); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrChannelError, name, err)
	}

	return nil
}

// Acknowledge records a human acknowledgment. Repeated calls keep the first
// acknowledgment.
func (d *Dispatcher) Acknowledge(ctx context.Context, id int64, actor, note string) (*models.Notification, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidRequest)
	}

	n, err := d.store.AcknowledgeNotification(ctx, id, actor, note, d.now().UTC())
	if err != nil {
		return nil, err
	}

	if d.invalidator != nil {
		d.invalidator.InvalidateNotifications(ctx)
	}

	return n, nil
}

// Get returns one notification.
func (d *Dispatcher) Get(ctx context.Context, id int64) (*models.Notification, error) {
	return d.store.GetNotification(ctx, id)
}

// List returns the notification feed for filter.
func (d *Dispatcher) List(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error) {
	return d.store.ListNotifications(ctx, filter)
}

// Subscribe returns a channel of dispatched notifications and a function
// that cancels the subscription. Slow subscribers miss notifications rather
// than block dispatch.
func (d *Dispatcher) Subscribe() (<-chan *models.Notification, func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	id := d.nextSubID
	d.nextSubID++

	ch := make(chan *models.Notification, subscriberBuffer)
	d.subscribers[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()

			delete(d.subscribers, id)
			close(ch)
		})
	}
}

func (d *Dispatcher) publish(n *models.Notification) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for id, ch := range d.subscribers {
		select {
		case ch <- n:
		default:
			d.logger.Debug("dropping notification for slow subscriber", "subscriber", id, "notification_id", n.ID)
		}
	}
}
