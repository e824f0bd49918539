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
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

//go:generate mockgen -destination=mock_notifications.go -package=notifications github.com/mfreeman451/clientradar/pkg/notifications Channel,Store,Invalidator

// Channel delivers a notification over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *models.Notification, recipients []string) error
}

// Store persists notifications and their delivery outcome.
type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	ListNotifications(ctx context.Context, filter *models.NotificationFilter) ([]*models.Notification, error)
	CompleteNotification(ctx context.Context, id int64, status models.NotificationStatus, channelsSent []string, sentAt time.Time) error
	AcknowledgeNotification(ctx context.Context, id int64, actor, note string, at time.Time) (*models.Notification, error)
}

// Invalidator drops cached views that include notifications.
type Invalidator interface {
	InvalidateNotifications(ctx context.Context)
}
