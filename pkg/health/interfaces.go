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

package health

import (
	"context"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

//go:generate mockgen -destination=mock_health.go -package=health github.com/mfreeman451/clientradar/pkg/health Prober

// Prober probes a health check URL.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}

// Store loads clients and persists their health state.
type Store interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListHealthCheckCandidates(ctx context.Context) ([]*models.Client, error)
	RecordProbe(ctx context.Context, c *models.Client, failed bool) error
}

// EventAppender records probe outcomes in the event log.
type EventAppender interface {
	Append(ctx context.Context, e *models.Event) error
}

// AlertProcessor evaluates alert rules for a client.
type AlertProcessor interface {
	Process(ctx context.Context, trigger models.TriggerType, client *models.Client, facts map[string]any) []*models.Notification
}

// Invalidator drops cached views that include a client.
type Invalidator interface {
	InvalidateClient(ctx context.Context, id string)
}

// Clock returns the current time.
type Clock func() time.Time
