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
	"encoding/json"
	"fmt"

	"github.com/mfreeman451/clientradar/pkg/models"
)

const defaultSubject = "clientradar.notifications"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSChannel publishes notifications as JSON on <subject>.<type>.
type NATSChannel struct {
	publisher Publisher
	subject   string
}

func NewNATSChannel(publisher Publisher, subject string) *NATSChannel {
	if subject == "" {
		subject = defaultSubject
	}

	return &NATSChannel{publisher: publisher, subject: subject}
}

func (*NATSChannel) Name() string {
	return "nats"
}

func (c *NATSChannel) Send(_ context.Context, n *models.Notification, _ []string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return c.publisher.Publish(c.subject+"."+string(n.Type), data)
}
