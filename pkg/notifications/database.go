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

	"github.com/mfreeman451/clientradar/pkg/models"
)

// DatabaseChannel is the in-app feed. The notification row is the delivery,
// so Send always succeeds.
type DatabaseChannel struct{}

func (DatabaseChannel) Name() string {
	return "database"
}

func (DatabaseChannel) Send(context.Context, *models.Notification, []string) error {
	return nil
}
