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
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// CheckOptions modify which clients are due.
type CheckOptions struct {
	// Force ignores the check interval.
	Force bool
	// IncludeMaintenance probes clients in maintenance mode.
	IncludeMaintenance bool
}

// NeedsCheck reports whether c is due for a probe at now.
func NeedsCheck(c *models.Client, now time.Time, opts CheckOptions) bool {
	if !c.HealthCheckEnabled || c.HealthCheckURL == "" {
		return false
	}

	if c.MaintenanceMode && !opts.IncludeMaintenance {
		return false
	}

	if opts.Force || c.LastCheckedAt == nil {
		return true
	}

	return !now.Before(c.LastCheckedAt.Add(c.HealthCheckInterval()))
}

// Transition describes a status change caused by one probe.
type Transition struct {
	From      models.HealthStatus
	To        models.HealthStatus
	Degraded  bool
	Recovered bool
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

func (t Transition) String() string {
	return string(t.From) + "->" + string(t.To)
}

// Track applies r to c's health state.
func Track(c *models.Client, r Result, now time.Time) Transition {
	from := c.Status
	if !from.Valid() {
		from = models.StatusUnknown
	}

	checked := now.UTC()
	c.LastCheckedAt = &checked

	switch r.Outcome {
	case OutcomeSuccess:
		c.Status = models.StatusHealthy
		c.ConsecutiveFailures = 0
		c.LastErrorMessage = ""
	case OutcomeHTTPFailure:
		c.Status = models.StatusUnhealthy
		c.ConsecutiveFailures++
		c.LastErrorMessage = r.ErrorMessage()
	case OutcomeTransportFailure:
		c.Status = models.StatusError
		c.ConsecutiveFailures++
		c.LastErrorMessage = r.ErrorMessage()
	default:
		panic("health: unhandled probe outcome " + string(r.Outcome))
	}

	return Transition{
		From:      from,
		To:        c.Status,
		Degraded:  from == models.StatusHealthy && c.Status.IsFailure(),
		Recovered: from.IsFailure() && c.Status == models.StatusHealthy,
	}
}
