/*-
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

// Package models pkg/models/client.go
package models

import "time"

// HealthStatus is the probe outcome classification of a client.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusError     HealthStatus = "error"
	StatusUnknown   HealthStatus = "unknown"
)

// Valid reports whether s is one of the four known statuses.
func (s HealthStatus) Valid() bool {
	switch s {
	case StatusHealthy, StatusUnhealthy, StatusError, StatusUnknown:
		return true
	default:
		return false
	}
}

// IsFailure reports whether s is the result of a failed probe.
func (s HealthStatus) IsFailure() bool {
	return s == StatusUnhealthy || s == StatusError
}

// Client is a registered OAuth client application and its health state.
type Client struct {
	ID                  string       `json:"id" db:"id"`
	Name                string       `json:"name" db:"name"`
	OwnerID             string       `json:"owner_id" db:"owner_id"`
	HealthCheckURL      string       `json:"health_check_url" db:"health_check_url"`
	HealthCheckSeconds  int64        `json:"health_check_interval" db:"health_check_interval"`
	HealthCheckEnabled  bool         `json:"health_check_enabled" db:"health_check_enabled"`
	MaintenanceMode     bool         `json:"maintenance_mode" db:"maintenance_mode"`
	MaintenanceMessage  string       `json:"maintenance_message,omitempty" db:"maintenance_message"`
	Status              HealthStatus `json:"health_status" db:"health_status"`
	ConsecutiveFailures uint         `json:"consecutive_failures" db:"consecutive_failures"`
	LastCheckedAt       *time.Time   `json:"last_health_check,omitempty" db:"last_checked_at"`
	LastErrorMessage    string       `json:"last_error_message,omitempty" db:"last_error_message"`
	Revoked             bool         `json:"revoked" db:"revoked"`
	IsActive            bool         `json:"is_active" db:"is_active"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// HealthCheckInterval returns the configured probe interval.
func (c *Client) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckSeconds) * time.Second
}

// ClientFilter narrows a client listing.
type ClientFilter struct {
	Status      HealthStatus `json:"status,omitempty"`
	Maintenance *bool        `json:"maintenance,omitempty"`
	ActiveOnly  bool         `json:"active_only,omitempty"`
	Page        int          `json:"page"`
	PerPage     int          `json:"per_page"`
}

// ClientPage is one page of a client listing.
type ClientPage struct {
	Clients []*Client `json:"clients"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}
