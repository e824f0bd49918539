package models

import "time"

// StatusCounts is the fleet breakdown by health status.
type StatusCounts struct {
	ByStatus    map[HealthStatus]int `json:"by_status"`
	Maintenance int                  `json:"maintenance"`
	Total       int                  `json:"total"`
}

// DailyTotals counts today's activity.
type DailyTotals struct {
	Since              time.Time `json:"since"`
	Events             int64     `json:"events" db:"events"`
	HealthChecks       int64     `json:"health_checks" db:"health_checks"`
	FailedHealthChecks int64     `json:"failed_health_checks" db:"failed_health_checks"`
	Notifications      int64     `json:"notifications" db:"notifications"`
}

// DashboardStats is the short-lived dashboard aggregate.
type DashboardStats struct {
	Clients       StatusCounts             `json:"clients"`
	Notifications map[NotificationType]int `json:"notifications_by_type"`
	Today         DailyTotals              `json:"today"`
	GeneratedAt   time.Time                `json:"generated_at"`
}

// DashboardOverview holds the slower changing overview lists.
type DashboardOverview struct {
	UnhealthyClients    []*Client       `json:"unhealthy_clients"`
	RecentNotifications []*Notification `json:"recent_notifications"`
	GeneratedAt         time.Time       `json:"generated_at"`
}
