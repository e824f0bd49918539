package models

import "time"

// Priority of a performance recommendation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Recommendation is emitted when a performance threshold is breached.
type Recommendation struct {
	Type        string   `json:"type"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
}

// QuerySample is one timed store query.
type QuerySample struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}
