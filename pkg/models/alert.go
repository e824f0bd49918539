package models

import "time"

// TriggerType selects which pipeline evaluates a rule.
type TriggerType string

const (
	TriggerHealthCheckFailed TriggerType = "health_check_failed"
	TriggerUsageThreshold    TriggerType = "usage_threshold"
	TriggerErrorRate         TriggerType = "error_rate"
)

// ConditionSpec is a stored, not yet validated, rule condition.
type ConditionSpec struct {
	Field     string `json:"field"`
	Operator  string `json:"operator"`
	Threshold any    `json:"value"`
}

// AlertRule is an operator-configured alert.
type AlertRule struct {
	ID               int64            `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	ClientID         *string          `json:"client_id,omitempty" db:"client_id"`
	TriggerType      TriggerType      `json:"trigger_type" db:"trigger_type"`
	Conditions       ConditionList    `json:"conditions" db:"conditions"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	Channels         StringList       `json:"channels" db:"channels"`
	Recipients       StringList       `json:"recipients" db:"recipients"`
	CooldownMinutes  int              `json:"cooldown_minutes" db:"cooldown_minutes"`
	LastTriggeredAt  *time.Time       `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	IsActive         bool             `json:"is_active" db:"is_active"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// Cooldown returns the rule's cooldown window.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}
