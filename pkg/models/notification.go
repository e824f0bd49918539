package models

import "time"

// NotificationType is the severity class of a notification.
type NotificationType string

const (
	NotificationInfo     NotificationType = "info"
	NotificationWarning  NotificationType = "warning"
	NotificationAlert    NotificationType = "alert"
	NotificationCritical NotificationType = "critical"
)

// NotificationStatus tracks delivery.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is a persisted alert and its delivery outcome.
type Notification struct {
	ID             int64              `json:"id" db:"id"`
	ClientID       string             `json:"client_id" db:"client_id"`
	RuleID         *int64             `json:"rule_id,omitempty" db:"rule_id"`
	Type           NotificationType   `json:"type" db:"type"`
	Title          string             `json:"title" db:"title"`
	Message        string             `json:"message" db:"message"`
	Data           Metadata           `json:"data,omitempty" db:"data"`
	Channels       StringList         `json:"channels" db:"channels"`
	Recipients     StringList         `json:"recipients,omitempty" db:"recipients"`
	Status         NotificationStatus `json:"status" db:"status"`
	ChannelsSent   StringList         `json:"channels_sent" db:"channels_sent"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy string             `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AckNote        string             `json:"ack_note,omitempty" db:"ack_note"`
}

// NotificationFilter narrows a notification feed.
type NotificationFilter struct {
	ClientID       string             `json:"client_id,omitempty"`
	Type           NotificationType   `json:"type,omitempty"`
	Status         NotificationStatus `json:"status,omitempty"`
	Unacknowledged bool               `json:"unacknowledged,omitempty"`
	Since          *time.Time         `json:"since,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Offset         int                `json:"offset,omitempty"`
}
