package models

import "time"

// EventType classifies an event log entry.
type EventType string

const (
	EventHealthCheck          EventType = "health_check"
	EventAuthorizationRequest EventType = "authorization_request"
	EventAuthorizationGranted EventType = "authorization_granted"
	EventAuthorizationDenied  EventType = "authorization_denied"
	EventTokenIssued          EventType = "token_issued"
	EventTokenRefreshed       EventType = "token_refreshed"
	EventTokenFailed          EventType = "token_failed"
	EventAPICall              EventType = "api_call"
	EventError                EventType = "error"
	EventSecurity             EventType = "security"
	EventMaintenance          EventType = "maintenance"
	EventRecovery             EventType = "recovery"
	EventConfigChange         EventType = "config_change"
)

// Severity of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Event is an immutable fact about client activity.
type Event struct {
	ID         int64     `json:"id" db:"id"`
	ClientID   string    `json:"client_id" db:"client_id"`
	Type       EventType `json:"type" db:"type"`
	Severity   Severity  `json:"severity" db:"severity"`
	Name       string    `json:"name" db:"name"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	Metadata   Metadata  `json:"metadata,omitempty" db:"metadata"`
}

// TokenKind distinguishes the OAuth artifacts kept in the token table.
type TokenKind string

const (
	TokenAccess   TokenKind = "access"
	TokenRefresh  TokenKind = "refresh"
	TokenAuthCode TokenKind = "auth_code"
)

// Token is an issued OAuth token or authorization code.
type Token struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Kind      TokenKind `json:"kind" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}
