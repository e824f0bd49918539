package models

import "time"

// UsageRollup holds one client's counters for one day.
type UsageRollup struct {
	ClientID                 string     `json:"client_id" db:"client_id"`
	Date                     string     `json:"date" db:"date"`
	AuthorizationRequests    int64      `json:"authorization_requests" db:"authorization_requests"`
	SuccessfulAuthorizations int64      `json:"successful_authorizations" db:"successful_authorizations"`
	FailedAuthorizations     int64      `json:"failed_authorizations" db:"failed_authorizations"`
	TokenRequests            int64      `json:"token_requests" db:"token_requests"`
	SuccessfulTokens         int64      `json:"successful_tokens" db:"successful_tokens"`
	FailedTokens             int64      `json:"failed_tokens" db:"failed_tokens"`
	APICalls                 int64      `json:"api_calls" db:"api_calls"`
	UniqueUsers              int64      `json:"unique_users" db:"unique_users"`
	ActiveUsers              int64      `json:"active_users" db:"active_users"`
	PeakConcurrentUsers      int64      `json:"peak_concurrent_users_estimate" db:"peak_concurrent_users"`
	ErrorCount               int64      `json:"error_count" db:"error_count"`
	AvgResponseTimeMs        float64    `json:"avg_response_time_ms" db:"avg_response_time_ms"`
	LastActivityAt           *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
	UpdatedAt                time.Time  `json:"updated_at" db:"updated_at"`
}

// ErrorRate is failed authorizations and tokens over all requests, 0 when idle.
func (u *UsageRollup) ErrorRate() float64 {
	total := u.AuthorizationRequests + u.TokenRequests
	if total == 0 {
		return 0
	}

	return float64(u.FailedAuthorizations+u.FailedTokens) / float64(total)
}

// Facts exposes the rollup counters to alert rules.
func (u *UsageRollup) Facts() map[string]any {
	return map[string]any{
		"client_id":                 u.ClientID,
		"date":                      u.Date,
		"authorization_requests":    u.AuthorizationRequests,
		"successful_authorizations": u.SuccessfulAuthorizations,
		"failed_authorizations":     u.FailedAuthorizations,
		"token_requests":            u.TokenRequests,
		"successful_tokens":         u.SuccessfulTokens,
		"failed_tokens":             u.FailedTokens,
		"api_calls":                 u.APICalls,
		"unique_users":              u.UniqueUsers,
		"active_users":              u.ActiveUsers,
		"error_count":               u.ErrorCount,
		"avg_response_time_ms":      u.AvgResponseTimeMs,
		"error_rate":                u.ErrorRate(),
	}
}
