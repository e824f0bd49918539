package alerts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConditionValidation(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		op        string
		threshold any
		wantErr   error
	}{
		{name: "unknown operator", field: "status", op: "~=", threshold: "x", wantErr: ErrUnknownOperator},
		{name: "empty field", field: " ", op: ">", threshold: 1, wantErr: ErrEmptyField},
		{name: "ordered needs number", field: "latency", op: ">=", threshold: "fast", wantErr: ErrInvalidThreshold},
		{name: "in needs list", field: "status", op: "in", threshold: "error", wantErr: ErrInvalidThreshold},
		{name: "contains needs string", field: "error", op: "contains", threshold: 5, wantErr: ErrInvalidThreshold},
		{name: "numeric string threshold", field: "latency", op: "gt", threshold: "250"},
		{name: "word operator", field: "status", op: "NEQ", threshold: "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCondition(tt.field, tt.op, tt.threshold)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConditionMet(t *testing.T) {
	facts := map[string]any{
		"consecutive_failures": uint(3),
		"response_time_ms":     int64(1250),
		"error_rate":           0.12,
		"status":               models.StatusUnhealthy,
		"error_message":        "Connection REFUSED by upstream",
		"count_json":           json.Number("7"),
		"nil_value":            nil,
	}

	tests := []struct {
		field     string
		op        string
		threshold any
		want      bool
	}{
		{"consecutive_failures", ">=", 3, true},
		{"consecutive_failures", ">", 3, false},
		{"consecutive_failures", "<", 4.5, true},
		{"consecutive_failures", "<=", 2, false},
		{"response_time_ms", ">", "1000", true},
		{"error_rate", ">=", 0.1, true},
		{"status", "==", "unhealthy", true},
		{"status", "!=", "healthy", true},
		{"status", "!=", "unhealthy", false},
		{"consecutive_failures", "==", 3.0, true},
		{"error_message", "contains", "refused", true},
		{"error_message", "contains", "timeout", false},
		{"status", "in", []any{"error", "unhealthy"}, true},
		{"status", "in", []string{"healthy"}, false},
		{"consecutive_failures", "in", []int{1, 2, 3}, true},
		{"count_json", ">", 5, true},
		{"missing", ">", 0, false},
		{"missing", "!=", "x", false},
		{"nil_value", "==", nil, false},
		{"status", ">", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.field+" "+tt.op, func(t *testing.T) {
			c, err := NewCondition(tt.field, tt.op, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Met(facts))
		})
	}
}

func TestEvaluateIsConjunction(t *testing.T) {
	facts := map[string]any{"consecutive_failures": 3, "status": "unhealthy"}

	rule := func(specs ...models.ConditionSpec) *CompiledRule {
		compiled, err := Compile(&models.AlertRule{Conditions: specs})
		require.NoError(t, err)

		return compiled
	}

	assert.True(t, rule().Evaluate(facts), "no conditions")
	assert.True(t, rule().Evaluate(nil), "no conditions, no facts")
	assert.True(t, rule(
		models.ConditionSpec{Field: "consecutive_failures", Operator: ">=", Threshold: 3},
		models.ConditionSpec{Field: "status", Operator: "==", Threshold: "unhealthy"},
	).Evaluate(facts))
	assert.False(t, rule(
		models.ConditionSpec{Field: "consecutive_failures", Operator: ">=", Threshold: 3},
		models.ConditionSpec{Field: "status", Operator: "==", Threshold: "error"},
	).Evaluate(facts))
}

func TestCompileRejectsMalformedRule(t *testing.T) {
	_, err := Compile(&models.AlertRule{ID: 7, Conditions: models.ConditionList{
		{Field: "status", Operator: "==", Threshold: "error"},
		{Field: "status", Operator: "matches", Threshold: "err.*"},
	}})

	require.ErrorIs(t, err, ErrUnknownOperator)
	assert.ErrorContains(t, err, "rule 7 condition 1")
}

func TestCanTrigger(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule models.AlertRule
		now  time.Time
		want bool
	}{
		{name: "inactive", rule: models.AlertRule{IsActive: false}, now: t0, want: false},
		{name: "never triggered", rule: models.AlertRule{IsActive: true, CooldownMinutes: 30}, now: t0, want: true},
		{
			name: "right after trigger",
			rule: models.AlertRule{IsActive: true, CooldownMinutes: 30, LastTriggeredAt: &t0},
			now:  t0, want: false,
		},
		{
			name: "one second before cooldown ends",
			rule: models.AlertRule{IsActive: true, CooldownMinutes: 30, LastTriggeredAt: &t0},
			now:  t0.Add(30*time.Minute - time.Second), want: false,
		},
		{
			name: "exactly at cooldown end",
			rule: models.AlertRule{IsActive: true, CooldownMinutes: 30, LastTriggeredAt: &t0},
			now:  t0.Add(30 * time.Minute), want: true,
		},
		{
			name: "zero cooldown",
			rule: models.AlertRule{IsActive: true, LastTriggeredAt: &t0},
			now:  t0, want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTrigger(&tt.rule, tt.now))
		})
	}
}
