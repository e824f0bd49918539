package alerts

import (
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// CompiledRule is an alert rule whose conditions passed validation.
type CompiledRule struct {
	Rule       *models.AlertRule
	Conditions []Condition
}

// Compile validates every condition of rule.
func Compile(rule *models.AlertRule) (*CompiledRule, error) {
	conditions := make([]Condition, 0, len(rule.Conditions))

	for i, spec := range rule.Conditions {
		c, err := NewCondition(spec.Field, spec.Operator, spec.Threshold)
		if err != nil {
			return nil, fmt.Errorf("rule %d condition %d: %w", rule.ID, i, err)
		}

		conditions = append(conditions, c)
	}

	return &CompiledRule{Rule: rule, Conditions: conditions}, nil
}

// Evaluate is true when every condition is met. No conditions means true.
func (r *CompiledRule) Evaluate(facts map[string]any) bool {
	for _, c := range r.Conditions {
		if !c.Met(facts) {
			return false
		}
	}

	return true
}

// CanTrigger reports whether rule may fire at now.
func CanTrigger(rule *models.AlertRule, now time.Time) bool {
	if !rule.IsActive {
		return false
	}

	if rule.LastTriggeredAt == nil {
		return true
	}

	return !now.Before(rule.LastTriggeredAt.Add(rule.Cooldown()))
}
