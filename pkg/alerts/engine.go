package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/metrics"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const defaultChannel = "database"

// Engine evaluates alert rules and triggers the matching ones.
type Engine struct {
	store  Store
	sender Sender
	logger *slog.Logger
	now    func() time.Time

	defaultCooldownMinutes int
}

// NewEngine creates an Engine. sender may be nil, in which case created
// notifications stay pending.
func NewEngine(store Store, sender Sender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{store: store, sender: sender, logger: logger, now: time.Now}
}

// SetDefaultCooldown applies minutes to rules stored without a cooldown.
func (e *Engine) SetDefaultCooldown(minutes int) {
	e.defaultCooldownMinutes = minutes
}

// Process evaluates the active rules of trigger for client against facts.
// It returns the notifications created; failures are logged, never returned.
func (e *Engine) Process(
	ctx context.Context, trigger models.TriggerType, client *models.Client, facts map[string]any) []*models.Notification {
	if client.MaintenanceMode {
		e.logger.Debug("alerting suppressed by maintenance mode", "client_id", client.ID, "trigger", trigger)

		return nil
	}

	rules, err := e.store.ListActiveRules(ctx, trigger, client.ID)
	if err != nil {
		e.logger.Error("failed to load alert rules", "client_id", client.ID, "trigger", trigger, "err", err)

		return nil
	}

	var created []*models.Notification

	for _, rule := range rules {
		if n := e.processRule(ctx, trigger, client, rule, facts); n != nil {
			created = append(created, n)
		}
	}

	return created
}

// ProcessUsage evaluates usage and error rate rules against a rollup.
func (e *Engine) ProcessUsage(ctx context.Context, rollup *models.UsageRollup) []*models.Notification {
	client := &models.Client{ID: rollup.ClientID}
	facts := rollup.Facts()

	created := e.Process(ctx, models.TriggerUsageThreshold, client, facts)

	return append(created, e.Process(ctx, models.TriggerErrorRate, client, facts)...)
}

func (e *Engine) processRule(
	ctx context.Context,
	trigger models.TriggerType,
	client *models.Client,
	rule *models.AlertRule,
	facts map[string]any) *models.Notification {
	compiled, err := Compile(rule)
	if err != nil {
		e.logger.Warn("skipping malformed alert rule", "rule_id", rule.ID, "rule", rule.Name, "err", err)

		return nil
	}

	if !compiled.Evaluate(facts) {
		return nil
	}

	if rule.CooldownMinutes == 0 {
		rule.CooldownMinutes = e.defaultCooldownMinutes
	}

	now := e.now()

	if !CanTrigger(rule, now) {
		metrics.AlertsTriggered.WithLabelValues(string(trigger), "cooldown").Inc()

		return nil
	}

	n := buildNotification(trigger, client, rule, facts)

	err = e.store.TriggerRule(ctx, rule.ID, now, now.Add(-rule.Cooldown()), n)
	if errors.Is(err, db.ErrRuleInCooldown) {
		// Another evaluator claimed the window first.
		metrics.AlertsTriggered.WithLabelValues(string(trigger), "cooldown").Inc()

		return nil
	}

	if err != nil {
		e.logger.Error("failed to trigger alert rule", "rule_id", rule.ID, "client_id", client.ID, "err", err)
		metrics.AlertsTriggered.WithLabelValues(string(trigger), "error").Inc()

		return nil
	}

	metrics.AlertsTriggered.WithLabelValues(string(trigger), "triggered").Inc()

	e.logger.Info("alert rule triggered",
		"rule_id", rule.ID, "rule", rule.Name, "client_id", client.ID, "notification_id", n.ID)

	if e.sender != nil {
		e.sender.Send(ctx, n)
	}

	return n
}

func buildNotification(
	trigger models.TriggerType, client *models.Client, rule *models.AlertRule, facts map[string]any) *models.Notification {
	data := models.Metadata{
		"rule_id":      rule.ID,
		"trigger_type": string(trigger),
	}

	for k, v := range facts {
		data[k] = v
	}

	channels := rule.Channels
	if len(channels) == 0 {
		channels = models.StringList{defaultChannel}
	}

	kind := rule.NotificationType
	if kind == "" {
		kind = models.NotificationAlert
	}

	ruleID := rule.ID

	return &models.Notification{
		ClientID:   client.ID,
		RuleID:     &ruleID,
		Type:       kind,
		Title:      rule.Name,
		Message:    describe(trigger, client, facts),
		Data:       data,
		Channels:   channels,
		Recipients: rule.Recipients,
		Status:     models.NotificationPending,
	}
}

func describe(trigger models.TriggerType, client *models.Client, facts map[string]any) string {
	name := client.Name
	if name == "" {
		name = client.ID
	}

	switch trigger {
	case models.TriggerHealthCheckFailed:
		msg := fmt.Sprintf("Client %s is %v after %v consecutive failed health checks",
			name, facts["status"], facts["consecutive_failures"])

		if errMsg, ok := facts["error_message"].(string); ok && errMsg != "" {
			msg += ": " + errMsg
		}

		return msg
	case models.TriggerErrorRate:
		return fmt.Sprintf("Client %s error rate reached %.2f%% on %v",
			name, toPercent(facts["error_rate"]), facts["date"])
	case models.TriggerUsageThreshold:
		return fmt.Sprintf("Client %s crossed a usage threshold on %v", name, facts["date"])
	}

	return fmt.Sprintf("Alert %s for client %s", trigger, name)
}

func toPercent(v any) float64 {
	f, _ := toFloat64(v)

	return f * 100
}
