package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/qualtrack/qualtrack/pkg/model"
	"github.com/qualtrack/qualtrack/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Notification represents a single notification event produced by the rule
// engine.
type Notification struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	MetricUUID string     `json:"metric_uuid"`
	MetricName string     `json:"metric_name"`
	Scale      string     `json:"scale"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	OldStatus  string     `json:"old_status"`
	NewStatus  string     `json:"new_status"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates notification rules against metric status transitions and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.NotifyRule
	webhooks []config.WebhookConfig

	mu         sync.Mutex
	lastStatus map[string]string        // key: "metricUUID:scale"
	active     map[string]*Notification // key: "ruleName:metricUUID:scale"
	lastFire   map[string]time.Time     // last fire time per key (for cooldown)
	history    []*Notification          // recently resolved notifications
	client     *http.Client
}

// New creates an Engine from the server notification configuration.
// An Engine with empty rules is valid — Observe still tracks statuses but
// never fires.
func New(cfg config.NotifyConfig) *Engine {
	return &Engine{
		rules:      cfg.Rules,
		webhooks:   cfg.Webhooks,
		lastStatus: make(map[string]string),
		active:     make(map[string]*Notification),
		lastFire:   make(map[string]time.Time),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Observe records the statuses of a freshly stored measurement and evaluates
// all rules against every scale whose status changed since the previous
// observation. The first observation of a metric only records its statuses.
func (e *Engine) Observe(metricUUID, metricName string, m *model.Measurement) {
	for scale, result := range m.Scales {
		statusKey := metricUUID + ":" + scale

		e.mu.Lock()
		old, seen := e.lastStatus[statusKey]
		e.lastStatus[statusKey] = result.Status
		e.mu.Unlock()

		if !seen || old == result.Status {
			continue
		}

		e.evaluate(StatusChange{
			MetricUUID: metricUUID,
			MetricName: metricName,
			Scale:      scale,
			OldStatus:  old,
			NewStatus:  result.Status,
		})
	}
}

// evaluate tests all configured rules against one status change.
// Notifications that fire are stored and webhook delivery is triggered
// asynchronously. Notifications that were firing but whose condition is now
// false are resolved.
func (e *Engine) evaluate(ch StatusChange) {
	if len(e.rules) == 0 {
		return
	}

	now := time.Now()
	for _, rule := range e.rules {
		key := rule.Name + ":" + ch.MetricUUID + ":" + ch.Scale
		fires := evalCondition(rule.Condition, ch)

		e.mu.Lock()

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				n := &Notification{
					ID:         fmt.Sprintf("%s:%s:%d", rule.Name, ch.MetricUUID, now.UnixNano()),
					RuleName:   rule.Name,
					MetricUUID: ch.MetricUUID,
					MetricName: ch.MetricName,
					Scale:      ch.Scale,
					Severity:   sev,
					OldStatus:  ch.OldStatus,
					NewStatus:  ch.NewStatus,
					Message: fmt.Sprintf("[%s] %s: %q went from %s to %s",
						sev, rule.Name, ch.MetricName, ch.OldStatus, ch.NewStatus),
					FiredAt: now,
					State:   "firing",
				}
				e.active[key] = n
				e.lastFire[key] = now
				notifCopy := *n
				e.mu.Unlock()

				slog.Warn("notification fired",
					"rule", rule.Name,
					"metric", ch.MetricUUID,
					"scale", ch.Scale,
					"status", ch.NewStatus,
					"severity", sev,
				)
				go e.deliver(&notifCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if n, ok := e.active[key]; ok && n.State == "firing" {
				resolved := now
				n.State = "resolved"
				n.ResolvedAt = &resolved
				delete(e.active, key)

				e.history = append(e.history, n)
				if len(e.history) > maxHistoryLen {
					e.history = e.history[len(e.history)-maxHistoryLen:]
				}
				notifCopy := *n
				e.mu.Unlock()

				slog.Info("notification resolved",
					"rule", rule.Name,
					"metric", ch.MetricUUID,
					"scale", ch.Scale,
				)
				go e.deliver(&notifCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// Active returns copies of all currently firing notifications plus any
// notifications resolved within the past hour.
func (e *Engine) Active() []*Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-recentWindowHours * time.Hour)
	out := make([]*Notification, 0, len(e.active))

	for _, n := range e.active {
		cp := *n
		out = append(out, &cp)
	}
	for _, n := range e.history {
		if n.ResolvedAt != nil && n.ResolvedAt.After(cutoff) {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}
