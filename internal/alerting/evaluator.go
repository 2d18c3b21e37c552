// Package alerting evaluates alert rules against event revision diffs and
// dispatches notifications over the configured channels with per-method
// deduplication.
package alerting

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/logging"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
	"github.com/fieldsight/fieldsight-go/internal/revision"
)

var logger *slog.Logger = logging.ForService("alerting")

// Evaluator decides which alert rules fire for one event change.
type Evaluator struct {
	store   datastore.Interface
	metrics *metrics.AlertingMetrics
	now     func() time.Time
}

// NewEvaluator builds an evaluator. Metrics may be nil.
func NewEvaluator(store datastore.Interface, m *metrics.AlertingMetrics) *Evaluator {
	return &Evaluator{store: store, metrics: m, now: time.Now}
}

// FiredRules returns the rules that fire for the event change, in rule
// order. A failing rule is logged and skipped; its siblings still run.
func (e *Evaluator) FiredRules(event *datastore.Event, created bool, diff map[string]revision.Change) ([]datastore.AlertRule, error) {
	rules, err := e.store.ActiveAlertRulesForEventType(event.EventType)
	if err != nil {
		return nil, err
	}

	var fired []datastore.AlertRule
	for i := range rules {
		rule := rules[i]
		outcome := e.evaluateRule(&rule, created, diff)
		if e.metrics != nil {
			e.metrics.RecordRuleEvaluation(outcome)
		}
		if outcome == "fired" {
			fired = append(fired, rule)
		}
	}
	return fired, nil
}

// evaluateRule applies the schedule window and the condition tree. A rule
// fires at most once per evaluation regardless of how many clauses match.
func (e *Evaluator) evaluateRule(rule *datastore.AlertRule, created bool, diff map[string]revision.Change) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("rule evaluation panicked", "rule", rule.Title, "panic", rec)
			outcome = "error"
		}
	}()

	if !withinSchedule(rule.Schedule, e.now().UTC()) {
		return "off_schedule"
	}
	if created || !rule.IsConditional() {
		return "fired"
	}

	clauses, _ := rule.Conditions["all"].([]any)
	for _, raw := range clauses {
		clause, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := clause["name"].(string)
		change, changed := diff[name]
		if !changed {
			continue
		}
		operator, _ := clause["operator"].(string)
		if matchesOperator(operator, change.New, clause["value"]) {
			return "fired"
		}
	}
	return "skipped"
}

// dayKeys maps time.Weekday to the schedule's day abbreviations.
var dayKeys = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// withinSchedule checks the rule's weekly window spec against t. An empty
// schedule is always on; a day listed with no windows is off for that day.
func withinSchedule(schedule datastore.JSONMap, t time.Time) bool {
	if len(schedule) == 0 {
		return true
	}
	windows, ok := schedule[dayKeys[t.Weekday()]].([]any)
	if !ok {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	for _, raw := range windows {
		window, ok := raw.([]any)
		if !ok || len(window) != 2 {
			continue
		}
		start, err1 := parseClock(window[0])
		end, err2 := parseClock(window[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if minutes >= start && minutes < end {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("clock value is not a string")
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
