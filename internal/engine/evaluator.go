package engine

import (
	"strings"
	"time"

	"aerofarm/internal/models"
)

// Policy holds the firing-discipline durations. The schedule guard and the
// threshold cooldown are independent knobs; nothing couples them.
type Policy struct {
	ScheduleWindow       time.Duration
	ScheduleRefireGuard  time.Duration
	ThresholdCooldown    time.Duration
	TimerDefaultInterval time.Duration
	TimerMinSpacing      time.Duration
}

// DefaultPolicy returns the stock firing discipline: a one-minute schedule
// window and re-fire guard, a five-minute threshold cooldown, and timers
// defaulting to five minutes with a one-minute floor.
func DefaultPolicy() Policy {
	return Policy{
		ScheduleWindow:       time.Minute,
		ScheduleRefireGuard:  time.Minute,
		ThresholdCooldown:    5 * time.Minute,
		TimerDefaultInterval: 5 * time.Minute,
		TimerMinSpacing:      time.Minute,
	}
}

// strategy is the per-rule-type firing decision. Adding a rule type means
// adding a strategy here, nothing else.
type strategy interface {
	shouldFire(rule models.AutomationRule, now time.Time, snap *models.SensorSnapshot) bool
}

// Evaluator decides whether a rule fires at a given instant. It never blocks:
// the snapshot is already resolved by the caller.
type Evaluator struct {
	strategies map[models.RuleType]strategy
}

// NewEvaluator builds an evaluator with one strategy per rule type.
func NewEvaluator(p Policy) *Evaluator {
	return &Evaluator{
		strategies: map[models.RuleType]strategy{
			models.RuleSchedule:  scheduleStrategy{window: p.ScheduleWindow, refireGuard: p.ScheduleRefireGuard},
			models.RuleThreshold: thresholdStrategy{cooldown: p.ThresholdCooldown},
			models.RuleTimer:     timerStrategy{defaultInterval: p.TimerDefaultInterval, minSpacing: p.TimerMinSpacing},
		},
	}
}

// ShouldFire reports whether the rule should fire at now. Malformed but
// storable rule data never errors: rules missing required fields for their
// type simply do not fire. Unknown rule types never fire.
func (e *Evaluator) ShouldFire(rule models.AutomationRule, now time.Time, snap *models.SensorSnapshot) bool {
	s, ok := e.strategies[rule.RuleType]
	if !ok {
		return false
	}
	return s.shouldFire(rule, now.UTC(), snap)
}

// scheduleStrategy fires at a configured time of day, optionally gated to
// certain weekdays. All clock math is UTC.
type scheduleStrategy struct {
	window      time.Duration
	refireGuard time.Duration
}

func (s scheduleStrategy) shouldFire(rule models.AutomationRule, now time.Time, _ *models.SensorSnapshot) bool {
	if rule.ScheduleTime == nil {
		return false
	}

	if days := rule.ScheduleDayList(); len(days) > 0 {
		today := now.Weekday().String()
		match := false
		for _, d := range days {
			if strings.EqualFold(d, today) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	tod := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second

	diff := tod - *rule.ScheduleTime
	if diff < 0 {
		diff = -diff
	}
	if diff > s.window {
		return false
	}

	// Successive polls land inside the same window; fire only once.
	if rule.LastExecuted != nil && now.Sub(*rule.LastExecuted) < s.refireGuard {
		return false
	}

	return true
}

// thresholdStrategy fires when the device's latest reading crosses the
// configured boundary. The cooldown applies regardless of whether the
// condition still holds, so a hovering sensor value cannot spam commands.
type thresholdStrategy struct {
	cooldown time.Duration
}

func (s thresholdStrategy) shouldFire(rule models.AutomationRule, now time.Time, snap *models.SensorSnapshot) bool {
	if strings.TrimSpace(rule.ConditionParameter) == "" ||
		strings.TrimSpace(rule.ConditionOperator) == "" ||
		rule.ConditionValue == nil {
		return false
	}

	if rule.LastExecuted != nil && now.Sub(*rule.LastExecuted) < s.cooldown {
		return false
	}

	if snap == nil {
		return false
	}
	value := snapshotValue(snap, rule.ConditionParameter)
	if value == nil {
		return false
	}

	return compare(*value, rule.ConditionOperator, *rule.ConditionValue)
}

// timerStrategy fires every DurationMinutes. A rule that has never fired
// fires on its first evaluation.
type timerStrategy struct {
	defaultInterval time.Duration
	minSpacing      time.Duration
}

func (s timerStrategy) shouldFire(rule models.AutomationRule, now time.Time, _ *models.SensorSnapshot) bool {
	interval := s.defaultInterval
	if rule.DurationMinutes != nil && *rule.DurationMinutes > 0 {
		interval = time.Duration(*rule.DurationMinutes) * time.Minute
	}

	if rule.LastExecuted == nil {
		return true
	}

	sinceLast := now.Sub(*rule.LastExecuted)

	// The spacing floor keeps sub-minute intervals from firing on every tick.
	return sinceLast >= interval && sinceLast >= s.minSpacing
}

// snapshotValue resolves a condition parameter (with its accepted synonyms)
// to the matching snapshot field, nil when the device did not report it.
func snapshotValue(snap *models.SensorSnapshot, param string) *float64 {
	switch strings.ToLower(strings.TrimSpace(param)) {
	case "ph":
		return snap.Ph
	case "tds", "tds_ppm", "ec":
		return snap.TdsPpm
	case "temperature", "water_temp":
		return snap.WaterTemp
	case "humidity", "air_humidity":
		return snap.Humidity
	}
	return nil
}

func compare(actual float64, op string, expected float64) bool {
	switch op {
	case ">":
		return actual > expected
	case "<":
		return actual < expected
	case "==":
		return actual == expected
	case ">=":
		return actual >= expected
	case "<=":
		return actual <= expected
	}
	return false
}
