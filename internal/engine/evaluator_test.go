package engine

import (
	"testing"
	"time"

	"aerofarm/internal/models"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 8, 0, 30, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func tptr(t time.Time) *time.Time { return &t }

func mins(n int) *int { return &n }

func clockAt(h, m int) *time.Duration {
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return &d
}

func scheduleRule(days string) models.AutomationRule {
	return models.AutomationRule{
		ID:           1,
		DeviceID:     1,
		RuleType:     models.RuleSchedule,
		ScheduleTime: clockAt(8, 0),
		ScheduleDays: days,
		IsActive:     true,
	}
}

func thresholdRule(param, op string, value float64) models.AutomationRule {
	return models.AutomationRule{
		ID:                 2,
		DeviceID:           1,
		RuleType:           models.RuleThreshold,
		ConditionParameter: param,
		ConditionOperator:  op,
		ConditionValue:     f64(value),
		IsActive:           true,
	}
}

func timerRule(duration *int) models.AutomationRule {
	return models.AutomationRule{
		ID:              3,
		DeviceID:        1,
		RuleType:        models.RuleTimer,
		DurationMinutes: duration,
		IsActive:        true,
	}
}

func phSnapshot(ph float64) *models.SensorSnapshot {
	return &models.SensorSnapshot{DeviceID: 1, Timestamp: monday, Ph: f64(ph)}
}

func TestScheduleFiresWithinWindow(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("Monday")
	if !e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected schedule rule to fire at Monday 08:00:30")
	}
}

func TestScheduleRefireGuard(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("Monday")
	rule.LastExecuted = tptr(monday)

	later := monday.Add(15 * time.Second) // 08:00:45, still inside the window
	if e.ShouldFire(rule, later, nil) {
		t.Fatal("expected re-fire guard to suppress a second firing in the same window")
	}
}

func TestScheduleDayFilter(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("Monday")
	tuesday := monday.AddDate(0, 0, 1)
	if e.ShouldFire(rule, tuesday, nil) {
		t.Fatal("expected day filter to exclude Tuesday")
	}
}

func TestScheduleDayFilterCaseInsensitive(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("monday, wednesday")
	if !e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected case-insensitive weekday match")
	}
}

func TestScheduleEmptyDaysMeansEveryDay(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("")
	tuesday := monday.AddDate(0, 0, 1)
	if !e.ShouldFire(rule, tuesday, nil) {
		t.Fatal("expected empty day list to allow every day")
	}
}

func TestScheduleOutsideWindow(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("Monday")
	if e.ShouldFire(rule, monday.Add(5*time.Minute), nil) {
		t.Fatal("expected no firing five minutes past the scheduled time")
	}
}

func TestScheduleMissingTimeSkips(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := scheduleRule("Monday")
	rule.ScheduleTime = nil
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected schedule rule without a time to never fire")
	}
}

func TestThresholdCooldownDominates(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := thresholdRule("ph", "<", 5.5)
	rule.LastExecuted = tptr(monday.Add(-2 * time.Minute))

	// Condition holds (5.0 < 5.5) but the cooldown has not elapsed.
	if e.ShouldFire(rule, monday, phSnapshot(5.0)) {
		t.Fatal("expected cooldown to suppress firing even with the condition true")
	}
}

func TestThresholdFires(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := thresholdRule("ph", "<", 5.5)
	rule.LastExecuted = tptr(monday.Add(-10 * time.Minute))

	if !e.ShouldFire(rule, monday, phSnapshot(5.0)) {
		t.Fatal("expected firing with pH 5.0 < 5.5 and cooldown elapsed")
	}
	if e.ShouldFire(rule, monday, phSnapshot(6.0)) {
		t.Fatal("expected no firing with pH 6.0")
	}

	rule.LastExecuted = nil
	if !e.ShouldFire(rule, monday, phSnapshot(5.0)) {
		t.Fatal("expected firing on a rule that never fired before")
	}
}

func TestThresholdParameterSynonyms(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	snap := &models.SensorSnapshot{
		DeviceID:  1,
		Ph:        f64(6.0),
		TdsPpm:    f64(1200),
		WaterTemp: f64(22),
		Humidity:  f64(70),
	}

	cases := []struct {
		param string
		op    string
		value float64
		want  bool
	}{
		{"PH", ">", 5.0, true},
		{"tds", ">", 1000, true},
		{"tds_ppm", ">", 1000, true},
		{"ec", "<", 1000, false},
		{"temperature", ">=", 22, true},
		{"water_temp", "<=", 22, true},
		{"humidity", "==", 70, true},
		{"air_humidity", ">", 80, false},
		{"light", ">", 0, false}, // unmapped parameter
	}
	for _, tc := range cases {
		rule := thresholdRule(tc.param, tc.op, tc.value)
		if got := e.ShouldFire(rule, monday, snap); got != tc.want {
			t.Errorf("%s %s %v: got %v, want %v", tc.param, tc.op, tc.value, got, tc.want)
		}
	}
}

func TestThresholdUnknownOperator(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := thresholdRule("ph", "!=", 5.5)
	if e.ShouldFire(rule, monday, phSnapshot(5.0)) {
		t.Fatal("expected unknown operator to never fire")
	}
}

func TestThresholdMissingSnapshot(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := thresholdRule("ph", "<", 5.5)
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected no firing without a snapshot")
	}

	// Snapshot exists but has no pH reading.
	snap := &models.SensorSnapshot{DeviceID: 1, Humidity: f64(50)}
	if e.ShouldFire(rule, monday, snap) {
		t.Fatal("expected no firing when the parameter was not reported")
	}
}

func TestThresholdIncompleteRuleSkips(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	incomplete := []models.AutomationRule{
		thresholdRule("", "<", 5.5),
		thresholdRule("ph", "", 5.5),
		{RuleType: models.RuleThreshold, ConditionParameter: "ph", ConditionOperator: "<"},
	}
	for i, rule := range incomplete {
		if e.ShouldFire(rule, monday, phSnapshot(5.0)) {
			t.Errorf("case %d: expected incomplete threshold rule to never fire", i)
		}
	}
}

func TestTimerFirstFire(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	if !e.ShouldFire(timerRule(mins(60)), monday, nil) {
		t.Fatal("expected a never-executed timer rule to fire immediately")
	}
	if !e.ShouldFire(timerRule(nil), monday, nil) {
		t.Fatal("expected a never-executed timer rule without a duration to fire")
	}
}

func TestTimerInterval(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := timerRule(mins(10))

	rule.LastExecuted = tptr(monday.Add(-9 * time.Minute))
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected no firing 9 minutes into a 10-minute interval")
	}

	rule.LastExecuted = tptr(monday.Add(-11 * time.Minute))
	if !e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected firing 11 minutes into a 10-minute interval")
	}
}

func TestTimerDefaultInterval(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := timerRule(nil)
	rule.LastExecuted = tptr(monday.Add(-4 * time.Minute))
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected default 5-minute interval to suppress at 4 minutes")
	}

	rule.LastExecuted = tptr(monday.Add(-6 * time.Minute))
	if !e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected default 5-minute interval to fire at 6 minutes")
	}
}

func TestTimerSpacingFloor(t *testing.T) {
	// A policy with a sub-minute default interval still cannot fire more
	// often than the spacing floor allows.
	p := DefaultPolicy()
	p.TimerDefaultInterval = 30 * time.Second
	e := NewEvaluator(p)

	rule := timerRule(nil)
	rule.LastExecuted = tptr(monday.Add(-45 * time.Second))
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected the one-minute floor to suppress a 45-second-old firing")
	}

	rule.LastExecuted = tptr(monday.Add(-90 * time.Second))
	if !e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected firing once both the interval and the floor elapsed")
	}
}

func TestUnknownRuleTypeNeverFires(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())

	rule := timerRule(nil)
	rule.RuleType = models.RuleType(99)
	if e.ShouldFire(rule, monday, nil) {
		t.Fatal("expected unknown rule type to never fire")
	}
}
