package models

import (
	"strings"
	"time"
)

// RuleType selects which trigger model a rule uses. Exactly one of the
// schedule/threshold/timer field groups is meaningful for a given type;
// the evaluator ignores the rest.
type RuleType int

const (
	RuleSchedule RuleType = iota
	RuleThreshold
	RuleTimer
)

func (t RuleType) String() string {
	switch t {
	case RuleSchedule:
		return "schedule"
	case RuleThreshold:
		return "threshold"
	case RuleTimer:
		return "timer"
	}
	return "unknown"
}

// ActuatorType identifies the output class a rule drives.
type ActuatorType int

const (
	ActuatorPump ActuatorType = iota
	ActuatorFan
	ActuatorLight
	ActuatorHeater
)

// Label returns the wire label for the actuator. Unknown values map to
// "Pump", matching what controllers expect as the safe default.
func (t ActuatorType) Label() string {
	switch t {
	case ActuatorFan:
		return "Fan"
	case ActuatorLight:
		return "Light"
	case ActuatorHeater:
		return "Heater"
	default:
		return "Pump"
	}
}

// AutomationRule is the stored automation directive. LastExecuted is owned
// exclusively by the engine; external writers must never touch it or the
// cooldown math breaks.
type AutomationRule struct {
	ID                 int64
	DeviceID           int64
	Name               string
	RuleType           RuleType
	ActuatorType       ActuatorType
	Action             string
	ConditionParameter string
	ConditionOperator  string
	ConditionValue     *float64
	ScheduleTime       *time.Duration // offset from midnight UTC
	ScheduleDays       string         // comma-separated weekday names, empty = every day
	DurationMinutes    *int
	IsActive           bool
	Priority           int
	CreatedAt          time.Time
	LastExecuted       *time.Time
}

// ScheduleDayList splits ScheduleDays into trimmed, non-empty entries.
func (r AutomationRule) ScheduleDayList() []string {
	if strings.TrimSpace(r.ScheduleDays) == "" {
		return nil
	}
	var days []string
	for _, d := range strings.Split(r.ScheduleDays, ",") {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	return days
}

// Device is a networked farm controller. MacAddress is its broker identity;
// a device without one cannot be commanded.
type Device struct {
	ID         int64
	Name       string
	MacAddress string
	Status     string
	CreatedAt  *time.Time
	LastSeen   *time.Time
}

// SensorSnapshot is the most recent reading set for a device. Nil fields
// mean the device did not report that parameter.
type SensorSnapshot struct {
	DeviceID  int64     `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Ph        *float64  `json:"ph,omitempty"`
	TdsPpm    *float64  `json:"tds_ppm,omitempty"`
	WaterTemp *float64  `json:"water_temp,omitempty"`
	Humidity  *float64  `json:"humidity,omitempty"`
}

// ActuatorLog is the append-only execution record written for every firing.
type ActuatorLog struct {
	ID              string
	DeviceID        int64
	RuleID          int64
	Timestamp       time.Time
	ActuatorType    string
	Action          string
	DurationMinutes *int
}

// CommandPayload is the JSON published on devices/{mac}/control. Field names
// are a stable contract with the device firmware and dashboards.
type CommandPayload struct {
	DeviceID     int64  `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	MacAddress   string `json:"macAddress"`
	ActuatorType string `json:"actuatorType"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
}

// Alert records a sensor reading outside its acceptable range.
type Alert struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"device_id"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"is_resolved"`
}
