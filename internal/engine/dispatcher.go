package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aerofarm/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher delivers a command payload to a device channel. Retained
// messages let a late-joining device observe the last command.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
}

// AuditLog appends execution records for issued commands.
type AuditLog interface {
	AppendActuatorLog(ctx context.Context, rec models.ActuatorLog) error
}

// Dispatcher turns a firing decision into an actuator command: it appends
// the execution record, then publishes the command on the device's control
// channel. The decision-and-log is authoritative; delivery is best-effort.
type Dispatcher struct {
	publisher Publisher
	audit     AuditLog
	log       zerolog.Logger
}

// NewDispatcher wires a dispatcher to its publish capability and audit log.
func NewDispatcher(publisher Publisher, audit AuditLog, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		audit:     audit,
		log:       logger.With().Str("component", "dispatcher").Logger(),
	}
}

// NormalizeAction maps blank actions to "ON" and upper-cases the rest.
// Unknown values pass through upper-cased; the engine does not police the
// action vocabulary.
func NormalizeAction(action string) string {
	if strings.TrimSpace(action) == "" {
		return "ON"
	}
	return strings.ToUpper(action)
}

// Execute performs the unit of work for one firing. The returned record is
// valid whenever it was appended, even if the subsequent publish failed with
// ErrChannelUnavailable.
func (d *Dispatcher) Execute(ctx context.Context, rule models.AutomationRule, device models.Device, now time.Time) (models.ActuatorLog, error) {
	action := NormalizeAction(rule.Action)

	rec := models.ActuatorLog{
		ID:              uuid.NewString(),
		DeviceID:        device.ID,
		RuleID:          rule.ID,
		Timestamp:       now,
		ActuatorType:    rule.ActuatorType.Label(),
		Action:          action,
		DurationMinutes: rule.DurationMinutes,
	}

	if err := d.audit.AppendActuatorLog(ctx, rec); err != nil {
		return rec, fmt.Errorf("append execution record for rule %d: %w: %v", rule.ID, ErrStoreUnavailable, err)
	}

	payload := models.CommandPayload{
		DeviceID:     device.ID,
		DeviceName:   device.Name,
		MacAddress:   device.MacAddress,
		ActuatorType: rule.ActuatorType.Label(),
		Action:       action,
		Timestamp:    now.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return rec, fmt.Errorf("encode command payload for rule %d: %w", rule.ID, err)
	}

	// One channel per device; the actuatorType field disambiguates.
	topic := fmt.Sprintf("devices/%s/control", device.MacAddress)
	if err := d.publisher.Publish(topic, body, true); err != nil {
		d.log.Warn().
			Int64("rule_id", rule.ID).
			Str("topic", topic).
			Err(err).
			Msg("command logged but publish failed")
		return rec, fmt.Errorf("publish to %s: %w: %v", topic, ErrChannelUnavailable, err)
	}

	d.log.Info().
		Int64("rule_id", rule.ID).
		Int64("device_id", device.ID).
		Str("actuator", rec.ActuatorType).
		Str("action", action).
		Msg("command dispatched")

	return rec, nil
}
