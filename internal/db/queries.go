package db

import (
	"context"
	"errors"
	"time"

	"aerofarm/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ActiveRules fetches all active rules ordered by priority (highest first).
// The id tiebreak keeps the order stable across fetches.
func (d *DB) ActiveRules(ctx context.Context) ([]models.AutomationRule, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, device_id, rule_name, rule_type, actuator_type, action,
		       condition_parameter, condition_operator, condition_value,
		       schedule_time, schedule_days, duration_minutes,
		       is_active, priority, created_at, last_executed
		FROM automation_rules
		WHERE is_active
		ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		var (
			r         models.AutomationRule
			param     *string
			op        *string
			days      *string
			schedTime pgtype.Time
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Name, &r.RuleType, &r.ActuatorType, &r.Action,
			&param, &op, &r.ConditionValue,
			&schedTime, &days, &r.DurationMinutes,
			&r.IsActive, &r.Priority, &r.CreatedAt, &r.LastExecuted); err != nil {
			return nil, err
		}
		if param != nil {
			r.ConditionParameter = *param
		}
		if op != nil {
			r.ConditionOperator = *op
		}
		if days != nil {
			r.ScheduleDays = *days
		}
		if schedTime.Valid {
			t := time.Duration(schedTime.Microseconds) * time.Microsecond
			r.ScheduleTime = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeviceByID fetches a device, returning (nil, nil) when it does not exist.
func (d *DB) DeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		"SELECT id, COALESCE(device_name, ''), mac_address, COALESCE(status, ''), created_at, last_seen FROM devices WHERE id = $1", id).
		Scan(&dev.ID, &dev.Name, &dev.MacAddress, &dev.Status, &dev.CreatedAt, &dev.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// DeviceByMac fetches a device by broker identity, (nil, nil) when absent.
func (d *DB) DeviceByMac(ctx context.Context, mac string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		"SELECT id, COALESCE(device_name, ''), mac_address, COALESCE(status, ''), created_at, last_seen FROM devices WHERE mac_address = $1", mac).
		Scan(&dev.ID, &dev.Name, &dev.MacAddress, &dev.Status, &dev.CreatedAt, &dev.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// TouchDeviceLastSeen stamps a device as recently heard from.
func (d *DB) TouchDeviceLastSeen(ctx context.Context, id int64, t time.Time) error {
	_, err := d.pool.Exec(ctx, "UPDATE devices SET last_seen = $1 WHERE id = $2", t, id)
	return err
}

// LatestSnapshot returns the most recent sensor reading for a device,
// (nil, nil) when the device has never reported.
func (d *DB) LatestSnapshot(ctx context.Context, deviceID int64) (*models.SensorSnapshot, error) {
	var s models.SensorSnapshot
	err := d.pool.QueryRow(ctx, `
		SELECT device_id, timestamp, ph, tds_ppm, water_temp, humidity
		FROM sensor_logs
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`, deviceID).
		Scan(&s.DeviceID, &s.Timestamp, &s.Ph, &s.TdsPpm, &s.WaterTemp, &s.Humidity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSensorLog appends one reading to the sensor log.
func (d *DB) InsertSensorLog(ctx context.Context, s models.SensorSnapshot) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sensor_logs (device_id, timestamp, ph, tds_ppm, water_temp, humidity)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.DeviceID, s.Timestamp, s.Ph, s.TdsPpm, s.WaterTemp, s.Humidity)
	return err
}

// AppendActuatorLog appends one execution record to the audit log.
func (d *DB) AppendActuatorLog(ctx context.Context, rec models.ActuatorLog) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO actuator_logs (id, device_id, rule_id, timestamp, actuator_type, action, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.DeviceID, rec.RuleID, rec.Timestamp, rec.ActuatorType, rec.Action, rec.DurationMinutes)
	return err
}

// PersistRuleExecutions writes the batched last_executed updates collected
// over one engine cycle. One batch, one round trip.
func (d *DB) PersistRuleExecutions(ctx context.Context, executed map[int64]time.Time) error {
	if len(executed) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, ts := range executed {
		batch.Queue("UPDATE automation_rules SET last_executed = $1 WHERE id = $2", ts, id)
	}
	results := d.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range executed {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertAlert records a range-breach alert.
func (d *DB) InsertAlert(ctx context.Context, a models.Alert) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO alerts (device_id, alert_type, message, severity, timestamp, is_resolved)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.DeviceID, a.AlertType, a.Message, a.Severity, a.Timestamp, a.Resolved)
	return err
}

// PruneSensorLogs deletes readings older than cutoff, returning the row count.
func (d *DB) PruneSensorLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, "DELETE FROM sensor_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneActuatorLogs deletes execution records older than cutoff.
func (d *DB) PruneActuatorLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, "DELETE FROM actuator_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ActuatorHistory lists recent execution records, newest first. deviceID 0
// means all devices.
func (d *DB) ActuatorHistory(ctx context.Context, deviceID int64, limit int) ([]models.ActuatorLog, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, device_id, rule_id, timestamp, actuator_type, action, duration_minutes
		FROM actuator_logs
		WHERE ($1 = 0 OR device_id = $1)
		ORDER BY timestamp DESC
		LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ActuatorLog
	for rows.Next() {
		var rec models.ActuatorLog
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.RuleID, &rec.Timestamp,
			&rec.ActuatorType, &rec.Action, &rec.DurationMinutes); err != nil {
			return nil, err
		}
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

// SensorHistory lists recent readings, newest first. deviceID 0 means all.
func (d *DB) SensorHistory(ctx context.Context, deviceID int64, limit int) ([]models.SensorSnapshot, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT device_id, timestamp, ph, tds_ppm, water_temp, humidity
		FROM sensor_logs
		WHERE ($1 = 0 OR device_id = $1)
		ORDER BY timestamp DESC
		LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.SensorSnapshot
	for rows.Next() {
		var s models.SensorSnapshot
		if err := rows.Scan(&s.DeviceID, &s.Timestamp, &s.Ph, &s.TdsPpm, &s.WaterTemp, &s.Humidity); err != nil {
			return nil, err
		}
		logs = append(logs, s)
	}
	return logs, rows.Err()
}

// Alerts lists recent alerts, newest first.
func (d *DB) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, device_id, alert_type, message, severity, timestamp, is_resolved
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.AlertType, &a.Message, &a.Severity, &a.Timestamp, &a.Resolved); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
