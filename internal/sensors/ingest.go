package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aerofarm/internal/config"
	"aerofarm/internal/metrics"
	"aerofarm/internal/models"
	"aerofarm/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const sensorTopic = "devices/+/sensors"

// Store is the slice of the backing store the ingestor writes to.
type Store interface {
	DeviceByMac(ctx context.Context, mac string) (*models.Device, error)
	InsertSensorLog(ctx context.Context, s models.SensorSnapshot) error
	TouchDeviceLastSeen(ctx context.Context, id int64, t time.Time) error
}

// AlertSink receives range-breach alerts for asynchronous recording.
type AlertSink interface {
	EnqueueAlert(a models.Alert) error
}

type snapshotWriter interface {
	Put(ctx context.Context, snap models.SensorSnapshot) error
}

// reading is the JSON the device firmware publishes on devices/{mac}/sensors.
type reading struct {
	Ph        *float64 `json:"ph"`
	TdsPpm    *float64 `json:"tds_ppm"`
	WaterTemp *float64 `json:"water_temp"`
	Humidity  *float64 `json:"humidity"`
}

// Ingestor consumes sensor readings from the broker, appends them to the
// sensor log, refreshes the latest-snapshot cache, and raises alerts for
// readings outside the configured ranges.
type Ingestor struct {
	store  Store
	cache  snapshotWriter
	alerts AlertSink
	bounds config.AlertBounds
	now    func() time.Time
	log    zerolog.Logger
}

// NewIngestor builds an ingestor over its collaborators.
func NewIngestor(store Store, cache snapshotWriter, alerts AlertSink, bounds config.AlertBounds, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		cache:  cache,
		alerts: alerts,
		bounds: bounds,
		now:    time.Now,
		log:    logger.With().Str("component", "ingest").Logger(),
	}
}

// Start subscribes to the sensor topic on client.
func (i *Ingestor) Start(client mqtt.Client) error {
	token := client.Subscribe(sensorTopic, 1, i.onMessage)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	i.log.Info().Str("topic", sensorTopic).Msg("subscribed to sensor readings")
	return nil
}

func (i *Ingestor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	mac := utils.DeviceMacFromTopic(msg.Topic())
	if err := i.handleReading(context.Background(), mac, msg.Payload()); err != nil {
		i.log.Warn().Str("mac", mac).Err(err).Msg("reading dropped")
	}
}

// handleReading processes one raw reading for the device identified by mac.
func (i *Ingestor) handleReading(ctx context.Context, mac string, payload []byte) error {
	if mac == "" {
		return fmt.Errorf("no device identity in topic")
	}

	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}

	device, err := i.store.DeviceByMac(ctx, mac)
	if err != nil {
		return fmt.Errorf("resolve device %s: %w", mac, err)
	}
	if device == nil {
		return fmt.Errorf("unknown device %s", mac)
	}

	now := i.now().UTC()
	snap := models.SensorSnapshot{
		DeviceID:  device.ID,
		Timestamp: now,
		Ph:        r.Ph,
		TdsPpm:    r.TdsPpm,
		WaterTemp: r.WaterTemp,
		Humidity:  r.Humidity,
	}

	if err := i.store.InsertSensorLog(ctx, snap); err != nil {
		return fmt.Errorf("insert sensor log: %w", err)
	}
	if err := i.store.TouchDeviceLastSeen(ctx, device.ID, now); err != nil {
		i.log.Debug().Int64("device_id", device.ID).Err(err).Msg("last-seen update failed")
	}
	if err := i.cache.Put(ctx, snap); err != nil {
		// The engine falls back to the sensor log, so this is not fatal.
		i.log.Debug().Int64("device_id", device.ID).Err(err).Msg("snapshot cache update failed")
	}

	metrics.SensorReadings.Inc()

	for _, alert := range rangeAlerts(snap, i.bounds) {
		if err := i.alerts.EnqueueAlert(alert); err != nil {
			i.log.Warn().Int64("device_id", device.ID).Err(err).Msg("alert enqueue failed")
			continue
		}
		metrics.AlertsRaised.Inc()
	}

	return nil
}

// rangeAlerts checks a reading against the acceptable ranges and returns one
// alert per breached parameter.
func rangeAlerts(snap models.SensorSnapshot, b config.AlertBounds) []models.Alert {
	var alerts []models.Alert

	add := func(severity, msg string) {
		alerts = append(alerts, models.Alert{
			DeviceID:  snap.DeviceID,
			AlertType: "Warning",
			Message:   msg,
			Severity:  severity,
			Timestamp: snap.Timestamp,
		})
	}

	if snap.Ph != nil && (*snap.Ph < b.PhMin || *snap.Ph > b.PhMax) {
		add("Medium", fmt.Sprintf("pH level %.2f is outside acceptable range (%.1f-%.1f)", *snap.Ph, b.PhMin, b.PhMax))
	}
	if snap.TdsPpm != nil && (*snap.TdsPpm < b.TdsMin || *snap.TdsPpm > b.TdsMax) {
		add("Medium", fmt.Sprintf("TDS/EC level %.0f is outside acceptable range (%.0f-%.0f)", *snap.TdsPpm, b.TdsMin, b.TdsMax))
	}
	if snap.WaterTemp != nil && (*snap.WaterTemp < b.WaterTempMin || *snap.WaterTemp > b.WaterTempMax) {
		add("High", fmt.Sprintf("Water temperature %.1f°C is outside acceptable range (%.1f-%.1f°C)", *snap.WaterTemp, b.WaterTempMin, b.WaterTempMax))
	}
	if snap.Humidity != nil && (*snap.Humidity < b.HumidityMin || *snap.Humidity > b.HumidityMax) {
		add("Low", fmt.Sprintf("Air humidity %.1f%% is outside acceptable range (%.1f-%.1f%%)", *snap.Humidity, b.HumidityMin, b.HumidityMax))
	}

	return alerts
}
