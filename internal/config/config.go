package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EngineConfig carries the cycle timing and the firing policy durations.
// The cooldown values are policy, not constants: deployments with faster
// polling hardware tune them down.
type EngineConfig struct {
	CycleInterval        time.Duration
	StartupDelay         time.Duration
	DispatchTimeout      time.Duration
	ScheduleWindow       time.Duration
	ScheduleRefireGuard  time.Duration
	ThresholdCooldown    time.Duration
	TimerDefaultInterval time.Duration
	TimerMinSpacing      time.Duration
}

// RetentionConfig controls the daily log pruning job.
type RetentionConfig struct {
	CronSpec        string
	SensorLogDays   int
	ActuatorLogDays int
}

// AlertBounds are the acceptable ranges checked at ingest time.
type AlertBounds struct {
	PhMin, PhMax               float64
	TdsMin, TdsMax             float64
	WaterTempMin, WaterTempMax float64
	HumidityMin, HumidityMax   float64
}

// Config holds application configuration.
type Config struct {
	DBURL         string
	RedisAddr     string
	MQTTBroker    string
	MQTTClientID  string
	HTTPAddr      string
	LogLevel      string
	MDNSLocalName string
	SnapshotTTL   time.Duration

	Engine    EngineConfig
	Retention RetentionConfig
	Alerts    AlertBounds
}

// LoadConfig reads configuration from .env, config.yaml and env vars.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetDefault("MQTT_CLIENT_ID", "aerofarm-engine")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MDNS_LOCAL_NAME", "aerofarm.local")
	viper.SetDefault("SNAPSHOT_TTL", time.Hour)

	viper.SetDefault("ENGINE_CYCLE_INTERVAL", 60*time.Second)
	viper.SetDefault("ENGINE_STARTUP_DELAY", 5*time.Second)
	viper.SetDefault("ENGINE_DISPATCH_TIMEOUT", 10*time.Second)
	viper.SetDefault("ENGINE_SCHEDULE_WINDOW", time.Minute)
	viper.SetDefault("ENGINE_SCHEDULE_REFIRE_GUARD", time.Minute)
	viper.SetDefault("ENGINE_THRESHOLD_COOLDOWN", 5*time.Minute)
	viper.SetDefault("ENGINE_TIMER_DEFAULT_INTERVAL", 5*time.Minute)
	viper.SetDefault("ENGINE_TIMER_MIN_SPACING", time.Minute)

	viper.SetDefault("RETENTION_CRON", "0 3 * * *")
	viper.SetDefault("RETENTION_SENSOR_LOG_DAYS", 90)
	viper.SetDefault("RETENTION_ACTUATOR_LOG_DAYS", 180)

	viper.SetDefault("ALERT_PH_MIN", 5.5)
	viper.SetDefault("ALERT_PH_MAX", 6.5)
	viper.SetDefault("ALERT_TDS_MIN", 800.0)
	viper.SetDefault("ALERT_TDS_MAX", 1500.0)
	viper.SetDefault("ALERT_WATER_TEMP_MIN", 18.0)
	viper.SetDefault("ALERT_WATER_TEMP_MAX", 26.0)
	viper.SetDefault("ALERT_HUMIDITY_MIN", 40.0)
	viper.SetDefault("ALERT_HUMIDITY_MAX", 80.0)

	cfg := &Config{
		DBURL:         viper.GetString("DB_URL"),
		RedisAddr:     viper.GetString("REDIS_ADDR"),
		MQTTBroker:    viper.GetString("MQTT_BROKER"),
		MQTTClientID:  viper.GetString("MQTT_CLIENT_ID"),
		HTTPAddr:      viper.GetString("HTTP_ADDR"),
		LogLevel:      viper.GetString("LOG_LEVEL"),
		MDNSLocalName: viper.GetString("MDNS_LOCAL_NAME"),
		SnapshotTTL:   viper.GetDuration("SNAPSHOT_TTL"),
		Engine: EngineConfig{
			CycleInterval:        viper.GetDuration("ENGINE_CYCLE_INTERVAL"),
			StartupDelay:         viper.GetDuration("ENGINE_STARTUP_DELAY"),
			DispatchTimeout:      viper.GetDuration("ENGINE_DISPATCH_TIMEOUT"),
			ScheduleWindow:       viper.GetDuration("ENGINE_SCHEDULE_WINDOW"),
			ScheduleRefireGuard:  viper.GetDuration("ENGINE_SCHEDULE_REFIRE_GUARD"),
			ThresholdCooldown:    viper.GetDuration("ENGINE_THRESHOLD_COOLDOWN"),
			TimerDefaultInterval: viper.GetDuration("ENGINE_TIMER_DEFAULT_INTERVAL"),
			TimerMinSpacing:      viper.GetDuration("ENGINE_TIMER_MIN_SPACING"),
		},
		Retention: RetentionConfig{
			CronSpec:        viper.GetString("RETENTION_CRON"),
			SensorLogDays:   viper.GetInt("RETENTION_SENSOR_LOG_DAYS"),
			ActuatorLogDays: viper.GetInt("RETENTION_ACTUATOR_LOG_DAYS"),
		},
		Alerts: AlertBounds{
			PhMin:        viper.GetFloat64("ALERT_PH_MIN"),
			PhMax:        viper.GetFloat64("ALERT_PH_MAX"),
			TdsMin:       viper.GetFloat64("ALERT_TDS_MIN"),
			TdsMax:       viper.GetFloat64("ALERT_TDS_MAX"),
			WaterTempMin: viper.GetFloat64("ALERT_WATER_TEMP_MIN"),
			WaterTempMax: viper.GetFloat64("ALERT_WATER_TEMP_MAX"),
			HumidityMin:  viper.GetFloat64("ALERT_HUMIDITY_MIN"),
			HumidityMax:  viper.GetFloat64("ALERT_HUMIDITY_MAX"),
		},
	}
	return cfg, nil
}
