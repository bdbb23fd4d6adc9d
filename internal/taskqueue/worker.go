package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"aerofarm/internal/db"
	"aerofarm/internal/models"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Worker processes queued tasks: alert recording and log pruning.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	db  *db.DB
	log zerolog.Logger
}

// NewWorker builds a worker bound to the Redis-backed queue.
func NewWorker(redisAddr string, database *db.DB, logger zerolog.Logger) *Worker {
	w := &Worker{
		srv: asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{Concurrency: 10}),
		mux: asynq.NewServeMux(),
		db:  database,
		log: logger.With().Str("component", "taskqueue").Logger(),
	}
	w.mux.HandleFunc(TypeRecordAlert, w.handleRecordAlert)
	w.mux.HandleFunc(TypePruneLogs, w.handlePruneLogs)
	return w
}

// Run blocks processing tasks until Stop is called.
func (w *Worker) Run() error {
	w.log.Info().Msg("worker started")
	return w.srv.Run(w.mux)
}

// Stop shuts the worker down, letting in-flight tasks finish.
func (w *Worker) Stop() {
	w.srv.Stop()
	w.srv.Shutdown()
	w.log.Info().Msg("worker stopped")
}

func (w *Worker) handleRecordAlert(ctx context.Context, t *asynq.Task) error {
	var alert models.Alert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return fmt.Errorf("decode alert payload: %w", err)
	}
	if err := w.db.InsertAlert(ctx, alert); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	w.log.Info().
		Int64("device_id", alert.DeviceID).
		Str("severity", alert.Severity).
		Msg(alert.Message)
	return nil
}

func (w *Worker) handlePruneLogs(ctx context.Context, t *asynq.Task) error {
	var p PrunePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode prune payload: %w", err)
	}

	var sensorRows, actuatorRows int64
	if !p.SensorCutoff.IsZero() {
		var err error
		if sensorRows, err = w.db.PruneSensorLogs(ctx, p.SensorCutoff); err != nil {
			return fmt.Errorf("prune sensor logs: %w", err)
		}
	}
	if !p.ActuatorCutoff.IsZero() {
		var err error
		if actuatorRows, err = w.db.PruneActuatorLogs(ctx, p.ActuatorCutoff); err != nil {
			return fmt.Errorf("prune actuator logs: %w", err)
		}
	}

	if sensorRows > 0 || actuatorRows > 0 {
		w.log.Info().
			Int64("sensor_rows", sensorRows).
			Int64("actuator_rows", actuatorRows).
			Msg("pruned old log rows")
	}
	return nil
}
