package scheduler

import (
	"time"

	"aerofarm/internal/config"
	"aerofarm/internal/taskqueue"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the periodic maintenance jobs, currently the daily log
// retention pruning.
type Scheduler struct {
	cron  *cron.Cron
	tasks *taskqueue.Client
	log   zerolog.Logger
}

// New creates a scheduler enqueuing through tasks.
func New(tasks *taskqueue.Client, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		tasks: tasks,
		log:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// AddRetentionJob schedules the pruning run per cfg. Retention of zero days
// disables pruning for that log.
func (s *Scheduler) AddRetentionJob(cfg config.RetentionConfig) error {
	_, err := s.cron.AddFunc(cfg.CronSpec, func() {
		now := time.Now().UTC()
		// A zero cutoff tells the worker to leave that log alone.
		var sensorCutoff, actuatorCutoff time.Time
		if cfg.SensorLogDays > 0 {
			sensorCutoff = now.AddDate(0, 0, -cfg.SensorLogDays)
		}
		if cfg.ActuatorLogDays > 0 {
			actuatorCutoff = now.AddDate(0, 0, -cfg.ActuatorLogDays)
		}
		if sensorCutoff.IsZero() && actuatorCutoff.IsZero() {
			return
		}
		if err := s.tasks.EnqueuePrune(sensorCutoff, actuatorCutoff); err != nil {
			s.log.Warn().Err(err).Msg("failed to enqueue retention run")
			return
		}
		s.log.Info().
			Time("sensor_cutoff", sensorCutoff).
			Time("actuator_cutoff", actuatorCutoff).
			Msg("retention run enqueued")
	})
	return err
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("cron scheduler started")
}

// Stop stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("cron scheduler stopped")
}
