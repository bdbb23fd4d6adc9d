package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aerofarm"

var (
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one full automation cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	RulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rules_evaluated_total",
		Help:      "Rules considered across all cycles.",
	})

	CommandsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "commands_published_total",
		Help:      "Actuator commands successfully dispatched.",
	})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "dispatch_failures_total",
		Help:      "Failed dispatch attempts by failure kind.",
	}, []string{"kind"})

	CyclesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycles_aborted_total",
		Help:      "Cycles aborted because the rule fetch failed.",
	})

	SensorReadings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "sensor_readings_total",
		Help:      "Sensor readings ingested from the broker.",
	})

	AlertsRaised = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "alerts_raised_total",
		Help:      "Range-breach alerts enqueued at ingest time.",
	})
)
