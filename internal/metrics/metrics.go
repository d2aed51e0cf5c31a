package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels detection cycles that completed.
	OutcomeSuccess = "success"
	// OutcomeIdle labels cycles that found no unprocessed events.
	OutcomeIdle = "idle"
	// OutcomeError labels failed cycles.
	OutcomeError = "error"
)

var (
	eventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "migration_sentinel",
			Name:      "events_ingested_total",
			Help:      "Normalized events accepted, partitioned by event type.",
		},
		[]string{"event_type"},
	)

	signalsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "migration_sentinel",
			Name:      "signals_rejected_total",
			Help:      "Malformed signals rejected at ingestion.",
		},
	)

	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "migration_sentinel",
			Name:      "detection_cycles_total",
			Help:      "Detection cycles run, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "migration_sentinel",
			Name:      "detection_cycle_seconds",
			Help:      "Detection cycle latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)

	oracleFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "migration_sentinel",
			Name:      "oracle_fallbacks_total",
			Help:      "Oracle calls degraded to the heuristic path, by reason.",
		},
		[]string{"reason"},
	)

	actionsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "migration_sentinel",
			Name:      "actions_executed_total",
			Help:      "Action executions dispatched, partitioned by type and outcome.",
		},
		[]string{"action_type", "outcome"},
	)
)

// Register attaches sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsIngestedTotal,
		signalsRejectedTotal,
		cyclesTotal,
		cycleDurationSeconds,
		oracleFallbacksTotal,
		actionsExecutedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIngest records one accepted event.
func ObserveIngest(eventType string) {
	eventsIngestedTotal.WithLabelValues(eventType).Inc()
}

// ObserveRejectedSignal records one malformed signal.
func ObserveRejectedSignal() {
	signalsRejectedTotal.Inc()
}

// ObserveCycle records a detection cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeIdle, OutcomeError:
	default:
		outcome = OutcomeSuccess
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveOracleFallback records a degradation to the heuristic path.
func ObserveOracleFallback(reason string) {
	oracleFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveActionExecution records one dispatch attempt.
func ObserveActionExecution(actionType string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	actionsExecutedTotal.WithLabelValues(actionType, outcome).Inc()
}
