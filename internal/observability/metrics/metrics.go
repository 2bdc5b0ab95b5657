package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "stopalarm_"

const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultDiscarded = "discarded"
)

var (
	registerOnce sync.Once

	evaluationsTotal *prometheus.CounterVec
	triggersTotal    prometheus.Counter

	syncEventsTotal  *prometheus.CounterVec
	syncQueueDepth   prometheus.Gauge
	reconcileTotal   *prometheus.CounterVec
	createFlushTotal *prometheus.CounterVec

	notifyTotal *prometheus.CounterVec
)

// Init registers subsystem metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		evaluationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluations_total",
				Help: "Background evaluations by decision reason",
			},
			[]string{"reason"},
		)
		triggersTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "triggers_total",
				Help: "Alarm triggers fired",
			},
		)
		syncEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_events_total",
				Help: "Pending sync events by type and outcome (appended/deduped)",
			},
			[]string{"type", "outcome"},
		)
		syncQueueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sync_queue_depth",
				Help: "Current pending sync queue length",
			},
		)
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_events_total",
				Help: "Reconciled sync events by type and result",
			},
			[]string{"type", "result"},
		)
		createFlushTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "create_flush_total",
				Help: "Offline create flush attempts by result",
			},
			[]string{"result"},
		)
		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notification deliveries by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			evaluationsTotal,
			triggersTotal,
			syncEventsTotal,
			syncQueueDepth,
			reconcileTotal,
			createFlushTotal,
			notifyTotal,
		)
	})
}

// IncEvaluation counts one background evaluation by decision reason.
func IncEvaluation(reason string) {
	if evaluationsTotal != nil {
		evaluationsTotal.WithLabelValues(reason).Inc()
	}
}

// IncTrigger counts one fired alarm.
func IncTrigger() {
	if triggersTotal != nil {
		triggersTotal.Inc()
	}
}

// IncSyncEvent counts a queue append attempt by type and outcome.
func IncSyncEvent(eventType, outcome string) {
	if syncEventsTotal != nil {
		syncEventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

// SetSyncQueueDepth records the current queue length.
func SetSyncQueueDepth(depth int) {
	if syncQueueDepth != nil {
		syncQueueDepth.Set(float64(depth))
	}
}

// IncReconcile counts one reconciled event by type and result.
func IncReconcile(eventType, result string) {
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(eventType, result).Inc()
	}
}

// IncCreateFlush counts one offline-create flush attempt.
func IncCreateFlush(result string) {
	if createFlushTotal != nil {
		createFlushTotal.WithLabelValues(result).Inc()
	}
}

// IncNotify counts one notification delivery attempt.
func IncNotify(result string) {
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}
