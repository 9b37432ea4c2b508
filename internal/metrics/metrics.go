package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sense_events_enqueued_total",
		Help: "Total number of events placed on the classification queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sense_events_processed_total",
		Help: "Total number of events fully classified.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sense_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sense_event_counter",
		Help: "Number of classified events, labelled by event type.",
	}, []string{"type"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sense_event_processing_duration_ms",
		Help:    "Classification latency per event in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sense_queue_utilization_ratio",
		Help: "Current classification queue utilization (0–1).",
	})

	StatisticDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sense_statistic_dropped_total",
		Help: "Classified events older than the widest statistics bucket.",
	})

	IsolatedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sense_isolated_failures_total",
		Help: "Failures of a single rule, listener or statistic that were isolated from the rest.",
	}, []string{"component"})

	ActiveExpectations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sense_active_expectations",
		Help: "Number of registered expectations not yet satisfied or removed.",
	})

	NotificationState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sense_notification_state",
		Help: "0 while a notification is pending, 1 once it has been satisfied.",
	}, []string{"name"})

	EventCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sense_event_cache_requests_total",
		Help: "Event lookups by cache result.",
	}, []string{"result"})
)
