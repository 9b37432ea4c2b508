package statistics

import (
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

// Prometheus counts classified events per type; it keeps no state of its own.
type Prometheus struct{}

func (Prometheus) Name() string { return "prometheus" }

func (Prometheus) Update(t event.EventType, _ *event.Event, _ time.Time) {
	metrics.EventsClassified.WithLabelValues(string(t)).Inc()
}

func (Prometheus) Refresh(time.Time) {}
