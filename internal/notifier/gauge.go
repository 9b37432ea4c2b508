package notifier

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gyaneshwarpardhi/sense/internal/expectation"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

// Gauge exposes one gauge per notification name: 0 once registered, 1 once satisfied.
// Re-registering a name resets its gauge. Only pending names are tracked; the series of a
// satisfied name stays at 1 until the name is reused, so label cardinality follows the
// number of distinct names ever submitted.
type Gauge struct {
	vec *prometheus.GaugeVec

	mu    sync.Mutex
	known map[string]struct{} // pending names
}

// NewGauge reports into vec, or into the sense_notification_state gauge when vec is nil.
func NewGauge(vec *prometheus.GaugeVec) *Gauge {
	if vec == nil {
		vec = metrics.NotificationState
	}
	return &Gauge{vec: vec, known: make(map[string]struct{})}
}

func (g *Gauge) NotificationRegistered(info expectation.Info) error {
	g.mu.Lock()
	g.known[info.Name] = struct{}{}
	g.mu.Unlock()
	g.vec.WithLabelValues(info.Name).Set(0)
	return nil
}

// Pending reports how many registered names are still waiting for Notify.
func (g *Gauge) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.known)
}

func (g *Gauge) Notify(n expectation.Notification) error {
	g.mu.Lock()
	_, ok := g.known[n.Name]
	delete(g.known, n.Name)
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown notification %s", n.Name)
	}
	g.vec.WithLabelValues(n.Name).Set(1)
	return nil
}
