// Package errsink receives failures that were isolated from their siblings:
// a rule that failed to evaluate, a listener that failed to process a notification.
package errsink

import (
	"log/slog"

	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

// Sink is told about an isolated failure. component groups failures ("rule", "listener",
// "statistic"), source identifies the failing unit.
type Sink interface {
	Report(component, source string, err error)
}

// Func adapts a function to Sink.
type Func func(component, source string, err error)

func (f Func) Report(component, source string, err error) { f(component, source, err) }

// Log returns the default sink: logs the failure and counts it.
func Log() Sink {
	return Func(func(component, source string, err error) {
		slog.Error("isolated failure", "component", component, "source", source, "err", err)
		metrics.IsolatedFailures.WithLabelValues(component).Inc()
	})
}

